package render

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// WriteText prints the view as a table for terminal front ends.
func WriteText(w io.Writer, v View) error {
	if v.Empty() {
		_, err := fmt.Fprintln(w, v.Summary)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tFILE\tTYPE\tSIZE\tPREVIEW")
	for _, it := range v.Items {
		marker := ""
		if it.Dragging {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s%d\t%s\t%s\t%s\t%s\n", marker, it.Position, it.Name, it.ContentType, humanSize(it.Size), previewCell(it))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, v.Summary)
	return err
}

func previewCell(it Item) string {
	switch it.Status {
	case Ready:
		return fmt.Sprintf("%s %dx%d", it.Preview.Format, it.Preview.Width, it.Preview.Height)
	case Failed:
		return "unavailable: " + it.Err.Error()
	default:
		return "loading…"
	}
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
