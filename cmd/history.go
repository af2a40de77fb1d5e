package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/lehigh-university-libraries/img2pdf/internal/models"
	"github.com/lehigh-university-libraries/img2pdf/internal/storage"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history <file.parquet>",
		Short: "Print a conversion history written by serve --history",
		Args:  cobra.ExactArgs(1),
		Example: `  img2pdf history ./conversions.parquet
  img2pdf history ./conversions.parquet --json | jq '.[] | select(.status != "ok")'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := storage.ReadParquet(args[0])
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			return writeHistory(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")
	return cmd
}

func writeHistory(w io.Writer, records []models.ConversionRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSTATUS\tPAGES\tOUTPUT\tDURATION\tFILES")
	for _, r := range records {
		files := strings.Join(r.Filenames, ", ")
		if r.Status != models.StatusOK && r.Error != "" {
			files = r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.Status,
			r.Pages,
			r.OutputBytes,
			time.Duration(r.DurationMS)*time.Millisecond,
			files,
		)
	}
	return tw.Flush()
}
