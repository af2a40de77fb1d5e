package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/lehigh-university-libraries/img2pdf/internal/notify"
	"github.com/lehigh-university-libraries/img2pdf/internal/render"
	"github.com/lehigh-university-libraries/img2pdf/internal/workbench"
	"github.com/spf13/cobra"
)

const stageHelp = `Commands:
  add <path>...        stage files (quote paths containing spaces)
  drop <items>         stage a pasted drop: paths, file:// URIs or http(s) URLs
  ls                   show staged images
  rm <n>               remove image n
  mv <from> <to>       drag image from onto position to (0 drops outside the list)
  clear                remove every image
  submit               convert the staged images and save the PDF
  help                 show this help
  quit                 leave without converting`

func newStageCmd(g *globalOptions) *cobra.Command {
	flags := &clientFlags{}

	cmd := &cobra.Command{
		Use:   "stage [image...]",
		Short: "Interactively stage, preview and reorder images before converting",
		Long: `Opens an interactive staging session. Images can be added by path or by
pasting a drag-and-drop payload, listed with their previews, reordered and
removed, then submitted to the conversion server as one batch.

` + stageHelp,
		Example: `  # Start with two images staged
  img2pdf stage cover.jpg page1.png

  # Use a remote conversion server
  img2pdf stage --endpoint http://convert.example.org`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.workbenchOptions(g)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			wb := workbench.New(opts, notify.NewWriter(out))
			defer wb.Close()

			s := &stageSession{wb: wb, out: out, flags: flags}
			if len(args) > 0 {
				_ = wb.Pick(cmd.Context(), args...)
			}
			s.list()
			return s.run(cmd.Context(), cmd.InOrStdin())
		},
	}

	flags.register(cmd)
	return cmd
}

type stageSession struct {
	wb    *workbench.Workbench
	out   io.Writer
	flags *clientFlags
}

func (s *stageSession) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "img2pdf> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		if quit := s.exec(ctx, scanner.Text()); quit {
			return nil
		}
	}
}

// exec runs one command line and reports whether the session should end.
// Failures are reported through the workbench notifier.
func (s *stageSession) exec(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "add":
		// a partially failed add still stages the items that resolved
		_ = s.wb.Pick(ctx, workbench.SplitDropPayload(rest)...)
		s.list()
	case "drop":
		_ = s.wb.Drop(ctx, rest)
		s.list()
	case "ls", "list":
		s.list()
	case "rm", "remove":
		n, ok := s.positions(rest, 1)
		if ok && s.wb.Remove(n[0]) == nil {
			s.list()
		}
	case "mv", "move":
		n, ok := s.positions(rest, 2)
		if ok && s.wb.Move(n[0], n[1]) == nil {
			s.list()
		}
	case "clear":
		s.wb.Clear()
		s.list()
	case "submit":
		submitCtx := ctx
		if s.flags != nil && s.flags.timeout > 0 {
			var cancel context.CancelFunc
			submitCtx, cancel = context.WithTimeout(ctx, s.flags.timeout)
			defer cancel()
		}
		if _, err := s.wb.Submit(submitCtx); err == nil {
			s.list()
		}
	case "help", "?":
		fmt.Fprintln(s.out, stageHelp)
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command %q, try help\n", name)
	}
	return false
}

func (s *stageSession) positions(arg string, want int) ([]int, bool) {
	fields := strings.Fields(arg)
	if len(fields) != want {
		fmt.Fprintf(s.out, "Expected %d position(s), got %q\n", want, arg)
		return nil, false
	}
	out := make([]int, want)
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			fmt.Fprintf(s.out, "Invalid position %q\n", f)
			return nil, false
		}
		out[i] = n
	}
	return out, true
}

func (s *stageSession) list() {
	s.wb.WaitPreviews()
	if err := render.WriteText(s.out, s.wb.View()); err != nil {
		fmt.Fprintf(s.out, "Unable to render: %v\n", err)
	}
}
