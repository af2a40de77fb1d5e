package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/lehigh-university-libraries/img2pdf/internal/manifest"
	"github.com/lehigh-university-libraries/img2pdf/internal/notify"
	"github.com/lehigh-university-libraries/img2pdf/internal/workbench"
	"github.com/spf13/cobra"
)

func newSubmitCmd(g *globalOptions) *cobra.Command {
	var (
		flags        = &clientFlags{}
		manifestPath string
		output       string
	)

	cmd := &cobra.Command{
		Use:   "submit [image...]",
		Short: "Convert images into one PDF in a single step",
		Long: `Stages the given images in order, or the files listed in a YAML manifest,
and submits them to the conversion server. The PDF is saved to the download
directory as converted.pdf unless another name is given.`,
		Example: `  # Convert three scans, in this order
  img2pdf submit cover.jpg page1.png page2.png

  # Convert the files listed in a manifest
  img2pdf submit --manifest batch.yaml -d ./out`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.workbenchOptions(g)
			if err != nil {
				return err
			}

			sources := args
			if manifestPath != "" {
				m, err := manifest.Load(manifestPath)
				if err != nil {
					return err
				}
				sources = append(m.Files, args...)
				if m.Endpoint != "" && flags.endpoint == "" {
					opts.Endpoint = m.Endpoint
				}
				if m.Output != "" {
					opts.ArtifactName = m.Output
				}
			}
			if output != "" {
				opts.ArtifactName = output
			}
			if len(sources) == 0 {
				return errors.New("no images given; pass paths or --manifest")
			}

			wb := workbench.New(opts, notify.NewWriter(cmd.ErrOrStderr()))
			defer wb.Close()

			ctx := cmd.Context()
			if err := wb.Pick(ctx, sources...); err != nil {
				return fmt.Errorf("failed to stage images: %w", err)
			}

			if flags.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, flags.timeout)
				defer cancel()
			}
			sess, err := wb.Submit(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sess.ArtifactPath)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "YAML manifest listing the images to convert")
	cmd.Flags().StringVarP(&output, "output", "o", "", "File name for the saved PDF")

	return cmd
}
