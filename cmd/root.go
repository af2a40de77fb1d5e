package cmd

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lehigh-university-libraries/img2pdf/internal/config"
	"github.com/lehigh-university-libraries/img2pdf/internal/workbench"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	configPath string
	verbose    bool
}

func NewRootCmd() *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "img2pdf",
		Short: "Stage, order and convert images into a single PDF",
		Long: `img2pdf assembles an ordered batch of images, previews and reorders them,
and converts the batch into one PDF with a page per image.

It includes the conversion server as well as interactive and batch clients.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			logLevel := slog.LevelInfo
			if g.verbose {
				logLevel = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
			slog.SetDefault(logger)
		},
	}

	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Path to a YAML config file")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Enable debug logging")

	// Add subcommands
	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newStageCmd(g))
	cmd.AddCommand(newSubmitCmd(g))
	cmd.AddCommand(newHistoryCmd())

	return cmd
}

// clientFlags are shared by the stage and submit commands.
type clientFlags struct {
	endpoint    string
	downloadDir string
	maxFiles    int
	timeout     time.Duration
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.endpoint, "endpoint", "e", "", "Conversion server base URL (default from config)")
	cmd.Flags().StringVarP(&f.downloadDir, "download-dir", "d", "", "Directory converted PDFs are saved to (default from config)")
	cmd.Flags().IntVar(&f.maxFiles, "max-files", 0, "Maximum number of staged images (default from config)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Give up on a conversion after this long (0 waits indefinitely)")
}

// workbenchOptions merges config with any flags given on the command line.
func (f *clientFlags) workbenchOptions(g *globalOptions) (workbench.Options, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return workbench.Options{}, err
	}
	if f.endpoint != "" {
		cfg.Endpoint = f.endpoint
	}
	if f.downloadDir != "" {
		cfg.DownloadDir = f.downloadDir
	}
	if f.maxFiles > 0 {
		cfg.MaxFiles = f.maxFiles
	}
	return workbench.Options{
		Endpoint:      cfg.Endpoint,
		DownloadDir:   cfg.DownloadDir,
		MaxFiles:      cfg.MaxFiles,
		PreviewSize:   cfg.PreviewSize,
		DecodeWorkers: cfg.DecodeWorkers,
	}, nil
}
