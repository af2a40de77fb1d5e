package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/img2pdf/internal/config"
	"github.com/lehigh-university-libraries/img2pdf/internal/handlers"
	"github.com/lehigh-university-libraries/img2pdf/internal/metrics"
	"github.com/spf13/cobra"
)

func newServeCmd(g *globalOptions) *cobra.Command {
	var (
		port    string
		history string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the image to PDF conversion server",
		Long: `Starts the conversion server on the specified port.

POST /upload accepts multipart "images" fields and responds with a single
PDF, one page per image in upload order. A plain upload form is served at /.`,
		Example: `  # Start server on default port 8888
  img2pdf serve

  # Start server on custom port and keep a parquet log of conversions
  img2pdf serve --port 3000 --history ./conversions.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") || cfg.Port == "" {
				cfg.Port = port
			}
			if history != "" {
				cfg.History = history
			}

			reg := metrics.NewRegistry()
			handler := handlers.New(handlers.Options{
				MaxFiles:     cfg.MaxFiles,
				MaxFileBytes: int64(cfg.MaxUploadMB) * 1024 * 1024,
				RateLimit:    cfg.RateLimit,
				RateBurst:    cfg.RateBurst,
				Workers:      cfg.DecodeWorkers,
				Metrics:      metrics.NewConversion(reg),
			})

			addr := ":" + cfg.Port
			server := &http.Server{
				Addr:              addr,
				Handler:           handler.Routes(reg),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Conversion server available", "addr", addr, "url", "http://localhost"+addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				// Give server 5 seconds to shut down gracefully
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
			case err := <-serverErr:
				return err
			}

			if cfg.History != "" {
				return handler.History().WriteParquet(cfg.History)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8888", "Port to listen on")
	cmd.Flags().StringVar(&history, "history", "", "Write conversion history to this parquet file on shutdown")

	return cmd
}
