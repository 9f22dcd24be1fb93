package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/anime-shed/image-eval-go/internal/container"
	"github.com/anime-shed/image-eval-go/internal/logger"
)

const shutdownTimeout = 30 * time.Second

func (a *cli) newServeCmd() *cobra.Command {
	var (
		host       string
		port       string
		allowLocal bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the comparison HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("allow-local") {
				cfg.Server.AllowLocalSources = allowLocal
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := container.NewContainer(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			// Create HTTP server with configurable timeouts
			server := &http.Server{
				Addr:              cfg.ServerAddress(),
				Handler:           c.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
				WriteTimeout:      cfg.Server.RequestTimeout + 10*time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.WithFields(logrus.Fields{
					"address": cfg.ServerAddress(),
					"timeout": cfg.Server.RequestTimeout,
				}).Info("Starting HTTP server")

				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					logger.WithError(err).Error("Failed to start server")
					return err
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("Shutting down server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Server forced to shutdown")
				return err
			}

			logger.Info("Server exited")
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Listen host (default from config)")
	cmd.Flags().StringVar(&port, "port", "", "Listen port (default from config)")
	cmd.Flags().BoolVar(&allowLocal, "allow-local", false, "Allow batch requests to name server-side directories")
	return cmd
}
