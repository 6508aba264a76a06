package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	chirality "github.com/sgttomas/chirality-runtime"
	httpAdapter "github.com/sgttomas/chirality-runtime/pkg/adapters/http"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr  string
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long:  `Serves the /api/v1 JSON API together with /health and /metrics until interrupted.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open()
			if err != nil {
				return err
			}
			defer rt.Close()
			logger := rt.Logger()

			if addr == "" {
				addr = rt.Config.HTTP.Address
			}
			handlerOpts := []httpAdapter.Option{
				httpAdapter.WithMetrics(rt.Metrics.Handler()),
				httpAdapter.WithVersion(strings.TrimSpace(chirality.Version)),
				httpAdapter.WithLogger(logger),
			}
			if rt.Identity != nil {
				handlerOpts = append(handlerOpts, httpAdapter.WithIdentity(rt.Identity))
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           httpAdapter.NewHandler(rt, handlerOpts...),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if watch {
				events, err := rt.Watch(ctx)
				if err != nil {
					return err
				}
				go func() {
					for ev := range events {
						logger.Info("workspace changed", "path", ev.Path, "type", ev.ChangeType)
					}
				}()
			}

			serverErrors := make(chan error, 1)
			go func() {
				logger.Info("starting chirality server", "address", srv.Addr, "workspace", rt.Config.Workspace)
				serverErrors <- srv.ListenAndServe()
			}()

			select {
			case err := <-serverErrors:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
				logger.Info("shutdown signal received")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Error("graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
					return srv.Close()
				}
				logger.Info("chirality server stopped gracefully")
				return nil
			}
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (defaults to http.address)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Log workspace file changes")
	return cmd
}
