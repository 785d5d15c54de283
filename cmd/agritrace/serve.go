package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"agritrace/internal/httpapi"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultShutdownTimeout = 10 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	var shutdownTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the traceability HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := c.open(ctx, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			ln, err := net.Listen("tcp", c.cfg.HTTP.Addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", c.cfg.HTTP.Addr, err)
			}
			return serve(ctx, rt, ln, c.cfg.HTTP.AllowedOrigins, shutdownTimeout)
		},
	}
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", defaultShutdownTimeout, "Grace period for in-flight requests")
	return cmd
}

// serve runs the API on ln until ctx is cancelled, then drains in-flight
// requests for at most shutdownTimeout.
func serve(ctx context.Context, rt *runtime, ln net.Listener, origins []string, shutdownTimeout time.Duration) error {
	api := httpapi.NewServer(rt.svc,
		httpapi.WithAuditReader(rt.audit),
		httpapi.WithGatherer(rt.registry),
		httpapi.WithLogger(rt.logger),
		httpapi.WithAllowedOrigins(origins),
	)
	srv := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("starting agritrace API",
			zap.String("listen", ln.Addr().String()),
			zap.String("blob_driver", string(rt.blobs.Driver())),
		)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	rt.logger.Info("shutting down agritrace API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
