package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := a.Close(sctx); err != nil {
				zap.L().Warn("telemetry shutdown failed", zap.Error(err))
			}
		}()

		ln, err := net.Listen("tcp", resolveAddr(serveAddr, cfg.Server.Addr))
		if err != nil {
			return eris.Wrap(err, "server listen")
		}
		return runServer(ctx, a.server.HTTPServer(""), ln, cfg.Server.ShutdownTimeout)
	},
}

func resolveAddr(flag, configured string) string {
	if flag != "" {
		return flag
	}
	return configured
}

// runServer serves on ln until ctx is done, then drains in-flight
// requests for up to grace.
func runServer(ctx context.Context, srv *http.Server, ln net.Listener, grace time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return eris.Wrap(err, "server serve")
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return nil
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}
