package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jdziat/firmware-jobs/pkg/api"
	"github.com/jdziat/firmware-jobs/pkg/core"
	"github.com/jdziat/firmware-jobs/pkg/logging"
	"github.com/jdziat/firmware-jobs/pkg/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "accept analyses over HTTP",
	RunE:  doServe,
}

func doServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.ContextAttrs(ctx, slog.Group("fwjobs",
		slog.String("cmd", "serve"),
		slog.Int("pid", os.Getpid()),
	))

	store, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := service.FromConfig(store, cfg, slog.Default())
	if err != nil {
		return err
	}
	svc.OnFinished(func(ctx context.Context, e *core.JobFinished) {
		slog.InfoContext(ctx, "analysis finalized",
			"job_id", e.JobID,
			"outcome", e.Outcome.Kind.String(),
			"duration", e.Duration,
		)
	})
	svc.Start(ctx)

	srv := &http.Server{
		Addr: cfg.HTTP.Listen,
		Handler: api.Handler(svc,
			api.WithLogger(slog.Default()),
			api.WithMaxUploadBytes(cfg.HTTP.MaxUploadMiB<<20),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "listening", "addr", srv.Addr, "workers", svc.Capacity())
		errc <- srv.ListenAndServe()
	}()

	select {
	case err = <-errc:
	case <-ctx.Done():
		slog.InfoContext(ctx, "shutting down, waiting for running analyses")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		err = srv.Shutdown(shutdownCtx)
		cancel()
	}
	svc.Shutdown(true)

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
