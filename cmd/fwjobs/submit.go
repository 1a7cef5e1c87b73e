package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jdziat/firmware-jobs/pkg/logging"
	"github.com/jdziat/firmware-jobs/pkg/pool"
	"github.com/jdziat/firmware-jobs/pkg/service"
	"github.com/jdziat/firmware-jobs/pkg/supervisor"
)

var (
	submitName    string
	submitVersion string
	submitNotes   string
	submitFlags   string
)

var submitCmd = &cobra.Command{
	Use:   "submit ARTIFACT...",
	Short: "analyse firmware artifacts and wait for the results",
	Long: `submit runs one analysis per artifact in this process.

Artifacts beyond the configured number of workers are rejected, exactly
as they would be by a running server.`,
	Args: cobra.MinimumNArgs(1),
	RunE: doSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitName, "name", "", "firmware name")
	submitCmd.Flags().StringVar(&submitVersion, "version", "", "firmware version")
	submitCmd.Flags().StringVar(&submitNotes, "notes", "", "free-form notes")
	submitCmd.Flags().StringVar(&submitFlags, "flags", "", "extra analysis flags")
}

func doSubmit(cmd *cobra.Command, args []string) error {
	ctx := logging.ContextAttrs(cmd.Context(), slog.Group("fwjobs",
		slog.String("cmd", "submit"),
		slog.Int("pid", os.Getpid()),
	))

	store, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	// sweeping is left to the server
	local := cfg
	local.Sweep.Enabled = false
	svc, err := service.FromConfig(store, local, slog.Default())
	if err != nil {
		return err
	}
	defer svc.Shutdown(true)

	sub := supervisor.Submission{
		Name:    submitName,
		Version: submitVersion,
		Notes:   submitNotes,
		Flags:   submitFlags,
	}
	return submitAll(ctx, svc, sub, args)
}

type submitter interface {
	Submit(ctx context.Context, sub supervisor.Submission, artifact string) (*pool.Handle, error)
}

// submitAll submits every artifact and waits for the accepted ones. The
// returned error joins each submission failure with the analysis errors.
func submitAll(ctx context.Context, svc submitter, sub supervisor.Submission, artifacts []string) error {
	var g errgroup.Group
	var errs []error
	for _, artifact := range artifacts {
		h, err := svc.Submit(ctx, sub, artifact)
		if err != nil {
			slog.ErrorContext(ctx, "submission failed", "artifact", artifact, "error", err)
			errs = append(errs, fmt.Errorf("submitting %s: %w", artifact, err))
			continue
		}
		g.Go(func() error {
			err := h.Wait(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "analysis failed", "artifact", artifact, "task", h.Name(), "error", err)
			} else {
				slog.InfoContext(ctx, "analysis finished", "artifact", artifact, "task", h.Name())
			}
			return err
		})
	}

	return errors.Join(append(errs, g.Wait())...)
}
