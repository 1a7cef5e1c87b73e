// Package service assembles the firmware analysis execution core.
//
// A Service owns one admission gate shared by a bounded worker pool, the
// process runner that executes each analysis, the optional log tailer, the
// supervisor that stages uploads and the sweeper that removes abandoned
// staging directories. Every component reports through a single event bus:
//
//	svc, err := service.FromConfig(store, cfg, logger)
//	if err != nil {
//		return err
//	}
//	svc.Start(ctx)
//	defer svc.Shutdown(true)
//
//	events := svc.Events()
//	defer svc.Unsubscribe(events)
//
//	h, err := svc.Submit(ctx, supervisor.Submission{Name: "router"}, "/tmp/fw.zip")
//	if errors.Is(err, core.ErrAdmissionRejected) {
//		// all workers busy, retry later
//	}
//
// Slow event consumers lose events instead of stalling workers.
package service
