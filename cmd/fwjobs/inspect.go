package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/jdziat/firmware-jobs/pkg/core"
	"github.com/jdziat/firmware-jobs/pkg/report"
)

var parseCmd = &cobra.Command{
	Use:   "parse REPORT",
	Short: "parse an aggregator report and print the result fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		fields, err := report.ParseResult(b)
		if err != nil {
			return err
		}
		return printJSON(fields)
	},
}

var showCmd = &cobra.Command{
	Use:   "show [JOB_ID]",
	Short: "show one job and its result, or list recent jobs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStorage(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		if len(args) == 0 {
			jobs, err := store.ListJobs(ctx, "", 20)
			if err != nil {
				return err
			}
			for _, j := range jobs {
				fmt.Printf("%s  %-8s  %-12s  %s\n", j.ID, j.Status, j.Outcome, j.Name)
			}
			return nil
		}

		job, err := store.GetJob(ctx, args[0])
		if err != nil {
			return err
		}
		out := struct {
			Job    *core.Job          `json:"job"`
			Result *core.ResultFields `json:"result,omitempty"`
		}{Job: job}

		res, err := store.GetResult(ctx, job.ID)
		switch {
		case err == nil:
			out.Result = &res.ResultFields
		case !errors.Is(err, core.ErrResultNotFound):
			return err
		}
		return printJSON(out)
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// redactDSN hides the password of URL-style DSNs.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}
