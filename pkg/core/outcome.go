package core

import "fmt"

// OutcomeKind classifies how an analysis run ended.
type OutcomeKind int

const (
	OutcomeLaunchError OutcomeKind = iota
	OutcomeNoReport
	OutcomeParseError
	OutcomeSucceeded
)

// OutcomeRejected labels a Job that never reached a worker.
const OutcomeRejected = "rejected"

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeNoReport:
		return "no_report"
	case OutcomeParseError:
		return "parse_error"
	case OutcomeLaunchError:
		return "launch_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the terminal state of one run.
// Result is set only for OutcomeSucceeded.
type Outcome struct {
	Kind     OutcomeKind
	Result   *Result
	Err      error
	ExitCode int
}

// Succeeded reports whether a Result was produced and stored.
func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeSucceeded
}

// Status maps the outcome onto the Job status it finalizes with.
func (o Outcome) Status() JobStatus {
	if o.Succeeded() {
		return StatusFinished
	}
	return StatusFailed
}

// Error returns nil for a successful run, otherwise the failure cause.
func (o Outcome) Error() error {
	switch {
	case o.Succeeded():
		return nil
	case o.Err != nil:
		return o.Err
	case o.Kind == OutcomeNoReport:
		return ErrReportMissing
	default:
		return fmt.Errorf("fwjobs: analysis ended with %s", o.Kind)
	}
}
