// Package runner executes one analysis process to completion and records
// its outcome.
//
// Run starts the command in its own process group, stores the pid on the
// job, waits for the process to exit, ingests the report if one was
// written, removes the staging directory and finalizes the job. The job is
// finalized on every path, including launch failures and panics.
//
// Success is decided by the presence of the report file, not by the exit
// code: a nonzero exit that leaves a report behind still succeeds.
package runner
