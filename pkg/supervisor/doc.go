// Package supervisor turns an uploaded artifact into a running analysis.
//
// SubmitAnalysis stages the artifact into <active root>/<job id>, checks
// that it holds exactly one top-level entry, creates the log directory,
// builds the tool command line, persists the job and hands the run to the
// worker pool. A companion log tailer is submitted under the same job id
// as best-effort telemetry.
package supervisor
