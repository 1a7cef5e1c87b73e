// Package logtail follows the tool log of a running analysis and reports
// progress.
//
// The tailer polls <log root>/<job id>/emba.log, emits core.JobProgress for
// lines that name a tool module (P02_..., S09_...) or announce a phase, and
// returns once the job is finalized and the remaining output is drained.
package logtail
