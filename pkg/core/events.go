package core

import "time"

// Event is the interface for all service events.
type Event interface {
	eventMarker()
}

// JobSubmitted is emitted when a job is admitted into the pool.
type JobSubmitted struct {
	Job       *Job
	Timestamp time.Time
}

func (*JobSubmitted) eventMarker() {}

// JobRejected is emitted when a submission never reaches a worker.
type JobRejected struct {
	JobID     string
	Error     error
	Timestamp time.Time
}

func (*JobRejected) eventMarker() {}

// JobStarted is emitted once the analysis process is running.
type JobStarted struct {
	JobID     string
	PID       int
	Timestamp time.Time
}

func (*JobStarted) eventMarker() {}

// JobFinished is emitted after a job has been finalized.
type JobFinished struct {
	JobID     string
	Outcome   Outcome
	Duration  time.Duration
	Timestamp time.Time
}

func (*JobFinished) eventMarker() {}

// JobProgress is emitted by the log tailer for recognised log lines.
type JobProgress struct {
	JobID     string
	Phase     string
	Module    string
	Line      string
	Timestamp time.Time
}

func (*JobProgress) eventMarker() {}

// Emitter receives events. Implementations must not block.
type Emitter func(Event)

// Emit is nil-safe.
func (e Emitter) Emit(ev Event) {
	if e != nil {
		e(ev)
	}
}
