package api

import (
	"time"

	"github.com/jdziat/firmware-jobs/pkg/core"
)

type jobView struct {
	ID         string     `json:"id"`
	Name       string     `json:"name,omitempty"`
	Version    string     `json:"version,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	Flags      string     `json:"flags,omitempty"`
	Status     string     `json:"status"`
	Outcome    string     `json:"outcome,omitempty"`
	Error      string     `json:"error,omitempty"`
	Command    string     `json:"command,omitempty"`
	PID        int        `json:"pid,omitempty"`
	Finished   bool       `json:"finished"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	DurationMS int64      `json:"duration_ms"`
}

func newJobView(j *core.Job) jobView {
	return jobView{
		ID:         j.ID,
		Name:       j.Name,
		Version:    j.Version,
		Notes:      j.Notes,
		Flags:      j.Flags,
		Status:     string(j.Status),
		Outcome:    j.Outcome,
		Error:      j.LastError,
		Command:    j.Command,
		PID:        j.PID,
		Finished:   j.Finished,
		StartedAt:  j.StartedAt,
		EndedAt:    j.EndedAt,
		DurationMS: j.Duration.Milliseconds(),
	}
}

type resultView struct {
	JobID string `json:"job_id"`
	core.ResultFields
}

// eventMessage is the wire form of a core.Event.
type eventMessage struct {
	Type       string    `json:"type"`
	JobID      string    `json:"job_id"`
	PID        int       `json:"pid,omitempty"`
	Phase      string    `json:"phase,omitempty"`
	Module     string    `json:"module,omitempty"`
	Line       string    `json:"line,omitempty"`
	Status     string    `json:"status,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func newEventMessage(ev core.Event) (eventMessage, bool) {
	switch e := ev.(type) {
	case *core.JobSubmitted:
		return eventMessage{Type: "job_submitted", JobID: e.Job.ID, Timestamp: e.Timestamp}, true
	case *core.JobRejected:
		m := eventMessage{Type: "job_rejected", JobID: e.JobID, Timestamp: e.Timestamp}
		if e.Error != nil {
			m.Error = e.Error.Error()
		}
		return m, true
	case *core.JobStarted:
		return eventMessage{Type: "job_started", JobID: e.JobID, PID: e.PID, Timestamp: e.Timestamp}, true
	case *core.JobProgress:
		return eventMessage{
			Type:      "job_progress",
			JobID:     e.JobID,
			Phase:     e.Phase,
			Module:    e.Module,
			Line:      e.Line,
			Timestamp: e.Timestamp,
		}, true
	case *core.JobFinished:
		m := eventMessage{
			Type:       "job_finished",
			JobID:      e.JobID,
			Status:     string(e.Outcome.Status()),
			Outcome:    e.Outcome.Kind.String(),
			DurationMS: e.Duration.Milliseconds(),
			Timestamp:  e.Timestamp,
		}
		if err := e.Outcome.Error(); err != nil {
			m.Error = err.Error()
		}
		return m, true
	default:
		return eventMessage{}, false
	}
}
