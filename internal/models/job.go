// internal/models/job.go
package models

import (
	"strings"
	"time"
)

// JobPhase is the poller's view of a render job
type JobPhase string

const (
	PhaseNone       JobPhase = "none"
	PhaseSubmitted  JobPhase = "submitted"
	PhaseProcessing JobPhase = "processing"
	PhaseCompleted  JobPhase = "completed"
	PhaseFailed     JobPhase = "failed"
)

// IsTerminal reports whether no further polling happens after p
func (p JobPhase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// PhaseForStatus maps a raw backend status string onto a phase.
// Unrecognised statuses are treated as still in progress.
func PhaseForStatus(status string) JobPhase {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed", "complete", "done", "succeeded", "success":
		return PhaseCompleted
	case "failed", "failure", "error", "cancelled", "canceled":
		return PhaseFailed
	default:
		return PhaseProcessing
	}
}

// JobHandle is what a successful submission returns
type JobHandle struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Job is the observed state of one render job
type Job struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Phase       JobPhase  `json:"phase"`
	Error       *string   `json:"error,omitempty"`
	ResultURL   *string   `json:"result_url,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// JobStatus is one successful status poll
type JobStatus struct {
	Status string  `json:"status"`
	Error  *string `json:"error"`
	URL    *string `json:"url"`
}

// Clone returns a copy with its own pointer fields
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	if j.ResultURL != nil {
		u := *j.ResultURL
		c.ResultURL = &u
	}
	return &c
}
