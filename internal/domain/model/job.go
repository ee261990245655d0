// Package model defines the core data types shared by the chemjobs reconciliation engine.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a computational job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobStatus string

const (
	// JobStatusSubmitted indicates the job was accepted by the cluster and recorded locally.
	JobStatusSubmitted JobStatus = "SUBMITTED"
	// JobStatusRunning indicates the cluster reported the job as executing.
	JobStatusRunning JobStatus = "RUNNING"
	// JobStatusCompleted indicates the job finished and all result artifacts were collected.
	JobStatusCompleted JobStatus = "COMPLETED"
	// JobStatusFailed indicates the job failed on the cluster.
	JobStatusFailed JobStatus = "FAILED"
	// JobStatusCancelled indicates the job was cancelled before it reached another terminal state.
	JobStatusCancelled JobStatus = "CANCELLED"
)

var (
	// ErrJobNotFound is returned when a job does not exist.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobTerminal is returned when a write targets a job that already reached a terminal state.
	ErrJobTerminal = errors.New("job is in a terminal state")
	// ErrInvalidTransition is returned when a status change is not allowed by the state machine.
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrTimestampOrder is returned when finished would precede started.
	ErrTimestampOrder = errors.New("job finished time precedes started time")
	// ErrTimestampImmutable is returned when an already recorded timestamp would be overwritten.
	ErrTimestampImmutable = errors.New("job timestamp already recorded")
)

// NonTerminalStatuses lists the statuses a reconciliation tick considers.
func NonTerminalStatuses() []JobStatus {
	return []JobStatus{JobStatusSubmitted, JobStatusRunning}
}

// TerminalStatuses lists the statuses that allow no further transitions.
func TerminalStatuses() []JobStatus {
	return []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCancelled}
}

// ParseJobStatus parses a status name case-insensitively.
func ParseJobStatus(s string) (JobStatus, error) {
	st := JobStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("invalid JobStatus: %q", s)
	}
	return st, nil
}

// UnmarshalText implements encoding.TextUnmarshaler for env and flag parsing.
func (s *JobStatus) UnmarshalText(text []byte) error {
	st, err := ParseJobStatus(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Valid returns true if the JobStatus is one of the known states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusSubmitted, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are allowed out of s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// CanTransition reports whether moving from s to next is permitted.
// SUBMITTED -> RUNNING -> {COMPLETED, FAILED}; any non-terminal state -> CANCELLED.
// A SUBMITTED job may complete or fail directly when the cluster finished it between ticks.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.IsTerminal() || !next.Valid() {
		return false
	}
	switch next {
	case JobStatusSubmitted:
		return false
	case JobStatusRunning:
		return s == JobStatusSubmitted
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Job represents one computation submitted to the cluster.
type Job struct {
	ID           string          `json:"id"                      db:"id"`
	UserID       string          `json:"userid"                  db:"userid"`
	Name         string          `json:"job_name"                db:"job_name"`
	Status       JobStatus       `json:"status"                  db:"status"`
	Parameters   json.RawMessage `json:"parameters"              db:"parameters"`
	ErrorMessage *string         `json:"error_message,omitempty" db:"error_message"`
	Created      time.Time       `json:"created"                 db:"created"`
	Submitted    *time.Time      `json:"submitted,omitempty"     db:"submitted"`
	Started      *time.Time      `json:"started,omitempty"       db:"started"`
	Finished     *time.Time      `json:"finished,omitempty"      db:"finished"`
	UpdatedAt    time.Time       `json:"updated_at"              db:"updated_at"`
}

// IsTerminal reports whether the job reached a terminal status.
func (j *Job) IsTerminal() bool {
	return j != nil && j.Status.IsTerminal()
}

// CreateJobRequest represents a request to record a newly submitted job.
type CreateJobRequest struct {
	ID         string          `json:"id,omitempty"`
	UserID     string          `json:"userid"`
	Name       string          `json:"job_name"`
	Parameters json.RawMessage `json:"parameters"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if r.ID != "" {
		if _, err := uuid.Parse(r.ID); err != nil {
			return errors.New("job id must be a valid UUID")
		}
	}
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("userid is required")
	}
	if !strings.Contains(r.UserID, "@") {
		return errors.New("userid must be an email address")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("job_name is required")
	}
	if len(r.Parameters) > 0 && !json.Valid(r.Parameters) {
		return errors.New("parameters must be valid JSON")
	}
	return nil
}

// JobUpdate describes a single-row write applied by reconciliation or cancellation.
// Nil fields are left unchanged.
type JobUpdate struct {
	Status       *JobStatus
	Started      *time.Time
	Finished     *time.Time
	ErrorMessage *string
}

// IsEmpty reports whether the update carries no changes.
func (u JobUpdate) IsEmpty() bool {
	return u.Status == nil && u.Started == nil && u.Finished == nil && u.ErrorMessage == nil
}

// Validate checks the update in isolation.
func (u JobUpdate) Validate() error {
	if u.Status != nil && !u.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, *u.Status)
	}
	if u.Started != nil && u.Finished != nil && u.Finished.Before(*u.Started) {
		return ErrTimestampOrder
	}
	return nil
}

// ApplyTo validates the update against the current job state and returns the resulting job.
// The input job is not modified.
func (u JobUpdate) ApplyTo(current *Job) (*Job, error) {
	if current == nil {
		return nil, ErrJobNotFound
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if current.Status.IsTerminal() {
		return nil, ErrJobTerminal
	}

	next := *current
	if u.Status != nil && *u.Status != current.Status {
		if !current.Status.CanTransition(*u.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, *u.Status)
		}
		next.Status = *u.Status
	}

	var err error
	if next.Started, err = writeOnce(current.Started, u.Started); err != nil {
		return nil, fmt.Errorf("started: %w", err)
	}
	if next.Finished, err = writeOnce(current.Finished, u.Finished); err != nil {
		return nil, fmt.Errorf("finished: %w", err)
	}
	if next.Started != nil && next.Finished != nil && next.Finished.Before(*next.Started) {
		return nil, ErrTimestampOrder
	}
	if u.ErrorMessage != nil {
		msg := *u.ErrorMessage
		next.ErrorMessage = &msg
	}
	return &next, nil
}

// writeOnce returns the value to persist for a write-once timestamp.
// Re-writing the same instant is accepted so reconciliation stays idempotent.
func writeOnce(current, incoming *time.Time) (*time.Time, error) {
	if incoming == nil {
		return current, nil
	}
	in := incoming.UTC()
	if current == nil {
		return &in, nil
	}
	if current.Equal(in) {
		return current, nil
	}
	return nil, ErrTimestampImmutable
}

// StatusPtr returns a pointer to the given status.
func StatusPtr(s JobStatus) *JobStatus {
	return &s
}

// JobListOptions filters owner-scoped job listings.
type JobListOptions struct {
	UserID   string
	Statuses []JobStatus
	Limit    int
	Offset   int
}

// Sanitize applies default paging bounds.
func (o *JobListOptions) Sanitize() {
	if o.Limit <= 0 {
		o.Limit = 5
	}
	if o.Limit > 500 {
		o.Limit = 500
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}

// StatusFilter maps listing filter names to status sets.
func StatusFilter(name string) ([]JobStatus, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "all":
		return TerminalStatuses(), nil
	case "completed":
		return []JobStatus{JobStatusCompleted}, nil
	case "failed":
		return []JobStatus{JobStatusFailed}, nil
	case "cancelled":
		return []JobStatus{JobStatusCancelled}, nil
	case "in-progress", "active":
		return NonTerminalStatuses(), nil
	default:
		return nil, fmt.Errorf("unknown status filter %q", name)
	}
}
