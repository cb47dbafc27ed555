package model

import "time"

// Task is a checkbox line read from a dated note. It is rebuilt from text on
// every read and never cached.
type Task struct {
	Date           Date
	Title          string // display title, may still carry the tracking tag
	Completed      bool
	CompletionDate *Date
	DueDate        *Date
	FilePath       string
	LineNumber     int
	Indent         string
}

// RemoteStatus mirrors the hosted service's task status.
type RemoteStatus string

const (
	StatusNotStarted RemoteStatus = "notStarted"
	StatusInProgress RemoteStatus = "inProgress"
	StatusCompleted  RemoteStatus = "completed"
)

// RemoteTask is a task record as returned by the remote task service.
type RemoteTask struct {
	ID          string
	Title       string
	Status      RemoteStatus
	CreatedAt   time.Time
	CompletedAt *time.Time
	DueAt       *time.Time
}

// IsCompleted reports whether the remote side considers the task done.
func (r RemoteTask) IsCompleted() bool {
	return r.Status == StatusCompleted
}

// ResolvedDate is the dated note a remote task belongs to: the due date when
// present, otherwise the creation date.
func (r RemoteTask) ResolvedDate() Date {
	if r.DueAt != nil && !r.DueAt.IsZero() {
		return DateOf(*r.DueAt)
	}
	return DateOf(r.CreatedAt)
}

// IdentityRecord links a local (date, normalized title) key to a remote id.
type IdentityRecord struct {
	Date            Date
	NormalizedTitle string
	RemoteID        string
	LastSynced      time.Time
}
