package reconcile

import (
	"context"

	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/index"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/model"
)

// RemoteTasks is the hosted task-list service as the engine sees it.
type RemoteTasks interface {
	// Tasks lists every task of listID, completed ones included. An empty
	// listID means the default list.
	Tasks(ctx context.Context, listID string) ([]model.RemoteTask, error)
	CreateTask(ctx context.Context, listID, title string) (model.RemoteTask, error)
	CreateTaskWithStartDate(ctx context.Context, listID, title string, start model.Date) (model.RemoteTask, error)
	CompleteTask(ctx context.Context, listID, taskID string) error
	UpdateTaskTitle(ctx context.Context, listID, taskID, title string) error
	DefaultListID(ctx context.Context) (string, error)
}

// LocalNotes is the dated note collection as the engine sees it.
type LocalNotes interface {
	EnsureTodayNoteExists(ctx context.Context) (string, error)
	TodayNotePath() string
	NotePath(date model.Date) string
	CreateDailyNote(ctx context.Context, date model.Date) error
	// DailyNoteTasks returns a syncerr.NotFoundError when the note does not exist.
	DailyNoteTasks(ctx context.Context, path string) ([]model.Task, error)
	AllDailyNoteTasks(ctx context.Context) ([]model.Task, error)
	AddTaskToTodoSection(ctx context.Context, path, title, remoteID string) error
	UpdateTaskCompletion(ctx context.Context, path string, lineNumber int, completed bool, completionDate *model.Date) error
}

// Identities is the subset of the identity store the engine needs.
type Identities interface {
	Upsert(date model.Date, title, remoteID string) error
	LookupRemoteID(date model.Date, title string) (string, bool)
	LookupByRemoteID(remoteID string) (index.Entry, bool)
	Flush() error
}

var _ Identities = (*index.IdentityStore)(nil)
