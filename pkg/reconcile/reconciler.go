// Package reconcile converges a collection of dated notes and a hosted task
// list. A run is three sequential phases: remote to local creation, local to
// remote creation, then completion propagation in both directions.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/model"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/syncerr"
)

// DefaultWorkers bounds the per-task concurrency inside a phase.
const DefaultWorkers = 4

// SnapshotError reports that one side's full task list could not be read.
// It is the only failure that aborts a run.
type SnapshotError struct {
	Source string
	Err    error
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("fetch %s snapshot: %v", e.Source, e.Err)
}

func (e *SnapshotError) Unwrap() error { return e.Err }

// Reconciler runs sync passes between a RemoteTasks and a LocalNotes
// collaborator. Only one pass runs at a time.
type Reconciler struct {
	remote RemoteTasks
	local  LocalNotes
	store  Identities

	logger      *slog.Logger
	workers     int
	listID      string
	matchWindow int
	now         func() time.Time

	running atomic.Bool
	keys    *keyLock
}

// Option configures a Reconciler.
type Option func(*Reconciler)

func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithWorkers(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithListID pins the remote list. Without it the remote default list is
// resolved at the start of every run.
func WithListID(id string) Option {
	return func(r *Reconciler) { r.listID = id }
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithMatchWindow limits title matching to remote tasks dated within days
// of the local task.
func WithMatchWindow(days int) Option {
	return func(r *Reconciler) { r.matchWindow = days }
}

func New(remote RemoteTasks, local LocalNotes, store Identities, opts ...Option) *Reconciler {
	r := &Reconciler{
		remote:  remote,
		local:   local,
		store:   store,
		logger:  slog.Default(),
		workers: DefaultWorkers,
		now:     time.Now,
		keys:    newKeyLock(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Running reports whether a pass is in flight.
func (r *Reconciler) Running() bool {
	return r.running.Load()
}

type runIDKey struct{}

// ContextWithRunID attaches the identifier a run logs under. Runs started
// without one get a fresh identifier.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFrom returns the run identifier attached to ctx, if any.
func RunIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok && id != ""
}

// run is the state shared by the phases of one pass.
type run struct {
	logger *slog.Logger
	listID string
	remote *remoteState
}

// begin takes the run guard and resolves the list. The returned finish
// function flushes the identity store and releases the guard.
func (r *Reconciler) begin(ctx context.Context, op string) (*run, func() error, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, nil, syncerr.ErrSyncInProgress
	}

	id, ok := RunIDFrom(ctx)
	if !ok {
		id = uuid.NewString()
	}
	logger := r.logger.With("run", id, "op", op)
	started := r.now()
	logger.Debug("sync: run started")

	finish := func() error {
		defer r.running.Store(false)
		err := r.store.Flush()
		if err != nil {
			logger.Error("sync: flush identity store", "err", err)
		}
		logger.Debug("sync: run finished", "elapsed", r.now().Sub(started))
		return err
	}

	listID := r.listID
	if listID == "" {
		var err error
		listID, err = r.remote.DefaultListID(ctx)
		if err != nil {
			_ = finish()
			return nil, nil, &SnapshotError{Source: "remote", Err: syncerr.Wrap("resolve default list", err)}
		}
	}
	return &run{logger: logger, listID: listID}, finish, nil
}

func (r *Reconciler) fetchRemote(ctx context.Context, rn *run) error {
	tasks, err := r.remote.Tasks(ctx, rn.listID)
	if err != nil {
		return &SnapshotError{Source: "remote", Err: err}
	}
	rn.remote = newRemoteState(tasks)
	rn.logger.Debug("sync: remote snapshot", "tasks", len(tasks))
	return nil
}

func (r *Reconciler) fetchLocal(ctx context.Context, rn *run) ([]model.Task, error) {
	tasks, err := r.local.AllDailyNoteTasks(ctx)
	if err != nil {
		return nil, &SnapshotError{Source: "local", Err: err}
	}
	rn.logger.Debug("sync: local snapshot", "tasks", len(tasks))
	return tasks, nil
}

// SyncRemoteToLocal runs only the remote to local creation phase.
func (r *Reconciler) SyncRemoteToLocal(ctx context.Context) (stats model.CreationStats, err error) {
	rn, finish, err := r.begin(ctx, "remote-to-local")
	if err != nil {
		return stats, err
	}
	defer finishInto(finish, &err)

	if err = r.fetchRemote(ctx, rn); err != nil {
		return stats, err
	}
	stats = r.remoteToLocal(ctx, rn)
	return stats, ctx.Err()
}

// SyncLocalToRemote runs only the local to remote creation phase.
func (r *Reconciler) SyncLocalToRemote(ctx context.Context) (stats model.CreationStats, err error) {
	rn, finish, err := r.begin(ctx, "local-to-remote")
	if err != nil {
		return stats, err
	}
	defer finishInto(finish, &err)

	if err = r.fetchRemote(ctx, rn); err != nil {
		return stats, err
	}
	local, err := r.fetchLocal(ctx, rn)
	if err != nil {
		return stats, err
	}
	stats = r.localToRemote(ctx, rn, local)
	return stats, ctx.Err()
}

// SyncCompletions runs only the completion propagation phase.
func (r *Reconciler) SyncCompletions(ctx context.Context) (stats model.CompletionStats, err error) {
	rn, finish, err := r.begin(ctx, "completions")
	if err != nil {
		return stats, err
	}
	defer finishInto(finish, &err)

	if err = r.fetchRemote(ctx, rn); err != nil {
		return stats, err
	}
	local, err := r.fetchLocal(ctx, rn)
	if err != nil {
		return stats, err
	}
	stats = r.completions(ctx, rn, local)
	return stats, ctx.Err()
}

// FullSync runs the three phases in order and merges their results. A phase
// with per-task failures does not stop the later phases. Both snapshots are
// read before any mutation; failing to read either aborts with a
// SnapshotError and no counts.
func (r *Reconciler) FullSync(ctx context.Context) (result model.SyncResult, err error) {
	rn, finish, err := r.begin(ctx, "full")
	if err != nil {
		return result, err
	}
	defer finishInto(finish, &err)

	if err = r.fetchRemote(ctx, rn); err != nil {
		return result, err
	}
	local, err := r.fetchLocal(ctx, rn)
	if err != nil {
		return result, err
	}

	result.MsftToObsidian = r.remoteToLocal(ctx, rn)
	if ctx.Err() == nil {
		result.ObsidianToMsft = r.localToRemote(ctx, rn, local)
	}
	if ctx.Err() == nil {
		// Appends from the first phase may have shifted line numbers.
		if local, err = r.fetchLocal(ctx, rn); err != nil {
			return model.SyncResult{}, err
		}
		result.Completions = r.completions(ctx, rn, local)
	}
	result.Timestamp = r.now().UTC().Format(time.RFC3339)

	rn.logger.Info("sync: run complete",
		"remote_to_local", result.MsftToObsidian.Added,
		"local_to_remote", result.ObsidianToMsft.Added,
		"completions", result.Completions.Completed,
		"errors", result.ErrorCount())
	return result, ctx.Err()
}

func finishInto(finish func() error, err *error) {
	if ferr := finish(); ferr != nil && *err == nil {
		*err = syncerr.Wrap("flush identity store", ferr)
	}
}

func taskLabel(date model.Date, title string) string {
	return fmt.Sprintf("%s %q", date, title)
}
