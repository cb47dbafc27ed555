package reconcile

import (
	"context"
	"errors"
	"sync"

	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/match"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/model"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/syncerr"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/tasktext"
)

var errEmptyTitle = errors.New("title is empty after normalization")

// remoteState is the remote snapshot of a run plus the tasks the run
// created itself.
type remoteState struct {
	mu    sync.RWMutex
	tasks []model.RemoteTask
	byID  map[string]model.RemoteTask
}

func newRemoteState(tasks []model.RemoteTask) *remoteState {
	s := &remoteState{tasks: tasks, byID: make(map[string]model.RemoteTask, len(tasks))}
	for _, t := range tasks {
		s.byID[t.ID] = t
	}
	return s
}

func (s *remoteState) snapshot() []model.RemoteTask {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.RemoteTask, len(s.tasks))
	copy(out, s.tasks)
	return out
}

func (s *remoteState) add(t model.RemoteTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, t)
	s.byID[t.ID] = t
}

func (s *remoteState) get(id string) (model.RemoteTask, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	return t, ok
}

// remoteToLocal appends every open remote task to the note of its resolved
// date unless a task with the same normalized title is already there.
func (r *Reconciler) remoteToLocal(ctx context.Context, rn *run) model.CreationStats {
	pool := newWorkerPool(ctx, r.workers)
	for _, rt := range rn.remote.snapshot() {
		if rt.IsCompleted() {
			continue
		}
		rt := rt
		date, mapped := r.remoteDate(rt)
		if !pool.Submit(taskLabel(date, rt.Title), func(ctx context.Context) (bool, error) {
			return r.appendRemote(ctx, rn, rt, date, mapped)
		}) {
			break
		}
	}
	added, errs := pool.Wait()
	return model.CreationStats{Added: added, Errors: errs}
}

// remoteDate is the note date a remote task belongs to. A task that already
// has an identity record stays on the recorded date; its resolved date can
// drift because the service reports the last edit as its creation time.
func (r *Reconciler) remoteDate(rt model.RemoteTask) (model.Date, bool) {
	if e, ok := r.store.LookupByRemoteID(rt.ID); ok {
		return e.Date, true
	}
	return rt.ResolvedDate(), false
}

func (r *Reconciler) appendRemote(ctx context.Context, rn *run, rt model.RemoteTask, date model.Date, mapped bool) (bool, error) {
	if date.IsZero() {
		return false, syncerr.ValidationError{Input: rt.Title, Reason: "remote task has no resolvable date"}
	}
	title := tasktext.Normalize(rt.Title)
	if title == "" {
		return false, errEmptyTitle
	}

	unlock := r.keys.Lock(identityKey(date, title))
	defer unlock()

	path := r.local.NotePath(date)
	existing, err := r.local.DailyNoteTasks(ctx, path)
	noteExists := true
	if err != nil {
		if !syncerr.IsNotFound(err) {
			return false, syncerr.Wrap("read note", err)
		}
		noteExists = false
	}
	for _, t := range existing {
		if tasktext.Normalize(t.Title) == title {
			return false, nil
		}
	}

	if !noteExists {
		if err := r.local.CreateDailyNote(ctx, date); err != nil {
			return false, syncerr.Wrap("create note", err)
		}
	}
	if err := r.local.AddTaskToTodoSection(ctx, path, rt.Title, rt.ID); err != nil {
		return false, syncerr.Wrap("append task", err)
	}
	rn.logger.Debug("sync: appended task", "date", date, "title", title, "remote_id", rt.ID)

	// A mapped id keeps its record so the local task it points at is not
	// orphaned for the rest of the run.
	if mapped {
		return true, nil
	}
	if err := r.store.Upsert(date, title, rt.ID); err != nil {
		return true, syncerr.Wrap("record identity", err)
	}
	return true, nil
}

// localToRemote creates a remote task for every local task that has neither
// an identity record nor a title match among the remote snapshot. Matching
// runs in local order before any creation is dispatched, so the earliest
// local task wins a shared candidate.
func (r *Reconciler) localToRemote(ctx context.Context, rn *run, local []model.Task) model.CreationStats {
	pass := match.NewPass(rn.remote.snapshot(), match.WithWindow(r.matchWindow))
	for _, rt := range rn.remote.snapshot() {
		if _, ok := r.store.LookupByRemoteID(rt.ID); ok {
			pass.Claim(rt.ID)
		}
	}

	pool := newWorkerPool(ctx, r.workers)
	seen := make(map[string]bool)
	for _, t := range local {
		t := t
		title := tasktext.Normalize(t.Title)
		if title == "" {
			continue
		}
		key := identityKey(t.Date, title)
		if seen[key] {
			continue
		}
		seen[key] = true
		if _, ok := r.store.LookupRemoteID(t.Date, title); ok {
			continue
		}
		var matchedID string
		if m, ok := pass.Match(t); ok {
			matchedID = m.RemoteID
		}
		if !pool.Submit(taskLabel(t.Date, t.Title), func(ctx context.Context) (bool, error) {
			return r.createRemote(ctx, rn, t, title, matchedID)
		}) {
			break
		}
	}
	added, errs := pool.Wait()
	return model.CreationStats{Added: added, Errors: errs}
}

// createRemote links t to matchedID when set and creates a remote task
// otherwise.
func (r *Reconciler) createRemote(ctx context.Context, rn *run, t model.Task, title, matchedID string) (bool, error) {
	unlock := r.keys.Lock(identityKey(t.Date, title))
	defer unlock()

	if _, ok := r.store.LookupRemoteID(t.Date, title); ok {
		return false, nil
	}
	if matchedID != "" {
		rn.logger.Debug("sync: matched existing remote task", "date", t.Date, "title", title, "remote_id", matchedID)
		if err := r.store.Upsert(t.Date, title, matchedID); err != nil {
			return false, syncerr.Wrap("record identity", err)
		}
		return false, nil
	}

	created, err := r.remote.CreateTaskWithStartDate(ctx, rn.listID, t.Title, t.Date)
	if err != nil {
		return false, syncerr.Wrap("create remote task", err)
	}
	rn.remote.add(created)
	rn.logger.Debug("sync: created remote task", "date", t.Date, "title", title, "remote_id", created.ID)

	if err := r.store.Upsert(t.Date, title, created.ID); err != nil {
		return true, syncerr.Wrap("record identity", err)
	}
	return true, nil
}

// completions propagates completed state both ways. Nothing is ever marked
// incomplete.
func (r *Reconciler) completions(ctx context.Context, rn *run, local []model.Task) model.CompletionStats {
	byKey := make(map[string][]model.Task)
	for _, t := range local {
		k := identityKey(t.Date, tasktext.Normalize(t.Title))
		byKey[k] = append(byKey[k], t)
	}

	pool := newWorkerPool(ctx, r.workers)
	for _, rt := range rn.remote.snapshot() {
		if !rt.IsCompleted() {
			continue
		}
		e, ok := r.store.LookupByRemoteID(rt.ID)
		if !ok {
			continue
		}
		rt, key := rt, identityKey(e.Date, e.Title)
		if !pool.Submit(taskLabel(e.Date, e.Title), func(ctx context.Context) (bool, error) {
			return r.completeLocal(ctx, rn, key, byKey[key], rt)
		}) {
			break
		}
	}

	for _, t := range local {
		if !t.Completed {
			continue
		}
		t := t
		if !pool.Submit(taskLabel(t.Date, t.Title), func(ctx context.Context) (bool, error) {
			return r.completeRemote(ctx, rn, t)
		}) {
			break
		}
	}

	done, errs := pool.Wait()
	return model.CompletionStats{Completed: done, Errors: errs}
}

func (r *Reconciler) completeLocal(ctx context.Context, rn *run, key string, candidates []model.Task, rt model.RemoteTask) (bool, error) {
	unlock := r.keys.Lock(key)
	defer unlock()

	var target *model.Task
	for i := range candidates {
		if candidates[i].Completed {
			return false, nil
		}
		if target == nil {
			target = &candidates[i]
		}
	}
	if target == nil {
		return false, nil
	}

	var completion *model.Date
	if rt.CompletedAt != nil {
		d := model.DateOf(*rt.CompletedAt)
		completion = &d
	}
	if err := r.local.UpdateTaskCompletion(ctx, target.FilePath, target.LineNumber, true, completion); err != nil {
		return false, syncerr.Wrap("complete local task", err)
	}
	rn.logger.Debug("sync: completed local task", "path", target.FilePath, "line", target.LineNumber, "remote_id", rt.ID)
	return true, nil
}

func (r *Reconciler) completeRemote(ctx context.Context, rn *run, t model.Task) (bool, error) {
	title := tasktext.Normalize(t.Title)
	unlock := r.keys.Lock(identityKey(t.Date, title))
	defer unlock()

	id, ok := r.store.LookupRemoteID(t.Date, title)
	if !ok {
		return false, nil
	}
	rt, ok := rn.remote.get(id)
	if !ok {
		rn.logger.Debug("sync: mapped remote task not in snapshot", "remote_id", id)
		return false, nil
	}
	if rt.IsCompleted() {
		return false, nil
	}
	if err := r.remote.CompleteTask(ctx, rn.listID, id); err != nil {
		return false, syncerr.Wrap("complete remote task", err)
	}
	rn.logger.Debug("sync: completed remote task", "date", t.Date, "title", title, "remote_id", id)
	return true, nil
}
