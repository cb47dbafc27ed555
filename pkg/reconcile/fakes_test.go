package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/model"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/syncerr"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/tasktext"
)

const testHeading = "## Tasks"

func rtask(id, title, created string) model.RemoteTask {
	ts, err := time.Parse(time.RFC3339, created+"T08:00:00Z")
	if err != nil {
		panic(err)
	}
	return model.RemoteTask{ID: id, Title: title, Status: model.StatusNotStarted, CreatedAt: ts}
}

type fakeRemote struct {
	mu        sync.Mutex
	tasks     []model.RemoteTask
	nextID    int
	created   []string
	completed []string
	failTitle map[string]bool
	listErr   error

	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func newFakeRemote(tasks ...model.RemoteTask) *fakeRemote {
	return &fakeRemote{tasks: tasks, failTitle: make(map[string]bool)}
}

func (f *fakeRemote) Tasks(_ context.Context, listID string) ([]model.RemoteTask, error) {
	if f.gate != nil {
		f.once.Do(func() { close(f.entered) })
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.RemoteTask, len(f.tasks))
	copy(out, f.tasks)
	return out, nil
}

func (f *fakeRemote) CreateTask(ctx context.Context, listID, title string) (model.RemoteTask, error) {
	return f.CreateTaskWithStartDate(ctx, listID, title, model.Date{})
}

func (f *fakeRemote) CreateTaskWithStartDate(_ context.Context, _ string, title string, start model.Date) (model.RemoteTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTitle[title] {
		return model.RemoteTask{}, &syncerr.RemoteAPIError{Kind: syncerr.KindServer, Status: 500, Op: "insert", Err: fmt.Errorf("boom")}
	}
	f.nextID++
	t := model.RemoteTask{
		ID:        fmt.Sprintf("new-%d", f.nextID),
		Title:     title,
		Status:    model.StatusNotStarted,
		CreatedAt: start.Time(),
	}
	if !start.IsZero() {
		due := start.Time()
		t.DueAt = &due
	}
	f.tasks = append(f.tasks, t)
	f.created = append(f.created, title)
	return t, nil
}

func (f *fakeRemote) CompleteTask(_ context.Context, _ string, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks[i].Status = model.StatusCompleted
			f.completed = append(f.completed, id)
			return nil
		}
	}
	return syncerr.NotFoundError{Resource: id}
}

func (f *fakeRemote) UpdateTaskTitle(_ context.Context, _ string, id, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks[i].Title = title
			return nil
		}
	}
	return syncerr.NotFoundError{Resource: id}
}

func (f *fakeRemote) DefaultListID(context.Context) (string, error) { return "@default", nil }

func (f *fakeRemote) complete(id string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks[i].Status = model.StatusCompleted
			f.tasks[i].CompletedAt = &at
		}
	}
}

func (f *fakeRemote) createdTitles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

func (f *fakeRemote) completedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.completed...)
}

// fakeLocal keeps notes as text keyed by "<date>.md" and parses them with
// the real task grammar.
type fakeLocal struct {
	mu      sync.Mutex
	parser  *tasktext.Parser
	notes   map[string]string
	appends int
	allErr  error
}

func newFakeLocal() *fakeLocal {
	return &fakeLocal{parser: tasktext.NewParser(testHeading, nil), notes: make(map[string]string)}
}

func (f *fakeLocal) put(date string, lines ...string) {
	f.notes[date+".md"] = testHeading + "\n" + strings.Join(lines, "\n") + "\n"
}

func (f *fakeLocal) content(date string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notes[date+".md"]
}

func (f *fakeLocal) EnsureTodayNoteExists(ctx context.Context) (string, error) {
	path := f.TodayNotePath()
	f.mu.Lock()
	_, ok := f.notes[path]
	f.mu.Unlock()
	if !ok {
		return path, f.CreateDailyNote(ctx, model.Today())
	}
	return path, nil
}

func (f *fakeLocal) TodayNotePath() string { return f.NotePath(model.Today()) }

func (f *fakeLocal) NotePath(date model.Date) string { return date.String() + ".md" }

func (f *fakeLocal) CreateDailyNote(_ context.Context, date model.Date) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.notes[f.NotePath(date)]; !ok {
		f.notes[f.NotePath(date)] = testHeading + "\n"
	}
	return nil
}

func (f *fakeLocal) DailyNoteTasks(_ context.Context, path string) ([]model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasksLocked(path)
}

func (f *fakeLocal) tasksLocked(path string) ([]model.Task, error) {
	content, ok := f.notes[path]
	if !ok {
		return nil, syncerr.NotFoundError{Resource: path}
	}
	date, err := model.ParseDate(strings.TrimSuffix(path, ".md"))
	if err != nil {
		return nil, err
	}
	return f.parser.Parse(content, date, path), nil
}

func (f *fakeLocal) AllDailyNoteTasks(context.Context) ([]model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.allErr != nil {
		return nil, f.allErr
	}
	paths := make([]string, 0, len(f.notes))
	for p := range f.notes {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var all []model.Task
	for _, p := range paths {
		tasks, err := f.tasksLocked(p)
		if err != nil {
			return nil, err
		}
		all = append(all, tasks...)
	}
	return all, nil
}

func (f *fakeLocal) AddTaskToTodoSection(_ context.Context, path, title, remoteID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.notes[path]
	if !ok {
		return syncerr.NotFoundError{Resource: path}
	}
	lines := tasktext.SplitLines(content)
	idx, ok := tasktext.SectionInsertIndex(lines, testHeading)
	if !ok {
		lines = append(lines, testHeading)
		idx = len(lines)
	}
	line := tasktext.FormatNewTaskLine(title, remoteID)
	lines = append(lines[:idx], append([]string{line}, lines[idx:]...)...)
	f.notes[path] = strings.Join(lines, "\n")
	f.appends++
	return nil
}

func (f *fakeLocal) UpdateTaskCompletion(_ context.Context, path string, lineNumber int, completed bool, date *model.Date) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.notes[path]
	if !ok {
		return syncerr.NotFoundError{Resource: path}
	}
	lines := tasktext.SplitLines(content)
	if lineNumber < 0 || lineNumber >= len(lines) {
		return syncerr.OutOfRangeError{Path: path, Line: lineNumber, Lines: len(lines)}
	}
	updated, err := tasktext.SetCompletion(lines[lineNumber], completed, date)
	if err != nil {
		return err
	}
	lines[lineNumber] = updated
	f.notes[path] = strings.Join(lines, "\n")
	return nil
}

func (f *fakeLocal) appendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.appends
}
