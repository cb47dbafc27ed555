package gtasks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"

	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/model"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/reconcile"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/syncerr"
)

var _ reconcile.RemoteTasks = (*Client)(nil)

// fakeAPI serves the subset of the Tasks REST surface the client uses.
type fakeAPI struct {
	mu      sync.Mutex
	patches map[string]tasks.Task
	inserts []tasks.Task
	listHit int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	path := r.URL.Path

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/users/@me/lists"):
		f.listHit++
		writeJSON(w, map[string]any{"items": []map[string]string{
			{"id": "L1", "title": "Inbox"},
			{"id": "L2", "title": "Work"},
		}})

	case strings.Contains(path, "/lists/BAD/"):
		w.WriteHeader(http.StatusForbidden)
		writeJSON(w, map[string]any{"error": map[string]any{"code": 403, "message": "forbidden"}})

	case r.Method == http.MethodGet && strings.HasSuffix(path, "/lists/L2/tasks"):
		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(w, map[string]any{
				"nextPageToken": "p2",
				"items": []map[string]any{
					{"id": "t1", "title": "Buy milk", "status": "needsAction", "updated": "2024-01-01T08:00:00.000Z"},
					{"id": "t2", "title": "Gone", "status": "needsAction", "deleted": true},
				},
			})
			return
		}
		writeJSON(w, map[string]any{"items": []map[string]any{
			{"id": "t3", "title": "Pay rent", "status": "completed", "updated": "2024-01-02T08:00:00.000Z",
				"due": "2024-01-15T00:00:00.000Z", "completed": "2024-01-16T10:30:00.000Z"},
		}})

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/lists/L2/tasks"):
		var t tasks.Task
		_ = json.NewDecoder(r.Body).Decode(&t)
		f.inserts = append(f.inserts, t)
		t.Id = "new1"
		t.Status = statusNeedsAction
		t.Updated = "2024-01-03T09:00:00.000Z"
		writeJSON(w, t)

	case r.Method == http.MethodPatch && strings.Contains(path, "/lists/L2/tasks/"):
		var t tasks.Task
		_ = json.NewDecoder(r.Body).Decode(&t)
		id := path[strings.LastIndex(path, "/")+1:]
		f.patches[id] = t
		t.Id = id
		writeJSON(w, t)

	default:
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]any{"error": map[string]any{"code": 404, "message": "not found"}})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, listName string) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{patches: make(map[string]tasks.Task)}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), srv.Client(), listName, option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, api
}

func TestDefaultListIDResolvesName(t *testing.T) {
	c, api := newTestClient(t, " work ")
	ctx := context.Background()

	id, err := c.DefaultListID(ctx)
	if err != nil || id != "L2" {
		t.Fatalf("expected L2, got %q %v", id, err)
	}
	if _, err := c.DefaultListID(ctx); err != nil {
		t.Fatal(err)
	}
	if api.listHit != 1 {
		t.Errorf("list id should be cached, lists fetched %d times", api.listHit)
	}
}

func TestDefaultListIDFallbacks(t *testing.T) {
	c, _ := newTestClient(t, "")
	if id, _ := c.DefaultListID(context.Background()); id != DefaultList {
		t.Errorf("expected %s, got %q", DefaultList, id)
	}

	missing, _ := newTestClient(t, "Nope")
	if _, err := missing.DefaultListID(context.Background()); err == nil {
		t.Error("expected error for an unknown list")
	}
}

func TestTasksPagesAndConverts(t *testing.T) {
	c, _ := newTestClient(t, "Work")
	got, err := c.Tasks(context.Background(), "")
	if err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 tasks (deleted one dropped), got %d", len(got))
	}

	open := got[0]
	if open.ID != "t1" || open.Status != model.StatusNotStarted || open.DueAt != nil {
		t.Errorf("unexpected open task %+v", open)
	}
	if open.ResolvedDate() != model.MustParseDate("2024-01-01") {
		t.Errorf("expected creation date from updated, got %s", open.ResolvedDate())
	}

	done := got[1]
	if !done.IsCompleted() || done.CompletedAt == nil {
		t.Fatalf("unexpected completed task %+v", done)
	}
	if done.ResolvedDate() != model.MustParseDate("2024-01-15") {
		t.Errorf("due date should win, got %s", done.ResolvedDate())
	}
	if model.DateOf(*done.CompletedAt) != model.MustParseDate("2024-01-16") {
		t.Errorf("unexpected completion %v", done.CompletedAt)
	}
}

func TestCreateTaskWithStartDate(t *testing.T) {
	c, api := newTestClient(t, "Work")
	got, err := c.CreateTaskWithStartDate(context.Background(), "L2", "Buy milk [todo::abc]", model.MustParseDate("2024-01-05"))
	if err != nil {
		t.Fatalf("CreateTaskWithStartDate: %v", err)
	}
	if got.ID != "new1" || got.Title != "Buy milk [todo::abc]" {
		t.Errorf("unexpected task %+v", got)
	}
	if len(api.inserts) != 1 || api.inserts[0].Due != "2024-01-05T00:00:00Z" {
		t.Errorf("start date not sent as due: %+v", api.inserts)
	}
	if got.ResolvedDate() != model.MustParseDate("2024-01-05") {
		t.Errorf("created task should resolve to its start date, got %s", got.ResolvedDate())
	}
}

func TestCompleteAndRename(t *testing.T) {
	c, api := newTestClient(t, "Work")
	ctx := context.Background()

	if err := c.CompleteTask(ctx, "L2", "t1"); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if api.patches["t1"].Status != statusCompleted {
		t.Errorf("expected completed patch, got %+v", api.patches["t1"])
	}
	if err := c.UpdateTaskTitle(ctx, "L2", "t3", "Pay rent early"); err != nil {
		t.Fatalf("UpdateTaskTitle: %v", err)
	}
	if api.patches["t3"].Title != "Pay rent early" {
		t.Errorf("unexpected title patch %+v", api.patches["t3"])
	}
}

func TestErrorsAreClassified(t *testing.T) {
	c, _ := newTestClient(t, "Work")
	_, err := c.Tasks(context.Background(), "BAD")
	if !syncerr.IsRemoteKind(err, syncerr.KindAuth) {
		t.Fatalf("expected auth kind, got %v", err)
	}

	err = c.CompleteTask(context.Background(), "L9", "x")
	if !syncerr.IsRemoteKind(err, syncerr.KindNotFound) {
		t.Errorf("expected not_found kind, got %v", err)
	}
}

func TestTransportErrorIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	httpClient := &http.Client{Timeout: 2 * time.Second}
	c, err := NewClient(context.Background(), httpClient, "", option.WithEndpoint(url+"/"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Tasks(context.Background(), "L2"); !syncerr.IsRemoteKind(err, syncerr.KindNetwork) {
		t.Errorf("expected network kind, got %v", err)
	}
}

func TestClassifyPassesContextErrors(t *testing.T) {
	if err := classify("op", context.Canceled); err != context.Canceled {
		t.Errorf("expected context.Canceled untouched, got %v", err)
	}
}
