package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/logging"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/model"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/reconcile"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSyncer struct {
	running atomic.Bool
	calls   atomic.Int32
	result  model.SyncResult
	err     error
	lastID  atomic.Value
}

func (f *fakeSyncer) FullSync(ctx context.Context) (model.SyncResult, error) {
	f.calls.Add(1)
	if id, ok := reconcile.RunIDFrom(ctx); ok {
		f.lastID.Store(id)
	}
	return f.result, f.err
}

func (f *fakeSyncer) Running() bool { return f.running.Load() }

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	s := New(context.Background(), &fakeSyncer{}, logging.Discard())
	w := do(t, s, http.MethodGet, "/healthz")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestStatusBeforeAnyRun(t *testing.T) {
	s := New(context.Background(), &fakeSyncer{}, logging.Discard())
	w := do(t, s, http.MethodGet, "/status")

	var st Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Running || st.RunID != "" || st.Result != nil {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestSyncTriggerRecordsResult(t *testing.T) {
	f := &fakeSyncer{result: model.SyncResult{
		MsftToObsidian: model.CreationStats{Added: 2},
		Timestamp:      "2024-01-10T00:00:00Z",
	}}
	s := New(context.Background(), f, logging.Discard())

	w := do(t, s, http.MethodPost, "/sync")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	s.Wait()

	if f.calls.Load() != 1 {
		t.Fatalf("expected one run, got %d", f.calls.Load())
	}
	if f.lastID.Load() != body["runId"] {
		t.Errorf("run id not propagated: %v vs %s", f.lastID.Load(), body["runId"])
	}

	var st Status
	if err := json.Unmarshal(do(t, s, http.MethodGet, "/status").Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.RunID != body["runId"] || st.Result == nil || st.Result.MsftToObsidian.Added != 2 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestSyncConflictWhileRunning(t *testing.T) {
	f := &fakeSyncer{}
	f.running.Store(true)
	s := New(context.Background(), f, logging.Discard())

	w := do(t, s, http.MethodPost, "/sync")
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
	if f.calls.Load() != 0 {
		t.Error("no run should start")
	}
}

func TestRunSyncRecordsError(t *testing.T) {
	f := &fakeSyncer{err: errors.New("fetch remote snapshot: boom")}
	s := New(context.Background(), f, logging.Discard())

	if _, err := s.RunSync(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	st := s.Status()
	if st.Error == "" || st.Result != nil || st.RunID == "" {
		t.Errorf("unexpected status %+v", st)
	}
}
