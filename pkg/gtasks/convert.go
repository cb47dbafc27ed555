package gtasks

import (
	"context"
	"errors"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/tasks/v1"

	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/model"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/syncerr"
)

const (
	statusNeedsAction = "needsAction"
	statusCompleted   = "completed"
)

// toRemoteTask converts an API task. The API exposes no creation time, so
// the last update time stands in for it.
func toRemoteTask(t *tasks.Task) model.RemoteTask {
	rt := model.RemoteTask{
		ID:     t.Id,
		Title:  t.Title,
		Status: model.StatusNotStarted,
	}
	if t.Status == statusCompleted {
		rt.Status = model.StatusCompleted
	}
	if ts, ok := parseTime(t.Updated); ok {
		rt.CreatedAt = ts
	}
	if ts, ok := parseTime(t.Due); ok {
		rt.DueAt = &ts
	}
	if t.Completed != nil {
		if ts, ok := parseTime(*t.Completed); ok {
			rt.CompletedAt = &ts
		}
	}
	return rt
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// dueString renders d the way the API stores all-day due dates.
func dueString(d model.Date) string {
	return d.Time().Format(time.RFC3339)
}

// classify turns an API failure into a RemoteAPIError. Context errors pass
// through untouched.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &syncerr.RemoteAPIError{Kind: syncerr.ClassifyStatus(gerr.Code), Status: gerr.Code, Op: op, Err: err}
	}
	return &syncerr.RemoteAPIError{Kind: syncerr.KindNetwork, Op: op, Err: err}
}
