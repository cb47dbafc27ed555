package gtasks

import (
	"context"

	"google.golang.org/api/tasks/v1"

	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/model"
)

const pageSize = 100

// Tasks lists every task of the list, completed and hidden ones included.
// Deleted tasks are dropped.
func (c *Client) Tasks(ctx context.Context, listID string) ([]model.RemoteTask, error) {
	listID, err := c.resolve(ctx, listID)
	if err != nil {
		return nil, err
	}

	var out []model.RemoteTask
	err = c.srv.Tasks.List(listID).
		ShowCompleted(true).
		ShowHidden(true).
		MaxResults(pageSize).
		Pages(ctx, func(page *tasks.Tasks) error {
			for _, t := range page.Items {
				if t == nil || t.Deleted {
					continue
				}
				out = append(out, toRemoteTask(t))
			}
			return nil
		})
	if err != nil {
		return nil, classify("list tasks", err)
	}
	return out, nil
}

func (c *Client) CreateTask(ctx context.Context, listID, title string) (model.RemoteTask, error) {
	return c.insert(ctx, listID, &tasks.Task{Title: title})
}

// CreateTaskWithStartDate creates a task dated start. Google Tasks has no
// start date, so the date is carried as the all-day due date.
func (c *Client) CreateTaskWithStartDate(ctx context.Context, listID, title string, start model.Date) (model.RemoteTask, error) {
	t := &tasks.Task{Title: title}
	if !start.IsZero() {
		t.Due = dueString(start)
	}
	return c.insert(ctx, listID, t)
}

func (c *Client) insert(ctx context.Context, listID string, t *tasks.Task) (model.RemoteTask, error) {
	listID, err := c.resolve(ctx, listID)
	if err != nil {
		return model.RemoteTask{}, err
	}
	created, err := c.srv.Tasks.Insert(listID, t).Context(ctx).Do()
	if err != nil {
		return model.RemoteTask{}, classify("insert task", err)
	}
	return toRemoteTask(created), nil
}

func (c *Client) CompleteTask(ctx context.Context, listID, taskID string) error {
	return c.patch(ctx, "complete task", listID, taskID, &tasks.Task{Status: statusCompleted})
}

func (c *Client) UpdateTaskTitle(ctx context.Context, listID, taskID, title string) error {
	return c.patch(ctx, "update task title", listID, taskID, &tasks.Task{Title: title})
}

func (c *Client) patch(ctx context.Context, op, listID, taskID string, p *tasks.Task) error {
	listID, err := c.resolve(ctx, listID)
	if err != nil {
		return err
	}
	if _, err := c.srv.Tasks.Patch(listID, taskID, p).Context(ctx).Do(); err != nil {
		return classify(op, err)
	}
	return nil
}
