// Package gtasks adapts the Google Tasks API to the sync engine's remote
// collaborator.
package gtasks

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"
)

// DefaultList is the API alias of the user's default task list.
const DefaultList = "@default"

// Client talks to one task list. The list is named in configuration and
// resolved to its id on first use.
type Client struct {
	srv      *tasks.Service
	listName string

	mu     sync.Mutex
	listID string
}

// NewClient creates a Google Tasks client over an authenticated HTTP
// client. An empty listName selects the default list.
func NewClient(ctx context.Context, httpClient *http.Client, listName string, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	srv, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Tasks client: %w", err)
	}
	return &Client{srv: srv, listName: strings.TrimSpace(listName)}, nil
}

// NewClientWithService wraps an existing service pinned to listID.
func NewClientWithService(srv *tasks.Service, listID string) *Client {
	return &Client{srv: srv, listID: listID}
}

// DefaultListID returns the id of the configured list, looking it up by
// title when only a name is known.
func (c *Client) DefaultListID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listID != "" {
		return c.listID, nil
	}
	if c.listName == "" {
		c.listID = DefaultList
		return c.listID, nil
	}

	lists, err := c.TaskLists(ctx)
	if err != nil {
		return "", err
	}
	for _, l := range lists {
		if strings.EqualFold(strings.TrimSpace(l.Title), c.listName) {
			c.listID = l.Id
			return c.listID, nil
		}
	}
	return "", fmt.Errorf("task list '%s' not found", c.listName)
}

// TaskLists returns every task list of the account in API order.
func (c *Client) TaskLists(ctx context.Context) ([]*tasks.TaskList, error) {
	var out []*tasks.TaskList
	err := c.srv.Tasklists.List().MaxResults(100).Pages(ctx, func(page *tasks.TaskLists) error {
		out = append(out, page.Items...)
		return nil
	})
	if err != nil {
		return nil, classify("list task lists", err)
	}
	return out, nil
}

func (c *Client) resolve(ctx context.Context, listID string) (string, error) {
	if listID != "" {
		return listID, nil
	}
	return c.DefaultListID(ctx)
}
