package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// workerPool runs the per-task jobs of one phase with bounded concurrency.
// A failing job never cancels its siblings: failures are collected as
// messages for the phase's error list.
type workerPool struct {
	ctx       context.Context
	semaphore chan struct{}
	wg        sync.WaitGroup

	mu     sync.Mutex
	errors []string
	done   atomic.Int64
}

func newWorkerPool(ctx context.Context, maxWorkers int) *workerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &workerPool{
		ctx:       ctx,
		semaphore: make(chan struct{}, maxWorkers),
	}
}

// Submit queues fn. label identifies the task in error messages. fn reports
// whether it changed anything; a job may report a change and an error at
// once (e.g. created remotely but failed to record the identity). Submit
// returns false once the context is cancelled.
func (p *workerPool) Submit(label string, fn func(ctx context.Context) (bool, error)) bool {
	select {
	case <-p.ctx.Done():
		return false
	case p.semaphore <- struct{}{}:
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.semaphore }()

		if p.ctx.Err() != nil {
			return
		}
		changed, err := fn(p.ctx)
		if changed {
			p.done.Add(1)
		}
		if err != nil {
			p.mu.Lock()
			p.errors = append(p.errors, fmt.Sprintf("%s: %v", label, err))
			p.mu.Unlock()
		}
	}()
	return true
}

// Wait blocks until every submitted job has finished and returns the number
// of jobs that changed something and the sorted failure messages.
func (p *workerPool) Wait() (int, []string) {
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()

	errs := make([]string, len(p.errors))
	copy(errs, p.errors)
	sort.Strings(errs)
	return int(p.done.Load()), errs
}
