// Package server exposes the daemon's sync status over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/model"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/reconcile"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/syncerr"
)

// Syncer runs full sync passes.
type Syncer interface {
	FullSync(ctx context.Context) (model.SyncResult, error)
	Running() bool
}

// Status describes the most recent run.
type Status struct {
	Running    bool              `json:"running"`
	RunID      string            `json:"runId,omitempty"`
	StartedAt  *time.Time        `json:"startedAt,omitempty"`
	FinishedAt *time.Time        `json:"finishedAt,omitempty"`
	Result     *model.SyncResult `json:"result,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Server records run outcomes and serves them. Runs started through it,
// whether by the HTTP trigger or by the daemon schedule, share one status.
type Server struct {
	syncer Syncer
	logger *slog.Logger
	base   context.Context
	router *gin.Engine

	mu     sync.RWMutex
	status Status
	wg     sync.WaitGroup
}

// New builds the router. Runs triggered over HTTP use base as their parent
// context, so cancelling base stops them.
func New(base context.Context, syncer Syncer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	router := gin.New()
	s := &Server{syncer: syncer, logger: logger, base: base, router: router}

	router.Use(gin.Recovery(), s.logRequests)
	router.GET("/healthz", s.handleHealth)
	router.GET("/status", s.handleStatus)
	router.POST("/sync", s.handleSync)
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is done, then shuts down and waits for
// triggered runs to finish.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.wg.Wait()
		return err
	}
}

// RunSync performs one full sync and records it as the latest status.
func (s *Server) RunSync(ctx context.Context) (model.SyncResult, error) {
	id, ok := reconcile.RunIDFrom(ctx)
	if !ok {
		id = uuid.NewString()
		ctx = reconcile.ContextWithRunID(ctx, id)
	}

	started := time.Now()
	result, err := s.syncer.FullSync(ctx)
	if errors.Is(err, syncerr.ErrSyncInProgress) {
		return result, err
	}
	finished := time.Now()

	st := Status{RunID: id, StartedAt: &started, FinishedAt: &finished}
	if err != nil {
		st.Error = err.Error()
		s.logger.Error("server: sync failed", "run", id, "err", err)
	} else {
		st.Result = &result
	}
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
	return result, err
}

// Status returns the latest recorded run.
func (s *Server) Status() Status {
	s.mu.RLock()
	st := s.status
	s.mu.RUnlock()
	st.Running = s.syncer.Running()
	return st
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Status())
}

func (s *Server) handleSync(c *gin.Context) {
	if s.syncer.Running() {
		c.JSON(http.StatusConflict, gin.H{"error": syncerr.ErrSyncInProgress.Error()})
		return
	}
	id := uuid.NewString()
	ctx := reconcile.ContextWithRunID(s.base, id)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.RunSync(ctx); errors.Is(err, syncerr.ErrSyncInProgress) {
			s.logger.Warn("server: triggered run skipped, another run is in progress", "run", id)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"runId": id})
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("server: request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"elapsed", time.Since(start))
}

// Wait blocks until every HTTP-triggered run has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}
