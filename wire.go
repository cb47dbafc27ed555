package main

import (
	"context"
	"fmt"
	"io"

	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/auth"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/gtasks"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/index"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/kv"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/model"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/reconcile"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/vault"
)

// openStore opens the identity map on the configured backend. The closer
// releases the backend.
func (a *app) openStore() (*index.IdentityStore, io.Closer, error) {
	path, err := a.cfg.ResolvedStatePath()
	if err != nil {
		return nil, nil, err
	}
	backend, closer, err := kv.Open(a.cfg.StateBackend, path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open state backend: %w", err)
	}
	store, err := index.New(backend)
	if err != nil {
		closer.Close()
		return nil, nil, fmt.Errorf("failed to load identity map: %w", err)
	}
	a.logger.Debug("state: identity map loaded", "backend", a.cfg.StateBackend, "path", path, "records", store.Len())
	return store, closer, nil
}

func (a *app) openVault() (*vault.Vault, error) {
	return vault.New(vault.Options{
		Root:        a.cfg.VaultDir,
		DailyDir:    a.cfg.DailyDir,
		DateFormat:  a.cfg.DateFormat,
		Heading:     a.cfg.SectionHeading,
		Frontmatter: a.cfg.NoteTemplate,
		Logger:      a.logger,
	})
}

func (a *app) openRemote(ctx context.Context) (*gtasks.Client, error) {
	flow, err := auth.NewFlow(a.logger)
	if err != nil {
		return nil, err
	}
	httpClient, err := flow.Client(ctx, auth.TasksScopes())
	if err != nil {
		return nil, err
	}
	return gtasks.NewClient(ctx, httpClient, a.cfg.TaskList)
}

// engine bundles a ready reconciler with the pieces commands touch
// directly.
type engine struct {
	reconciler *reconcile.Reconciler
	store      *index.IdentityStore
	vault      *vault.Vault
	closer     io.Closer
}

func (e *engine) Close() error { return e.closer.Close() }

func (a *app) newEngine(ctx context.Context) (*engine, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	v, err := a.openVault()
	if err != nil {
		return nil, err
	}
	remote, err := a.openRemote(ctx)
	if err != nil {
		return nil, err
	}
	store, closer, err := a.openStore()
	if err != nil {
		return nil, err
	}

	r := reconcile.New(remote, v, store,
		reconcile.WithLogger(a.logger),
		reconcile.WithWorkers(a.cfg.Workers),
		reconcile.WithMatchWindow(a.cfg.MatchWindowDays),
	)
	return &engine{reconciler: r, store: store, vault: v, closer: closer}, nil
}

// applyRetention drops identity records older than the configured
// retention window. A zero window keeps everything.
func (a *app) applyRetention(store *index.IdentityStore) {
	if a.cfg.RetentionDays <= 0 {
		return
	}
	cutoff := model.Today().AddDays(-a.cfg.RetentionDays)
	n, err := store.Prune(cutoff)
	if err != nil {
		a.logger.Warn("state: retention prune failed", "err", err)
		return
	}
	if n > 0 {
		a.logger.Info("state: pruned old identity records", "removed", n, "before", cutoff)
	}
}
