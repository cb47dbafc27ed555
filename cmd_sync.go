package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/model"
)

const (
	phaseAll           = "all"
	phaseRemoteToLocal = "remote-to-local"
	phaseLocalToRemote = "local-to-remote"
	phaseCompletions   = "completions"
)

func (a *app) syncCmd() *cobra.Command {
	var phase, output string
	var today bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a sync pass between the notes and the task list",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eng, err := a.newEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			if today {
				path, err := eng.vault.EnsureTodayNoteExists(ctx)
				if err != nil {
					return err
				}
				a.logger.Debug("sync: today's note ready", "path", path)
			}

			result, err := runPhase(ctx, eng, phase)
			if err != nil {
				return err
			}
			a.applyRetention(eng.store)

			if err := writeResult(cmd.OutOrStdout(), result, output); err != nil {
				return err
			}
			if n := result.ErrorCount(); n > 0 {
				return fmt.Errorf("%d task(s) failed to sync", n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&phase, "phase", phaseAll, "phase to run (all, remote-to-local, local-to-remote, completions)")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format (text, json, yaml)")
	cmd.Flags().BoolVar(&today, "today", false, "create today's note before syncing")
	return cmd
}

func runPhase(ctx context.Context, eng *engine, phase string) (model.SyncResult, error) {
	r := eng.reconciler
	var result model.SyncResult
	var err error
	switch phase {
	case phaseAll, "":
		return r.FullSync(ctx)
	case phaseRemoteToLocal:
		result.MsftToObsidian, err = r.SyncRemoteToLocal(ctx)
	case phaseLocalToRemote:
		result.ObsidianToMsft, err = r.SyncLocalToRemote(ctx)
	case phaseCompletions:
		result.Completions, err = r.SyncCompletions(ctx)
	default:
		return result, fmt.Errorf("unknown phase %q (valid: all, remote-to-local, local-to-remote, completions)", phase)
	}
	result.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return result, err
}

func checkOutput(format string) error {
	switch format {
	case "text", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unknown output format %q (valid: text, json, yaml)", format)
	}
}

func writeResult(w io.Writer, r model.SyncResult, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		data, err := yaml.Marshal(r)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	fmt.Fprintf(w, "Sync finished at %s\n", r.Timestamp)
	fmt.Fprintf(w, "  remote -> notes: %d added\n", r.MsftToObsidian.Added)
	fmt.Fprintf(w, "  notes -> remote: %d added\n", r.ObsidianToMsft.Added)
	fmt.Fprintf(w, "  completions:     %d propagated\n", r.Completions.Completed)
	for _, group := range [][]string{r.MsftToObsidian.Errors, r.ObsidianToMsft.Errors, r.Completions.Errors} {
		for _, e := range group {
			fmt.Fprintf(w, "  error: %s\n", e)
		}
	}
	return nil
}
