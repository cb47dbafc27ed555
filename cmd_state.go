package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/model"
)

// stateSummary is what `status` reports about the identity map.
type stateSummary struct {
	Backend string `json:"backend" yaml:"backend"`
	Path    string `json:"path" yaml:"path"`
	Records int    `json:"records" yaml:"records"`
	Oldest  string `json:"oldest,omitempty" yaml:"oldest,omitempty"`
	Newest  string `json:"newest,omitempty" yaml:"newest,omitempty"`
}

func summarize(backend, path string, records []model.IdentityRecord) stateSummary {
	s := stateSummary{Backend: backend, Path: path, Records: len(records)}
	if len(records) == 0 {
		return s
	}
	oldest, newest := records[0].Date, records[0].Date
	for _, r := range records[1:] {
		if r.Date.Before(oldest) {
			oldest = r.Date
		}
		if r.Date.After(newest) {
			newest = r.Date
		}
	}
	s.Oldest, s.Newest = oldest.String(), newest.String()
	return s
}

func writeSummary(w io.Writer, s stateSummary, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case "yaml":
		data, err := yaml.Marshal(s)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	fmt.Fprintf(w, "State: %s (%s)\n", s.Path, s.Backend)
	fmt.Fprintf(w, "  records: %d\n", s.Records)
	if s.Records > 0 {
		fmt.Fprintf(w, "  dates:   %s .. %s\n", s.Oldest, s.Newest)
	}
	return nil
}

func (a *app) statusCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the identity map kept between runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			store, closer, err := a.openStore()
			if err != nil {
				return err
			}
			defer closer.Close()

			path, _ := a.cfg.ResolvedStatePath()
			return writeSummary(cmd.OutOrStdout(), summarize(a.cfg.StateBackend, path, store.Records()), output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format (text, json, yaml)")
	return cmd
}

func (a *app) pruneCmd() *cobra.Command {
	var olderThan string
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Forget identity records dated before a cutoff",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cutoff, err := pruneCutoff(olderThan, days, model.Today())
			if err != nil {
				return err
			}
			store, closer, err := a.openStore()
			if err != nil {
				return err
			}
			defer closer.Close()

			n, err := store.Prune(cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d record(s) dated before %s\n", n, cutoff)
			return nil
		},
	}
	cmd.Flags().StringVar(&olderThan, "older-than", "", "remove records dated before YYYY-MM-DD")
	cmd.Flags().IntVar(&days, "days", 0, "remove records older than this many days")
	return cmd
}

// pruneCutoff resolves the prune flags. Exactly one of them must be set.
func pruneCutoff(olderThan string, days int, today model.Date) (model.Date, error) {
	switch {
	case olderThan != "" && days != 0:
		return model.Date{}, errors.New("use either --older-than or --days, not both")
	case olderThan != "":
		return model.ParseDate(olderThan)
	case days > 0:
		return today.AddDays(-days), nil
	case days < 0:
		return model.Date{}, fmt.Errorf("--days must be positive, got %d", days)
	default:
		return model.Date{}, errors.New("one of --older-than or --days is required")
	}
}

func (a *app) clearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget every identity record",
		Long:  "Forget every identity record. The next sync re-links tasks by title and may create duplicates for renamed tasks.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to clear the identity map without --yes")
			}
			store, closer, err := a.openStore()
			if err != nil {
				return err
			}
			defer closer.Close()

			n := store.Len()
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d record(s)\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm clearing")
	return cmd
}
