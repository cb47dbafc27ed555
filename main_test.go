package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/model"
)

func TestPruneCutoff(t *testing.T) {
	today := model.MustParseDate("2024-03-10")
	tests := []struct {
		name      string
		olderThan string
		days      int
		want      string
		wantErr   bool
	}{
		{name: "explicit date", olderThan: "2024-01-01", want: "2024-01-01"},
		{name: "days", days: 10, want: "2024-02-29"},
		{name: "both", olderThan: "2024-01-01", days: 3, wantErr: true},
		{name: "neither", wantErr: true},
		{name: "negative days", days: -1, wantErr: true},
		{name: "bad date", olderThan: "10/03/2024", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pruneCutoff(tt.olderThan, tt.days, today)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("cutoff = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	records := []model.IdentityRecord{
		{Date: model.MustParseDate("2024-02-01"), NormalizedTitle: "b", RemoteID: "2"},
		{Date: model.MustParseDate("2024-01-05"), NormalizedTitle: "a", RemoteID: "1"},
		{Date: model.MustParseDate("2024-03-01"), NormalizedTitle: "c", RemoteID: "3"},
	}
	s := summarize("file", "/tmp/state", records)
	if s.Records != 3 || s.Oldest != "2024-01-05" || s.Newest != "2024-03-01" {
		t.Errorf("unexpected summary: %+v", s)
	}

	empty := summarize("memory", "", nil)
	if empty.Records != 0 || empty.Oldest != "" || empty.Newest != "" {
		t.Errorf("unexpected empty summary: %+v", empty)
	}
}

func TestCheckOutput(t *testing.T) {
	for _, f := range []string{"text", "json", "yaml"} {
		if err := checkOutput(f); err != nil {
			t.Errorf("checkOutput(%q) = %v", f, err)
		}
	}
	if err := checkOutput("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestWriteResult(t *testing.T) {
	r := model.SyncResult{
		MsftToObsidian: model.CreationStats{Added: 2},
		ObsidianToMsft: model.CreationStats{Added: 1, Errors: []string{`2024-01-01 "Broken": boom`}},
		Completions:    model.CompletionStats{Completed: 3},
		Timestamp:      "2024-01-10T00:00:00Z",
	}

	var text bytes.Buffer
	if err := writeResult(&text, r, "text"); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"2 added", "1 added", "3 propagated", `error: 2024-01-01 "Broken": boom`} {
		if !strings.Contains(text.String(), want) {
			t.Errorf("text output missing %q:\n%s", want, text.String())
		}
	}

	var js bytes.Buffer
	if err := writeResult(&js, r, "json"); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(js.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if decoded["timestamp"] != "2024-01-10T00:00:00Z" {
		t.Errorf("timestamp = %v", decoded["timestamp"])
	}

	var y bytes.Buffer
	if err := writeResult(&y, r, "yaml"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(y.String(), "msftToObsidian:") {
		t.Errorf("yaml output missing phase key:\n%s", y.String())
	}
}

func TestRunPhaseRejectsUnknownPhase(t *testing.T) {
	if _, err := runPhase(context.Background(), &engine{}, "sideways"); err == nil {
		t.Fatal("expected error for unknown phase")
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := (&app{}).rootCmd()
	for _, name := range []string{"sync", "auth", "status", "prune", "clear", "daemon", "config"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestLoadInjectsLoggerWithoutGlobalState(t *testing.T) {
	before := slog.Default()
	a := &app{configPath: filepath.Join(t.TempDir(), "config.yaml"), logLevel: "debug"}
	if err := a.load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if a.logger == nil {
		t.Fatal("expected a logger")
	}
	if slog.Default() != before {
		t.Error("load must not replace the default logger")
	}
	if a.cfg.LogLevel != "debug" {
		t.Errorf("log level override not applied, got %q", a.cfg.LogLevel)
	}
}
