// Package vault stores tasks in a directory of dated Markdown notes, one
// note per day, with tasks under a configured heading.
package vault

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/model"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/syncerr"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/tasktext"
)

const noteExt = ".md"

// Options configures a Vault.
type Options struct {
	Root        string // vault directory
	DailyDir    string // dated notes live in Root/DailyDir
	DateFormat  string // Go layout of note file names
	Heading     string // task section heading, e.g. "## Tasks"
	Frontmatter bool   // write a YAML date header into new notes
	Logger      *slog.Logger
	Now         func() time.Time
}

// Vault is the filesystem note collection. Every read-modify-write of a
// note happens under one mutex.
type Vault struct {
	opts   Options
	parser *tasktext.Parser
	mu     sync.RWMutex
}

func New(opts Options) (*Vault, error) {
	if opts.Root == "" {
		return nil, syncerr.ValidationError{Input: opts.Root, Reason: "vault directory is required"}
	}
	if opts.DateFormat == "" {
		opts.DateFormat = model.DateLayout
	}
	if opts.Heading == "" {
		opts.Heading = "## Tasks"
	}
	if err := tasktext.ValidateHeading(opts.Heading); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Vault{opts: opts, parser: tasktext.NewParser(opts.Heading, opts.Logger)}, nil
}

func (v *Vault) dir() string {
	return filepath.Join(v.opts.Root, v.opts.DailyDir)
}

func (v *Vault) NotePath(date model.Date) string {
	return filepath.Join(v.dir(), date.Time().Format(v.opts.DateFormat)+noteExt)
}

func (v *Vault) TodayNotePath() string {
	return v.NotePath(model.DateOf(v.opts.Now()))
}

// dateOf recovers the note date from a file name. ok is false for files
// that are not dated notes.
func (v *Vault) dateOf(path string) (model.Date, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, noteExt) {
		return model.Date{}, false
	}
	t, err := time.Parse(v.opts.DateFormat, strings.TrimSuffix(base, noteExt))
	if err != nil {
		return model.Date{}, false
	}
	return model.DateOf(t), true
}

func (v *Vault) EnsureTodayNoteExists(ctx context.Context) (string, error) {
	path := v.TodayNotePath()
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := v.CreateDailyNote(ctx, model.DateOf(v.opts.Now())); err != nil {
		return "", err
	}
	return path, nil
}

type frontmatter struct {
	Date string `yaml:"date"`
}

func (v *Vault) noteTemplate(date model.Date) ([]byte, error) {
	var buf bytes.Buffer
	if v.opts.Frontmatter {
		fm, err := yaml.Marshal(frontmatter{Date: date.String()})
		if err != nil {
			return nil, fmt.Errorf("failed to render frontmatter: %w", err)
		}
		buf.WriteString("---\n")
		buf.Write(fm)
		buf.WriteString("---\n\n")
	}
	buf.WriteString(v.opts.Heading)
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

// CreateDailyNote writes an empty note for date. An existing note is left
// untouched.
func (v *Vault) CreateDailyNote(_ context.Context, date model.Date) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	path := v.NotePath(date)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	content, err := v.noteTemplate(date)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create notes directory: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(content)); err != nil {
		return fmt.Errorf("failed to write note %s: %w", path, err)
	}
	if err := os.Chmod(path, 0644); err != nil {
		return fmt.Errorf("failed to set note permissions: %w", err)
	}
	v.opts.Logger.Debug("vault: created note", "path", path)
	return nil
}

func (v *Vault) read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", syncerr.NotFoundError{Resource: path}
		}
		return "", fmt.Errorf("failed to read note %s: %w", path, err)
	}
	return string(data), nil
}

func (v *Vault) write(path string, lines []string) error {
	content := strings.Join(lines, "\n")
	if err := atomic.WriteFile(path, strings.NewReader(content)); err != nil {
		return fmt.Errorf("failed to write note %s: %w", path, err)
	}
	return nil
}

// DailyNoteTasks parses the task section of the note at path.
func (v *Vault) DailyNoteTasks(_ context.Context, path string) ([]model.Task, error) {
	date, ok := v.dateOf(path)
	if !ok {
		return nil, syncerr.ValidationError{Input: path, Reason: "not a dated note"}
	}
	v.mu.RLock()
	content, err := v.read(path)
	v.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return v.parser.Parse(content, date, path), nil
}

// AllDailyNoteTasks returns the tasks of every dated note, oldest note
// first. A missing notes directory holds no notes.
func (v *Vault) AllDailyNoteTasks(ctx context.Context) ([]model.Task, error) {
	if _, err := os.Stat(v.opts.Root); err != nil {
		return nil, fmt.Errorf("vault directory unavailable: %w", err)
	}
	entries, err := os.ReadDir(v.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	type note struct {
		path string
		date model.Date
	}
	var notes []note
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(v.dir(), e.Name())
		if date, ok := v.dateOf(path); ok {
			notes = append(notes, note{path: path, date: date})
		}
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].date.Before(notes[j].date) })

	var all []model.Task
	for _, n := range notes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tasks, err := v.DailyNoteTasks(ctx, n.path)
		if err != nil {
			return nil, err
		}
		all = append(all, tasks...)
	}
	return all, nil
}

// AddTaskToTodoSection appends a task line after the last line of the
// section's task block. A note without the heading gets it at the end.
func (v *Vault) AddTaskToTodoSection(_ context.Context, path, title, remoteID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	content, err := v.read(path)
	if err != nil {
		return err
	}
	lines := tasktext.SplitLines(content)
	line := tasktext.FormatNewTaskLine(title, remoteID)

	idx, ok := tasktext.SectionInsertIndex(lines, v.opts.Heading)
	if !ok {
		for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
			lines = lines[:len(lines)-1]
		}
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, v.opts.Heading, line, "")
		v.opts.Logger.Debug("vault: added missing section", "path", path, "heading", v.opts.Heading)
	} else {
		lines = append(lines[:idx], append([]string{line}, lines[idx:]...)...)
	}

	if err := v.write(path, lines); err != nil {
		return err
	}
	v.opts.Logger.Debug("vault: appended task", "path", path, "line", line)
	return nil
}

// UpdateTaskCompletion rewrites the checkbox at lineNumber (0-based).
func (v *Vault) UpdateTaskCompletion(_ context.Context, path string, lineNumber int, completed bool, completionDate *model.Date) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	content, err := v.read(path)
	if err != nil {
		return err
	}
	lines := tasktext.SplitLines(content)
	if lineNumber < 0 || lineNumber >= len(lines) {
		return syncerr.OutOfRangeError{Path: path, Line: lineNumber, Lines: len(lines)}
	}
	updated, err := tasktext.SetCompletion(lines[lineNumber], completed, completionDate)
	if err != nil {
		return syncerr.Wrap(fmt.Sprintf("update %s:%d", path, lineNumber), err)
	}
	if updated == lines[lineNumber] {
		return nil
	}
	lines[lineNumber] = updated
	return v.write(path, lines)
}
