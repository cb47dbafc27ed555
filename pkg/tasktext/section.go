package tasktext

import (
	"log/slog"
	"strings"

	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/model"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/syncerr"
)

// SplitLines splits note content into lines, accepting CRLF endings.
func SplitLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	return strings.Split(content, "\n")
}

// HeadingLevel returns the number of leading '#' characters of a Markdown
// heading, or 0 when line is not a heading.
func HeadingLevel(line string) int {
	s := strings.TrimSpace(line)
	level := 0
	for level < len(s) && s[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return 0
	}
	if level < len(s) && s[level] != ' ' && s[level] != '\t' {
		return 0
	}
	return level
}

// ValidateHeading checks that heading is a Markdown heading.
func ValidateHeading(heading string) error {
	if HeadingLevel(heading) == 0 {
		return syncerr.ValidationError{Input: heading, Reason: "not a markdown heading"}
	}
	return nil
}

func isFence(line string) bool {
	s := strings.TrimSpace(line)
	return strings.HasPrefix(s, "```") || strings.HasPrefix(s, "~~~")
}

// FindSection locates heading in lines. start is the heading's index and
// end the index of the next heading of the same or a higher level (or
// len(lines)). Headings inside fenced code blocks are ignored.
func FindSection(lines []string, heading string) (start, end int, ok bool) {
	target := strings.TrimSpace(heading)
	level := HeadingLevel(target)
	if level == 0 {
		return 0, 0, false
	}

	start = -1
	inFence := false
	for i, line := range lines {
		if isFence(line) {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if start < 0 {
			if strings.TrimSpace(line) == target {
				start = i
			}
			continue
		}
		if l := HeadingLevel(line); l > 0 && l <= level {
			return start, i, true
		}
	}
	if start < 0 {
		return 0, 0, false
	}
	return start, len(lines), true
}

// Parser extracts tasks from the configured section of a note.
type Parser struct {
	Heading string
	Logger  *slog.Logger
}

// NewParser returns a Parser scoped to heading.
func NewParser(heading string, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{Heading: heading, Logger: logger}
}

// ParseSection returns the tasks strictly between the section heading and
// its end. A missing heading yields no tasks.
func (p *Parser) ParseSection(lines []string, date model.Date, path string) []model.Task {
	start, end, ok := FindSection(lines, p.Heading)
	if !ok {
		p.Logger.Debug("tasktext: section not found", "path", path, "heading", p.Heading)
		return nil
	}

	var tasks []model.Task
	inFence := false
	for i := start + 1; i < end; i++ {
		if isFence(lines[i]) {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		task, reason := parseLine(lines[i], date, path, i)
		switch reason {
		case "":
			tasks = append(tasks, task)
		case "not a checkbox":
		default:
			p.Logger.Debug("tasktext: skipping line", "path", path, "line", i, "reason", reason)
		}
	}
	return tasks
}

// Parse splits content and parses the configured section.
func (p *Parser) Parse(content string, date model.Date, path string) []model.Task {
	return p.ParseSection(SplitLines(content), date, path)
}

// SectionInsertIndex returns the index at which a new task line belongs:
// right after the last non-blank line of the section that precedes its
// first nested heading. ok is false when the heading is missing.
func SectionInsertIndex(lines []string, heading string) (int, bool) {
	start, end, ok := FindSection(lines, heading)
	if !ok {
		return 0, false
	}
	insert := start + 1
	inFence := false
	for i := start + 1; i < end; i++ {
		if isFence(lines[i]) {
			inFence = !inFence
		} else if !inFence && HeadingLevel(lines[i]) > 0 {
			break
		}
		if strings.TrimSpace(lines[i]) != "" {
			insert = i + 1
		}
	}
	return insert, true
}
