// Package tasktext reads and writes the checkbox lines of a dated note.
//
// A task line is an indent, a checkbox marker ("- [ ]", "- [x]" or "- [X]")
// and free text. The free text may carry annotations in any order: a
// completion date ("[completion:: YYYY-MM-DD]" or "✅ YYYY-MM-DD"), a due
// date ("[due:: YYYY-MM-DD]" or "📅 YYYY-MM-DD"), hashtags, wiki links,
// emphasis markers and the internal tracking tag ("[todo-id:: <id>]").
package tasktext

import (
	"strings"

	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/model"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/syncerr"
)

const (
	markerOpen = "- [ ]"
	markerDone = "- [x]"
)

// checkbox is the structural split of a task line.
type checkbox struct {
	indent    string
	completed bool
	text      string
}

// splitCheckbox recognizes the marker of a task line. The text after the
// marker must be empty or separated from it by whitespace.
func splitCheckbox(line string) (checkbox, bool) {
	body := strings.TrimLeft(line, " \t")
	indent := line[:len(line)-len(body)]

	if len(body) < len(markerOpen) || body[0] != '-' || body[1] != ' ' || body[2] != '[' || body[4] != ']' {
		return checkbox{}, false
	}
	var completed bool
	switch body[3] {
	case ' ':
	case 'x', 'X':
		completed = true
	default:
		return checkbox{}, false
	}
	rest := body[len(markerOpen):]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return checkbox{}, false
	}
	rest = strings.TrimRight(rest, " \t\r")
	return checkbox{indent: indent, completed: completed, text: strings.TrimLeft(rest, " \t")}, true
}

// ExtractTitle removes every recognized annotation from text and trims it.
func ExtractTitle(text string) string {
	s, _ := stripMetadata(text, stripAll)
	s = stripWikiLinks(s)
	s = stripHashtags(s)
	s = stripEmphasis(s)
	return collapseSpace(s)
}

// Normalize returns the identity key of a title.
func Normalize(title string) string {
	return ExtractTitle(title)
}

// displayTitle drops the date annotations but keeps everything a user would
// consider part of the task's wording, including the tracking tag.
func displayTitle(text string) (string, metadata) {
	s, meta := stripMetadata(text, stripCompletion|stripDue)
	return strings.TrimSpace(s), meta
}

// TrackingID returns the id of the tracking tag in text, if any.
func TrackingID(text string) string {
	_, meta := stripMetadata(text, 0)
	return meta.trackingID
}

// ParseLine turns one line into a Task. ok is false when the line is not a
// checkbox or nothing remains of the title once annotations are stripped.
func ParseLine(line string, date model.Date, path string, lineNumber int) (model.Task, bool) {
	task, reason := parseLine(line, date, path, lineNumber)
	return task, reason == ""
}

func parseLine(line string, date model.Date, path string, lineNumber int) (model.Task, string) {
	cb, ok := splitCheckbox(line)
	if !ok {
		return model.Task{}, "not a checkbox"
	}
	title, meta := displayTitle(cb.text)
	if ExtractTitle(title) == "" {
		return model.Task{}, "empty title"
	}
	return model.Task{
		Date:           date,
		Title:          title,
		Completed:      cb.completed,
		CompletionDate: meta.completion,
		DueDate:        meta.due,
		FilePath:       path,
		LineNumber:     lineNumber,
		Indent:         cb.indent,
	}, ""
}

// FormatLine is the inverse of ParseLine for writing a task back out.
func FormatLine(task model.Task) string {
	title, _ := displayTitle(task.Title)

	var b strings.Builder
	b.WriteString(task.Indent)
	if task.Completed {
		b.WriteString(markerDone)
	} else {
		b.WriteString(markerOpen)
	}
	b.WriteByte(' ')
	b.WriteString(title)
	if task.Completed && task.CompletionDate != nil {
		b.WriteString(completionAnnotation(*task.CompletionDate))
	}
	return b.String()
}

// FormatNewTaskLine renders the line appended for a task created from the
// remote side. When remoteID is set, it replaces any tracking tag already
// present in title.
func FormatNewTaskLine(title, remoteID string) string {
	mask := stripCompletion | stripDue
	if remoteID != "" {
		mask |= stripTag
	}
	clean, _ := stripMetadata(title, mask)
	line := markerOpen + " " + strings.TrimSpace(clean)
	if remoteID != "" {
		line += " [" + FieldTodoID + ":: " + remoteID + "]"
	}
	return line
}

// SetCompletion rewrites the marker and completion annotation of a task
// line. Indent, wording and every other annotation are kept. Completing
// without a date keeps an existing completion annotation.
func SetCompletion(line string, completed bool, date *model.Date) (string, error) {
	cb, ok := splitCheckbox(line)
	if !ok {
		return "", syncerr.ValidationError{Input: line, Reason: "not a checkbox line"}
	}
	text, meta := stripMetadata(cb.text, stripCompletion)
	text = strings.TrimSpace(text)

	var b strings.Builder
	b.WriteString(cb.indent)
	if completed {
		b.WriteString(markerDone)
	} else {
		b.WriteString(markerOpen)
	}
	b.WriteByte(' ')
	b.WriteString(text)
	if completed {
		if date == nil {
			date = meta.completion
		}
		if date != nil {
			b.WriteString(completionAnnotation(*date))
		}
	}
	return b.String(), nil
}

func completionAnnotation(d model.Date) string {
	return " [" + FieldCompletion + ":: " + d.String() + "]"
}
