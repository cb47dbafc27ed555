package tasktext

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/model"
)

// Inline field keys recognized inside "[key:: value]".
const (
	FieldCompletion = "completion"
	FieldDue        = "due"
	FieldTodoID     = "todo-id"
	fieldTodo       = "todo"
)

const (
	emojiDone = "✅"
	emojiDue  = "📅"

	// variationSelector asks for emoji presentation and may follow either
	// emoji.
	variationSelector = "\uFE0F"
)

type stripMask uint8

const (
	stripCompletion stripMask = 1 << iota
	stripDue
	stripTag
)

const stripAll = stripCompletion | stripDue | stripTag

// metadata holds the annotations found while scanning free text.
type metadata struct {
	completion *model.Date
	due        *model.Date
	trackingID string
}

// stripMetadata scans text once, left to right, removing the inline fields
// and emoji dates selected by mask together with the whitespace run in front
// of each. Unrecognized bracketed text is copied through untouched.
func stripMetadata(text string, mask stripMask) (string, metadata) {
	var meta metadata
	var b strings.Builder
	b.Grow(len(text))

	for i := 0; i < len(text); {
		if text[i] == '[' && !strings.HasPrefix(text[i:], "[[") {
			if end, kind, value, ok := inlineField(text[i:]); ok {
				remove := false
				switch kind {
				case FieldCompletion:
					if d, err := model.ParseDate(value); err == nil {
						meta.completion = &d
						remove = mask&stripCompletion != 0
					}
				case FieldDue:
					if d, err := model.ParseDate(value); err == nil {
						meta.due = &d
						remove = mask&stripDue != 0
					}
				case FieldTodoID, fieldTodo:
					meta.trackingID = value
					remove = mask&stripTag != 0
				}
				if remove {
					trimTrailingSpace(&b)
					i += end
					continue
				}
			}
		}

		if strings.HasPrefix(text[i:], emojiDone) || strings.HasPrefix(text[i:], emojiDue) {
			emoji := emojiDone
			bit := stripCompletion
			if strings.HasPrefix(text[i:], emojiDue) {
				emoji = emojiDue
				bit = stripDue
			}
			if n, d, ok := emojiDate(text[i:], emoji); ok {
				if bit == stripCompletion {
					meta.completion = &d
				} else {
					meta.due = &d
				}
				if mask&bit != 0 {
					trimTrailingSpace(&b)
					i += n
					continue
				}
			}
		}

		b.WriteByte(text[i])
		i++
	}
	return b.String(), meta
}

// inlineField recognizes "[key:: value]" (the space after "::" is optional)
// at the start of s and returns the byte length consumed.
func inlineField(s string) (n int, key, value string, ok bool) {
	closing := strings.IndexByte(s, ']')
	if closing < 0 {
		return 0, "", "", false
	}
	inner := s[1:closing]
	sep := strings.Index(inner, "::")
	if sep <= 0 || strings.ContainsAny(inner, "[") {
		return 0, "", "", false
	}
	key = strings.ToLower(strings.TrimSpace(inner[:sep]))
	value = strings.TrimSpace(inner[sep+2:])
	return closing + 1, key, value, true
}

// emojiDate recognizes "<emoji> YYYY-MM-DD" at the start of s.
func emojiDate(s, emoji string) (int, model.Date, bool) {
	i := len(emoji)
	if strings.HasPrefix(s[i:], variationSelector) {
		i += len(variationSelector)
	}
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	if len(s) < i+len(model.DateLayout) {
		return 0, model.Date{}, false
	}
	d, err := model.ParseDate(s[i : i+len(model.DateLayout)])
	if err != nil {
		return 0, model.Date{}, false
	}
	return i + len(model.DateLayout), d, true
}

func trimTrailingSpace(b *strings.Builder) {
	s := b.String()
	trimmed := strings.TrimRight(s, " \t")
	if len(trimmed) != len(s) {
		b.Reset()
		b.WriteString(trimmed)
	}
}

// stripWikiLinks replaces "[[target]]" and "[[target|alias]]" with the text a
// reader would see. A leading "!" (embed) is dropped as well.
func stripWikiLinks(text string) string {
	var b strings.Builder
	for i := 0; i < len(text); {
		start := i
		if text[i] == '!' && strings.HasPrefix(text[i+1:], "[[") {
			start = i + 1
		}
		if strings.HasPrefix(text[start:], "[[") {
			if end := strings.Index(text[start+2:], "]]"); end >= 0 {
				inner := text[start+2 : start+2+end]
				if pipe := strings.LastIndexByte(inner, '|'); pipe >= 0 {
					inner = inner[pipe+1:]
				}
				b.WriteString(inner)
				i = start + 2 + end + 2
				continue
			}
		}
		b.WriteByte(text[i])
		i++
	}
	return b.String()
}

// stripHashtags removes "#tag" tokens. A tag starts at the beginning of the
// text or after whitespace and needs at least one non-digit character.
func stripHashtags(text string) string {
	var b strings.Builder
	prevSpace := true
	for i := 0; i < len(text); {
		if text[i] == '#' && prevSpace {
			j := i + 1
			hasNonDigit := false
			for j < len(text) {
				r, size := utf8.DecodeRuneInString(text[j:])
				if !isTagRune(r) {
					break
				}
				if !unicode.IsDigit(r) {
					hasNonDigit = true
				}
				j += size
			}
			if j > i+1 && hasNonDigit {
				i = j
				continue
			}
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		prevSpace = unicode.IsSpace(r)
		b.WriteString(text[i : i+size])
		i += size
	}
	return b.String()
}

func isTagRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '/'
}

// emphasisRun is a maximal run of '*' or '_' characters.
type emphasisRun struct {
	char    byte
	start   int
	length  int
	opener  bool
	closer  bool
	removed bool
}

// stripEmphasis removes bold, italic and bold-italic markers by counting
// delimiter runs: a closing run pairs with the nearest open run of the same
// character and the same length. A single '*' pairs only with a single '*',
// so italic never swallows half of a bold marker. '_' only counts at word
// boundaries so snake_case survives.
func stripEmphasis(text string) string {
	var runs []*emphasisRun
	for i := 0; i < len(text); {
		c := text[i]
		if c != '*' && c != '_' {
			i++
			continue
		}
		j := i
		for j < len(text) && text[j] == c {
			j++
		}
		before, after := byte(' '), byte(' ')
		if i > 0 {
			before = text[i-1]
		}
		if j < len(text) {
			after = text[j]
		}
		run := &emphasisRun{char: c, start: i, length: j - i}
		run.opener = !isSpaceByte(after)
		run.closer = !isSpaceByte(before)
		if c == '_' {
			run.opener = run.opener && !isWordByte(before)
			run.closer = run.closer && !isWordByte(after)
		}
		if run.length <= 3 {
			runs = append(runs, run)
		}
		i = j
	}

	var open []*emphasisRun
	for _, run := range runs {
		if run.closer {
			matched := -1
			for k := len(open) - 1; k >= 0; k-- {
				if open[k].char == run.char && open[k].length == run.length {
					matched = k
					break
				}
			}
			if matched >= 0 {
				open[matched].removed = true
				run.removed = true
				open = open[:matched]
				continue
			}
		}
		if run.opener {
			open = append(open, run)
		}
	}

	var b strings.Builder
	last := 0
	for _, run := range runs {
		if !run.removed {
			continue
		}
		b.WriteString(text[last:run.start])
		last = run.start + run.length
	}
	b.WriteString(text[last:])
	return b.String()
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t'
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= utf8.RuneSelf
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
