// Package match resolves a local task to a remote task by title when the
// identity map has no record for it.
package match

import (
	"sync"

	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/model"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/tasktext"
)

// ExactConfidence is reported for every match: only exact normalized-title
// equality is accepted.
const ExactConfidence = 1.0

// Match is a remote task accepted as the counterpart of a local task.
type Match struct {
	RemoteID   string
	Title      string
	Confidence float64
}

type candidate struct {
	task    model.RemoteTask
	key     string
	date    model.Date
	claimed bool
}

// Pass is one sync pass worth of candidates. A remote task is handed out at
// most once per pass. Safe for concurrent use.
type Pass struct {
	windowDays int

	mu         sync.Mutex
	candidates []*candidate
	byID       map[string]*candidate
}

// Option configures a Pass.
type Option func(*Pass)

// WithWindow only considers remote tasks whose resolved date lies within
// days of the local task's date. Zero means no restriction.
func WithWindow(days int) Option {
	return func(p *Pass) { p.windowDays = days }
}

// NewPass builds the candidate set from the remote snapshot.
func NewPass(remote []model.RemoteTask, opts ...Option) *Pass {
	p := &Pass{byID: make(map[string]*candidate, len(remote))}
	for _, opt := range opts {
		opt(p)
	}
	for _, rt := range remote {
		c := &candidate{task: rt, key: tasktext.Normalize(rt.Title), date: rt.ResolvedDate()}
		p.candidates = append(p.candidates, c)
		p.byID[rt.ID] = c
	}
	return p
}

// Claim removes remoteID from candidacy, typically because the identity map
// already binds it to some local task.
func (p *Pass) Claim(remoteID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.byID[remoteID]; ok {
		c.claimed = true
	}
}

// Match returns the first unclaimed remote task whose normalized title
// equals the local task's and claims it.
func (p *Pass) Match(local model.Task) (Match, bool) {
	key := tasktext.Normalize(local.Title)
	if key == "" {
		return Match{}, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.candidates {
		if c.claimed || c.key != key {
			continue
		}
		if p.windowDays > 0 && model.DaysBetween(c.date, local.Date) > p.windowDays {
			continue
		}
		c.claimed = true
		return Match{RemoteID: c.task.ID, Title: c.task.Title, Confidence: ExactConfidence}, true
	}
	return Match{}, false
}

// Remaining returns how many candidates are still unclaimed.
func (p *Pass) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.candidates {
		if !c.claimed {
			n++
		}
	}
	return n
}
