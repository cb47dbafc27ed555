// Package index keeps the durable identity map between local tasks, keyed by
// (date, normalized title), and remote task ids.
package index

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/model"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/syncerr"
)

// DefaultKey is the persistence key the identity map is stored under.
const DefaultKey = "identity-map"

//go:embed identity.schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func payloadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		if err := compiler.AddResource("identity.schema.json", bytes.NewReader([]byte(schemaJSON))); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = compiler.Compile("identity.schema.json")
	})
	return schema, schemaErr
}

// Persister is the generic key-value persistence the store loads from and
// flushes to.
type Persister interface {
	// Load returns nil data and a nil error when key was never saved.
	Load(key string) ([]byte, error)
	Save(key string, data []byte) error
}

type entry struct {
	RemoteID   string    `json:"remoteId"`
	LastSynced time.Time `json:"lastSynced"`
}

type recordKey struct {
	date  model.Date
	title string
}

// Entry is the result of a reverse lookup.
type Entry struct {
	Date       model.Date
	Title      string
	LastSynced time.Time
}

// IdentityStore is a bidirectional map (date, title) <-> remote id. Titles
// must be normalized by the caller; the store compares them verbatim.
type IdentityStore struct {
	persister Persister
	key       string
	buffered  bool
	now       func() time.Time

	mu      sync.RWMutex
	records map[model.Date]map[string]entry
	reverse map[string]recordKey
	dirty   bool
}

// Option configures an IdentityStore.
type Option func(*IdentityStore)

// WithBufferedWrites defers persistence until Flush.
func WithBufferedWrites() Option {
	return func(s *IdentityStore) { s.buffered = true }
}

// WithKey overrides the persistence key.
func WithKey(key string) Option {
	return func(s *IdentityStore) { s.key = key }
}

// WithClock overrides the clock used for lastSynced.
func WithClock(now func() time.Time) Option {
	return func(s *IdentityStore) { s.now = now }
}

// New loads the identity map from p. An empty or missing payload yields an
// empty store.
func New(p Persister, opts ...Option) (*IdentityStore, error) {
	s := &IdentityStore{
		persister: p,
		key:       DefaultKey,
		now:       time.Now,
		records:   make(map[model.Date]map[string]entry),
		reverse:   make(map[string]recordKey),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *IdentityStore) load() error {
	data, err := s.persister.Load(s.key)
	if err != nil {
		return fmt.Errorf("load identity map: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode identity map: %w", err)
	}
	sch, err := payloadSchema()
	if err != nil {
		return fmt.Errorf("compile identity schema: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("invalid identity map: %w", err)
	}

	var raw map[string]map[string]entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode identity map: %w", err)
	}
	for dateStr, titles := range raw {
		date, err := model.ParseDate(dateStr)
		if err != nil {
			return fmt.Errorf("invalid identity map: %w", err)
		}
		for title, e := range titles {
			s.putLocked(date, title, e)
		}
	}
	return nil
}

// putLocked inserts e at (date, title), evicting any other key bound to the
// same remote id and unbinding the remote id previously held by this key.
func (s *IdentityStore) putLocked(date model.Date, title string, e entry) {
	if prev, ok := s.reverse[e.RemoteID]; ok && (prev.date != date || prev.title != title) {
		s.deleteLocked(prev.date, prev.title)
	}
	titles, ok := s.records[date]
	if !ok {
		titles = make(map[string]entry)
		s.records[date] = titles
	}
	if old, ok := titles[title]; ok && old.RemoteID != e.RemoteID {
		delete(s.reverse, old.RemoteID)
	}
	titles[title] = e
	s.reverse[e.RemoteID] = recordKey{date: date, title: title}
}

func (s *IdentityStore) deleteLocked(date model.Date, title string) bool {
	titles, ok := s.records[date]
	if !ok {
		return false
	}
	e, ok := titles[title]
	if !ok {
		return false
	}
	delete(titles, title)
	if len(titles) == 0 {
		delete(s.records, date)
	}
	if k, ok := s.reverse[e.RemoteID]; ok && k.date == date && k.title == title {
		delete(s.reverse, e.RemoteID)
	}
	return true
}

// Upsert binds (date, title) to remoteID.
func (s *IdentityStore) Upsert(date model.Date, title, remoteID string) error {
	if title == "" || remoteID == "" {
		return syncerr.ValidationError{Input: title + "|" + remoteID, Reason: "title and remote id are required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.putLocked(date, title, entry{RemoteID: remoteID, LastSynced: s.now().UTC()})
	s.dirty = true
	return s.persistLocked()
}

// LookupRemoteID returns the remote id bound to (date, title).
func (s *IdentityStore) LookupRemoteID(date model.Date, title string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.records[date][title]
	return e.RemoteID, ok
}

// LookupByRemoteID returns the local key bound to remoteID.
func (s *IdentityStore) LookupByRemoteID(remoteID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.reverse[remoteID]
	if !ok {
		return Entry{}, false
	}
	return Entry{Date: k.date, Title: k.title, LastSynced: s.records[k.date][k.title].LastSynced}, true
}

// RenameTitle moves the record at (date, oldTitle) to (date, newTitle).
func (s *IdentityStore) RenameTitle(date model.Date, oldTitle, newTitle string) error {
	if newTitle == "" {
		return syncerr.ValidationError{Input: newTitle, Reason: "new title is required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[date][oldTitle]
	if !ok {
		return syncerr.NotFoundError{Resource: fmt.Sprintf("identity %s %q", date, oldTitle)}
	}
	if oldTitle == newTitle {
		return nil
	}
	s.deleteLocked(date, oldTitle)
	e.LastSynced = s.now().UTC()
	s.putLocked(date, newTitle, e)
	s.dirty = true
	return s.persistLocked()
}

// Remove drops the record at (date, title). Removing a missing record is a
// no-op.
func (s *IdentityStore) Remove(date model.Date, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.deleteLocked(date, title) {
		return nil
	}
	s.dirty = true
	return s.persistLocked()
}

// Prune drops every record dated before olderThan and returns how many were
// removed.
func (s *IdentityStore) Prune(olderThan model.Date) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for date, titles := range s.records {
		if !date.Before(olderThan) {
			continue
		}
		for title := range titles {
			if s.deleteLocked(date, title) {
				removed++
			}
		}
	}
	if removed == 0 {
		return 0, nil
	}
	s.dirty = true
	return removed, s.persistLocked()
}

// Clear drops every record.
func (s *IdentityStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[model.Date]map[string]entry)
	s.reverse = make(map[string]recordKey)
	s.dirty = true
	return s.persistLocked()
}

// Len returns the number of records.
func (s *IdentityStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reverse)
}

// Records returns a snapshot ordered by date, then title.
func (s *IdentityStore) Records() []model.IdentityRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.IdentityRecord, 0, len(s.reverse))
	for date, titles := range s.records {
		for title, e := range titles {
			out = append(out, model.IdentityRecord{
				Date:            date,
				NormalizedTitle: title,
				RemoteID:        e.RemoteID,
				LastSynced:      e.LastSynced,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].NormalizedTitle < out[j].NormalizedTitle
	})
	return out
}

// Flush writes pending changes. It is a no-op when nothing changed.
func (s *IdentityStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *IdentityStore) persistLocked() error {
	if s.buffered {
		return nil
	}
	return s.flushLocked()
}

func (s *IdentityStore) flushLocked() error {
	if !s.dirty {
		return nil
	}
	raw := make(map[string]map[string]entry, len(s.records))
	for date, titles := range s.records {
		out := make(map[string]entry, len(titles))
		for title, e := range titles {
			out[title] = e
		}
		raw[date.String()] = out
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode identity map: %w", err)
	}
	if err := s.persister.Save(s.key, data); err != nil {
		return fmt.Errorf("save identity map: %w", err)
	}
	s.dirty = false
	return nil
}
