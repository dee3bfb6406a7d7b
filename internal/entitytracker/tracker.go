// Package entitytracker implements the spec's component H: mapping entity
// names to the (session, turn) positions that mentioned them.
//
// Grounded 1:1 on original_source/core/indexing/entity_tracker.py.
package entitytracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const snippetRadius = 50

// Mention is a (session_id, turn_id, name, snippet, timestamp) tuple.
type Mention struct {
	EntityName string    `json:"entity_name"`
	SessionID  string    `json:"session_id"`
	TurnID     int       `json:"turn_id"`
	Context    string    `json:"context"`
	Timestamp  time.Time `json:"timestamp"`
}

// KnownEntities is a minimal view of the entity index (component G) the
// tracker needs: a set of known entity names to match mentions against.
type KnownEntities interface {
	Names() []string
}

// Tracker maintains entity mentions and per-session entity sets.
type Tracker struct {
	mu sync.Mutex

	known           KnownEntities
	mentions        map[string][]Mention // entity name -> mentions, oldest first
	sessionEntities map[string]map[string]struct{}
}

// New returns an empty Tracker. SetKnownEntities must be called before
// RecordTurn can extract entities from free text.
func New() *Tracker {
	return &Tracker{
		mentions:        make(map[string][]Mention),
		sessionEntities: make(map[string]map[string]struct{}),
	}
}

// SetKnownEntities wires in the entity index used to recognise names in
// free text.
func (t *Tracker) SetKnownEntities(k KnownEntities) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.known = k
}

// ExtractEntitiesFromText returns every known entity name that appears as
// a case-insensitive substring of text, deduplicated.
func (t *Tracker) ExtractEntitiesFromText(text string) []string {
	t.mu.Lock()
	known := t.known
	t.mu.Unlock()

	if known == nil {
		return nil
	}
	lower := strings.ToLower(text)
	seen := make(map[string]struct{})
	var found []string
	for _, name := range known.Names() {
		if name == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(name)) {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				found = append(found, name)
			}
		}
	}
	return found
}

// RecordMention stores one mention, truncating context to 200 chars to
// match the reference implementation.
func (t *Tracker) RecordMention(entityName, sessionID string, turnID int, context string, ts time.Time) {
	if len(context) > 200 {
		context = context[:200]
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.mentions[entityName] = append(t.mentions[entityName], Mention{
		EntityName: entityName,
		SessionID:  sessionID,
		TurnID:     turnID,
		Context:    context,
		Timestamp:  ts,
	})
	set, ok := t.sessionEntities[sessionID]
	if !ok {
		set = make(map[string]struct{})
		t.sessionEntities[sessionID] = set
	}
	set[entityName] = struct{}{}
}

// RecordTurn extracts every known entity mentioned in query or response
// and records one mention per match, with a snippet spanning ±50
// characters around the match position.
func (t *Tracker) RecordTurn(sessionID string, turnID int, query, response string, ts time.Time) {
	combined := query + " " + response
	lower := strings.ToLower(combined)

	for _, name := range t.ExtractEntitiesFromText(combined) {
		idx := strings.Index(lower, strings.ToLower(name))
		if idx < 0 {
			continue
		}
		start := idx - snippetRadius
		if start < 0 {
			start = 0
		}
		end := idx + len(name) + snippetRadius
		if end > len(combined) {
			end = len(combined)
		}
		snippet := combined[start:end]
		t.RecordMention(name, sessionID, turnID, snippet, ts)
	}
}

// Mentions returns all mentions of name, oldest first.
func (t *Tracker) Mentions(name string) []Mention {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Mention, len(t.mentions[name]))
	copy(out, t.mentions[name])
	return out
}

// LastMention returns the most recently recorded mention of name, or
// false if there are none.
func (t *Tracker) LastMention(name string) (Mention, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ms := t.mentions[name]
	if len(ms) == 0 {
		return Mention{}, false
	}
	last := ms[0]
	for _, m := range ms[1:] {
		if m.Timestamp.After(last.Timestamp) {
			last = m
		}
	}
	return last, true
}

// LastMentionOfType returns the most recent mention of any known entity
// whose name equals entityType, matching the resolver's Tracker interface.
// The reference implementation's tracker-based resolution step never
// actually resolves by type (see internal/resolver) — this exists purely
// so Tracker satisfies that interface for callers that wire it in.
func (t *Tracker) LastMentionOfType(entityType string) (entityName, context string, ok bool) {
	m, ok := t.LastMention(entityType)
	if !ok {
		return "", "", false
	}
	return m.EntityName, m.Context, true
}

// Related returns up to k entities that most frequently co-occur with
// name in the same sessions, ranked by co-occurrence count.
func (t *Tracker) Related(name string, k int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	counts := make(map[string]int)
	for sessionID, set := range t.sessionEntities {
		if _, ok := set[name]; !ok {
			continue
		}
		_ = sessionID
		for other := range set {
			if other == name {
				continue
			}
			counts[other]++
		}
	}

	type kv struct {
		name  string
		count int
	}
	pairs := make([]kv, 0, len(counts))
	for n, c := range counts {
		pairs = append(pairs, kv{n, c})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].name < pairs[j].name
	})
	if k > 0 && len(pairs) > k {
		pairs = pairs[:k]
	}
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.name
	}
	return out
}

// persisted is the JSON-serialisable form written to
// code_index/entity_tracking.json (spec §6).
type persisted struct {
	Mentions        map[string][]Mention         `json:"mentions"`
	SessionEntities map[string][]string          `json:"session_entities"`
}

// Save persists the tracker state to path (code_index/entity_tracking.json).
func (t *Tracker) Save(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := persisted{Mentions: t.mentions, SessionEntities: make(map[string][]string, len(t.sessionEntities))}
	for sid, set := range t.sessionEntities {
		names := make([]string, 0, len(set))
		for n := range set {
			names = append(names, n)
		}
		sort.Strings(names)
		p.SessionEntities[sid] = names
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("entitytracker: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("entitytracker: mkdir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("entitytracker: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("entitytracker: rename: %w", err)
	}
	return nil
}

// Load restores tracker state from path.
func Load(path string) (*Tracker, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("entitytracker: read: %w", err)
	}

	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("entitytracker: unmarshal: %w", err)
	}

	t := New()
	if p.Mentions != nil {
		t.mentions = p.Mentions
	}
	for sid, names := range p.SessionEntities {
		set := make(map[string]struct{}, len(names))
		for _, n := range names {
			set[n] = struct{}{}
		}
		t.sessionEntities[sid] = set
	}
	return t, nil
}
