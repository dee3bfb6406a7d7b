package convo

import (
	"fmt"
	"strings"
	"sync"
)

// SlidingPolicy keeps the last maxTurns turns verbatim; the oldest turn is
// dropped once the limit is exceeded, with no memory of what was dropped.
//
// Grounded on original_source/core/memory/trimming_session.py.
type SlidingPolicy struct {
	mu          sync.Mutex
	sessionID   string
	sessionType string
	maxTurns    int
	turns       []TurnRecord
	entities    []string
}

// NewSlidingPolicy returns a policy keeping at most maxTurns turns.
func NewSlidingPolicy(sessionID string, maxTurns int, sessionType string) *SlidingPolicy {
	if maxTurns <= 0 {
		maxTurns = 8
	}
	return &SlidingPolicy{sessionID: sessionID, sessionType: sessionType, maxTurns: maxTurns}
}

func (p *SlidingPolicy) Kind() PolicyKind { return PolicySliding }

// AddTurn appends turn and drops the oldest turn if the window overflows.
func (p *SlidingPolicy) AddTurn(turn TurnRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turns = append(p.turns, turn)
	p.entities = appendEntities(p.entities, turn.Metadata.Entities)
	if len(p.turns) > p.maxTurns {
		p.turns = p.turns[1:]
		p.entities = nil
		for _, t := range p.turns {
			p.entities = appendEntities(p.entities, t.Metadata.Entities)
		}
	}
}

// Recent returns the n most recent turns, or all of them if n <= 0.
func (p *SlidingPolicy) Recent(n int) []TurnRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n <= 0 || n >= len(p.turns) {
		out := make([]TurnRecord, len(p.turns))
		copy(out, p.turns)
		return out
	}
	out := make([]TurnRecord, n)
	copy(out, p.turns[len(p.turns)-n:])
	return out
}

// ContextWindow formats the in-window turns for inclusion in a retrieval
// call, truncating each response to 200 chars.
func (p *SlidingPolicy) ContextWindow() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.turns) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s (Type: %s)\n", p.sessionID, p.sessionType)
	fmt.Fprintf(&b, "Recent conversation (%d turns):\n", len(p.turns))
	for _, t := range p.turns {
		fmt.Fprintf(&b, "\nTurn %d:\nUser: %s\nAssistant: %s\n", t.TurnID, t.Query, truncate(t.Response, 200))
	}
	return b.String()
}

// Search returns every in-window turn whose query or response contains
// keyword (case-insensitive).
func (p *SlidingPolicy) Search(keyword string) []TurnRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return searchTurns(p.turns, keyword)
}

// EntitiesMentioned returns every entity name seen across in-window turns.
func (p *SlidingPolicy) EntitiesMentioned() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.entities))
	copy(out, p.entities)
	return out
}

// Summary reports the sliding window's current state.
func (p *SlidingPolicy) Summary() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	entities := p.entities
	if len(entities) > 10 {
		entities = entities[:10]
	}
	return Summary{
		SessionID:             p.sessionID,
		SessionType:            p.sessionType,
		Policy:                 string(PolicySliding),
		TotalTurns:             len(p.turns),
		RecentTurns:            len(p.turns),
		EntitiesMentionedCount: len(p.entities),
		Entities:               entities,
	}
}
