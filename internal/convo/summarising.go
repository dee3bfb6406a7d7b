package convo

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Summariser compresses a run of turns into a digest string. Pluggable per
// spec §4.F ("the summariser is pluggable, a function parameter").
type Summariser func(turns []TurnRecord, sessionType string) string

// SummarisingPolicy keeps the last keepLast turns verbatim; once the total
// exceeds contextLimit, the turns older than keepLast are compressed into
// an append-only summary string via summariser.
//
// Grounded on original_source/core/memory/summarizing_session.py.
type SummarisingPolicy struct {
	mu          sync.Mutex
	sessionID   string
	sessionType string
	keepLast    int
	contextLimit int
	summariser  Summariser

	recentTurns      []TurnRecord
	summary          string
	summaryTurnCount int
	lastSummarisedAt *time.Time
	entities         []string
}

// NewSummarisingPolicy returns a policy with the given window parameters.
// A nil summariser falls back to DefaultSummariser.
func NewSummarisingPolicy(sessionID string, keepLast, contextLimit int, sessionType string, summariser Summariser) *SummarisingPolicy {
	if keepLast <= 0 {
		keepLast = 3
	}
	if contextLimit <= 0 {
		contextLimit = 10
	}
	if summariser == nil {
		summariser = DefaultSummariser
	}
	return &SummarisingPolicy{
		sessionID: sessionID, sessionType: sessionType,
		keepLast: keepLast, contextLimit: contextLimit, summariser: summariser,
	}
}

func (p *SummarisingPolicy) Kind() PolicyKind { return PolicySummarising }

// AddTurn appends turn to the in-window list and triggers summarisation
// once the window exceeds contextLimit.
func (p *SummarisingPolicy) AddTurn(turn TurnRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recentTurns = append(p.recentTurns, turn)
	p.entities = appendEntities(p.entities, turn.Metadata.Entities)
	if len(p.recentTurns) > p.contextLimit {
		p.triggerSummarisation()
	}
}

// triggerSummarisation compresses every turn older than the keepLast most
// recent into the running summary. Caller must hold p.mu.
func (p *SummarisingPolicy) triggerSummarisation() {
	if len(p.recentTurns) <= p.keepLast {
		return
	}
	cut := len(p.recentTurns) - p.keepLast
	toSummarise := p.recentTurns[:cut]
	toKeep := p.recentTurns[cut:]

	part := p.summariser(toSummarise, p.sessionType)
	if p.summary != "" {
		p.summary = p.summary + "\n\n--- Additional Context ---\n" + part
	} else {
		p.summary = part
	}
	p.summaryTurnCount += len(toSummarise)
	p.recentTurns = toKeep
	now := time.Now()
	p.lastSummarisedAt = &now
}

// ForceSummarise manually triggers summarisation regardless of contextLimit.
func (p *SummarisingPolicy) ForceSummarise() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.triggerSummarisation()
}

// Recent returns the n most recently kept verbatim turns (never reaches
// into the summary), or all of them if n <= 0.
func (p *SummarisingPolicy) Recent(n int) []TurnRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n <= 0 || n >= len(p.recentTurns) {
		out := make([]TurnRecord, len(p.recentTurns))
		copy(out, p.recentTurns)
		return out
	}
	out := make([]TurnRecord, n)
	copy(out, p.recentTurns[len(p.recentTurns)-n:])
	return out
}

// ContextWindow formats the summary (if any) followed by the verbatim
// recent turns.
func (p *SummarisingPolicy) ContextWindow() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s (Type: %s)", p.sessionID, p.sessionType)
	if p.summary != "" {
		b.WriteString("\n\n=== Previous Context (Summarized) ===\n")
		b.WriteString(p.summary)
		fmt.Fprintf(&b, "\n(%d turns summarized)", p.summaryTurnCount)
	}
	if len(p.recentTurns) > 0 {
		b.WriteString("\n\n=== Recent Conversation ===")
		for _, t := range p.recentTurns {
			fmt.Fprintf(&b, "\n\nTurn %d:\nUser: %s\nAssistant: %s", t.TurnID, t.Query, truncate(t.Response, 300))
		}
	}
	return b.String()
}

// Search checks the verbatim recent turns only; InSummary checks the
// compressed summary text.
func (p *SummarisingPolicy) Search(keyword string) []TurnRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return searchTurns(p.recentTurns, keyword)
}

// InSummary reports whether keyword appears in the compressed summary text.
func (p *SummarisingPolicy) InSummary(keyword string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.summary == "" {
		return false
	}
	return strings.Contains(strings.ToLower(p.summary), strings.ToLower(keyword))
}

// EntitiesMentioned returns every entity name seen across all turns ever
// added, summarised or not.
func (p *SummarisingPolicy) EntitiesMentioned() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.entities))
	copy(out, p.entities)
	return out
}

func (p *SummarisingPolicy) Summary() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	entities := p.entities
	if len(entities) > 10 {
		entities = entities[:10]
	}
	return Summary{
		SessionID:              p.sessionID,
		SessionType:            p.sessionType,
		Policy:                 string(PolicySummarising),
		TotalTurns:             p.summaryTurnCount + len(p.recentTurns),
		SummarizedTurns:        p.summaryTurnCount,
		RecentTurns:            len(p.recentTurns),
		EntitiesMentionedCount: len(p.entities),
		Entities:               entities,
		HasSummary:             p.summary != "",
		LastSummarizedAt:       p.lastSummarisedAt,
	}
}

// DefaultSummariser is the rule-based digest described in spec §4.F:
// turn range, session type, time range, sorted entities (first 10), sorted
// files (first 5), and the first 5 queries truncated to 100 chars.
//
// Grounded 1:1 on summarizing_session.py's _default_summarizer.
func DefaultSummariser(turns []TurnRecord, sessionType string) string {
	if len(turns) == 0 {
		return ""
	}

	entitySet := make(map[string]struct{})
	fileSet := make(map[string]struct{})
	for _, t := range turns {
		for _, e := range t.Metadata.Entities {
			entitySet[e] = struct{}{}
		}
		for _, f := range t.Metadata.Files {
			fileSet[f] = struct{}{}
		}
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("Summary of %d turns (Turn %d to %d):", len(turns), turns[0].TurnID, turns[len(turns)-1].TurnID))
	lines = append(lines, fmt.Sprintf("Session Type: %s", sessionType))
	lines = append(lines, fmt.Sprintf("Time Range: %s to %s", turns[0].Timestamp.Format(time.RFC3339), turns[len(turns)-1].Timestamp.Format(time.RFC3339)))

	if len(entitySet) > 0 {
		entities := sortedUnique(entitySet)
		if len(entities) > 10 {
			entities = entities[:10]
		}
		lines = append(lines, fmt.Sprintf("Entities Discussed: %s", strings.Join(entities, ", ")))
	}
	if len(fileSet) > 0 {
		files := sortedUnique(fileSet)
		if len(files) > 5 {
			files = files[:5]
		}
		lines = append(lines, fmt.Sprintf("Files Modified: %s", strings.Join(files, ", ")))
	}

	lines = append(lines, "", "Key Activities:")
	queries := make([]string, 0, len(turns))
	for _, t := range turns {
		queries = append(queries, t.Query)
	}
	limit := len(queries)
	if limit > 5 {
		limit = 5
	}
	for i := 0; i < limit; i++ {
		lines = append(lines, fmt.Sprintf("  %d. %s...", i+1, truncateHard(queries[i], 100)))
	}

	return strings.Join(lines, "\n")
}

// truncateHard truncates without an ellipsis check since the reference
// implementation always appends "..." regardless of original length.
func truncateHard(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
