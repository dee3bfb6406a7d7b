// Package convo implements the spec's components E and F: an append-only,
// crash-recoverable per-session turn log and metadata sidecar (E), plus two
// in-memory policies — sliding window and summarising — over that log (F).
//
// This is a distinct concern from the teacher's internal/session package,
// which models which *codebase* the CLI has loaded; convo models
// conversational turns within a retrieval session.
package convo

import "time"

// TurnRecord is one interaction within a session (spec §3 TurnRecord).
type TurnRecord struct {
	TurnID    int          `json:"turn_id"`
	Timestamp time.Time    `json:"timestamp"`
	Query     string       `json:"query"`
	Response  string       `json:"response"`
	Metadata  TurnMetadata `json:"metadata"`
}

// TurnMetadata carries the entities and files associated with a turn.
type TurnMetadata struct {
	Entities []string `json:"entities,omitempty"`
	Files    []string `json:"files,omitempty"`
}

// SessionType is descriptive only, per spec §3.
type SessionType string

const (
	SessionTypeFeature  SessionType = "feature"
	SessionTypeBugfix   SessionType = "bugfix"
	SessionTypeReview   SessionType = "review"
	SessionTypeRefactor SessionType = "refactor"
	SessionTypeGeneral  SessionType = "general"
)

// PolicyKind selects which in-memory policy (F) governs a session.
type PolicyKind string

const (
	PolicySliding     PolicyKind = "sliding"
	PolicySummarising PolicyKind = "summarising"
)

// Summary is the shape returned by get_session_summary and by Policy.Summary.
type Summary struct {
	SessionID              string   `json:"session_id"`
	SessionType             string   `json:"session_type"`
	Policy                  string   `json:"policy"`
	CreatedAt               time.Time `json:"created_at"`
	TotalTurns              int      `json:"total_turns"`
	SummarizedTurns         int      `json:"summarized_turns,omitempty"`
	RecentTurns             int      `json:"recent_turns"`
	EntitiesMentionedCount  int      `json:"entities_mentioned_count"`
	Entities                []string `json:"entities"`
	HasSummary              bool     `json:"has_summary,omitempty"`
	LastSummarizedAt        *time.Time `json:"last_summarized_at,omitempty"`
}
