package convo

import (
	"fmt"
	"time"
)

// PolicyParams configures whichever policy a session uses; only the
// fields relevant to the chosen PolicyKind are read.
type PolicyParams struct {
	MaxTurns     int // sliding
	KeepLast     int // summarising
	ContextLimit int // summarising
	Summariser   Summariser
}

// Session composes a Store (E) with a Policy (F): every AddTurn durably
// appends to the log before updating the in-memory window, satisfying
// spec §4.E/F's invariant that the log is always a prefix of the
// in-memory session.
type Session struct {
	store     *Store
	policy    Policy
	sessionID string
}

// OpenSession loads (or creates) a session: it reads existing metadata and
// replays the full turn log through a freshly constructed policy, so the
// in-memory window is rebuilt exactly as if it had never been unloaded —
// this is the crash-recovery path spec §4.E describes ("loading all turns
// in order").
func OpenSession(store *Store, sessionID string, kind PolicyKind, sessionType string, params PolicyParams) (*Session, error) {
	meta, err := store.LoadMetadata(sessionID)
	if err != nil {
		return nil, err
	}
	if meta.SessionType == "" {
		meta.SessionType = sessionType
	}
	meta.Policy = string(kind)
	if err := store.SaveMetadata(meta); err != nil {
		return nil, err
	}

	var policy Policy
	switch kind {
	case PolicySummarising:
		policy = NewSummarisingPolicy(sessionID, params.KeepLast, params.ContextLimit, meta.SessionType, params.Summariser)
	default:
		policy = NewSlidingPolicy(sessionID, params.MaxTurns, meta.SessionType)
	}

	turns, err := store.Load(sessionID)
	if err != nil {
		return nil, err
	}
	for _, t := range turns {
		policy.AddTurn(t)
	}

	return &Session{store: store, policy: policy, sessionID: sessionID}, nil
}

// AddTurn durably appends a new turn, then folds it into the in-memory
// policy window.
func (s *Session) AddTurn(query, response string, meta TurnMetadata) (TurnRecord, error) {
	m, err := s.store.LoadMetadata(s.sessionID)
	if err != nil {
		return TurnRecord{}, err
	}
	turn := TurnRecord{
		TurnID:    m.TurnCount + 1,
		Timestamp: time.Now(),
		Query:     query,
		Response:  response,
		Metadata:  meta,
	}
	if err := s.store.Append(s.sessionID, turn); err != nil {
		return TurnRecord{}, fmt.Errorf("convo: add turn: %w", err)
	}
	s.policy.AddTurn(turn)
	return turn, nil
}

// Recent, ContextWindow, Search, EntitiesMentioned, and Summary delegate
// to the underlying policy (F).
func (s *Session) Recent(n int) []TurnRecord        { return s.policy.Recent(n) }
func (s *Session) ContextWindow() string             { return s.policy.ContextWindow() }
func (s *Session) Search(keyword string) []TurnRecord { return s.policy.Search(keyword) }
func (s *Session) EntitiesMentioned() []string        { return s.policy.EntitiesMentioned() }
func (s *Session) Summary() Summary                   { return s.policy.Summary() }
func (s *Session) ID() string                         { return s.sessionID }
