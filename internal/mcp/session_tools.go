package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/contextengine/internal/convo"
)

// CreateSessionInput defines the input schema for create_session.
type CreateSessionInput struct {
	SessionID   string `json:"session_id" jsonschema:"unique identifier for the new session"`
	SessionType string `json:"session_type,omitempty" jsonschema:"one of: feature, bugfix, review, refactor, general"`
	Strategy    string `json:"strategy,omitempty" jsonschema:"policy kind: sliding or summarising, default sliding"`
}

// CreateSessionOutput defines the output of create_session.
type CreateSessionOutput struct {
	SessionID string `json:"session_id"`
	Policy    string `json:"policy"`
	Created   bool   `json:"created"`
}

// CreateSession creates (or reopens, idempotently) a session under the
// requested policy.
func (c *Core) CreateSession(ctx context.Context, in CreateSessionInput) (*CreateSessionOutput, error) {
	if in.SessionID == "" {
		return nil, newDispatchError(KindInvalidRequest, "session_id is required")
	}
	kind := convo.PolicyKind(in.Strategy)
	if kind != convo.PolicySummarising {
		kind = convo.PolicySliding
	}
	sessionType := in.SessionType
	if sessionType == "" {
		sessionType = string(convo.SessionTypeGeneral)
	}
	existed, err := c.sessionExists(in.SessionID)
	if err != nil {
		return nil, err
	}
	sess, err := convo.OpenSession(c.sessions, in.SessionID, kind, sessionType, convo.PolicyParams{
		MaxTurns:     8,
		KeepLast:     3,
		ContextLimit: 10,
	})
	if err != nil {
		return nil, err
	}
	c.sessionLRU.Add(in.SessionID, sess)
	return &CreateSessionOutput{SessionID: in.SessionID, Policy: string(kind), Created: !existed}, nil
}

// ListSessionsOutput defines the output of list_sessions.
type ListSessionsOutput struct {
	Sessions []string `json:"sessions"`
}

// ListSessions returns every known session_id.
func (c *Core) ListSessions(ctx context.Context) (*ListSessionsOutput, error) {
	ids, err := c.sessions.List()
	if err != nil {
		return nil, err
	}
	return &ListSessionsOutput{Sessions: ids}, nil
}

// GetSessionSummaryInput defines the input schema for get_session_summary.
type GetSessionSummaryInput struct {
	SessionID string `json:"session_id" jsonschema:"the session to summarise"`
}

// GetSessionSummary returns the policy's Summary() for a session.
func (c *Core) GetSessionSummary(ctx context.Context, in GetSessionSummaryInput) (*convo.Summary, error) {
	exists, err := c.sessionExists(in.SessionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, newDispatchError(KindNotFound, "unknown session_id %q", in.SessionID)
	}
	sess, err := c.openSession(in.SessionID)
	if err != nil {
		return nil, err
	}
	summary := sess.Summary()
	return &summary, nil
}

// DeleteSessionInput defines the input schema for delete_session.
type DeleteSessionInput struct {
	SessionID string `json:"session_id" jsonschema:"the session to delete"`
}

// DeleteSessionOutput defines the output of delete_session.
type DeleteSessionOutput struct {
	Deleted bool `json:"deleted"`
}

// DeleteSession removes a session's durable log/metadata and evicts any
// resident handle.
func (c *Core) DeleteSession(ctx context.Context, in DeleteSessionInput) (*DeleteSessionOutput, error) {
	exists, err := c.sessionExists(in.SessionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, newDispatchError(KindNotFound, "unknown session_id %q", in.SessionID)
	}
	if err := c.sessions.Delete(in.SessionID); err != nil {
		return nil, err
	}
	c.sessionLRU.Remove(in.SessionID)
	return &DeleteSessionOutput{Deleted: true}, nil
}

func (s *Server) mcpCreateSessionHandler(ctx context.Context, _ *mcp.CallToolRequest, input CreateSessionInput) (
	*mcp.CallToolResult, *CreateSessionOutput, error,
) {
	if s.core == nil {
		return nil, nil, newDispatchError(KindDisabled, "sessions are not configured")
	}
	out, err := s.core.CreateSession(ctx, input)
	if err != nil {
		return nil, nil, asDispatchError(err)
	}
	return nil, out, nil
}

func (s *Server) mcpListSessionsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (
	*mcp.CallToolResult, *ListSessionsOutput, error,
) {
	if s.core == nil {
		return nil, nil, newDispatchError(KindDisabled, "sessions are not configured")
	}
	out, err := s.core.ListSessions(ctx)
	if err != nil {
		return nil, nil, asDispatchError(err)
	}
	return nil, out, nil
}

func (s *Server) mcpGetSessionSummaryHandler(ctx context.Context, _ *mcp.CallToolRequest, input GetSessionSummaryInput) (
	*mcp.CallToolResult, *convo.Summary, error,
) {
	if s.core == nil {
		return nil, nil, newDispatchError(KindDisabled, "sessions are not configured")
	}
	out, err := s.core.GetSessionSummary(ctx, input)
	if err != nil {
		return nil, nil, asDispatchError(err)
	}
	return nil, out, nil
}

func (s *Server) mcpDeleteSessionHandler(ctx context.Context, _ *mcp.CallToolRequest, input DeleteSessionInput) (
	*mcp.CallToolResult, *DeleteSessionOutput, error,
) {
	if s.core == nil {
		return nil, nil, newDispatchError(KindDisabled, "sessions are not configured")
	}
	out, err := s.core.DeleteSession(ctx, input)
	if err != nil {
		return nil, nil, asDispatchError(err)
	}
	return nil, out, nil
}
