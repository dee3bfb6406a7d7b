package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/contextengine/internal/worldmodel"
)

// AuditJEPAInput defines the input schema for audit_jepa.
type AuditJEPAInput struct {
	Query    string `json:"query" jsonschema:"the question the proposal is meant to answer"`
	Proposal string `json:"proposal" jsonschema:"the candidate answer to audit against known project facts"`
}

// AuditJEPA checks proposal against the truth-fact corpus (L), the
// handler for audit_jepa.
func (c *Core) AuditJEPA(ctx context.Context, in AuditJEPAInput) (*worldmodel.Result, error) {
	if c.auditor == nil {
		return nil, errDisabled
	}
	if in.Query == "" || in.Proposal == "" {
		return nil, newDispatchError(KindInvalidRequest, "query and proposal are both required")
	}
	result, err := c.auditor.Audit(ctx, in.Query, in.Proposal)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GroundProjectContextInput defines the input schema for
// ground_project_context.
type GroundProjectContextInput struct {
	Query string `json:"query" jsonschema:"the question to ground in project truth facts"`
}

// GroundProjectContextOutput defines the output of ground_project_context.
type GroundProjectContextOutput struct {
	Evidence string `json:"evidence"`
}

// GroundProjectContext returns textual evidence from the truth-fact corpus
// (M), the handler for ground_project_context.
func (c *Core) GroundProjectContext(ctx context.Context, in GroundProjectContextInput) (*GroundProjectContextOutput, error) {
	if c.grounder == nil {
		return nil, errDisabled
	}
	if in.Query == "" {
		return nil, newDispatchError(KindInvalidRequest, "query is required")
	}
	evidence, err := c.grounder.Evidence(ctx, in.Query)
	if err != nil {
		return nil, err
	}
	return &GroundProjectContextOutput{Evidence: evidence}, nil
}

// SyncWorldModelOutput defines the output of sync_world_model.
type SyncWorldModelOutput struct {
	FactsLoaded int `json:"facts_loaded"`
}

// SyncWorldModel rebuilds the truth-fact corpus from disk, the handler for
// sync_world_model.
func (c *Core) SyncWorldModel(ctx context.Context) (*SyncWorldModelOutput, error) {
	if err := c.rebuildWorldModel(ctx); err != nil {
		return nil, err
	}
	return &SyncWorldModelOutput{FactsLoaded: len(c.auditor.Facts())}, nil
}

func (s *Server) mcpAuditJEPAHandler(ctx context.Context, _ *mcp.CallToolRequest, input AuditJEPAInput) (
	*mcp.CallToolResult, *worldmodel.Result, error,
) {
	if s.core == nil {
		return nil, nil, newDispatchError(KindDisabled, "world-model auditing is not configured")
	}
	out, err := s.core.AuditJEPA(ctx, input)
	if err != nil {
		return nil, nil, asDispatchError(err)
	}
	return nil, out, nil
}

func (s *Server) mcpGroundProjectContextHandler(ctx context.Context, _ *mcp.CallToolRequest, input GroundProjectContextInput) (
	*mcp.CallToolResult, *GroundProjectContextOutput, error,
) {
	if s.core == nil {
		return nil, nil, newDispatchError(KindDisabled, "grounding is not configured")
	}
	out, err := s.core.GroundProjectContext(ctx, input)
	if err != nil {
		return nil, nil, asDispatchError(err)
	}
	return nil, out, nil
}

func (s *Server) mcpSyncWorldModelHandler(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (
	*mcp.CallToolResult, *SyncWorldModelOutput, error,
) {
	if s.core == nil {
		return nil, nil, newDispatchError(KindDisabled, "world-model auditing is not configured")
	}
	out, err := s.core.SyncWorldModel(ctx)
	if err != nil {
		return nil, nil, asDispatchError(err)
	}
	return nil, out, nil
}
