package mcp

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ValidateResponseInput defines the input schema for validate_response.
type ValidateResponseInput struct {
	CandidateText string   `json:"candidate_text" jsonschema:"the proposed answer text to validate"`
	EvidenceIDs   []int    `json:"evidence_ids" jsonschema:"chunk_ids of the evidence the candidate claims to be grounded in"`
}

// ValidateResponseOutput defines the output of validate_response (spec §6).
type ValidateResponseOutput struct {
	EvidenceFound     int     `json:"evidence_found"`
	TotalEvidence     int     `json:"total_evidence"`
	AvgSimilarity     float64 `json:"avg_similarity"`
	ValidationPassed  bool    `json:"validation_passed"`
}

// ValidateResponse checks a candidate answer against its claimed evidence
// chunks using word-set Jaccard similarity (spec §6): passes iff at least
// one evidence chunk resolves and the average similarity exceeds 0.1.
func (c *Core) ValidateResponse(ctx context.Context, in ValidateResponseInput) (*ValidateResponseOutput, error) {
	out := &ValidateResponseOutput{TotalEvidence: len(in.EvidenceIDs)}
	if len(in.EvidenceIDs) == 0 {
		return out, nil
	}

	candidateWords := wordSet(in.CandidateText)
	var total float64
	for _, id := range in.EvidenceIDs {
		ch, ok := c.chunkByID(id)
		if !ok {
			continue
		}
		out.EvidenceFound++
		total += jaccard(candidateWords, wordSet(ch.Text()))
	}
	if out.EvidenceFound > 0 {
		out.AvgSimilarity = total / float64(out.EvidenceFound)
	}
	out.ValidationPassed = out.EvidenceFound >= 1 && out.AvgSimilarity > 0.1
	return out, nil
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = struct{}{}
	}
	return set
}

// jaccard computes the Jaccard similarity |a ∩ b| / |a ∪ b| between two
// word sets, 0 if both are empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func (s *Server) mcpValidateResponseHandler(ctx context.Context, _ *mcp.CallToolRequest, input ValidateResponseInput) (
	*mcp.CallToolResult,
	*ValidateResponseOutput,
	error,
) {
	if s.core == nil {
		return nil, nil, newDispatchError(KindDisabled, "contextual retrieval is not configured")
	}
	out, err := s.core.ValidateResponse(ctx, input)
	if err != nil {
		return nil, nil, asDispatchError(err)
	}
	return nil, out, nil
}
