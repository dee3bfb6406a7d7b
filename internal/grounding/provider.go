// Package grounding implements the spec's component M: top-k evidence
// snippets from the world-model corpus, for anchoring an LLM's answer in
// the project's authoritative documents.
//
// Grounded on original_source/core/advanced_features/project_grounding.py's
// get_grounding_evidence.
package grounding

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Aman-CERP/contextengine/internal/embed"
	"github.com/Aman-CERP/contextengine/internal/vectorengine"
	"github.com/Aman-CERP/contextengine/internal/worldmodel"
)

// NoEvidenceMessage is returned verbatim when the corpus is empty or no
// section clears the relevance threshold.
const NoEvidenceMessage = "No sufficient project context evidence was found for this query."

const relevanceThreshold = 0.5

// Provider retrieves grounding evidence from a shared world-model corpus.
type Provider struct {
	auditor  *worldmodel.Auditor
	embedder embed.Embedder
	topK     int
}

// New returns a Provider backed by auditor's fact set (so corpus rebuilds
// via sync_world_model keep both L and M in sync).
func New(auditor *worldmodel.Auditor, embedder embed.Embedder, topK int) *Provider {
	if topK <= 0 {
		topK = 3
	}
	return &Provider{auditor: auditor, embedder: embedder, topK: topK}
}

// Evidence formats the top-k relevant truth-fact sections as a
// source-and-score-headed text block.
func (p *Provider) Evidence(ctx context.Context, query string) (string, error) {
	facts := p.auditor.Facts()
	if len(facts) == 0 {
		return NoEvidenceMessage, nil
	}

	q, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("grounding: embed query: %w", err)
	}

	type scored struct {
		source  string
		content string
		score   float64
	}
	var ranked []scored
	for _, f := range facts {
		score := vectorengine.Cosine(q, f.Vector)
		if score > relevanceThreshold {
			ranked = append(ranked, scored{source: f.Source, content: f.Content, score: score})
		}
	}
	if len(ranked) == 0 {
		// Vocabulary mismatch between the query and the fact corpus: fall
		// back to keyword matching before giving up (spec §4.M).
		if kw, kerr := keywordFallback(ctx, facts, query, p.topK); kerr == nil && kw != "" {
			return kw, nil
		}
		return NoEvidenceMessage, nil
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > p.topK {
		ranked = ranked[:p.topK]
	}

	var b strings.Builder
	for i, r := range ranked {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- Evidence from %s (score: %.2f) ---\n%s", r.source, r.score, r.content)
	}
	return b.String(), nil
}
