// Package worldmodel implements the spec's component L: a JEPA-style
// auditor that embeds a "project truth" corpus and scores a proposal's
// divergence from the top anchors relevant to a query.
//
// Grounded 1:1 on original_source/core/advanced_features/factual_audit_jepa.py.
package worldmodel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/Aman-CERP/contextengine/internal/embed"
	"github.com/Aman-CERP/contextengine/internal/vectorengine"
)

// Status is the calibrated trust level of an audited proposal.
type Status string

const (
	StatusTrusted              Status = "trusted"
	StatusSuspicious           Status = "suspicious"
	StatusHallucinationDetected Status = "hallucination_detected"
	StatusUnverified           Status = "unverified"
)

// Config holds the load-bearing magic numbers from spec §9's Open
// Questions, now exposed as configuration with the spec's literal values
// as defaults.
type Config struct {
	ContextDirectory      string
	AnchorThreshold        float64 // cosine(q, fact) must exceed this to become an anchor
	ContradictionThreshold float64 // cosine(p, anchor) below this is a contradiction
	ContradictionPenalty   float64 // final_score *= (1 - penalty*len(contradictions))
	MaxAnchors             int
	FactPrefixChars        int // bound on the text embedded per fact
}

// DefaultConfig mirrors the reference implementation's hardcoded values.
func DefaultConfig(contextDir string) Config {
	return Config{
		ContextDirectory:       contextDir,
		AnchorThreshold:        0.5,
		ContradictionThreshold: 0.4,
		ContradictionPenalty:   0.2,
		MaxAnchors:             3,
		FactPrefixChars:        1000,
	}
}

// Fact is one world-model anchor: a header-delimited section of a
// project-context document, embedded and held entirely in memory.
type Fact struct {
	Source  string
	Content string
	Vector  []float32
}

// Result is the audit output for one (query, proposal) pair.
type Result struct {
	Score          float64  `json:"score"`
	Alignment      float64  `json:"alignment"`
	Status         Status   `json:"status"`
	Anchors        []string `json:"anchors"`
	Contradictions []string `json:"contradictions"`
	Message        string   `json:"message,omitempty"`
}

var headerPattern = regexp.MustCompile(`(?m)^#+\s+`)

// Auditor builds and scores against a world-model truth corpus.
type Auditor struct {
	cfg      Config
	embedder embed.Embedder

	mu    sync.RWMutex
	facts []Fact
}

// New returns an Auditor; call Rebuild to populate its fact set.
func New(cfg Config, embedder embed.Embedder) *Auditor {
	return &Auditor{cfg: cfg, embedder: embedder}
}

// Rebuild rescans cfg.ContextDirectory, splitting each .md/.txt file into
// header-delimited sections and embedding each (bounded to FactPrefixChars).
func (a *Auditor) Rebuild(ctx context.Context) error {
	facts, err := a.buildWorldModel(ctx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.facts = facts
	a.mu.Unlock()
	return nil
}

func (a *Auditor) buildWorldModel(ctx context.Context) ([]Fact, error) {
	var facts []Fact
	dir := a.cfg.ContextDirectory
	if dir == "" {
		return facts, nil
	}

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // tolerate missing/unreadable entries, matching the reference's try/except
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".txt" {
			return nil
		}
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil
		}
		sections := splitSections(string(data))
		for _, section := range sections {
			prefix := section
			if len(prefix) > a.cfg.FactPrefixChars {
				prefix = prefix[:a.cfg.FactPrefixChars]
			}
			vec, eerr := a.embedder.Embed(ctx, prefix)
			if eerr != nil {
				return nil
			}
			facts = append(facts, Fact{Source: filepath.Base(path), Content: section, Vector: vec})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("worldmodel: rebuild: %w", err)
	}
	return facts, nil
}

// splitSections splits document text on markdown-style headers (# ...),
// matching the reference implementation's `\n#+\s+` regex split.
func splitSections(text string) []string {
	locs := headerPattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}
	var sections []string
	start := 0
	for _, loc := range locs {
		if loc[0] > start {
			if s := strings.TrimSpace(text[start:loc[0]]); s != "" {
				sections = append(sections, s)
			}
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sections = append(sections, s)
	}
	return sections
}

// Audit scores a proposal's alignment with the top anchors relevant to
// query, per spec §4.L steps 1-7.
func (a *Auditor) Audit(ctx context.Context, query, proposal string) (Result, error) {
	a.mu.RLock()
	facts := a.facts
	a.mu.RUnlock()

	q, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("worldmodel: embed query: %w", err)
	}
	p, err := a.embedder.Embed(ctx, proposal)
	if err != nil {
		return Result{}, fmt.Errorf("worldmodel: embed proposal: %w", err)
	}

	type scored struct {
		fact Fact
		cos  float64
	}
	var ranked []scored
	for _, f := range facts {
		c := vectorengine.Cosine(q, f.Vector)
		if c > a.cfg.AnchorThreshold {
			ranked = append(ranked, scored{fact: f, cos: c})
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].cos > ranked[j].cos })
	if len(ranked) > a.cfg.MaxAnchors {
		ranked = ranked[:a.cfg.MaxAnchors]
	}

	if len(ranked) == 0 {
		return Result{
			Score:          1.0,
			Status:         StatusUnverified,
			Anchors:        []string{},
			Contradictions: []string{},
			Message:        "No relevant anchors found in world model; proposal unverified against project truth.",
		}, nil
	}

	ideal := weightedAverage(ranked)
	alignment := vectorengine.Cosine(p, ideal)

	var anchors []string
	var contradictions []string
	for _, r := range ranked {
		anchors = append(anchors, r.fact.Source)
		if vectorengine.Cosine(p, r.fact.Vector) < a.cfg.ContradictionThreshold {
			contradictions = append(contradictions, fmt.Sprintf("Proposal contradicts or ignores rules in '%s'", r.fact.Source))
		}
	}
	if contradictions == nil {
		contradictions = []string{}
	}

	finalScore := alignment * (1.0 - a.cfg.ContradictionPenalty*float64(len(contradictions)))
	if finalScore < 0 {
		finalScore = 0
	}
	if finalScore > 1 {
		finalScore = 1
	}

	var status Status
	switch {
	case finalScore < 0.4:
		status = StatusHallucinationDetected
	case finalScore < 0.5 || len(contradictions) > 0:
		status = StatusSuspicious
	default:
		status = StatusTrusted
	}

	return Result{
		Score:          finalScore,
		Alignment:      alignment,
		Status:         status,
		Anchors:        anchors,
		Contradictions: contradictions,
	}, nil
}

// weightedAverage computes the anchor-cosine-weighted average vector,
// i.e. the "ideal latent state" of spec §4.L step 3.
func weightedAverage(ranked []struct {
	fact Fact
	cos  float64
}) []float32 {
	if len(ranked) == 0 {
		return nil
	}
	dim := len(ranked[0].fact.Vector)
	sum := make([]float64, dim)
	var weightSum float64
	for _, r := range ranked {
		weightSum += r.cos
		for i, v := range r.fact.Vector {
			sum[i] += float64(v) * r.cos
		}
	}
	out := make([]float32, dim)
	if weightSum == 0 {
		return out
	}
	for i := range sum {
		out[i] = float32(sum[i] / weightSum)
	}
	return out
}

// Facts returns the current in-memory fact set (for the grounding
// provider, component M, which shares the same corpus).
func (a *Auditor) Facts() []Fact {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Fact, len(a.facts))
	copy(out, a.facts)
	return out
}
