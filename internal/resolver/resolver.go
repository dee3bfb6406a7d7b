// Package resolver implements the spec's component J: combining the
// reference detector (I), session history, the entity tracker (H), and the
// entity index (G) to rewrite a query's referential phrases into concrete
// entity names.
//
// Grounded 1:1 on
// original_source/core/resolution/contextual_resolver.py, including its
// step 3 (tracker-based resolution) which the reference implementation
// leaves stubbed.
package resolver

import (
	"sort"
	"strings"

	"github.com/Aman-CERP/contextengine/internal/reference"
)

// HistoryTurn is the minimal slice of a conversational turn the resolver
// needs: enough to search for an entity mention whose surrounding text
// hints at the reference's type.
type HistoryTurn struct {
	TurnID   int
	Query    string
	Response string
	Entities []string
}

// Tracker is the subset of entitytracker.Tracker the resolver calls.
// Step 3 of the cascade never actually calls this — see Resolve — kept
// as a parameter for interface symmetry with the reference implementation
// and so a future, non-stubbed implementation has somewhere to hang.
type Tracker interface {
	LastMentionOfType(entityType string) (name, context string, ok bool)
}

// CodeIndex is the subset of entityindex.Index the resolver needs for
// step 4 (unambiguous codebase-wide resolution).
type CodeIndex interface {
	SoleEntityOfType(entityType string) (name string, ok bool)
}

// ResolvedReference records how one detected reference was rewritten (or
// left unresolved).
type ResolvedReference struct {
	OriginalText    string
	ResolvedEntity  string
	Confidence      float64
	Source          string // "session_history", "code_index", or "" if unresolved
	Context         string
}

// typeKeywords maps a head-noun category to the substring keywords that
// identify a matching mention's surrounding context, per the reference
// implementation's type_keywords dict.
var typeKeywords = map[string][]string{
	"function": {"function", "método", "def"},
	"method":   {"function", "método", "def"},
	"class":    {"class", "clase"},
	"module":   {"module", "módulo"},
	"variable": {"variable"},
	"bug":      {"bug", "error", "issue"},
	"error":    {"bug", "error", "issue"},
	"issue":    {"bug", "error", "issue"},
	"feature":  {"feature"},
	"file":     {"file", "archivo", ".py", ".js", ".go"},
}

// codeIndexKey maps a head-noun category to the entityindex Kind key used
// by step 4 ("functions"/"classes" in the reference implementation).
var codeIndexKey = map[string]string{
	"function": "function",
	"method":   "method",
	"class":    "class",
	"interface": "interface",
	"type":     "type",
}

// Resolver rewrites referential phrases using session history, the entity
// tracker, and the entity index, in that cascading order.
type Resolver struct {
	detector *reference.Detector
}

// New returns a Resolver using reference.New() as its detector.
func New() *Resolver {
	return &Resolver{detector: reference.New()}
}

// Resolve implements spec §4.J. history is ordered oldest-first; the
// resolver searches it most-recent-first per step 2. tracker/index may be
// nil to skip those steps.
func (r *Resolver) Resolve(query string, history []HistoryTurn, tracker Tracker, index CodeIndex) (string, []ResolvedReference) {
	refs := r.detector.Detect(query)
	if len(refs) == 0 {
		return query, nil
	}

	resolved := make([]ResolvedReference, 0, len(refs))
	for _, ref := range refs {
		headNoun := strings.ToLower(extractHeadNoun(ref.Text))
		rr := r.resolveOne(ref, headNoun, history, tracker, index)
		resolved = append(resolved, rr)
	}

	rewritten := rewriteQuery(query, refs, resolved)
	return rewritten, resolved
}

func (r *Resolver) resolveOne(ref reference.Reference, headNoun string, history []HistoryTurn, tracker Tracker, index CodeIndex) ResolvedReference {
	base := ResolvedReference{OriginalText: ref.Text}

	// Step 2: session history, only for demonstrative/previous types.
	if ref.Type == reference.TypeDemonstrative || ref.Type == reference.TypePrevious {
		if name, ctx, ok := resolveFromHistory(history, headNoun); ok {
			base.ResolvedEntity = name
			base.Confidence = ref.Confidence * 0.9
			base.Source = "session_history"
			base.Context = ctx
			return base
		}
	}

	// Step 3: tracker-based resolution. Stubbed in the reference
	// implementation (_resolve_from_tracker always returns None) — kept
	// as a genuine no-op here rather than invented behaviour.
	_ = tracker

	// Step 4: code index, only when exactly one entity of the type exists.
	if index != nil {
		if ikey, ok := codeIndexKey[headNoun]; ok {
			if name, ok := index.SoleEntityOfType(ikey); ok {
				base.ResolvedEntity = name
				base.Confidence = ref.Confidence * 0.5
				base.Source = "code_index"
				return base
			}
		}
	}

	// Step 5: unresolved.
	return base
}

// resolveFromHistory searches history most-recent-first for a turn whose
// entities (or inferred candidate entities) have surrounding context
// matching headNoun's type keywords.
func resolveFromHistory(history []HistoryTurn, headNoun string) (name, context string, ok bool) {
	keywords := typeKeywords[headNoun]

	type candidate struct {
		turnID int
		name   string
		ctx    string
	}
	var candidates []candidate
	for _, turn := range history {
		combined := turn.Query + " " + turn.Response
		for _, entity := range extractCandidateEntities(turn) {
			idxPos := strings.Index(strings.ToLower(combined), strings.ToLower(entity))
			ctx := combined
			if idxPos >= 0 {
				start := idxPos - 40
				if start < 0 {
					start = 0
				}
				end := idxPos + len(entity) + 40
				if end > len(combined) {
					end = len(combined)
				}
				ctx = combined[start:end]
			}
			candidates = append(candidates, candidate{turnID: turn.TurnID, name: entity, ctx: ctx})
		}
	}
	if len(candidates) == 0 {
		return "", "", false
	}

	var matched []candidate
	if len(keywords) > 0 {
		for _, c := range candidates {
			lowerCtx := strings.ToLower(c.ctx)
			for _, kw := range keywords {
				if strings.Contains(lowerCtx, kw) {
					matched = append(matched, c)
					break
				}
			}
		}
	}
	if len(matched) == 0 {
		// Fall back to all candidates when none match the type keywords,
		// mirroring the reference implementation.
		matched = candidates
	}

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].turnID > matched[j].turnID })
	return matched[0].name, matched[0].ctx, true
}

// extractCandidateEntities returns turn.Entities if present, else falls
// back to a simple heuristic: words containing an underscore are treated
// as candidate identifiers (the reference implementation's heuristic for
// turns whose metadata carries no explicit entity list).
func extractCandidateEntities(turn HistoryTurn) []string {
	if len(turn.Entities) > 0 {
		return turn.Entities
	}
	var out []string
	for _, word := range strings.Fields(turn.Query + " " + turn.Response) {
		trimmed := strings.Trim(word, ".,!?()\"'")
		if strings.Contains(trimmed, "_") && hasAlnum(trimmed) {
			out = append(out, trimmed)
		}
	}
	return out
}

func hasAlnum(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return true
		}
	}
	return false
}

// extractHeadNoun returns the last word of a detected reference's text
// (its head noun), lower-cased.
func extractHeadNoun(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// rewriteQuery replaces each resolved reference's literal span exactly
// once, left-to-right, by byte offset — a deliberate correctness
// improvement over the reference implementation's naive global
// string-replace (see DESIGN.md), satisfying spec §8 invariant 4.
func rewriteQuery(query string, refs []reference.Reference, resolved []ResolvedReference) string {
	type edit struct {
		start, end int
		replacement string
	}
	edits := make([]edit, 0, len(refs))
	for i, ref := range refs {
		if resolved[i].ResolvedEntity == "" {
			continue
		}
		edits = append(edits, edit{start: ref.Position, end: ref.Position + len(ref.Text), replacement: resolved[i].ResolvedEntity})
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })

	var b strings.Builder
	cursor := 0
	for _, e := range edits {
		if e.start < cursor {
			continue // overlapping span already consumed; leave as-is
		}
		b.WriteString(query[cursor:e.start])
		b.WriteString(e.replacement)
		cursor = e.end
	}
	b.WriteString(query[cursor:])
	return b.String()
}
