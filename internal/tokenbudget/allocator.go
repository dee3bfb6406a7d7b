// Package tokenbudget implements the spec's component K: allocating a
// fixed token budget across ranked sections and truncating content to fit.
//
// There is no upstream implementation to ground this on — the reference
// implementation's TokenBudgetManager is a one-line stub (see DESIGN.md) —
// so this is built directly from spec §4.K's written algorithm.
package tokenbudget

import (
	"sort"
	"strings"
	"time"
)

// Section is one candidate block of content competing for budget space.
type Section struct {
	ID          string
	Content     string
	Relevance   float64
	LastUpdated time.Time
	AccessCount int
}

// Allocator trims history and responses to fit a fixed token budget.
type Allocator struct {
	MaxTokens      int
	ReservedTokens int
}

// New returns an Allocator with the given budget.
func New(maxTokens, reservedTokens int) *Allocator {
	return &Allocator{MaxTokens: maxTokens, ReservedTokens: reservedTokens}
}

// Available returns max - reserved, floored at zero.
func (a *Allocator) Available() int {
	avail := a.MaxTokens - a.ReservedTokens
	if avail < 0 {
		return 0
	}
	return avail
}

// Estimate is the cheap chars/4 heuristic the spec names explicitly.
func Estimate(text string) int {
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}

// Allocate greedily includes whole sections in descending relevance,
// stopping when the estimated token total would exceed Available(); the
// final, partially-fitting section is truncated rather than dropped. The
// returned sections never sum to more than Available() estimated tokens
// (spec §8 invariant 5).
func (a *Allocator) Allocate(sections []Section) []Section {
	available := a.Available()
	if available <= 0 || len(sections) == 0 {
		return nil
	}

	ordered := make([]Section, len(sections))
	copy(ordered, sections)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Relevance > ordered[j].Relevance
	})

	result := make([]Section, 0, len(ordered))
	used := 0
	for _, s := range ordered {
		cost := Estimate(s.Content)
		if used+cost <= available {
			result = append(result, s)
			used += cost
			continue
		}
		remaining := available - used
		if remaining <= 0 {
			break
		}
		truncated := s
		truncated.Content = Truncate(s.Content, remaining)
		result = append(result, truncated)
		used += Estimate(truncated.Content)
		break
	}
	return result
}

// Truncate shortens text to at most n estimated tokens (chars/4), keeping
// a prefix and appending a suffix ellipsis when content was cut.
func Truncate(text string, n int) string {
	if n <= 0 {
		return ""
	}
	maxChars := n * 4
	if len(text) <= maxChars {
		return text
	}
	if maxChars <= 3 {
		return text[:maxChars]
	}
	return strings.TrimRight(text[:maxChars-3], " \t\n") + "..."
}
