// Package reference implements the spec's component I: a rule-based
// detector of referential phrases ("that function", "esta clase", "the
// previous bug") in a query.
//
// Grounded 1:1 on
// original_source/core/resolution/reference_detector.py.
package reference

import (
	"regexp"
	"strings"
)

// Type is one of the four referential pattern classes.
type Type string

const (
	TypeDemonstrative Type = "demonstrative"
	TypePronoun       Type = "pronoun"
	TypePrevious      Type = "previous"
	TypeImplicit      Type = "implicit"
)

// Confidence values fixed by the reference implementation.
const (
	confidenceDemonstrative = 0.9
	confidencePrevious      = 0.85
	confidencePronoun       = 0.7
	confidenceImplicit      = 0.6
)

// Reference is a detected referential phrase.
type Reference struct {
	Text       string
	Type       Type
	Position   int // byte offset of Text's start in the query
	Confidence float64
}

// entityKeywords gates which head nouns count as a reference at all —
// a phrase like "that dog" is not a reference since "dog" isn't a domain
// keyword.
var entityKeywords = map[string]struct{}{
	"function": {}, "method": {}, "class": {}, "module": {}, "variable": {},
	"bug": {}, "error": {}, "issue": {}, "feature": {}, "file": {},
	"código": {}, "función": {}, "clase": {}, "archivo": {}, "problema": {},
}

func isEntityKeyword(noun string) bool {
	_, ok := entityKeywords[strings.ToLower(strings.TrimSpace(noun))]
	return ok
}

var (
	demonstrativePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(that|this|these|those)\s+([\p{L}\p{N}_]+)`),
		regexp.MustCompile(`(?i)\b(esa|ese|esta|este|esas|esos|estas|estos)\s+([\p{L}\p{N}_]+)`),
	}
	pronounPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(it|its|them|their)\b`),
		regexp.MustCompile(`(?i)\b(lo|la|los|las|le|les)\b`),
	}
	previousPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(the\s+)?(previous|last|earlier|prior)\s+([\p{L}\p{N}_]+)`),
		regexp.MustCompile(`(?i)\b(el|la|los|las)\s+(anterior|previo|último|última)\s+([\p{L}\p{N}_]+)`),
	}
	implicitPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bthe\s+([\p{L}\p{N}_]+)\b`),
		regexp.MustCompile(`(?i)\b(el|la)\s+([\p{L}\p{N}_]+)\b`),
	}
)

// Detector finds referential phrases in queries.
type Detector struct{}

// New returns a Detector.
func New() *Detector { return &Detector{} }

// Detect returns every referential phrase found in query, in the order
// detection runs: demonstrative, pronoun, previous, implicit. A phrase
// that matches more than one class (e.g. "the bug" could match both
// implicit and, in other text, previous) is reported once per class it
// genuinely matches, mirroring the reference implementation's independent
// per-class passes.
func (d *Detector) Detect(query string) []Reference {
	var refs []Reference
	refs = append(refs, detectClass(query, demonstrativePatterns, TypeDemonstrative, confidenceDemonstrative, 2)...)
	refs = append(refs, detectClass(query, pronounPatterns, TypePronoun, confidencePronoun, -1)...)
	refs = append(refs, detectClass(query, previousPatterns, TypePrevious, confidencePrevious, -2)...)
	refs = append(refs, detectClass(query, implicitPatterns, TypeImplicit, confidenceImplicit, -3)...)
	return refs
}

// detectClass runs each pattern in patterns against query and keeps
// matches whose head noun is a domain keyword (pronoun patterns have no
// head noun and are always kept — nounGroup=-1).
func detectClass(query string, patterns []*regexp.Regexp, typ Type, confidence float64, nounGroup int) []Reference {
	var out []Reference
	for _, pattern := range patterns {
		matches := pattern.FindAllStringSubmatchIndex(query, -1)
		for _, m := range matches {
			text := query[m[0]:m[1]]
			if nounGroup < 0 {
				// Pronoun patterns: the match itself is the reference, no
				// keyword gate (pronouns don't have a distinct head noun).
				if typ == TypePronoun {
					out = append(out, Reference{Text: text, Type: typ, Position: m[0], Confidence: confidence})
					continue
				}
				// previous/implicit: the head noun is the LAST captured group.
				noun := lastGroup(query, m)
				if isEntityKeyword(noun) {
					out = append(out, Reference{Text: text, Type: typ, Position: m[0], Confidence: confidence})
				}
				continue
			}
			noun := groupText(query, m, nounGroup)
			if isEntityKeyword(noun) {
				out = append(out, Reference{Text: text, Type: typ, Position: m[0], Confidence: confidence})
			}
		}
	}
	return out
}

func groupText(query string, m []int, group int) string {
	lo, hi := m[group*2], m[group*2+1]
	if lo < 0 || hi < 0 {
		return ""
	}
	return query[lo:hi]
}

func lastGroup(query string, m []int) string {
	for g := len(m)/2 - 1; g >= 1; g-- {
		lo, hi := m[g*2], m[g*2+1]
		if lo >= 0 && hi >= 0 {
			return query[lo:hi]
		}
	}
	return ""
}

// HasReferences reports whether query contains any detected reference.
func (d *Detector) HasReferences(query string) bool {
	return len(d.Detect(query)) > 0
}
