package convo

import (
	"sort"
	"strings"
)

// Policy is the common interface both sliding and summarising sessions
// satisfy (spec §4.F).
type Policy interface {
	AddTurn(turn TurnRecord)
	Recent(n int) []TurnRecord
	ContextWindow() string
	Search(keyword string) []TurnRecord
	EntitiesMentioned() []string
	Summary() Summary
	Kind() PolicyKind
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func appendEntities(existing []string, newOnes []string) []string {
	out := existing
	for _, e := range newOnes {
		if !contains(out, e) {
			out = append(out, e)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimRight(s[:n], " \t\n") + "..."
}

func searchTurns(turns []TurnRecord, keyword string) []TurnRecord {
	kw := strings.ToLower(keyword)
	var out []TurnRecord
	for _, t := range turns {
		if strings.Contains(strings.ToLower(t.Query), kw) || strings.Contains(strings.ToLower(t.Response), kw) {
			out = append(out, t)
		}
	}
	return out
}

func sortedUnique(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
