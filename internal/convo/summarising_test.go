package convo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarisingCompressesOldTurns(t *testing.T) {
	p := NewSummarisingPolicy("s1", 2, 3, "feature", nil)
	base := time.Now()
	for i := 1; i <= 4; i++ {
		p.AddTurn(TurnRecord{
			TurnID:    i,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Query:     "query",
			Response:  "response",
			Metadata:  TurnMetadata{Entities: []string{"foo"}},
		})
	}

	s := p.Summary()
	assert.True(t, s.HasSummary)
	assert.Equal(t, 2, s.SummarizedTurns)
	assert.Equal(t, 2, s.RecentTurns)
	assert.Equal(t, 4, s.TotalTurns)
}

func TestSummarisingUnionEqualsAllTurnsAdded(t *testing.T) {
	p := NewSummarisingPolicy("s1", 2, 3, "general", nil)
	for i := 1; i <= 5; i++ {
		p.AddTurn(TurnRecord{TurnID: i, Timestamp: time.Now(), Query: "q", Response: "r"})
	}
	s := p.Summary()
	assert.Equal(t, 5, s.SummarizedTurns+s.RecentTurns)
}

func TestDefaultSummariserFormat(t *testing.T) {
	turns := []TurnRecord{
		{TurnID: 1, Timestamp: time.Now(), Query: "refactor login", Metadata: TurnMetadata{Entities: []string{"b_entity", "a_entity"}, Files: []string{"z.go", "a.go"}}},
		{TurnID: 2, Timestamp: time.Now(), Query: "fix bug"},
	}
	out := DefaultSummariser(turns, "bugfix")
	require.Contains(t, out, "Summary of 2 turns (Turn 1 to 2):")
	assert.Contains(t, out, "Session Type: bugfix")
	assert.Contains(t, out, "Entities Discussed: a_entity, b_entity")
	assert.Contains(t, out, "Files Modified: a.go, z.go")
	assert.Contains(t, out, "Key Activities:")
	assert.Contains(t, out, "1. refactor login...")
}

func TestForceSummariseNoopWhenAtOrBelowKeepLast(t *testing.T) {
	p := NewSummarisingPolicy("s1", 3, 10, "general", nil)
	p.AddTurn(TurnRecord{TurnID: 1, Timestamp: time.Now(), Query: "q"})
	p.ForceSummarise()
	s := p.Summary()
	assert.False(t, s.HasSummary)
}
