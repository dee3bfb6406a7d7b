package convo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlidingDropsOldestAtCapacity(t *testing.T) {
	p := NewSlidingPolicy("s1", 2, "bugfix")
	p.AddTurn(TurnRecord{TurnID: 1, Query: "a", Timestamp: time.Now()})
	p.AddTurn(TurnRecord{TurnID: 2, Query: "b", Timestamp: time.Now()})
	p.AddTurn(TurnRecord{TurnID: 3, Query: "c", Timestamp: time.Now()})

	recent := p.Recent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, 2, recent[0].TurnID)
	assert.Equal(t, 3, recent[1].TurnID)
}

func TestSlidingSearchAndContextWindow(t *testing.T) {
	p := NewSlidingPolicy("s1", 5, "feature")
	p.AddTurn(TurnRecord{TurnID: 1, Query: "add retry logic", Response: "done", Timestamp: time.Now()})

	found := p.Search("retry")
	require.Len(t, found, 1)

	window := p.ContextWindow()
	assert.Contains(t, window, "s1")
	assert.Contains(t, window, "add retry logic")
}
