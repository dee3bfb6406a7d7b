package tokenbudget

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocateNeverExceedsAvailable(t *testing.T) {
	a := New(4000, 500) // available = 3500
	sections := []Section{
		{ID: "1", Content: strings.Repeat("x", 8000), Relevance: 0.9},
		{ID: "2", Content: strings.Repeat("y", 8000), Relevance: 0.8},
		{ID: "3", Content: strings.Repeat("z", 8000), Relevance: 0.5},
	}
	out := a.Allocate(sections)

	total := 0
	for _, s := range out {
		total += Estimate(s.Content)
	}
	assert.LessOrEqual(t, total, a.Available())
	assert.NotEmpty(t, out)
}

func TestAllocateOrdersByRelevance(t *testing.T) {
	a := New(1000, 0)
	sections := []Section{
		{ID: "low", Content: "short", Relevance: 0.1},
		{ID: "high", Content: "short", Relevance: 0.9},
	}
	out := a.Allocate(sections)
	assert.Equal(t, "high", out[0].ID)
}

func TestTruncateAddsEllipsis(t *testing.T) {
	got := Truncate(strings.Repeat("a", 100), 5) // 20 chars
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), 20)
}

func TestTruncateNoopWhenShort(t *testing.T) {
	got := Truncate("short text", 100)
	assert.Equal(t, "short text", got)
}

func TestAvailableFloorsAtZero(t *testing.T) {
	a := New(100, 500)
	assert.Equal(t, 0, a.Available())
	assert.Nil(t, a.Allocate([]Section{{ID: "1", Content: "x", Relevance: 1}}))
}
