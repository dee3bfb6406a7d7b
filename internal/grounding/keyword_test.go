package grounding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/contextengine/internal/worldmodel"
)

func TestKeywordFallback_EmptyCorpus(t *testing.T) {
	text, err := keywordFallback(context.Background(), nil, "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestKeywordFallback_MatchesCodeIdentifier(t *testing.T) {
	facts := []worldmodel.Fact{
		{Source: "runner.go", Content: "parseHTTPRequest validates the incoming payload before dispatch."},
		{Source: "other.go", Content: "completely unrelated content about invoices."},
	}

	text, err := keywordFallback(context.Background(), facts, "parse http request", 3)
	require.NoError(t, err)
	assert.Contains(t, text, "runner.go")
	assert.NotContains(t, text, "invoices")
}

func TestKeywordFallback_NoMatch(t *testing.T) {
	facts := []worldmodel.Fact{
		{Source: "a.go", Content: "alpha beta gamma"},
	}

	text, err := keywordFallback(context.Background(), facts, "zzz_no_such_term", 3)
	require.NoError(t, err)
	assert.Empty(t, text)
}
