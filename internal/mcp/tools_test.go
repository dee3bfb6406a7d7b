package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/contextengine/internal/config"
	"github.com/Aman-CERP/contextengine/internal/store"
)

// ============================================================================
// TS06: Index Status Returns Project Stats
// ============================================================================

func TestIndexStatusTool_ReturnsStats(t *testing.T) {
	metadata := &MockMetadataStore{
		Project: &store.Project{
			ID:         "abc123",
			Name:       "contextengine",
			FileCount:  3,
			ChunkCount: 42,
			IndexedAt:  time.Now(),
		},
	}
	srv, err := NewServer(metadata, &MockEmbedder{}, config.NewConfig(), "")
	require.NoError(t, err)

	result, err := srv.handleIndexStatusTool(context.Background(), nil)

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 3, result.Stats.FileCount)
	assert.Equal(t, 42, result.Stats.ChunkCount)
}

// ============================================================================
// TS06B: Capability Signaling - Hugot Embedder
// ============================================================================

func TestIndexStatusTool_HugotEmbedder_HighSemanticQuality(t *testing.T) {
	// Given: server with Hugot embedder (768 dimensions)
	metadata := &MockMetadataStore{}
	embedder := &MockEmbedder{
		DimensionsFn: func() int { return 768 },
		ModelNameFn:  func() string { return "embeddinggemma-300m" },
		AvailableFn:  func(_ context.Context) bool { return true },
	}
	cfg := config.NewConfig()

	srv, err := NewServer(metadata, embedder, cfg, "")
	require.NoError(t, err)

	// When: calling index_status
	result, err := srv.handleIndexStatusTool(context.Background(), nil)

	// Then: returns high semantic quality indicators
	require.NoError(t, err)

	assert.Equal(t, "hugot", result.Embeddings.ActualProvider)
	assert.Equal(t, "embeddinggemma-300m", result.Embeddings.ActualModel)
	assert.Equal(t, 768, result.Embeddings.Dimensions)
	assert.False(t, result.Embeddings.IsFallbackActive)
	assert.Equal(t, "high", result.Embeddings.SemanticQuality)
	assert.Equal(t, "ready", result.Embeddings.Status)
}

// ============================================================================
// TS06C: Capability Signaling - Static Fallback
// ============================================================================

func TestIndexStatusTool_StaticEmbedder_LowSemanticQuality(t *testing.T) {
	// Given: server with static embedder (256 dimensions)
	metadata := &MockMetadataStore{}
	embedder := &MockEmbedder{
		DimensionsFn: func() int { return 256 },
		ModelNameFn:  func() string { return "static" },
		AvailableFn:  func(_ context.Context) bool { return true },
	}
	cfg := config.NewConfig()

	srv, err := NewServer(metadata, embedder, cfg, "")
	require.NoError(t, err)

	// When: calling index_status
	result, err := srv.handleIndexStatusTool(context.Background(), nil)

	// Then: returns low semantic quality indicators
	require.NoError(t, err)

	assert.Equal(t, "static", result.Embeddings.ActualProvider)
	assert.Equal(t, "static", result.Embeddings.ActualModel)
	assert.Equal(t, 256, result.Embeddings.Dimensions)
	assert.True(t, result.Embeddings.IsFallbackActive)
	assert.Equal(t, "low", result.Embeddings.SemanticQuality)
	assert.Equal(t, "ready", result.Embeddings.Status)
}

// ============================================================================
// TS06D: Capability Signaling - No Embedder
// ============================================================================

func TestIndexStatusTool_NilEmbedder_Unavailable(t *testing.T) {
	// Given: server without embedder
	metadata := &MockMetadataStore{}
	cfg := config.NewConfig()

	srv, err := NewServer(metadata, nil, cfg, "")
	require.NoError(t, err)

	// When: calling index_status
	result, err := srv.handleIndexStatusTool(context.Background(), nil)

	// Then: returns unavailable status
	require.NoError(t, err)

	assert.Equal(t, "none", result.Embeddings.ActualProvider)
	assert.Equal(t, "none", result.Embeddings.ActualModel)
	assert.Equal(t, 0, result.Embeddings.Dimensions)
	assert.True(t, result.Embeddings.IsFallbackActive)
	assert.Equal(t, "none", result.Embeddings.SemanticQuality)
	assert.Equal(t, "unavailable", result.Embeddings.Status)
}
