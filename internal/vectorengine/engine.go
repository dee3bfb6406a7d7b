// Package vectorengine composes an embedder (B) and an ANN index (C) into
// the spec's component D: embed_query, search, search_with_mvr (multi-vector
// retrieval fused with reciprocal-rank fusion), and raw cosine for ad-hoc use
// by the world-model auditor (L) and grounding provider (M).
package vectorengine

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/contextengine/internal/ann"
	"github.com/Aman-CERP/contextengine/internal/embed"
)

// Result is one ranked hit: a chunk id and its similarity score.
type Result struct {
	ChunkID int
	Score   float32
}

// Engine composes an Embedder and an ANN Index.
type Engine struct {
	embedder embed.Embedder
	index    *ann.Index
}

// New returns a vector engine over the given embedder and index.
func New(embedder embed.Embedder, index *ann.Index) *Engine {
	return &Engine{embedder: embedder, index: index}
}

// EmbedQuery embeds text using the engine's embedder.
func (e *Engine) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("vectorengine: embed query: %w", err)
	}
	return v, nil
}

// Search embeds the query and returns up to k results ordered by
// descending cosine similarity.
func (e *Engine) Search(ctx context.Context, text string, k int) ([]Result, error) {
	q, err := e.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	return e.SearchVector(q, k)
}

// SearchVector searches with an already-embedded query vector.
func (e *Engine) SearchVector(q []float32, k int) ([]Result, error) {
	ids, scores, err := e.index.Search(q, k)
	if err != nil {
		return nil, fmt.Errorf("vectorengine: search: %w", err)
	}
	results := make([]Result, len(ids))
	for i := range ids {
		results[i] = Result{ChunkID: ids[i], Score: scores[i]}
	}
	return results, nil
}

// SearchWithMVR performs multi-vector retrieval: it embeds the original
// query plus any supplied expansions, searches each vector independently,
// and fuses the ranked lists with reciprocal-rank fusion (k=60, the
// teacher's DefaultRRFConstant). Ties are broken by smaller chunk_id first.
func (e *Engine) SearchWithMVR(ctx context.Context, text string, expansions []string, k int) ([]Result, error) {
	queries := make([]string, 0, 1+len(expansions))
	queries = append(queries, text)
	queries = append(queries, expansions...)

	rankedLists := make([][]Result, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, query := range queries {
		i, query := i, query
		g.Go(func() error {
			results, err := e.Search(gctx, query, k)
			if err != nil {
				return err
			}
			rankedLists[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := fuseRRF(rankedLists, rrfConstant)
	if len(fused) > k {
		fused = fused[:k]
	}
	return fused, nil
}

const rrfConstant = 60

// fuseRRF merges multiple ranked lists into one using reciprocal-rank
// fusion, deduplicating on chunk_id and keeping the highest fused score.
// Output is sorted by descending fused score, ties broken by smaller
// chunk_id first — matching spec §4.D's rank semantics.
func fuseRRF(lists [][]Result, k int) []Result {
	type accum struct {
		chunkID int
		score   float64
	}
	scores := make(map[int]*accum)

	for _, list := range lists {
		for rank, r := range list {
			a, ok := scores[r.ChunkID]
			if !ok {
				a = &accum{chunkID: r.ChunkID}
				scores[r.ChunkID] = a
			}
			a.score += 1.0 / float64(k+rank+1)
		}
	}

	out := make([]Result, 0, len(scores))
	for _, a := range scores {
		out = append(out, Result{ChunkID: a.chunkID, Score: float32(a.score)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}

// Cosine computes raw cosine similarity between two vectors, for ad-hoc
// use by the world-model auditor (L) and grounding provider (M). Vectors
// need not be pre-normalised.
func Cosine(u, v []float32) float64 {
	if len(u) != len(v) || len(u) == 0 {
		return 0
	}
	var dot, normU, normV float64
	for i := range u {
		dot += float64(u[i]) * float64(v[i])
		normU += float64(u[i]) * float64(u[i])
		normV += float64(v[i]) * float64(v[i])
	}
	if normU == 0 || normV == 0 {
		return 0
	}
	return dot / (math.Sqrt(normU) * math.Sqrt(normV))
}
