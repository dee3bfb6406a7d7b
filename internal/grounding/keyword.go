package grounding

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"

	"github.com/Aman-CERP/contextengine/internal/worldmodel"
)

const (
	factAnalyzerName  = "grounding_fact_analyzer"
	factTokenizerName = "grounding_fact_tokenizer"
)

func init() {
	_ = registry.RegisterTokenizer(factTokenizerName, func(_ map[string]interface{}, _ *registry.Cache) (analysis.Tokenizer, error) {
		return factTokenizer{}, nil
	})
}

// factTokenizer adapts tokenizeCode's camelCase/snake_case-aware splitting
// to Bleve's analysis.Tokenizer interface.
type factTokenizer struct{}

func (factTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := tokenizeCode(text)

	result := make(analysis.TokenStream, 0, len(tokens))
	offset := 0
	for i, token := range tokens {
		start := strings.Index(strings.ToLower(text[offset:]), token)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)
		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
		if end <= len(text) {
			offset = end
		}
	}
	return result
}

type factDocument struct {
	Content string `json:"content"`
}

// keywordFallback is component M's substring/keyword evidence path: a
// fresh in-memory Bleve index built from the current fact corpus, queried
// when vector similarity clears no section above relevanceThreshold. The
// corpus is small enough (sync_world_model's anchor set) that rebuilding
// per query is cheaper than keeping a persistent index in sync.
//
// Grounded on the teacher's internal/store/bm25.go BleveBM25Index, trimmed
// to an in-memory-only index with no persistence.
func keywordFallback(ctx context.Context, facts []worldmodel.Fact, query string, topK int) (string, error) {
	if len(facts) == 0 {
		return "", nil
	}

	indexMapping, err := newFactIndexMapping()
	if err != nil {
		return "", fmt.Errorf("grounding: keyword index mapping: %w", err)
	}
	idx, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return "", fmt.Errorf("grounding: open keyword index: %w", err)
	}
	defer func() { _ = idx.Close() }()

	batch := idx.NewBatch()
	for i, f := range facts {
		if err := batch.Index(fmt.Sprintf("%d", i), factDocument{Content: f.Content}); err != nil {
			return "", fmt.Errorf("grounding: index fact %d: %w", i, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return "", fmt.Errorf("grounding: batch index facts: %w", err)
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")
	req := bleve.NewSearchRequest(matchQuery)
	req.Size = topK

	result, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return "", fmt.Errorf("grounding: keyword search: %w", err)
	}
	if len(result.Hits) == 0 {
		return "", nil
	}

	var b strings.Builder
	for i, hit := range result.Hits {
		var idx int
		if _, serr := fmt.Sscanf(hit.ID, "%d", &idx); serr != nil || idx < 0 || idx >= len(facts) {
			continue
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- Evidence from %s (keyword match, score: %.2f) ---\n%s", facts[idx].Source, hit.Score, facts[idx].Content)
	}
	return b.String(), nil
}

func newFactIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()
	if err := indexMapping.AddCustomAnalyzer(factAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": factTokenizerName,
		"token_filters": []string{
			lowercase.Name,
		},
	}); err != nil {
		return nil, err
	}
	indexMapping.DefaultAnalyzer = factAnalyzerName
	return indexMapping, nil
}
