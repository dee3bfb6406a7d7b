package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/contextengine/internal/convo"
	"github.com/Aman-CERP/contextengine/internal/resolver"
	"github.com/Aman-CERP/contextengine/internal/tokenbudget"
	"github.com/Aman-CERP/contextengine/internal/vectorengine"
)

const noSufficientInformation = "No sufficient information found in memory for this query."

// GetContextInput defines the input schema for the get_context tool.
type GetContextInput struct {
	Query     string  `json:"query" jsonschema:"the natural-language question to retrieve context for"`
	TopK      int     `json:"top_k,omitempty" jsonschema:"maximum number of chunks to return, default 5"`
	MinScore  float64 `json:"min_score,omitempty" jsonschema:"minimum calibrated score a chunk must clear, default 0.5"`
	SessionID string  `json:"session_id,omitempty" jsonschema:"conversational session to resolve references and record this turn against"`
}

// Provenance is per-chunk retrieval provenance (spec §4.N step 7).
type Provenance struct {
	ChunkID int     `json:"chunk_id"`
	File    string  `json:"file"`
	Lines   string  `json:"lines"`
	Score   float64 `json:"score"`
}

// ResolvedReferenceOutput mirrors resolver.ResolvedReference in the wire
// shape spec §8's S2 scenario names.
type ResolvedReferenceOutput struct {
	OriginalText   string  `json:"original_text"`
	ResolvedEntity string  `json:"resolved_entity,omitempty"`
	Source         string  `json:"source,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
}

// GetContextOutput defines the output of get_context: a formatted text
// answer plus the full _meta payload spec §6 names.
type GetContextOutput struct {
	Content string `json:"content"`

	ResultsCount        int                        `json:"results_count"`
	Abstained           bool                       `json:"abstained"`
	TimeMs              int64                      `json:"time_ms"`
	Provenance          []Provenance               `json:"provenance"`
	ExpandedQueries     []string                   `json:"expanded_queries,omitempty"`
	SessionID           string                     `json:"session_id,omitempty"`
	OriginalQuery       string                     `json:"original_query,omitempty"`
	ExpandedQuery       string                     `json:"expanded_query,omitempty"`
	ResolvedReferences  []ResolvedReferenceOutput  `json:"resolved_references,omitempty"`
	EntitiesMentioned   []string                   `json:"entities_mentioned,omitempty"`
}

// GetContext implements spec §4.N's get_context pipeline.
func (c *Core) GetContext(ctx context.Context, in GetContextInput) (*GetContextOutput, error) {
	start := time.Now()
	if strings.TrimSpace(in.Query) == "" {
		return nil, newDispatchError(KindInvalidRequest, "query must not be empty")
	}
	topK := in.TopK
	if topK <= 0 {
		topK = 5
	}
	minScore := in.MinScore
	if minScore == 0 {
		minScore = 0.5
	}

	var sess *convo.Session
	var err error
	if in.SessionID != "" {
		exists, serr := c.sessionExists(in.SessionID)
		if serr != nil {
			return nil, serr
		}
		if !exists {
			return nil, newDispatchError(KindNotFound, "unknown session_id %q", in.SessionID)
		}
		sess, err = c.openSession(in.SessionID)
		if err != nil {
			return nil, err
		}
	}

	query := in.Query
	var resolved []resolver.ResolvedReference
	var expandedQueries []string

	if sess != nil {
		// Step 2: trim recent history through the token budget (K).
		recent := sess.Recent(0)
		sections := make([]tokenbudget.Section, len(recent))
		for i, t := range recent {
			sections[i] = tokenbudget.Section{
				ID:        fmt.Sprintf("turn-%d", t.TurnID),
				Content:   t.Query + "\n" + t.Response,
				Relevance: float64(i + 1), // more recent turns rank higher
			}
		}
		allocated := c.budget.Allocate(sections)
		history := make([]resolver.HistoryTurn, 0, len(allocated))
		allocatedIDs := make(map[string]bool, len(allocated))
		for _, s := range allocated {
			allocatedIDs[s.ID] = true
		}
		for _, t := range recent {
			if !allocatedIDs[fmt.Sprintf("turn-%d", t.TurnID)] {
				continue
			}
			history = append(history, resolver.HistoryTurn{
				TurnID:   t.TurnID,
				Query:    t.Query,
				Response: t.Response,
				Entities: t.Metadata.Entities,
			})
		}

		// Step 3: rewrite the query (J).
		var tracker resolver.Tracker
		if c.tracker != nil {
			tracker = c.tracker
		}
		var index resolver.CodeIndex
		if c.entities != nil {
			index = c.entities
		}
		query, resolved = c.resolve.Resolve(in.Query, history, tracker, index)
		if query != in.Query {
			expandedQueries = append(expandedQueries, query)
		}
	}

	// Step 4: retrieve (D), expanding the query with code-aware synonyms
	// and fusing the ranked lists with reciprocal-rank fusion so vocabulary
	// mismatches between the question and the indexed code don't starve
	// retrieval (spec §4.D's search_with_mvr).
	if c.engine == nil {
		return nil, newDispatchError(KindDisabled, "retrieval is not configured")
	}
	var vocabExpansions []string
	if expanded := vectorengine.NewQueryExpander().Expand(query); expanded != query {
		vocabExpansions = append(vocabExpansions, expanded)
		expandedQueries = append(expandedQueries, expanded)
	}
	results, err := c.engine.SearchWithMVR(ctx, query, vocabExpansions, topK)
	if err != nil {
		return nil, err
	}
	// The fused RRF scores only order the candidates; min_score and the
	// reported score use each chunk's cosine similarity to the query. A
	// chunk that only an expansion found has no such score and is dropped.
	direct, err := c.engine.Search(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	cosine := make(map[int]float64, len(direct))
	for _, r := range direct {
		cosine[r.ChunkID] = float64(r.Score)
	}

	// Step 5/6: calibrate (identity, since no calibration model is wired)
	// and drop below min_score.
	var provenance []Provenance
	var snippets []string
	for _, r := range results {
		score, ok := cosine[r.ChunkID]
		if !ok || score < minScore {
			continue
		}
		ch, ok := c.chunkByID(r.ChunkID)
		if !ok {
			continue
		}
		provenance = append(provenance, Provenance{
			ChunkID: r.ChunkID,
			File:    ch.FilePath,
			Lines:   fmt.Sprintf("%d-%d", ch.StartLine, ch.EndLine),
			Score:   score,
		})
		snippets = append(snippets, fmt.Sprintf("--- %s:%d-%d (score: %.2f) ---\n%s", ch.FilePath, ch.StartLine, ch.EndLine, score, ch.Text()))
	}

	abstained := len(provenance) == 0
	content := strings.Join(snippets, "\n\n")
	if abstained {
		content = noSufficientInformation
	}

	out := &GetContextOutput{
		Content:         content,
		ResultsCount:    len(provenance),
		Abstained:       abstained,
		Provenance:      provenance,
		ExpandedQueries: expandedQueries,
	}

	if sess != nil {
		out.SessionID = in.SessionID
		out.OriginalQuery = in.Query
		out.ExpandedQuery = query
		for _, r := range resolved {
			out.ResolvedReferences = append(out.ResolvedReferences, ResolvedReferenceOutput{
				OriginalText:   r.OriginalText,
				ResolvedEntity: r.ResolvedEntity,
				Source:         r.Source,
				Confidence:     r.Confidence,
			})
		}

		// Step 8: append a turn recording (query, response, detected entities).
		var entities []string
		if c.tracker != nil {
			entities = c.tracker.ExtractEntitiesFromText(in.Query + " " + content)
		}
		turn, aerr := sess.AddTurn(in.Query, content, convo.TurnMetadata{Entities: entities})
		if aerr != nil {
			return nil, aerr
		}
		if c.tracker != nil {
			c.tracker.RecordTurn(in.SessionID, turn.TurnID, in.Query, content, turn.Timestamp)
		}
		out.EntitiesMentioned = entities
	}

	out.TimeMs = time.Since(start).Milliseconds()
	c.recordQuery(time.Since(start), abstained)
	return out, nil
}

// mcpGetContextHandler is the MCP SDK handler for get_context.
func (s *Server) mcpGetContextHandler(ctx context.Context, _ *mcp.CallToolRequest, input GetContextInput) (
	*mcp.CallToolResult,
	*GetContextOutput,
	error,
) {
	if s.core == nil {
		return nil, nil, newDispatchError(KindDisabled, "contextual retrieval is not configured")
	}
	out, err := s.core.GetContext(ctx, input)
	if err != nil {
		return nil, nil, asDispatchError(err)
	}
	return nil, out, nil
}
