package mcp

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/contextengine/internal/blobstore"
	"github.com/Aman-CERP/contextengine/internal/chunk"
	"github.com/Aman-CERP/contextengine/internal/config"
	"github.com/Aman-CERP/contextengine/internal/convo"
	"github.com/Aman-CERP/contextengine/internal/entityindex"
	"github.com/Aman-CERP/contextengine/internal/entitytracker"
	"github.com/Aman-CERP/contextengine/internal/grounding"
	"github.com/Aman-CERP/contextengine/internal/resolver"
	"github.com/Aman-CERP/contextengine/internal/tokenbudget"
	"github.com/Aman-CERP/contextengine/internal/vectorengine"
	"github.com/Aman-CERP/contextengine/internal/worldmodel"
)

// sessionCap bounds how many *convo.Session handles the dispatcher keeps
// resident at once (spec §5: "closed under an LRU cap").
const sessionCap = 64

// Core composes components A/D through M into the request dispatcher's
// (N) working set. It holds exactly the shared, mostly-read-only state
// spec §5 describes: a loaded snapshot, the entity index, the truth-fact
// auditor, and the embedder (via the vector engine) are read-only after
// build/load; per-session state is guarded by Store's own per-session
// locks plus the LRU that bounds how many Session handles stay resident.
type Core struct {
	cfg     *config.Config
	dataDir string

	mu         sync.RWMutex
	snapshot   blobstore.Snapshot
	chunksByID map[int]blobstore.Chunk

	engine *vectorengine.Engine

	sessions   *convo.Store
	sessionLRU *lru.Cache[string, *convo.Session]

	entities *entityindex.Index
	tracker  *entitytracker.Tracker
	resolve  *resolver.Resolver
	budget   *tokenbudget.Allocator
	auditor  *worldmodel.Auditor
	grounder *grounding.Provider

	startedAt  time.Time
	queryCount atomic.Int64
	totalMs    atomic.Int64
	abstains   atomic.Int64
}

// NewCore wires the already-constructed components into a Core. Any of
// entities/tracker/auditor/grounder may be nil; the corresponding tools
// then report `disabled`.
func NewCore(
	cfg *config.Config,
	dataDir string,
	snapshot blobstore.Snapshot,
	engine *vectorengine.Engine,
	sessions *convo.Store,
	entities *entityindex.Index,
	tracker *entitytracker.Tracker,
	auditor *worldmodel.Auditor,
	grounder *grounding.Provider,
) (*Core, error) {
	cache, err := lru.New[string, *convo.Session](sessionCap)
	if err != nil {
		return nil, fmt.Errorf("mcp: session cache: %w", err)
	}
	c := &Core{
		cfg:        cfg,
		dataDir:    dataDir,
		snapshot:   snapshot,
		engine:     engine,
		sessions:   sessions,
		sessionLRU: cache,
		entities:   entities,
		tracker:    tracker,
		resolve:    resolver.New(),
		budget:     tokenbudget.New(cfg.TokenBudget.MaxTokens, cfg.TokenBudget.ReservedTokens),
		auditor:    auditor,
		grounder:   grounder,
		startedAt:  time.Now(),
	}
	c.reindexChunks(snapshot)
	if tracker != nil && entities != nil {
		tracker.SetKnownEntities(entities)
	}
	return c, nil
}

func (c *Core) reindexChunks(snap blobstore.Snapshot) {
	byID := make(map[int]blobstore.Chunk, len(snap.Chunks))
	for _, ch := range snap.Chunks {
		byID[ch.ChunkID] = ch
	}
	c.mu.Lock()
	c.snapshot = snap
	c.chunksByID = byID
	c.mu.Unlock()
}

// SwapSnapshot atomically replaces the live snapshot (spec §5's "atomic
// pointer swap" rebuild pattern for A).
func (c *Core) SwapSnapshot(snap blobstore.Snapshot) {
	c.reindexChunks(snap)
}

func (c *Core) chunkByID(id int) (blobstore.Chunk, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.chunksByID[id]
	return ch, ok
}

func (c *Core) currentSnapshot() blobstore.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// openSession returns a resident *convo.Session for id, loading (and
// replaying) it from the store if it is not already cached.
func (c *Core) openSession(sessionID string) (*convo.Session, error) {
	if sess, ok := c.sessionLRU.Get(sessionID); ok {
		return sess, nil
	}
	meta, err := c.sessions.LoadMetadata(sessionID)
	if err != nil {
		return nil, err
	}
	kind := convo.PolicyKind(meta.Policy)
	if kind == "" {
		kind = convo.PolicySliding
	}
	sessionType := meta.SessionType
	if sessionType == "" {
		sessionType = string(convo.SessionTypeGeneral)
	}
	sess, err := convo.OpenSession(c.sessions, sessionID, kind, sessionType, convo.PolicyParams{
		MaxTurns:     8,
		KeepLast:     3,
		ContextLimit: 10,
	})
	if err != nil {
		return nil, err
	}
	c.sessionLRU.Add(sessionID, sess)
	return sess, nil
}

// sessionExists reports whether a session has ever been created, without
// materialising a Session handle.
func (c *Core) sessionExists(sessionID string) (bool, error) {
	ids, err := c.sessions.List()
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == sessionID {
			return true, nil
		}
	}
	return false, nil
}

// recordQuery updates the rolling telemetry index_status reports.
func (c *Core) recordQuery(elapsed time.Duration, abstained bool) {
	c.queryCount.Add(1)
	c.totalMs.Add(elapsed.Milliseconds())
	if abstained {
		c.abstains.Add(1)
	}
}

// rebuildEntities rescans directory (and, if tracker is wired, refreshes
// its known-entity set) — the handler for index_code.
func (c *Core) rebuildEntities(ctx context.Context, directory string, recursive bool) error {
	if c.entities == nil {
		return errDisabled
	}
	chunker := chunk.NewCodeChunker()
	if err := c.entities.Index(ctx, directory, recursive, chunker); err != nil {
		return err
	}
	if c.tracker != nil {
		c.tracker.SetKnownEntities(c.entities)
	}
	return nil
}

// rebuildWorldModel rescans the truth-fact corpus — the handler for
// sync_world_model.
func (c *Core) rebuildWorldModel(ctx context.Context) error {
	if c.auditor == nil {
		return errDisabled
	}
	return c.auditor.Rebuild(ctx)
}

// Status reports the dispatcher's own telemetry block (spec §6's
// index_status fields: queries, sessions, uptime, abstention rate),
// distinct from the legacy code-search engine's Stats/EmbeddingInfo.
func (c *Core) Status() ContextualRetrievalStatus {
	snap := c.currentSnapshot()
	queries := c.queryCount.Load()
	totalMs := c.totalMs.Load()
	abstains := c.abstains.Load()

	var avgMs, abstentionRate float64
	if queries > 0 {
		avgMs = float64(totalMs) / float64(queries)
		abstentionRate = float64(abstains) / float64(queries)
	}

	sessions := 0
	if ids, err := c.sessions.List(); err == nil {
		sessions = len(ids)
	}

	return ContextualRetrievalStatus{
		Version:           "1",
		Snapshot:          snap.Metadata.SnapshotHash,
		TotalChunks:       len(snap.Chunks),
		Vectors:           len(snap.Chunks),
		Model:             snap.Metadata.EmbeddingModelID,
		Queries:           queries,
		Sessions:          sessions,
		UptimeMinutes:     time.Since(c.startedAt).Minutes(),
		AvgResponseTimeMs: avgMs,
		AbstentionRate:    abstentionRate,
		RecentQueries:     queries,
	}
}
