package mcp

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Project    ProjectInfo       `json:"project"`
	Stats      IndexStats        `json:"stats"`
	Embeddings EmbeddingInfo     `json:"embeddings"`
	Indexing   *IndexingProgress `json:"indexing,omitempty"` // Present during background indexing

	// ContextualRetrieval reports the dispatcher (N) telemetry spec §6
	// names (version, snapshot, queries, sessions, uptime, abstention
	// rate). Present only when the server was wired with a *Core.
	ContextualRetrieval *ContextualRetrievalStatus `json:"contextual_retrieval,omitempty"`
}

// ContextualRetrievalStatus is the get_context/index_code/sessions
// subsystem's own health block, distinct from the legacy code-search
// Stats/Embeddings block above.
type ContextualRetrievalStatus struct {
	Version            string  `json:"version"`
	Snapshot           string  `json:"snapshot"`
	TotalChunks        int     `json:"total_chunks"`
	Vectors            int     `json:"vectors"`
	Model              string  `json:"model"`
	Queries            int64   `json:"queries"`
	Sessions           int     `json:"sessions"`
	UptimeMinutes      float64 `json:"uptime_minutes"`
	AvgResponseTimeMs  float64 `json:"avg_response_time_ms"`
	AbstentionRate     float64 `json:"abstention_rate"`
	RecentQueries      int64   `json:"recent_queries"`
}

// IndexingProgress contains information about ongoing background indexing.
type IndexingProgress struct {
	Status         string  `json:"status"`                     // "indexing", "ready", or "error"
	Stage          string  `json:"stage,omitempty"`            // "scanning", "chunking", "embedding", "indexing"
	FilesTotal     int     `json:"files_total"`                // Total files to process
	FilesProcessed int     `json:"files_processed"`            // Files processed so far
	ChunksIndexed  int     `json:"chunks_indexed"`             // Chunks indexed so far
	ProgressPct    float64 `json:"progress_pct"`               // Progress percentage (0-100)
	ElapsedSeconds int     `json:"elapsed_seconds"`            // Time since indexing started
	ErrorMessage   string  `json:"error_message,omitempty"`    // Error message if status is "error"
}

// ProjectInfo contains information about the indexed project.
type ProjectInfo struct {
	Name     string `json:"name"`
	RootPath string `json:"root_path"`
	Type     string `json:"type"`
}

// IndexStats contains statistics about the index.
type IndexStats struct {
	FileCount      int    `json:"file_count"`
	ChunkCount     int    `json:"chunk_count"`
	IndexSizeBytes int64  `json:"index_size_bytes"`
	LastIndexed    string `json:"last_indexed"`
}

// EmbeddingInfo contains information about the embedding configuration.
type EmbeddingInfo struct {
	// Config values
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Status   string `json:"status"`

	// Runtime state - allows AI clients to adjust search strategy
	ActualProvider   string `json:"actual_provider"`    // "hugot" or "static"
	ActualModel      string `json:"actual_model"`       // e.g., "embeddinggemma-300m" or "static"
	Dimensions       int    `json:"dimensions"`         // 768 (hugot) or 256 (static)
	IsFallbackActive bool   `json:"is_fallback_active"` // true if using static fallback
	SemanticQuality  string `json:"semantic_quality"`   // "high" (hugot) or "low" (static)
}
