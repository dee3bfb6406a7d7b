package mcp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/contextengine/internal/async"
	"github.com/Aman-CERP/contextengine/internal/config"
	"github.com/Aman-CERP/contextengine/internal/embed"
	"github.com/Aman-CERP/contextengine/internal/store"
	"github.com/Aman-CERP/contextengine/internal/telemetry"
	"github.com/Aman-CERP/contextengine/pkg/version"
)

// Server is the MCP server for AmanMCP.
// It bridges AI clients (Claude Code, Cursor) with the contextual-retrieval
// dispatcher: session-aware grounded search, entity tracking, and the
// world-model auditor.
type Server struct {
	mcp      *mcp.Server
	metadata store.MetadataStore
	embedder embed.Embedder // Embedder for capability signaling
	config   *config.Config
	logger   *slog.Logger

	// Project identification for resource operations
	projectID string
	rootPath  string

	// Background indexing progress (nil if not indexing)
	indexProgress *async.IndexProgress

	// Query telemetry (optional, set via SetMetrics)
	metrics *telemetry.QueryMetrics

	// core wires components D-M (vector engine, sessions, entity index/
	// tracker, resolver, token budget, world-model auditor, grounding
	// provider) into the extended tool catalogue. While it is nil, those
	// tools stay registered and report `disabled`.
	core *Core

	mu sync.RWMutex
}

// SetCore wires the contextual-retrieval core into the server, enabling
// get_context, validate_response, memory_tool, session management,
// index_code/search_entity, and the world-model tools. Must be called
// before Serve; tool registration happens once, in NewServer.
func (s *Server) SetCore(core *Core) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.core = core
}

// ResourceInfo contains information about a resource.
type ResourceInfo struct {
	URI      string
	Name     string
	MIMEType string
}

// ResourceContent contains the content of a resource.
type ResourceContent struct {
	URI      string
	Content  string
	MIMEType string
}

// NewServer creates a new MCP server.
// The embedder parameter is used for capability signaling - AI clients can query
// the actual embedder state to adjust their search strategies.
// rootPath is used for project detection (go.mod, package.json, etc.) and to
// derive the project ID used for resource lookups and index_status.
func NewServer(metadata store.MetadataStore, embedder embed.Embedder, cfg *config.Config, rootPath string) (*Server, error) {
	if metadata == nil {
		return nil, errors.New("metadata store is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		metadata:  metadata,
		embedder:  embedder, // May be nil - will report as unavailable
		config:    cfg,
		rootPath:  rootPath,
		projectID: hashRootPath(rootPath),
		logger:    slog.Default(),
	}

	// Create MCP server with implementation info
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "AmanMCP",
			Version: version.Version,
		},
		nil, // ServerOptions - capabilities are inferred from registered tools/resources
	)

	// Register tools
	s.registerTools()

	return s, nil
}

// SetIndexProgress sets the index progress tracker for background indexing.
// This enables the server to report indexing progress via index_status and
// return appropriate messages when search is called during indexing.
func (s *Server) SetIndexProgress(progress *async.IndexProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexProgress = progress
}

// SetMetrics sets the query metrics collector for telemetry.
// When set, a query_metrics resource is registered.
func (s *Server) SetMetrics(m *telemetry.QueryMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m

	// Register query_metrics resource if metrics is provided
	if m != nil {
		s.registerQueryMetricsResource()
	}
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "AmanMCP", version.Version
}

// Capabilities returns whether tools and resources are enabled.
func (s *Server) Capabilities() (hasTools, hasResources bool) {
	// Both are enabled for F16
	return true, true
}

// handleIndexStatusTool handles the index_status tool invocation.
// Returns JSON-formatted index statistics including embedder capability info.
// AI clients can use this to adjust their search strategies based on
// whether the real embedder or the static fallback is active.
func (s *Server) handleIndexStatusTool(ctx context.Context, _ map[string]any) (*IndexStatusOutput, error) {
	start := time.Now()
	requestID := generateRequestID()

	s.logger.Info("index_status started",
		slog.String("request_id", requestID))

	project, err := s.metadata.GetProject(ctx, s.projectID)
	if err != nil {
		s.logger.Warn("index_status: failed to load project", slog.String("error", err.Error()))
	}

	// Determine embedder capability state
	var actualProvider, actualModel, semanticQuality, status string
	var dimensions int
	var isFallbackActive bool

	if s.embedder != nil {
		actualModel = s.embedder.ModelName()
		dimensions = s.embedder.Dimensions()

		// Determine if using static fallback based on model name or dimensions
		isFallbackActive = actualModel == "static" || dimensions == embed.StaticDimensions

		if isFallbackActive {
			actualProvider = "static"
			semanticQuality = "low"
		} else {
			actualProvider = "hugot"
			semanticQuality = "high"
		}

		// Check runtime availability
		if s.embedder.Available(ctx) {
			status = "ready"
		} else {
			status = "unavailable"
		}
	} else {
		// No embedder configured
		actualProvider = "none"
		actualModel = "none"
		dimensions = 0
		isFallbackActive = true
		semanticQuality = "none"
		status = "unavailable"
	}

	// Detect project info
	detector := NewProjectDetector(s.rootPath, s.logger)
	projectInfo := detector.Detect()

	// Build output
	output := &IndexStatusOutput{
		Project: *projectInfo,
		Stats: IndexStats{
			LastIndexed: time.Now().Format(time.RFC3339),
		},
		Embeddings: EmbeddingInfo{
			// Config values
			Provider: s.config.Embeddings.Provider,
			Model:    s.config.Embeddings.Model,
			Status:   status,
			// Runtime state - AI clients use this to adjust search strategy
			ActualProvider:   actualProvider,
			ActualModel:      actualModel,
			Dimensions:       dimensions,
			IsFallbackActive: isFallbackActive,
			SemanticQuality:  semanticQuality,
		},
	}

	if project != nil {
		output.Stats.FileCount = project.FileCount
		output.Stats.ChunkCount = project.ChunkCount
		output.Stats.LastIndexed = project.IndexedAt.Format(time.RFC3339)
	}

	// Add indexing progress if available
	s.mu.RLock()
	progress := s.indexProgress
	s.mu.RUnlock()

	if progress != nil {
		snap := progress.Snapshot()
		output.Indexing = &IndexingProgress{
			Status:         snap.Status,
			Stage:          snap.Stage,
			FilesTotal:     snap.FilesTotal,
			FilesProcessed: snap.FilesProcessed,
			ChunksIndexed:  snap.ChunksIndexed,
			ProgressPct:    snap.ProgressPct,
			ElapsedSeconds: snap.ElapsedSeconds,
			ErrorMessage:   snap.ErrorMessage,
		}
	}

	if s.core != nil {
		status := s.core.Status()
		output.ContextualRetrieval = &status
	}

	duration := time.Since(start)
	s.logger.Info("index_status completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.String("project_name", projectInfo.Name),
		slog.String("project_type", projectInfo.Type))

	return output, nil
}

// registerTools registers all tools with the MCP server.
// BUG-033: Added logging for debugging tool registration issues.
func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	// Register index_status tool - index diagnostics
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Check if the codebase index is ready and which embedder is active. Use before searching to verify the index is complete.",
	}, s.mcpIndexStatusHandler)
	s.logger.Debug("Registered tool", slog.String("name", "index_status"))

	// The remaining tools depend on the contextual-retrieval core (D-M)
	// and are registered unconditionally; each handler reports `disabled`
	// when SetCore was never called.
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_context",
		Description: "Retrieves grounded context for a query: resolves session references, runs hybrid vector search, calibrates and filters results, and abstains when nothing clears the score threshold.",
	}, s.mcpGetContextHandler)
	s.logger.Debug("Registered tool", slog.String("name", "get_context"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "validate_response",
		Description: "Checks a candidate answer against the evidence chunks it claims to be grounded in, using word-set similarity.",
	}, s.mcpValidateResponseHandler)
	s.logger.Debug("Registered tool", slog.String("name", "validate_response"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_tool",
		Description: "Create, read, update, delete, or list scratch memory files scoped to a session or shared globally.",
	}, s.mcpMemoryToolHandler)
	s.logger.Debug("Registered tool", slog.String("name", "memory_tool"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "create_session",
		Description: "Creates a conversational session under a sliding-window or summarising retention policy.",
	}, s.mcpCreateSessionHandler)
	s.logger.Debug("Registered tool", slog.String("name", "create_session"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_sessions",
		Description: "Lists every known session_id.",
	}, s.mcpListSessionsHandler)
	s.logger.Debug("Registered tool", slog.String("name", "list_sessions"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_session_summary",
		Description: "Returns a session's turn count, retention policy, and entities mentioned.",
	}, s.mcpGetSessionSummaryHandler)
	s.logger.Debug("Registered tool", slog.String("name", "get_session_summary"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete_session",
		Description: "Deletes a session's durable turn log and evicts it from memory.",
	}, s.mcpDeleteSessionHandler)
	s.logger.Debug("Registered tool", slog.String("name", "delete_session"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_code",
		Description: "Rebuilds the code entity index (functions, classes, symbols) from a directory.",
	}, s.mcpIndexCodeHandler)
	s.logger.Debug("Registered tool", slog.String("name", "index_code"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_entity",
		Description: "Looks up indexed code entities (functions or classes) by name substring.",
	}, s.mcpSearchEntityHandler)
	s.logger.Debug("Registered tool", slog.String("name", "search_entity"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "audit_jepa",
		Description: "Audits a candidate answer against known project facts, flagging unsupported or contradicted claims.",
	}, s.mcpAuditJEPAHandler)
	s.logger.Debug("Registered tool", slog.String("name", "audit_jepa"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ground_project_context",
		Description: "Returns textual evidence from the project's truth-fact corpus relevant to a query.",
	}, s.mcpGroundProjectContextHandler)
	s.logger.Debug("Registered tool", slog.String("name", "ground_project_context"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "sync_world_model",
		Description: "Rescans the truth-fact corpus and rebuilds the world-model auditor's fact set.",
	}, s.mcpSyncWorldModelHandler)
	s.logger.Debug("Registered tool", slog.String("name", "sync_world_model"))

	s.logger.Info("contextual retrieval tools registered", slog.Int("count", 12))
}

// mcpIndexStatusHandler is the MCP SDK handler for the index_status tool.
func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	output, err := s.handleIndexStatusTool(ctx, nil)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, output, nil
}

// ListResources returns all available resources.
func (s *Server) ListResources(ctx context.Context, cursor string) ([]ResourceInfo, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Get files from metadata store
	files, err := s.metadata.GetChangedFiles(ctx, "", emptyTime)
	if err != nil {
		return nil, "", err
	}

	resources := make([]ResourceInfo, 0, len(files))
	for _, f := range files {
		resources = append(resources, ResourceInfo{
			URI:      fmt.Sprintf("file://%s", f.Path),
			Name:     f.Path,
			MIMEType: mimeTypeForLanguage(f.Language),
		})
	}

	return resources, "", nil // No pagination for now
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (*ResourceContent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Parse URI - support chunk:// and file:// schemes
	var chunkID string
	if strings.HasPrefix(uri, "chunk://") {
		chunkID = strings.TrimPrefix(uri, "chunk://")
	} else if strings.HasPrefix(uri, "file://") {
		// For file:// URIs, we'd need to look up the file
		// For now, return not found
		return nil, NewResourceNotFoundError(uri)
	} else {
		return nil, NewResourceNotFoundError(uri)
	}

	// Get chunk from metadata store
	chunk, err := s.metadata.GetChunk(ctx, chunkID)
	if err != nil {
		return nil, err
	}
	if chunk == nil {
		return nil, NewResourceNotFoundError(uri)
	}

	return &ResourceContent{
		URI:      uri,
		Content:  chunk.Content,
		MIMEType: mimeTypeForLanguage(chunk.Language),
	}, nil
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	s.logger.Info("Starting MCP server",
		slog.String("transport", transport),
		slog.String("addr", addr))

	switch transport {
	case "stdio":
		s.logger.Debug("Using stdio transport for JSON-RPC")
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("MCP server stopped with error",
				slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	case "sse":
		s.logger.Debug("Using SSE transport for JSON-RPC", slog.String("addr", addr))
		handler := mcp.NewSSEHandler(func(*http.Request) *mcp.Server { return s.mcp })
		httpServer := &http.Server{Addr: addr, Handler: handler}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}()
		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error("MCP SSE server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP SSE server stopped gracefully")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// Close releases server resources.
func (s *Server) Close() error {
	// The MCP server doesn't have a Close method - it stops when context is canceled
	return nil
}

// mimeTypeForLanguage returns the MIME type for a programming language.
func mimeTypeForLanguage(lang string) string {
	switch strings.ToLower(lang) {
	case "go":
		return "text/x-go"
	case "typescript", "ts":
		return "text/typescript"
	case "javascript", "js":
		return "text/javascript"
	case "python", "py":
		return "text/x-python"
	case "rust", "rs":
		return "text/x-rust"
	case "java":
		return "text/x-java"
	case "c":
		return "text/x-c"
	case "cpp", "c++":
		return "text/x-c++"
	case "markdown", "md":
		return "text/markdown"
	default:
		return "text/plain"
	}
}

// emptyTime is a zero time value for listing all files.
var emptyTime = time.Time{}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// hashRootPath derives the project ID from its absolute root path, matching
// the Runner's and the store package's own derivation.
func hashRootPath(root string) string {
	h := sha256.Sum256([]byte(root))
	return hex.EncodeToString(h[:])[:16]
}
