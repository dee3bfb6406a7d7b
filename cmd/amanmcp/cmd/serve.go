package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/contextengine/internal/ann"
	"github.com/Aman-CERP/contextengine/internal/blobstore"
	"github.com/Aman-CERP/contextengine/internal/config"
	"github.com/Aman-CERP/contextengine/internal/convo"
	"github.com/Aman-CERP/contextengine/internal/embed"
	"github.com/Aman-CERP/contextengine/internal/entityindex"
	"github.com/Aman-CERP/contextengine/internal/entitytracker"
	"github.com/Aman-CERP/contextengine/internal/grounding"
	"github.com/Aman-CERP/contextengine/internal/logging"
	amanmcp "github.com/Aman-CERP/contextengine/internal/mcp"
	"github.com/Aman-CERP/contextengine/internal/store"
	"github.com/Aman-CERP/contextengine/internal/vectorengine"
	"github.com/Aman-CERP/contextengine/internal/watcher"
	"github.com/Aman-CERP/contextengine/internal/worldmodel"
)

// newServeCmd creates the "serve" subcommand: starts the MCP server over
// stdio (or sse), exposing the contextual-retrieval dispatcher (get_context,
// sessions, entities, the world-model auditor) once a snapshot exists.
func newServeCmd() *cobra.Command {
	var transport string
	var session string
	var debugServe bool
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long:  "Starts the AmanMCP server, exposing index status and contextual-retrieval tools over JSON-RPC.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if debugServe {
				logger, cleanup, err := logging.Setup(logging.DebugConfig())
				if err == nil {
					slog.SetDefault(logger)
					defer cleanup()
				}
			}
			return runServeWithSession(cmd.Context(), transport, port, session)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport to serve over: stdio or sse")
	cmd.Flags().StringVar(&session, "session", "", "Bind this server instance to a single conversational session")
	cmd.Flags().BoolVar(&debugServe, "debug", false, "Enable debug logging to ~/.amanmcp/logs/")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port for the sse transport")

	return cmd
}

// verifyStdinForMCP reports an error when stdin is an interactive terminal
// rather than a pipe — the MCP JSON-RPC handshake never arrives from a
// terminal, so a clear error beats an indefinite hang.
func verifyStdinForMCP() error {
	fd := os.Stdin.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return fmt.Errorf("stdin is a terminal, not a pipe: amanmcp serve expects an MCP client to connect over stdin/stdout")
	}
	return nil
}

// runServe starts the server with no session binding.
func runServe(ctx context.Context, transport string, port int) error {
	return runServeWithSession(ctx, transport, port, "")
}

// runServeWithSession builds the metadata store, the embedder, and,
// best-effort, the contextual-retrieval core, then serves. It never writes
// to stdout before the transport takes over — BUG-034/BUG-035's "no stdout
// contamination before the handshake" invariant.
func runServeWithSession(ctx context.Context, transport string, port int, sessionID string) error {
	if cleanup, err := logging.SetupMCPMode(); err == nil {
		defer cleanup()
	}

	if transport == "stdio" {
		if err := verifyStdinForMCP(); err != nil {
			slog.Warn("stdin check failed", slog.String("error", err.Error()))
		}
	}

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	dataDir := filepath.Join(root, ".amanmcp")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("serve: create data dir: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	metadataPath := filepath.Join(dataDir, "metadata.db")
	metadata, err := store.NewSQLiteStore(metadataPath)
	if err != nil {
		return fmt.Errorf("serve: open metadata store: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	embed.SetMLXConfig(embed.MLXServerConfig{
		Endpoint: cfg.Embeddings.MLXEndpoint,
		Model:    cfg.Embeddings.MLXModel,
	})

	embedder, err := embed.NewEmbedder(ctx, embed.ParseProvider(cfg.Embeddings.Provider), cfg.Embeddings.Model)
	if err != nil {
		slog.Warn("embedder init failed, falling back to static", slog.String("error", err.Error()))
		embedder = embed.NewStaticEmbedder768()
	}
	defer func() { _ = embedder.Close() }()

	srv, err := amanmcp.NewServer(metadata, embedder, cfg, root)
	if err != nil {
		return fmt.Errorf("serve: create mcp server: %w", err)
	}
	defer func() { _ = srv.Close() }()

	if core, cerr := buildCore(ctx, cfg, dataDir, embedder); cerr != nil {
		slog.Warn("contextual retrieval disabled", slog.String("error", cerr.Error()))
	} else if core != nil {
		srv.SetCore(core)
	}

	// File watcher initialisation must never block the handshake (BUG-035):
	// it runs in its own goroutine regardless of how long it takes.
	go startWatcher(ctx, root)

	if sessionID != "" {
		slog.Debug("serve bound to session", slog.String("session_id", sessionID))
	}

	addr := ""
	if port > 0 {
		addr = fmt.Sprintf(":%d", port)
	}
	return srv.Serve(ctx, transport, addr)
}

// startWatcher starts the hybrid file watcher in the background, bounded
// by AMANMCP_WATCHER_STARTUP_TIMEOUT (primarily a test hook for simulating
// slow filesystems; defaults to 2s).
func startWatcher(ctx context.Context, root string) {
	timeout := 2 * time.Second
	if v := os.Getenv("AMANMCP_WATCHER_STARTUP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			timeout = d
		}
	}
	startCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	w, err := watcher.NewHybridWatcher(watcher.Options{})
	if err != nil {
		slog.Debug("watcher init failed", slog.String("error", err.Error()))
		return
	}
	if err := w.Start(startCtx, root); err != nil {
		slog.Debug("watcher start failed", slog.String("error", err.Error()))
	}
}

// buildCore best-effort assembles components D-M from whatever has
// already been indexed under dataDir. A missing context_vectors.bin
// (index_code/sync_world_model never run) is not an error: the new tools
// simply report `disabled` until the operator runs them.
func buildCore(ctx context.Context, cfg *config.Config, dataDir string, embedder embed.Embedder) (*amanmcp.Core, error) {
	containerPath := filepath.Join(dataDir, "context_vectors.bin")
	bstore, err := blobstore.Open(containerPath, embedder.Dimensions())
	if err != nil {
		return nil, fmt.Errorf("blob store unavailable: %w", err)
	}
	snapshot := bstore.Snapshot()

	annIndex, err := ann.Deserialize(snapshot.IndexBlob, len(snapshot.Chunks))
	if err != nil {
		return nil, fmt.Errorf("ann index unavailable: %w", err)
	}
	engine := vectorengine.New(embedder, annIndex)

	sessionsDir := filepath.Join(dataDir, "sessions")
	sessions := convo.NewStore(sessionsDir)

	entities := entityindex.New()
	tracker := entitytracker.New()

	worldCfg := worldmodel.DefaultConfig(filepath.Join(dataDir, cfg.WorldModel.ContextDirectory))
	worldCfg.AnchorThreshold = cfg.WorldModel.AnchorThreshold
	worldCfg.ContradictionThreshold = cfg.WorldModel.ContradictionThreshold
	worldCfg.ContradictionPenalty = cfg.WorldModel.ContradictionPenalty
	if cfg.WorldModel.MaxAnchors > 0 {
		worldCfg.MaxAnchors = cfg.WorldModel.MaxAnchors
	}
	auditor := worldmodel.New(worldCfg, embedder)
	if err := auditor.Rebuild(ctx); err != nil {
		slog.Debug("world model rebuild failed", slog.String("error", err.Error()))
	}
	grounder := grounding.New(auditor, embedder, 5)

	return amanmcp.NewCore(cfg, dataDir, snapshot, engine, sessions, entities, tracker, auditor, grounder)
}
