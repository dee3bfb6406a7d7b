package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// EmbedderInfoInput carries the currently configured embedder's identity,
// for comparison against what the on-disk index was built with.
type EmbedderInfoInput struct {
	Model      string
	Backend    string
	Dimensions int
}

// GetIndexInfo reports the stored index's embedding configuration, size on
// disk, and compatibility with current, for the `amanmcp index info` command.
// dataDir is the project's .amanmcp directory; the project ID is derived
// from its parent (the project root), matching the Runner's hashString.
func GetIndexInfo(ctx context.Context, metadata MetadataStore, dataDir string, current *EmbedderInfoInput) (*IndexInfo, error) {
	root := filepath.Dir(dataDir)
	projectID := hashRootPath(root)

	info := &IndexInfo{
		Location:    dataDir,
		ProjectRoot: root,
	}

	project, err := metadata.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: load project: %w", err)
	}
	if project != nil {
		info.ProjectRoot = project.RootPath
		info.ChunkCount = project.ChunkCount
		info.DocumentCount = project.FileCount
		info.CreatedAt = project.IndexedAt
		info.UpdatedAt = project.IndexedAt
	}

	if dimStr, derr := metadata.GetState(ctx, StateKeyIndexDimension); derr == nil && dimStr != "" {
		if dims, perr := strconv.Atoi(dimStr); perr == nil {
			info.IndexDimensions = dims
		}
	}
	if model, merr := metadata.GetState(ctx, StateKeyIndexModel); merr == nil && model != "" {
		info.IndexModel = model
		info.IndexBackend = inferBackendFromModel(model)
	}

	containerPath := filepath.Join(dataDir, "context_vectors.bin")
	if fi, statErr := os.Stat(containerPath); statErr == nil {
		info.VectorSizeBytes = fi.Size()
		info.IndexSizeBytes = fi.Size()
		if modTime := fi.ModTime(); info.UpdatedAt.IsZero() || modTime.After(info.UpdatedAt) {
			info.UpdatedAt = modTime
		}
	}

	if current != nil {
		info.CurrentModel = current.Model
		info.CurrentBackend = current.Backend
		info.CurrentDimensions = current.Dimensions
		info.Compatible = info.IndexDimensions == 0 || info.IndexDimensions == current.Dimensions
	}

	return info, nil
}

// hashRootPath reproduces the Runner's project ID derivation (SHA256 of the
// absolute root path, first 16 hex chars) without importing package index,
// which already depends on package store.
func hashRootPath(root string) string {
	h := sha256.Sum256([]byte(root))
	return hex.EncodeToString(h[:])[:16]
}

// FormatBytes renders n as a human-readable size (B/KB/MB/GB).
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// FormatTime renders t for display, or "unknown" for the zero value.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format("2006-01-02 15:04:05")
}

// containsAny reports whether s contains any of substrings.
func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// inferBackendFromModel guesses the embedder backend from a model name or
// path, for indexes built before the backend was recorded explicitly.
func inferBackendFromModel(model string) string {
	switch {
	case model == "static" || strings.HasPrefix(model, "static"):
		return "static"
	case strings.HasPrefix(model, "/"), containsAny(model, []string{"mlx-community/", "mlx-", "/mlx/"}):
		return "mlx"
	default:
		return "ollama"
	}
}

// getDirSize sums the size of every regular file under dir, recursively.
// Returns 0 if dir does not exist.
func getDirSize(dir string) int64 {
	var total int64
	_ = filepath.Walk(dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil || fi == nil || fi.IsDir() {
			return nil
		}
		total += fi.Size()
		return nil
	})
	return total
}
