package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MemoryToolInput defines the input schema for memory_tool: CRUD over a
// per-session scratch directory (spec §6).
type MemoryToolInput struct {
	Command   string `json:"command" jsonschema:"one of: create, read, update, delete, list"`
	FilePath  string `json:"file_path,omitempty" jsonschema:"scratch file name; sanitised to its basename"`
	Content   string `json:"content,omitempty" jsonschema:"file content for create/update"`
	SessionID string `json:"session_id,omitempty" jsonschema:"scopes the scratch directory to a session; omit for the shared root"`
}

// MemoryToolOutput defines the output of memory_tool.
type MemoryToolOutput struct {
	Content string   `json:"content,omitempty"`
	Files   []string `json:"files,omitempty"`
	OK      bool     `json:"ok"`
}

// memoriesDir returns the scratch directory for sessionID (or the shared
// root when empty), rooted under dataDir/memories.
func (c *Core) memoriesDir(sessionID string) string {
	if sessionID == "" {
		return filepath.Join(c.dataDir, "memories")
	}
	return filepath.Join(c.dataDir, "memories", sessionID)
}

// MemoryTool implements the memory_tool CRUD surface. file_path is
// sanitised to its basename, so no combination of input can escape the
// scratch directory (spec §6: "path traversal is rejected").
func (c *Core) MemoryTool(ctx context.Context, in MemoryToolInput) (*MemoryToolOutput, error) {
	if in.SessionID == ".." || filepath.Base(in.SessionID) != in.SessionID && in.SessionID != "" {
		return nil, newDispatchError(KindInvalidRequest, "invalid session_id")
	}
	dir := c.memoriesDir(in.SessionID)

	if in.Command == "list" {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			return &MemoryToolOutput{OK: true, Files: []string{}}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("mcp: list memories: %w", err)
		}
		var files []string
		for _, e := range entries {
			if !e.IsDir() {
				files = append(files, e.Name())
			}
		}
		return &MemoryToolOutput{OK: true, Files: files}, nil
	}

	if in.FilePath == "" {
		return nil, newDispatchError(KindInvalidRequest, "file_path is required")
	}
	name := filepath.Base(in.FilePath)
	if name == "." || name == ".." || name == "/" || name == "" {
		return nil, newDispatchError(KindInvalidRequest, "invalid file_path")
	}
	path := filepath.Join(dir, name)

	switch in.Command {
	case "create", "update":
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mcp: mkdir memories: %w", err)
		}
		if err := os.WriteFile(path, []byte(in.Content), 0o644); err != nil {
			return nil, fmt.Errorf("mcp: write memory: %w", err)
		}
		return &MemoryToolOutput{OK: true}, nil

	case "read":
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			return nil, errMemoryNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("mcp: read memory: %w", err)
		}
		return &MemoryToolOutput{OK: true, Content: string(data)}, nil

	case "delete":
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				return nil, errMemoryNotFound
			}
			return nil, fmt.Errorf("mcp: delete memory: %w", err)
		}
		return &MemoryToolOutput{OK: true}, nil

	default:
		return nil, newDispatchError(KindInvalidRequest, "unknown command %q", in.Command)
	}
}

func (s *Server) mcpMemoryToolHandler(ctx context.Context, _ *mcp.CallToolRequest, input MemoryToolInput) (
	*mcp.CallToolResult,
	*MemoryToolOutput,
	error,
) {
	if s.core == nil {
		return nil, nil, newDispatchError(KindDisabled, "memory_tool is not configured")
	}
	out, err := s.core.MemoryTool(ctx, input)
	if err != nil {
		return nil, nil, asDispatchError(err)
	}
	return nil, out, nil
}
