package tool

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	domaintool "github.com/germinal-ai/germinal/internal/domain/tool"
	"github.com/germinal-ai/germinal/internal/infrastructure/sandbox"
)

// Filesystem tools. Every path is resolved through the PathGuard before any
// filesystem call; allowlists for reads and writes are configured separately.

// NewReadFileTool 创建 read_file 工具
func NewReadFileTool(guard *sandbox.PathGuard) *domaintool.Tool {
	return domaintool.MustNew(
		"read_file",
		"Read the full text content of a file. The path must be inside the configured readable directories.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Path to the file to read.",
				},
			},
			"required":             []string{"path"},
			"additionalProperties": false,
		},
		domaintool.RiskLow,
		func(params map[string]interface{}) (map[string]interface{}, error) {
			path, _ := params["path"].(string)
			resolved, err := guard.Resolve(path)
			if err != nil {
				return nil, err
			}
			data, err := os.ReadFile(resolved)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", resolved, err)
			}
			return map[string]interface{}{
				"content": string(data),
				"path":    resolved,
			}, nil
		},
	)
}

// NewWriteFileTool 创建 write_file 工具
func NewWriteFileTool(guard *sandbox.PathGuard) *domaintool.Tool {
	return domaintool.MustNew(
		"write_file",
		"Write text content to a file, creating parent directories as needed. The path must be inside the configured writable directories.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Path to the file to write.",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Text content to write.",
				},
			},
			"required":             []string{"path", "content"},
			"additionalProperties": false,
		},
		domaintool.RiskMedium,
		func(params map[string]interface{}) (map[string]interface{}, error) {
			path, _ := params["path"].(string)
			content, _ := params["content"].(string)
			resolved, err := guard.Resolve(path)
			if err != nil {
				return nil, err
			}
			if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
				return nil, fmt.Errorf("create parent dir: %w", err)
			}
			if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
				return nil, fmt.Errorf("write %s: %w", resolved, err)
			}
			return map[string]interface{}{
				"success":       true,
				"path":          resolved,
				"bytes_written": len(content),
			}, nil
		},
	)
}

// NewListDirectoryTool 创建 list_directory 工具
func NewListDirectoryTool(guard *sandbox.PathGuard) *domaintool.Tool {
	return domaintool.MustNew(
		"list_directory",
		"List directory entries, directories first, sorted by name. The path must be inside the configured readable directories.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Path to the directory to list.",
				},
			},
			"required":             []string{"path"},
			"additionalProperties": false,
		},
		domaintool.RiskLow,
		func(params map[string]interface{}) (map[string]interface{}, error) {
			path, _ := params["path"].(string)
			resolved, err := guard.Resolve(path)
			if err != nil {
				return nil, err
			}
			dirents, err := os.ReadDir(resolved)
			if err != nil {
				return nil, fmt.Errorf("list %s: %w", resolved, err)
			}
			entries := make([]map[string]interface{}, 0, len(dirents))
			for _, e := range dirents {
				kind := "file"
				if e.IsDir() {
					kind = "dir"
				}
				entries = append(entries, map[string]interface{}{
					"name": e.Name(),
					"type": kind,
				})
			}
			sort.Slice(entries, func(i, j int) bool {
				ti, tj := entries[i]["type"].(string), entries[j]["type"].(string)
				if ti != tj {
					return ti == "dir"
				}
				return entries[i]["name"].(string) < entries[j]["name"].(string)
			})
			return map[string]interface{}{
				"path":    resolved,
				"entries": entries,
			}, nil
		},
	)
}
