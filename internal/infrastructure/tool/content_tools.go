package tool

import (
	"fmt"
	"strings"

	domaintool "github.com/germinal-ai/germinal/internal/domain/tool"
)

// Content access tools read the large-content side channel in slices so an
// oversized stdin payload never has to enter the prompt wholesale.

// NewGetContentInfoTool 创建 get_content_info 工具
func NewGetContentInfoTool(store *ContentStore) *domaintool.Tool {
	return domaintool.MustNew(
		"get_content_info",
		"Report whether large input content is loaded, and its size in lines, characters, and estimated tokens.",
		noParamsSchema(),
		domaintool.RiskLow,
		func(params map[string]interface{}) (map[string]interface{}, error) {
			content, ok := store.Get()
			if !ok {
				return map[string]interface{}{"available": false}, nil
			}
			return map[string]interface{}{
				"available":        true,
				"name":             store.Name(),
				"total_lines":      len(store.Lines()),
				"total_chars":      len(content),
				"estimated_tokens": len(content) / 4,
			}, nil
		},
	)
}

// NewReadContentRangeTool 创建 read_content_range 工具
func NewReadContentRangeTool(store *ContentStore) *domaintool.Tool {
	return domaintool.MustNew(
		"read_content_range",
		"Read a line range from the loaded input content. Lines are 1-indexed; end_line is inclusive.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"start_line": map[string]interface{}{
					"type":        "integer",
					"minimum":     1,
					"description": "Starting line number (1-indexed). Default 1.",
				},
				"end_line": map[string]interface{}{
					"type":        "integer",
					"minimum":     1,
					"description": "Ending line number (inclusive). Defaults to end of content.",
				},
				"max_chars": map[string]interface{}{
					"type":        "integer",
					"minimum":     1,
					"description": "Maximum characters to return. Truncates if exceeded. Default 8000.",
				},
			},
			"additionalProperties": false,
		},
		domaintool.RiskLow,
		func(params map[string]interface{}) (map[string]interface{}, error) {
			lines := store.Lines()
			if lines == nil {
				return nil, fmt.Errorf("no large content loaded")
			}

			start := 1
			if n, ok := params["start_line"].(float64); ok {
				start = int(n)
			}
			end := len(lines)
			if n, ok := params["end_line"].(float64); ok {
				end = int(n)
			}
			maxChars := 8000
			if n, ok := params["max_chars"].(float64); ok {
				maxChars = int(n)
			}

			if start > len(lines) {
				return nil, fmt.Errorf("start_line %d beyond content (%d lines)", start, len(lines))
			}
			if end > len(lines) {
				end = len(lines)
			}
			if end < start {
				return nil, fmt.Errorf("end_line %d before start_line %d", end, start)
			}

			text := strings.Join(lines[start-1:end], "\n")
			truncated := false
			if len(text) > maxChars {
				text = text[:maxChars]
				truncated = true
			}
			return map[string]interface{}{
				"content":     text,
				"start_line":  start,
				"end_line":    end,
				"total_lines": len(lines),
				"truncated":   truncated,
			}, nil
		},
	)
}

// NewSearchContentTool 创建 search_content 工具
func NewSearchContentTool(store *ContentStore) *domaintool.Tool {
	return domaintool.MustNew(
		"search_content",
		"Search the loaded input content for a case-sensitive text pattern and return matching lines with context.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"pattern": map[string]interface{}{
					"type":        "string",
					"minLength":   1,
					"description": "Text pattern to search for (case-sensitive).",
				},
				"max_results": map[string]interface{}{
					"type":        "integer",
					"minimum":     1,
					"maximum":     100,
					"description": "Maximum matches to return. Default 20.",
				},
				"context_lines": map[string]interface{}{
					"type":        "integer",
					"minimum":     0,
					"maximum":     10,
					"description": "Lines of context around each match. Default 1.",
				},
			},
			"required":             []string{"pattern"},
			"additionalProperties": false,
		},
		domaintool.RiskLow,
		func(params map[string]interface{}) (map[string]interface{}, error) {
			lines := store.Lines()
			if lines == nil {
				return nil, fmt.Errorf("no large content loaded")
			}

			pattern, _ := params["pattern"].(string)
			maxResults := 20
			if n, ok := params["max_results"].(float64); ok {
				maxResults = int(n)
			}
			contextLines := 1
			if n, ok := params["context_lines"].(float64); ok {
				contextLines = int(n)
			}

			var matches []map[string]interface{}
			total := 0
			for i, line := range lines {
				if !strings.Contains(line, pattern) {
					continue
				}
				total++
				if len(matches) >= maxResults {
					continue
				}
				lo := i - contextLines
				if lo < 0 {
					lo = 0
				}
				hi := i + contextLines + 1
				if hi > len(lines) {
					hi = len(lines)
				}
				matches = append(matches, map[string]interface{}{
					"line_number": i + 1,
					"content":     strings.Join(lines[lo:hi], "\n"),
				})
			}
			return map[string]interface{}{
				"matches":       matches,
				"total_matches": total,
				"truncated":     total > len(matches),
			}, nil
		},
	)
}
