package entity

import "time"

// Project 项目及其上下文层
//
// Brief is human-authored and never auto-edited. Summary is the compacted
// history tier owned by the context manager.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Brief     string    `json:"brief,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HistoryRole 历史记录角色
type HistoryRole string

const (
	RoleUser  HistoryRole = "user"
	RoleAgent HistoryRole = "agent"
	RoleTool  HistoryRole = "tool"
)

// HistoryEntry 项目会话历史中的一行
//
// Rows are append-only within the recent window and deleted (not archived)
// when folded into the project summary.
type HistoryEntry struct {
	ID        string      `json:"id"`
	ProjectID string      `json:"project_id"`
	Role      HistoryRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}
