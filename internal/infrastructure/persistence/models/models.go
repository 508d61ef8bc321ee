package models

import (
	"time"
)

// EventModel 数据库事件模型
type EventModel struct {
	ID          string `gorm:"primaryKey;size:80"`
	Source      string `gorm:"size:32;not null;index"`
	Type        string `gorm:"size:32;not null"`
	ProjectID   string `gorm:"size:64;index"`
	Priority    int    `gorm:"not null;index:idx_events_queue,priority:2"`
	Payload     string `gorm:"type:text;not null"`
	Status      string `gorm:"size:16;not null;index:idx_events_queue,priority:1"`
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// TableName 指定表名
func (EventModel) TableName() string {
	return "events"
}

// InvocationModel 数据库调用模型
type InvocationModel struct {
	ID         string `gorm:"primaryKey;size:64"`
	EventID    string `gorm:"size:80;index"`
	AgentType  string `gorm:"size:32;not null"`
	Model      string `gorm:"size:128;not null"`
	ProjectID  string `gorm:"size:64;index"`
	Context    string `gorm:"type:text"`
	Response   string `gorm:"type:text"`
	ToolCalls  string `gorm:"type:text"`
	Status     string `gorm:"size:16;not null;index"`
	StartedAt  time.Time
	FinishedAt *time.Time
}

// TableName 指定表名
func (InvocationModel) TableName() string {
	return "invocations"
}

// ToolCallModel 数据库工具调用模型
type ToolCallModel struct {
	ID           string `gorm:"primaryKey;size:64"`
	InvocationID string `gorm:"size:64;not null;index"`
	ToolName     string `gorm:"size:64;not null;index"`
	Parameters   string `gorm:"type:text;not null"`
	RiskLevel    string `gorm:"size:16;not null"`
	Result       *string `gorm:"type:text"` // nil while pending
	Status       string `gorm:"size:16;not null;index"`
	CreatedAt    time.Time
	ExecutedAt   *time.Time
}

// TableName 指定表名
func (ToolCallModel) TableName() string {
	return "tool_calls"
}

// ApprovalModel 数据库审批模型
type ApprovalModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	ToolCallID  string `gorm:"size:64;not null;index"`
	Prompt      string `gorm:"type:text;not null"`
	Response    string `gorm:"size:16"` // "" until the human answers
	CreatedAt   time.Time
	RespondedAt *time.Time
}

// TableName 指定表名
func (ApprovalModel) TableName() string {
	return "approvals"
}

// ProjectModel 数据库项目模型
type ProjectModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:128;not null"`
	Brief     string `gorm:"type:text"`
	Summary   string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定表名
func (ProjectModel) TableName() string {
	return "projects"
}

// HistoryModel 数据库历史模型
type HistoryModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	ProjectID string `gorm:"size:64;not null;index"`
	Role      string `gorm:"size:16;not null"`
	Content   string `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"index"`
}

// TableName 指定表名
func (HistoryModel) TableName() string {
	return "history"
}

// TaskModel 数据库任务模型
type TaskModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	ProjectID   string `gorm:"size:64;index"`
	Title       string `gorm:"size:256;not null"`
	Description string `gorm:"type:text"`
	Source      string `gorm:"size:64"`
	Priority    int    `gorm:"not null"`
	Status      string `gorm:"size:16;not null;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName 指定表名
func (TaskModel) TableName() string {
	return "tasks"
}
