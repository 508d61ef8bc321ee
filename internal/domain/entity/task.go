package entity

import "time"

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskOpen       TaskStatus = "open"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
	TaskCancelled  TaskStatus = "cancelled"
)

// Task 持久化的待办任务
type Task struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Source      string     `json:"source,omitempty"`
	Priority    int        `json:"priority"`
	Status      TaskStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
