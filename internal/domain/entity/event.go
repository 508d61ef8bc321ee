package entity

import "time"

// EventStatus 事件状态
type EventStatus string

const (
	EventPending    EventStatus = "pending"
	EventProcessing EventStatus = "processing"
	EventDone       EventStatus = "done"
	EventFailed     EventStatus = "failed"
)

// Priority bounds. 1 is the most urgent, 10 the least; lower dequeues first.
const (
	PriorityHighest = 1
	PriorityDefault = 5
	PriorityLowest  = 10
)

// Event 事件队列中的一条记录
//
// The ID is deterministic over (source, canonical payload, hour bucket), so
// an identical event pushed twice within the same hour collapses to one row.
type Event struct {
	ID          string                 `json:"id"`
	Source      string                 `json:"source"`
	Type        string                 `json:"type"`
	ProjectID   string                 `json:"project_id,omitempty"`
	Priority    int                    `json:"priority"`
	Payload     map[string]interface{} `json:"payload"`
	Status      EventStatus            `json:"status"`
	CreatedAt   time.Time              `json:"created_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
}
