package entity

import "time"

// InvocationStatus 调用状态
type InvocationStatus string

const (
	InvocationRunning InvocationStatus = "running"
	InvocationDone    InvocationStatus = "done"
	InvocationFailed  InvocationStatus = "failed"
)

// Invocation 一次完整的 agent 调用记录
//
// Context holds the serialised message list sent to the model at iteration 0;
// ToolCalls holds a JSON summary of every tool call made during the run.
type Invocation struct {
	ID         string           `json:"id"`
	EventID    string           `json:"event_id,omitempty"`
	AgentType  string           `json:"agent_type"`
	Model      string           `json:"model"`
	ProjectID  string           `json:"project_id,omitempty"`
	Context    string           `json:"context"`
	Response   string           `json:"response"`
	ToolCalls  string           `json:"tool_calls"`
	Status     InvocationStatus `json:"status"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}
