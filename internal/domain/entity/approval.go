package entity

import "time"

// ApprovalResponse 审批结果
type ApprovalResponse string

const (
	ApprovalApproved ApprovalResponse = "approved"
	ApprovalDenied   ApprovalResponse = "denied"
)

// Approval 人工审批记录
//
// Written before the prompt is shown and updated before the gate returns, so
// there is never a window where a high-risk tool ran without a DB record.
type Approval struct {
	ID          string           `json:"id"`
	ToolCallID  string           `json:"tool_call_id"`
	Prompt      string           `json:"prompt"`
	Response    ApprovalResponse `json:"response,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	RespondedAt *time.Time       `json:"responded_at,omitempty"`
}
