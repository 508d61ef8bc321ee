package repository

import (
	"context"
	"time"

	"github.com/germinal-ai/germinal/internal/domain/entity"
)

// ApprovalFilter 审批查询过滤条件
type ApprovalFilter struct {
	Response string // "approved" | "denied" | "pending" (no response yet)
	Limit    int
}

// ApprovalRepository 审批仓储接口
type ApprovalRepository interface {
	// Insert 插入审批请求 (必须先于提示展示)
	Insert(ctx context.Context, approval *entity.Approval) error

	// Respond 记录人工决定 (必须先于 gate 返回)
	Respond(ctx context.Context, id string, response entity.ApprovalResponse, respondedAt time.Time) error

	// FindByID 根据ID查找审批记录
	FindByID(ctx context.Context, id string) (*entity.Approval, error)

	// List 按过滤条件列出审批记录 (最新优先)
	List(ctx context.Context, filter ApprovalFilter) ([]*entity.Approval, error)

	// Count 统计审批总数
	Count(ctx context.Context) (int64, error)
}
