package repository

import (
	"context"
	"time"

	"github.com/germinal-ai/germinal/internal/domain/entity"
)

// ToolCallFilter 工具调用查询过滤条件
type ToolCallFilter struct {
	Status       string
	InvocationID string
	ToolName     string
	Limit        int
}

// ToolCallRepository 工具调用仓储接口
type ToolCallRepository interface {
	// Insert 插入工具调用记录 (必须先于工具执行)
	Insert(ctx context.Context, tc *entity.ToolCall) error

	// UpdateResult 回写执行结果与终态 (executed | failed | denied)
	UpdateResult(ctx context.Context, id string, result map[string]interface{}, status entity.ToolCallStatus, executedAt time.Time) error

	// FindByID 根据ID查找工具调用
	FindByID(ctx context.Context, id string) (*entity.ToolCall, error)

	// List 按过滤条件列出工具调用 (最新优先)
	List(ctx context.Context, filter ToolCallFilter) ([]*entity.ToolCall, error)

	// Count 统计工具调用总数
	Count(ctx context.Context) (int64, error)
}
