package repository

import (
	"context"
	"time"

	"github.com/germinal-ai/germinal/internal/domain/entity"
)

// InvocationFilter 调用查询过滤条件
type InvocationFilter struct {
	Status    string
	ProjectID string
	Search    string // substring match on response
	Limit     int
}

// InvocationRepository 调用仓储接口
type InvocationRepository interface {
	// Insert 插入一条 running 状态的调用记录
	Insert(ctx context.Context, inv *entity.Invocation) error

	// Finish 回写终态: response, tool_calls 摘要, status, finished_at
	Finish(ctx context.Context, id, response, toolCalls string, status entity.InvocationStatus, finishedAt time.Time) error

	// FindByID 根据ID查找调用
	FindByID(ctx context.Context, id string) (*entity.Invocation, error)

	// List 按过滤条件列出调用 (最新优先)
	List(ctx context.Context, filter InvocationFilter) ([]*entity.Invocation, error)

	// Count 统计调用总数
	Count(ctx context.Context) (int64, error)
}
