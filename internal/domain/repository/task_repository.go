package repository

import (
	"context"

	"github.com/germinal-ai/germinal/internal/domain/entity"
)

// TaskFilter 任务查询过滤条件
type TaskFilter struct {
	Status    string
	ProjectID string
	Limit     int
}

// TaskRepository 任务仓储接口
type TaskRepository interface {
	// Insert 插入任务
	Insert(ctx context.Context, task *entity.Task) error

	// Update 更新任务字段 (title/description/priority/status)
	Update(ctx context.Context, task *entity.Task) error

	// FindByID 根据ID查找任务
	FindByID(ctx context.Context, id string) (*entity.Task, error)

	// List 按过滤条件列出任务 (priority ASC, created_at ASC)
	List(ctx context.Context, filter TaskFilter) ([]*entity.Task, error)

	// Count 统计任务总数
	Count(ctx context.Context) (int64, error)
}
