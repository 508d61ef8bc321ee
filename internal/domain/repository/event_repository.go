package repository

import (
	"context"
	"time"

	"github.com/germinal-ai/germinal/internal/domain/entity"
)

// EventFilter 事件查询过滤条件
type EventFilter struct {
	Status    string
	Source    string
	ProjectID string
	Search    string // substring match on payload
	Limit     int
}

// EventRepository 事件仓储接口
type EventRepository interface {
	// Insert 插入事件; 主键冲突时静默忽略 (dedup)
	Insert(ctx context.Context, event *entity.Event) error

	// FindByID 根据ID查找事件
	FindByID(ctx context.Context, id string) (*entity.Event, error)

	// NextPending returns the single pending event ordered by
	// (priority ASC, created_at ASC), or nil when the queue is empty.
	NextPending(ctx context.Context) (*entity.Event, error)

	// MarkProcessing 将事件置为 processing
	MarkProcessing(ctx context.Context, id string) error

	// MarkProcessed 终态迁移 (done | failed) 并记录处理时间
	MarkProcessed(ctx context.Context, id string, status entity.EventStatus, processedAt time.Time) error

	// ResetStale moves every processing row back to pending and returns the
	// number of rows touched. Called once at startup for crash recovery.
	ResetStale(ctx context.Context) (int64, error)

	// List 按过滤条件列出事件 (最新优先)
	List(ctx context.Context, filter EventFilter) ([]*entity.Event, error)

	// Count 统计事件总数
	Count(ctx context.Context) (int64, error)
}
