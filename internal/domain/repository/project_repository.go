package repository

import (
	"context"
	"time"

	"github.com/germinal-ai/germinal/internal/domain/entity"
)

// ProjectRepository 项目仓储接口
type ProjectRepository interface {
	// InsertIgnore 幂等插入: 已存在时不覆盖 name/brief/summary
	InsertIgnore(ctx context.Context, project *entity.Project) error

	// FindByID 根据ID查找项目
	FindByID(ctx context.Context, id string) (*entity.Project, error)

	// UpdateSummary 更新项目摘要层
	UpdateSummary(ctx context.Context, id, summary string, updatedAt time.Time) error

	// List 列出全部项目
	List(ctx context.Context, limit int) ([]*entity.Project, error)

	// Count 统计项目总数
	Count(ctx context.Context) (int64, error)
}

// HistoryFilter 历史查询过滤条件
type HistoryFilter struct {
	Role  string
	Limit int
}

// HistoryRepository 会话历史仓储接口
type HistoryRepository interface {
	// Insert 追加一条历史记录
	Insert(ctx context.Context, entry *entity.HistoryEntry) error

	// FindByProject returns all history rows for a project ordered by
	// created_at; newestFirst flips the ordering.
	FindByProject(ctx context.Context, projectID string, newestFirst bool) ([]*entity.HistoryEntry, error)

	// ListByProject 按过滤条件列出历史 (germctl 使用)
	ListByProject(ctx context.Context, projectID string, filter HistoryFilter) ([]*entity.HistoryEntry, error)

	// FoldIntoSummary deletes the given history rows and replaces the
	// project's summary in a single transaction. Compaction must never leave
	// the summary updated with the rows still present, or vice versa.
	FoldIntoSummary(ctx context.Context, projectID string, entryIDs []string, summary string, updatedAt time.Time) error

	// Count 统计历史总数
	Count(ctx context.Context) (int64, error)
}
