package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/germinal-ai/germinal/internal/domain/entity"
	"github.com/germinal-ai/germinal/internal/domain/repository"
	"github.com/germinal-ai/germinal/internal/infrastructure/persistence/models"
	domainErrors "github.com/germinal-ai/germinal/pkg/errors"
)

// GormEventRepository GORM 实现的事件仓储
type GormEventRepository struct {
	db *gorm.DB
}

// NewGormEventRepository 创建 GORM 事件仓储
func NewGormEventRepository(db *gorm.DB) repository.EventRepository {
	return &GormEventRepository{db: db}
}

// Insert 插入事件; 主键冲突时静默忽略, 实现小时级去重
func (r *GormEventRepository) Insert(ctx context.Context, event *entity.Event) error {
	model, err := r.toModel(event)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model).Error
	if err != nil {
		return domainErrors.NewInternalError("failed to insert event: " + err.Error())
	}
	return nil
}

// FindByID 根据ID查找事件
func (r *GormEventRepository) FindByID(ctx context.Context, id string) (*entity.Event, error) {
	var model models.EventModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("event not found")
		}
		return nil, domainErrors.NewInternalError("failed to find event: " + err.Error())
	}
	return r.toEntity(&model)
}

// NextPending returns the highest-priority pending event, or nil when the
// queue is empty. Equal priorities are FIFO by created_at.
func (r *GormEventRepository) NextPending(ctx context.Context) (*entity.Event, error) {
	var model models.EventModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(entity.EventPending)).
		Order("priority ASC, created_at ASC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, domainErrors.NewInternalError("failed to read queue: " + err.Error())
	}
	return r.toEntity(&model)
}

// MarkProcessing 将事件置为 processing
func (r *GormEventRepository) MarkProcessing(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).
		Model(&models.EventModel{}).
		Where("id = ?", id).
		Update("status", string(entity.EventProcessing)).Error
	if err != nil {
		return domainErrors.NewInternalError("failed to mark event processing: " + err.Error())
	}
	return nil
}

// MarkProcessed 终态迁移并记录处理时间
func (r *GormEventRepository) MarkProcessed(ctx context.Context, id string, status entity.EventStatus, processedAt time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&models.EventModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       string(status),
			"processed_at": processedAt,
		}).Error
	if err != nil {
		return domainErrors.NewInternalError("failed to mark event processed: " + err.Error())
	}
	return nil
}

// ResetStale 崩溃恢复: processing → pending
func (r *GormEventRepository) ResetStale(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.EventModel{}).
		Where("status = ?", string(entity.EventProcessing)).
		Update("status", string(entity.EventPending))
	if result.Error != nil {
		return 0, domainErrors.NewInternalError("failed to reset stale events: " + result.Error.Error())
	}
	return result.RowsAffected, nil
}

// List 按过滤条件列出事件 (最新优先)
func (r *GormEventRepository) List(ctx context.Context, filter repository.EventFilter) ([]*entity.Event, error) {
	q := r.db.WithContext(ctx).Model(&models.EventModel{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Source != "" {
		q = q.Where("source = ?", filter.Source)
	}
	if filter.ProjectID != "" {
		q = q.Where("project_id = ?", filter.ProjectID)
	}
	if filter.Search != "" {
		q = q.Where("payload LIKE ?", "%"+filter.Search+"%")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var rows []models.EventModel
	if err := q.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, domainErrors.NewInternalError("failed to list events: " + err.Error())
	}

	events := make([]*entity.Event, 0, len(rows))
	for i := range rows {
		ev, err := r.toEntity(&rows[i])
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// Count 统计事件总数
func (r *GormEventRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.EventModel{}).Count(&count).Error; err != nil {
		return 0, domainErrors.NewInternalError("failed to count events: " + err.Error())
	}
	return count, nil
}

// 转换方法

func (r *GormEventRepository) toModel(event *entity.Event) (*models.EventModel, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, domainErrors.NewInternalError("failed to marshal payload: " + err.Error())
	}
	return &models.EventModel{
		ID:          event.ID,
		Source:      event.Source,
		Type:        event.Type,
		ProjectID:   event.ProjectID,
		Priority:    event.Priority,
		Payload:     string(payload),
		Status:      string(event.Status),
		CreatedAt:   event.CreatedAt,
		ProcessedAt: event.ProcessedAt,
	}, nil
}

func (r *GormEventRepository) toEntity(model *models.EventModel) (*entity.Event, error) {
	var payload map[string]interface{}
	if model.Payload != "" {
		if err := json.Unmarshal([]byte(model.Payload), &payload); err != nil {
			// 载荷损坏时保留原始文本, 不中断流程
			payload = map[string]interface{}{"_raw": model.Payload}
		}
	}
	return &entity.Event{
		ID:          model.ID,
		Source:      model.Source,
		Type:        model.Type,
		ProjectID:   model.ProjectID,
		Priority:    model.Priority,
		Payload:     payload,
		Status:      entity.EventStatus(model.Status),
		CreatedAt:   model.CreatedAt,
		ProcessedAt: model.ProcessedAt,
	}, nil
}
