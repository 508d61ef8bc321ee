package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/germinal-ai/germinal/internal/domain/entity"
	"github.com/germinal-ai/germinal/internal/domain/repository"
	"github.com/germinal-ai/germinal/internal/infrastructure/persistence/models"
	domainErrors "github.com/germinal-ai/germinal/pkg/errors"
)

// GormInvocationRepository GORM 实现的调用仓储
type GormInvocationRepository struct {
	db *gorm.DB
}

// NewGormInvocationRepository 创建 GORM 调用仓储
func NewGormInvocationRepository(db *gorm.DB) repository.InvocationRepository {
	return &GormInvocationRepository{db: db}
}

// Insert 插入一条 running 状态的调用记录
func (r *GormInvocationRepository) Insert(ctx context.Context, inv *entity.Invocation) error {
	model := r.toModel(inv)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return domainErrors.NewInternalError("failed to insert invocation: " + err.Error())
	}
	return nil
}

// Finish 回写终态
func (r *GormInvocationRepository) Finish(ctx context.Context, id, response, toolCalls string, status entity.InvocationStatus, finishedAt time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&models.InvocationModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"response":    response,
			"tool_calls":  toolCalls,
			"status":      string(status),
			"finished_at": finishedAt,
		}).Error
	if err != nil {
		return domainErrors.NewInternalError("failed to finish invocation: " + err.Error())
	}
	return nil
}

// FindByID 根据ID查找调用
func (r *GormInvocationRepository) FindByID(ctx context.Context, id string) (*entity.Invocation, error) {
	var model models.InvocationModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("invocation not found")
		}
		return nil, domainErrors.NewInternalError("failed to find invocation: " + err.Error())
	}
	return r.toEntity(&model), nil
}

// List 按过滤条件列出调用 (最新优先)
func (r *GormInvocationRepository) List(ctx context.Context, filter repository.InvocationFilter) ([]*entity.Invocation, error) {
	q := r.db.WithContext(ctx).Model(&models.InvocationModel{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.ProjectID != "" {
		q = q.Where("project_id = ?", filter.ProjectID)
	}
	if filter.Search != "" {
		q = q.Where("response LIKE ?", "%"+filter.Search+"%")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var rows []models.InvocationModel
	if err := q.Order("started_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, domainErrors.NewInternalError("failed to list invocations: " + err.Error())
	}

	invocations := make([]*entity.Invocation, 0, len(rows))
	for i := range rows {
		invocations = append(invocations, r.toEntity(&rows[i]))
	}
	return invocations, nil
}

// Count 统计调用总数
func (r *GormInvocationRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.InvocationModel{}).Count(&count).Error; err != nil {
		return 0, domainErrors.NewInternalError("failed to count invocations: " + err.Error())
	}
	return count, nil
}

// 转换方法

func (r *GormInvocationRepository) toModel(inv *entity.Invocation) *models.InvocationModel {
	return &models.InvocationModel{
		ID:         inv.ID,
		EventID:    inv.EventID,
		AgentType:  inv.AgentType,
		Model:      inv.Model,
		ProjectID:  inv.ProjectID,
		Context:    inv.Context,
		Response:   inv.Response,
		ToolCalls:  inv.ToolCalls,
		Status:     string(inv.Status),
		StartedAt:  inv.StartedAt,
		FinishedAt: inv.FinishedAt,
	}
}

func (r *GormInvocationRepository) toEntity(model *models.InvocationModel) *entity.Invocation {
	return &entity.Invocation{
		ID:         model.ID,
		EventID:    model.EventID,
		AgentType:  model.AgentType,
		Model:      model.Model,
		ProjectID:  model.ProjectID,
		Context:    model.Context,
		Response:   model.Response,
		ToolCalls:  model.ToolCalls,
		Status:     entity.InvocationStatus(model.Status),
		StartedAt:  model.StartedAt,
		FinishedAt: model.FinishedAt,
	}
}
