package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/germinal-ai/germinal/internal/domain/entity"
	"github.com/germinal-ai/germinal/internal/domain/repository"
	"github.com/germinal-ai/germinal/internal/infrastructure/persistence/models"
	domainErrors "github.com/germinal-ai/germinal/pkg/errors"
)

// GormTaskRepository GORM 实现的任务仓储
type GormTaskRepository struct {
	db *gorm.DB
}

// NewGormTaskRepository 创建 GORM 任务仓储
func NewGormTaskRepository(db *gorm.DB) repository.TaskRepository {
	return &GormTaskRepository{db: db}
}

// Insert 插入任务
func (r *GormTaskRepository) Insert(ctx context.Context, task *entity.Task) error {
	if err := r.db.WithContext(ctx).Create(r.toModel(task)).Error; err != nil {
		return domainErrors.NewInternalError("failed to insert task: " + err.Error())
	}
	return nil
}

// Update 更新任务字段
func (r *GormTaskRepository) Update(ctx context.Context, task *entity.Task) error {
	result := r.db.WithContext(ctx).
		Model(&models.TaskModel{}).
		Where("id = ?", task.ID).
		Updates(map[string]interface{}{
			"title":       task.Title,
			"description": task.Description,
			"priority":    task.Priority,
			"status":      string(task.Status),
			"updated_at":  task.UpdatedAt,
		})
	if result.Error != nil {
		return domainErrors.NewInternalError("failed to update task: " + result.Error.Error())
	}
	if result.RowsAffected == 0 {
		return domainErrors.NewNotFoundError("task not found")
	}
	return nil
}

// FindByID 根据ID查找任务
func (r *GormTaskRepository) FindByID(ctx context.Context, id string) (*entity.Task, error) {
	var model models.TaskModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("task not found")
		}
		return nil, domainErrors.NewInternalError("failed to find task: " + err.Error())
	}
	return r.toEntity(&model), nil
}

// List 按过滤条件列出任务 (priority ASC, created_at ASC)
func (r *GormTaskRepository) List(ctx context.Context, filter repository.TaskFilter) ([]*entity.Task, error) {
	q := r.db.WithContext(ctx).Model(&models.TaskModel{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.ProjectID != "" {
		q = q.Where("project_id = ?", filter.ProjectID)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var rows []models.TaskModel
	if err := q.Order("priority ASC, created_at ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, domainErrors.NewInternalError("failed to list tasks: " + err.Error())
	}

	tasks := make([]*entity.Task, 0, len(rows))
	for i := range rows {
		tasks = append(tasks, r.toEntity(&rows[i]))
	}
	return tasks, nil
}

// Count 统计任务总数
func (r *GormTaskRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.TaskModel{}).Count(&count).Error; err != nil {
		return 0, domainErrors.NewInternalError("failed to count tasks: " + err.Error())
	}
	return count, nil
}

// 转换方法

func (r *GormTaskRepository) toModel(task *entity.Task) *models.TaskModel {
	return &models.TaskModel{
		ID:          task.ID,
		ProjectID:   task.ProjectID,
		Title:       task.Title,
		Description: task.Description,
		Source:      task.Source,
		Priority:    task.Priority,
		Status:      string(task.Status),
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}
}

func (r *GormTaskRepository) toEntity(model *models.TaskModel) *entity.Task {
	return &entity.Task{
		ID:          model.ID,
		ProjectID:   model.ProjectID,
		Title:       model.Title,
		Description: model.Description,
		Source:      model.Source,
		Priority:    model.Priority,
		Status:      entity.TaskStatus(model.Status),
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}
