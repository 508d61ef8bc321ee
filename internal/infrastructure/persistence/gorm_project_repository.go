package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/germinal-ai/germinal/internal/domain/entity"
	"github.com/germinal-ai/germinal/internal/domain/repository"
	"github.com/germinal-ai/germinal/internal/infrastructure/persistence/models"
	domainErrors "github.com/germinal-ai/germinal/pkg/errors"
)

// GormProjectRepository GORM 实现的项目仓储
type GormProjectRepository struct {
	db *gorm.DB
}

// NewGormProjectRepository 创建 GORM 项目仓储
func NewGormProjectRepository(db *gorm.DB) repository.ProjectRepository {
	return &GormProjectRepository{db: db}
}

// InsertIgnore 幂等插入; 已存在时不覆盖 name/brief/summary
func (r *GormProjectRepository) InsertIgnore(ctx context.Context, project *entity.Project) error {
	model := &models.ProjectModel{
		ID:        project.ID,
		Name:      project.Name,
		Brief:     project.Brief,
		Summary:   project.Summary,
		CreatedAt: project.CreatedAt,
		UpdatedAt: project.UpdatedAt,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model).Error
	if err != nil {
		return domainErrors.NewInternalError("failed to insert project: " + err.Error())
	}
	return nil
}

// FindByID 根据ID查找项目
func (r *GormProjectRepository) FindByID(ctx context.Context, id string) (*entity.Project, error) {
	var model models.ProjectModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("project not found")
		}
		return nil, domainErrors.NewInternalError("failed to find project: " + err.Error())
	}
	return projectToEntity(&model), nil
}

// UpdateSummary 更新项目摘要层
func (r *GormProjectRepository) UpdateSummary(ctx context.Context, id, summary string, updatedAt time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&models.ProjectModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"summary":    summary,
			"updated_at": updatedAt,
		}).Error
	if err != nil {
		return domainErrors.NewInternalError("failed to update summary: " + err.Error())
	}
	return nil
}

// List 列出全部项目
func (r *GormProjectRepository) List(ctx context.Context, limit int) ([]*entity.Project, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.ProjectModel
	if err := r.db.WithContext(ctx).Order("created_at ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, domainErrors.NewInternalError("failed to list projects: " + err.Error())
	}
	projects := make([]*entity.Project, 0, len(rows))
	for i := range rows {
		projects = append(projects, projectToEntity(&rows[i]))
	}
	return projects, nil
}

// Count 统计项目总数
func (r *GormProjectRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.ProjectModel{}).Count(&count).Error; err != nil {
		return 0, domainErrors.NewInternalError("failed to count projects: " + err.Error())
	}
	return count, nil
}

func projectToEntity(model *models.ProjectModel) *entity.Project {
	return &entity.Project{
		ID:        model.ID,
		Name:      model.Name,
		Brief:     model.Brief,
		Summary:   model.Summary,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

// GormHistoryRepository GORM 实现的历史仓储
type GormHistoryRepository struct {
	db *gorm.DB
}

// NewGormHistoryRepository 创建 GORM 历史仓储
func NewGormHistoryRepository(db *gorm.DB) repository.HistoryRepository {
	return &GormHistoryRepository{db: db}
}

// Insert 追加一条历史记录
func (r *GormHistoryRepository) Insert(ctx context.Context, entry *entity.HistoryEntry) error {
	model := &models.HistoryModel{
		ID:        entry.ID,
		ProjectID: entry.ProjectID,
		Role:      string(entry.Role),
		Content:   entry.Content,
		CreatedAt: entry.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return domainErrors.NewInternalError("failed to insert history entry: " + err.Error())
	}
	return nil
}

// FindByProject 返回项目全部历史
func (r *GormHistoryRepository) FindByProject(ctx context.Context, projectID string, newestFirst bool) ([]*entity.HistoryEntry, error) {
	order := "created_at ASC"
	if newestFirst {
		order = "created_at DESC"
	}
	var rows []models.HistoryModel
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order(order).
		Find(&rows).Error
	if err != nil {
		return nil, domainErrors.NewInternalError("failed to find history: " + err.Error())
	}
	return historyToEntities(rows), nil
}

// ListByProject 按过滤条件列出历史
func (r *GormHistoryRepository) ListByProject(ctx context.Context, projectID string, filter repository.HistoryFilter) ([]*entity.HistoryEntry, error) {
	q := r.db.WithContext(ctx).Where("project_id = ?", projectID)
	if filter.Role != "" {
		q = q.Where("role = ?", filter.Role)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var rows []models.HistoryModel
	if err := q.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, domainErrors.NewInternalError("failed to list history: " + err.Error())
	}
	return historyToEntities(rows), nil
}

// FoldIntoSummary 单事务内删除已压缩的行并替换项目摘要
func (r *GormHistoryRepository) FoldIntoSummary(ctx context.Context, projectID string, entryIDs []string, summary string, updatedAt time.Time) error {
	if len(entryIDs) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.HistoryModel{}, "id IN ?", entryIDs).Error; err != nil {
			return err
		}
		return tx.Model(&models.ProjectModel{}).
			Where("id = ?", projectID).
			Updates(map[string]interface{}{
				"summary":    summary,
				"updated_at": updatedAt,
			}).Error
	})
	if err != nil {
		return domainErrors.NewInternalError("failed to fold history into summary: " + err.Error())
	}
	return nil
}

// Count 统计历史总数
func (r *GormHistoryRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.HistoryModel{}).Count(&count).Error; err != nil {
		return 0, domainErrors.NewInternalError("failed to count history: " + err.Error())
	}
	return count, nil
}

func historyToEntities(rows []models.HistoryModel) []*entity.HistoryEntry {
	entries := make([]*entity.HistoryEntry, 0, len(rows))
	for i := range rows {
		m := &rows[i]
		entries = append(entries, &entity.HistoryEntry{
			ID:        m.ID,
			ProjectID: m.ProjectID,
			Role:      entity.HistoryRole(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return entries
}
