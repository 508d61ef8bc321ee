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

// GormApprovalRepository GORM 实现的审批仓储
type GormApprovalRepository struct {
	db *gorm.DB
}

// NewGormApprovalRepository 创建 GORM 审批仓储
func NewGormApprovalRepository(db *gorm.DB) repository.ApprovalRepository {
	return &GormApprovalRepository{db: db}
}

// Insert 插入审批请求
func (r *GormApprovalRepository) Insert(ctx context.Context, approval *entity.Approval) error {
	model := &models.ApprovalModel{
		ID:          approval.ID,
		ToolCallID:  approval.ToolCallID,
		Prompt:      approval.Prompt,
		Response:    string(approval.Response),
		CreatedAt:   approval.CreatedAt,
		RespondedAt: approval.RespondedAt,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return domainErrors.NewInternalError("failed to insert approval: " + err.Error())
	}
	return nil
}

// Respond 记录人工决定
func (r *GormApprovalRepository) Respond(ctx context.Context, id string, response entity.ApprovalResponse, respondedAt time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&models.ApprovalModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"response":     string(response),
			"responded_at": respondedAt,
		}).Error
	if err != nil {
		return domainErrors.NewInternalError("failed to record approval response: " + err.Error())
	}
	return nil
}

// FindByID 根据ID查找审批记录
func (r *GormApprovalRepository) FindByID(ctx context.Context, id string) (*entity.Approval, error) {
	var model models.ApprovalModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("approval not found")
		}
		return nil, domainErrors.NewInternalError("failed to find approval: " + err.Error())
	}
	return r.toEntity(&model), nil
}

// List 按过滤条件列出审批记录 (最新优先)
func (r *GormApprovalRepository) List(ctx context.Context, filter repository.ApprovalFilter) ([]*entity.Approval, error) {
	q := r.db.WithContext(ctx).Model(&models.ApprovalModel{})
	switch filter.Response {
	case "":
	case "pending":
		q = q.Where("response = ?", "")
	default:
		q = q.Where("response = ?", filter.Response)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var rows []models.ApprovalModel
	if err := q.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, domainErrors.NewInternalError("failed to list approvals: " + err.Error())
	}

	approvals := make([]*entity.Approval, 0, len(rows))
	for i := range rows {
		approvals = append(approvals, r.toEntity(&rows[i]))
	}
	return approvals, nil
}

// Count 统计审批总数
func (r *GormApprovalRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.ApprovalModel{}).Count(&count).Error; err != nil {
		return 0, domainErrors.NewInternalError("failed to count approvals: " + err.Error())
	}
	return count, nil
}

func (r *GormApprovalRepository) toEntity(model *models.ApprovalModel) *entity.Approval {
	return &entity.Approval{
		ID:          model.ID,
		ToolCallID:  model.ToolCallID,
		Prompt:      model.Prompt,
		Response:    entity.ApprovalResponse(model.Response),
		CreatedAt:   model.CreatedAt,
		RespondedAt: model.RespondedAt,
	}
}
