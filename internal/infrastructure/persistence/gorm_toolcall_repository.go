package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/germinal-ai/germinal/internal/domain/entity"
	"github.com/germinal-ai/germinal/internal/domain/repository"
	"github.com/germinal-ai/germinal/internal/infrastructure/persistence/models"
	domainErrors "github.com/germinal-ai/germinal/pkg/errors"
)

// GormToolCallRepository GORM 实现的工具调用仓储
type GormToolCallRepository struct {
	db *gorm.DB
}

// NewGormToolCallRepository 创建 GORM 工具调用仓储
func NewGormToolCallRepository(db *gorm.DB) repository.ToolCallRepository {
	return &GormToolCallRepository{db: db}
}

// Insert 插入工具调用记录 (先于执行, result 为空)
func (r *GormToolCallRepository) Insert(ctx context.Context, tc *entity.ToolCall) error {
	model, err := r.toModel(tc)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return domainErrors.NewInternalError("failed to insert tool call: " + err.Error())
	}
	return nil
}

// UpdateResult 回写执行结果与终态
func (r *GormToolCallRepository) UpdateResult(ctx context.Context, id string, result map[string]interface{}, status entity.ToolCallStatus, executedAt time.Time) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return domainErrors.NewInternalError("failed to marshal tool result: " + err.Error())
	}
	err = r.db.WithContext(ctx).
		Model(&models.ToolCallModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"result":      string(raw),
			"status":      string(status),
			"executed_at": executedAt,
		}).Error
	if err != nil {
		return domainErrors.NewInternalError("failed to update tool call: " + err.Error())
	}
	return nil
}

// FindByID 根据ID查找工具调用
func (r *GormToolCallRepository) FindByID(ctx context.Context, id string) (*entity.ToolCall, error) {
	var model models.ToolCallModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("tool call not found")
		}
		return nil, domainErrors.NewInternalError("failed to find tool call: " + err.Error())
	}
	return r.toEntity(&model)
}

// List 按过滤条件列出工具调用 (最新优先)
func (r *GormToolCallRepository) List(ctx context.Context, filter repository.ToolCallFilter) ([]*entity.ToolCall, error) {
	q := r.db.WithContext(ctx).Model(&models.ToolCallModel{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.InvocationID != "" {
		q = q.Where("invocation_id = ?", filter.InvocationID)
	}
	if filter.ToolName != "" {
		q = q.Where("tool_name = ?", filter.ToolName)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var rows []models.ToolCallModel
	if err := q.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, domainErrors.NewInternalError("failed to list tool calls: " + err.Error())
	}

	calls := make([]*entity.ToolCall, 0, len(rows))
	for i := range rows {
		tc, err := r.toEntity(&rows[i])
		if err != nil {
			return nil, err
		}
		calls = append(calls, tc)
	}
	return calls, nil
}

// Count 统计工具调用总数
func (r *GormToolCallRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.ToolCallModel{}).Count(&count).Error; err != nil {
		return 0, domainErrors.NewInternalError("failed to count tool calls: " + err.Error())
	}
	return count, nil
}

// 转换方法

func (r *GormToolCallRepository) toModel(tc *entity.ToolCall) (*models.ToolCallModel, error) {
	params, err := json.Marshal(tc.Parameters)
	if err != nil {
		return nil, domainErrors.NewInternalError("failed to marshal parameters: " + err.Error())
	}
	model := &models.ToolCallModel{
		ID:           tc.ID,
		InvocationID: tc.InvocationID,
		ToolName:     tc.ToolName,
		Parameters:   string(params),
		RiskLevel:    tc.RiskLevel,
		Status:       string(tc.Status),
		CreatedAt:    tc.CreatedAt,
		ExecutedAt:   tc.ExecutedAt,
	}
	if tc.Result != nil {
		raw, err := json.Marshal(tc.Result)
		if err != nil {
			return nil, domainErrors.NewInternalError("failed to marshal result: " + err.Error())
		}
		s := string(raw)
		model.Result = &s
	}
	return model, nil
}

func (r *GormToolCallRepository) toEntity(model *models.ToolCallModel) (*entity.ToolCall, error) {
	var params map[string]interface{}
	if model.Parameters != "" {
		if err := json.Unmarshal([]byte(model.Parameters), &params); err != nil {
			params = map[string]interface{}{"_raw": model.Parameters}
		}
	}
	var result map[string]interface{}
	if model.Result != nil && *model.Result != "" {
		if err := json.Unmarshal([]byte(*model.Result), &result); err != nil {
			result = map[string]interface{}{"_raw": *model.Result}
		}
	}
	return &entity.ToolCall{
		ID:           model.ID,
		InvocationID: model.InvocationID,
		ToolName:     model.ToolName,
		Parameters:   params,
		RiskLevel:    model.RiskLevel,
		Result:       result,
		Status:       entity.ToolCallStatus(model.Status),
		CreatedAt:    model.CreatedAt,
		ExecutedAt:   model.ExecutedAt,
	}, nil
}
