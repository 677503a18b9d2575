package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/d60-Lab/sale-promotion/internal/model"
)

// DraftRepository 草稿仓储接口
type DraftRepository interface {
	Create(ctx context.Context, d *model.Draft) error
	GetByKey(ctx context.Context, draftKey string) (*model.Draft, error)
	// UpdatePayload 仅更新属于 owner 且仍为 active 的草稿
	UpdatePayload(ctx context.Context, draftKey, ownerID string, payload []byte) (bool, error)
	// DeleteByKey 幂等删除 owner 的草稿，返回本次是否真正删除了行
	DeleteByKey(ctx context.Context, draftKey, ownerID string) (bool, error)
}

type draftRepository struct {
	db *gorm.DB
}

func NewDraftRepository(db *gorm.DB) DraftRepository { return &draftRepository{db: db} }

func (r *draftRepository) Create(ctx context.Context, d *model.Draft) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Status == "" {
		d.Status = model.DraftStatusActive
	}
	d.ContentHash = model.HashPayload(d.Payload)
	return mapErr(r.db.WithContext(ctx).Create(d).Error)
}

func (r *draftRepository) GetByKey(ctx context.Context, draftKey string) (*model.Draft, error) {
	var d model.Draft
	if err := r.db.WithContext(ctx).Where("draft_key = ?", draftKey).First(&d).Error; err != nil {
		return nil, mapErr(err)
	}
	return &d, nil
}

func (r *draftRepository) UpdatePayload(ctx context.Context, draftKey, ownerID string, payload []byte) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Draft{}).
		Where("draft_key = ? AND owner_id = ? AND status = ?", draftKey, ownerID, model.DraftStatusActive).
		Updates(map[string]interface{}{
			"payload":      datatypes.JSON(payload),
			"content_hash": model.HashPayload(payload),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *draftRepository) DeleteByKey(ctx context.Context, draftKey, ownerID string) (bool, error) {
	res := r.db.WithContext(ctx).Where("draft_key = ? AND owner_id = ?", draftKey, ownerID).Delete(&model.Draft{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
