package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/sale-promotion/internal/model"
)

// PromotionRepository 推广仓储接口；状态变更均为带条件的更新
type PromotionRepository interface {
	Create(ctx context.Context, p *model.Promotion) error
	GetByID(ctx context.Context, id string) (*model.Promotion, error)
	// FindPendingByDraftKey 查找该草稿已有 session 的 pending 推广
	FindPendingByDraftKey(ctx context.Context, draftKey string) (*model.Promotion, error)
	SetCheckoutSession(ctx context.Context, id, sessionID, checkoutURL string) error
	Cancel(ctx context.Context, id string) (bool, error)
	// Activate 条件：status=pending AND sale_id IS NULL；同时清空 draft_key
	Activate(ctx context.Context, id, saleID string) (bool, error)
}

type promotionRepository struct {
	db *gorm.DB
}

func NewPromotionRepository(db *gorm.DB) PromotionRepository {
	return &promotionRepository{db: db}
}

func (r *promotionRepository) Create(ctx context.Context, p *model.Promotion) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = model.PromotionStatusPending
	}
	return mapErr(r.db.WithContext(ctx).Create(p).Error)
}

func (r *promotionRepository) GetByID(ctx context.Context, id string) (*model.Promotion, error) {
	var p model.Promotion
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (r *promotionRepository) FindPendingByDraftKey(ctx context.Context, draftKey string) (*model.Promotion, error) {
	var p model.Promotion
	err := r.db.WithContext(ctx).
		Where("draft_key = ? AND status = ? AND sale_id IS NULL AND checkout_session_id IS NOT NULL",
			draftKey, model.PromotionStatusPending).
		Order("created_at DESC").
		First(&p).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (r *promotionRepository) SetCheckoutSession(ctx context.Context, id, sessionID, checkoutURL string) error {
	res := r.db.WithContext(ctx).
		Model(&model.Promotion{}).
		Where("id = ? AND status = ?", id, model.PromotionStatusPending).
		Updates(map[string]interface{}{
			"checkout_session_id": sessionID,
			"checkout_url":        checkoutURL,
		})
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *promotionRepository) Cancel(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Promotion{}).
		Where("id = ? AND status = ? AND sale_id IS NULL", id, model.PromotionStatusPending).
		Update("status", model.PromotionStatusCanceled)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *promotionRepository) Activate(ctx context.Context, id, saleID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Promotion{}).
		Where("id = ? AND status = ? AND sale_id IS NULL", id, model.PromotionStatusPending).
		Updates(map[string]interface{}{
			"sale_id":   saleID,
			"status":    model.PromotionStatusActive,
			"draft_key": gorm.Expr("NULL"),
		})
	if res.Error != nil {
		return false, mapErr(res.Error)
	}
	return res.RowsAffected == 1, nil
}
