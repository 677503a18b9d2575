package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/sale-promotion/internal/model"
)

// SaleRepository 已发布 listing 仓储接口
type SaleRepository interface {
	// CreateWithItems 在一个事务内写入 sale 与 items。
	// draft_key 已有同一 owner 的 sale 时不插入，回填已存在的 sale 并返回 created=false；
	// 属于其他 owner 时返回 ErrKeyTaken
	CreateWithItems(ctx context.Context, s *model.Sale) (created bool, err error)
	GetByID(ctx context.Context, id string) (*model.Sale, error)
	GetByDraftKey(ctx context.Context, draftKey string) (*model.Sale, error)
}

type saleRepository struct {
	db *gorm.DB
}

func NewSaleRepository(db *gorm.DB) SaleRepository { return &saleRepository{db: db} }

func (r *saleRepository) CreateWithItems(ctx context.Context, s *model.Sale) (bool, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Status == "" {
		s.Status = model.SaleStatusPublished
	}
	items := s.Items

	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "draft_key"}}, DoNothing: true}).
			Create(s)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var existing model.Sale
			if err := tx.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
				Where("draft_key = ?", s.DraftKey).First(&existing).Error; err != nil {
				return err
			}
			if existing.OwnerID != s.OwnerID {
				return ErrKeyTaken
			}
			*s = existing
			return nil
		}

		for i := range items {
			if items[i].ID == "" {
				items[i].ID = uuid.New().String()
			}
			items[i].SaleID = s.ID
			items[i].Position = i
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		s.Items = items
		created = true
		return nil
	})
	if err != nil {
		return false, mapErr(err)
	}
	return created, nil
}

func (r *saleRepository) GetByID(ctx context.Context, id string) (*model.Sale, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *saleRepository) GetByDraftKey(ctx context.Context, draftKey string) (*model.Sale, error) {
	return r.first(ctx, "draft_key = ?", draftKey)
}

func (r *saleRepository) first(ctx context.Context, query string, arg interface{}) (*model.Sale, error) {
	var s model.Sale
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Where(query, arg).
		First(&s).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}
