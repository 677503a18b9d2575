package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale 已发布的 listing；draft_key 唯一，保证每个草稿只生成一个 sale
type Sale struct {
	ID          string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OwnerID     string     `json:"owner_id" gorm:"type:varchar(36);index;not null"`
	DraftKey    string     `json:"draft_key" gorm:"type:varchar(64);uniqueIndex;not null"`
	PromotionID *string    `json:"promotion_id,omitempty" gorm:"type:varchar(36);index"`
	Title       string     `json:"title" gorm:"type:varchar(120);not null"`
	Description string     `json:"description" gorm:"type:text"`
	Address     string     `json:"address" gorm:"type:varchar(255);not null"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
	StartsAt    time.Time  `json:"starts_at" gorm:"not null"`
	EndsAt      time.Time  `json:"ends_at" gorm:"not null"`
	IsFeatured  bool       `json:"is_featured" gorm:"not null;default:false"`
	Status      string     `json:"status" gorm:"type:varchar(16);not null"`
	Items       []SaleItem `json:"items,omitempty" gorm:"foreignKey:SaleID"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Sale) TableName() string { return "sales" }

const SaleStatusPublished = "published"

// SaleItem 商品条目，随 sale 一起写入
type SaleItem struct {
	ID          string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SaleID      string          `json:"sale_id" gorm:"type:varchar(36);index:idx_item_sale_pos,unique;not null"`
	Position    int             `json:"position" gorm:"index:idx_item_sale_pos,unique;not null"`
	Name        string          `json:"name" gorm:"type:varchar(120);not null"`
	Description string          `json:"description" gorm:"type:text"`
	Price       decimal.Decimal `json:"price" gorm:"type:numeric(12,2);not null"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (SaleItem) TableName() string { return "sale_items" }
