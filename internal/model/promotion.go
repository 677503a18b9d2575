package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Promotion 付费推广意图，连接 Draft 与 Sale
// 状态：pending -> active | canceled，active 不可回退
type Promotion struct {
	ID                string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OwnerID           string          `json:"owner_id" gorm:"type:varchar(36);index;not null"`
	DraftKey          *string         `json:"draft_key,omitempty" gorm:"type:varchar(64);index"`
	SaleID            *string         `json:"sale_id,omitempty" gorm:"type:varchar(36);uniqueIndex"`
	Status            string          `json:"status" gorm:"type:varchar(16);index;not null"`
	Tier              string          `json:"tier" gorm:"type:varchar(32);not null"`
	Amount            decimal.Decimal `json:"amount" gorm:"type:numeric(12,2);not null"`
	Currency          string          `json:"currency" gorm:"type:varchar(8);not null"`
	CheckoutSessionID *string         `json:"checkout_session_id,omitempty" gorm:"type:varchar(128);uniqueIndex"`
	CheckoutURL       string          `json:"checkout_url,omitempty" gorm:"type:text"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (Promotion) TableName() string { return "promotions" }

const (
	PromotionStatusPending  = "pending"
	PromotionStatusActive   = "active"
	PromotionStatusCanceled = "canceled"
)
