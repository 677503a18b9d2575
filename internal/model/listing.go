package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ListingPayload 草稿 payload 中的 listing 字段
type ListingPayload struct {
	Title       string        `json:"title" validate:"required,max=120"`
	Description string        `json:"description" validate:"max=5000"`
	Address     string        `json:"address" validate:"required,max=255"`
	Latitude    *float64      `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude   *float64      `json:"longitude,omitempty" validate:"omitempty,longitude"`
	StartsAt    time.Time     `json:"starts_at" validate:"required"`
	EndsAt      time.Time     `json:"ends_at" validate:"required,gtfield=StartsAt"`
	Items       []ListingItem `json:"items" validate:"required,min=1,max=200,dive"`
}

type ListingItem struct {
	Name        string          `json:"name" validate:"required,max=120"`
	Description string          `json:"description" validate:"max=1000"`
	Price       decimal.Decimal `json:"price" validate:"gte=0"`
}
