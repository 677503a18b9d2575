package service

import (
	"strings"

	"github.com/shopspring/decimal"
)

// TierPrices 推广档位 -> 价格
type TierPrices map[string]decimal.Decimal

func (t TierPrices) Known(tier string) bool {
	_, ok := t[strings.ToLower(tier)]
	return ok
}

func (t TierPrices) Price(tier string) (decimal.Decimal, bool) {
	p, ok := t[strings.ToLower(tier)]
	return p, ok
}
