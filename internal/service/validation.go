package service

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/d60-Lab/sale-promotion/internal/model"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeListing 解析并校验草稿 payload 中的 listing 字段
func DecodeListing(payload []byte) (*model.ListingPayload, error) {
	if len(payload) == 0 {
		return nil, validationErr("empty draft payload")
	}
	var l model.ListingPayload
	if err := json.Unmarshal(payload, &l); err != nil {
		return nil, validationErr("malformed draft payload: %v", err)
	}
	l.Title = strings.TrimSpace(l.Title)
	l.Address = strings.TrimSpace(l.Address)
	if err := validate.Struct(&l); err != nil {
		return nil, validationErr("%s", describe(err))
	}
	return &l, nil
}

func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		ns := fe.Namespace()
		if i := strings.Index(ns, "."); i >= 0 {
			ns = ns[i+1:]
		}
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", ns, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", ns, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

func buildSale(d *model.Draft, l *model.ListingPayload, promotionID *string, featured bool) *model.Sale {
	s := &model.Sale{
		OwnerID:     d.OwnerID,
		DraftKey:    d.DraftKey,
		PromotionID: promotionID,
		Title:       l.Title,
		Description: l.Description,
		Address:     l.Address,
		Latitude:    l.Latitude,
		Longitude:   l.Longitude,
		StartsAt:    l.StartsAt.UTC(),
		EndsAt:      l.EndsAt.UTC(),
		IsFeatured:  featured,
		Status:      model.SaleStatusPublished,
	}
	s.Items = make([]model.SaleItem, len(l.Items))
	for i, it := range l.Items {
		s.Items[i] = model.SaleItem{
			Position:    i,
			Name:        strings.TrimSpace(it.Name),
			Description: it.Description,
			Price:       it.Price,
		}
	}
	return s
}
