package service

import (
	"context"

	"gorm.io/datatypes"

	"github.com/d60-Lab/sale-promotion/internal/model"
	"github.com/d60-Lab/sale-promotion/internal/repository"
)

const saleCreatedDedupePrefix = "sale_created_promotion:"

// SaleCreatedDedupeKey 只由 payment id 决定
func SaleCreatedDedupeKey(paymentID string) string {
	return saleCreatedDedupePrefix + paymentID
}

type EmailOutcome struct {
	OwnerID   string
	EmailType string
	DedupeKey string
	Sent      bool
	Error     string
	Metadata  map[string]interface{}
}

// NotificationDedupe 每个逻辑支付最多发一封确认邮件
type NotificationDedupe interface {
	CanSend(ctx context.Context, ownerID, emailType, dedupeKey string) (bool, error)
	Record(ctx context.Context, o EmailOutcome) error
}

type notificationDedupe struct {
	records repository.EmailRecordRepository
}

func NewNotificationDedupe(records repository.EmailRecordRepository) NotificationDedupe {
	return &notificationDedupe{records: records}
}

func (d *notificationDedupe) CanSend(ctx context.Context, ownerID, emailType, dedupeKey string) (bool, error) {
	sent, err := d.records.HasSent(ctx, ownerID, emailType, dedupeKey)
	if err != nil {
		return false, err
	}
	return !sent, nil
}

func (d *notificationDedupe) Record(ctx context.Context, o EmailOutcome) error {
	rec := &model.EmailSendRecord{
		OwnerID:   o.OwnerID,
		EmailType: o.EmailType,
		DedupeKey: o.DedupeKey,
		Status:    model.EmailStatusSent,
		Metadata:  datatypes.JSONMap(o.Metadata),
	}
	if !o.Sent {
		rec.Status = model.EmailStatusFailed
		msg := o.Error
		rec.ErrorMessage = &msg
	}
	return d.records.Upsert(ctx, rec)
}
