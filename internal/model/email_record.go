package model

import (
	"time"

	"gorm.io/datatypes"
)

// EmailSendRecord 邮件发送记录，dedupe_key 唯一；sent 不会被降级
type EmailSendRecord struct {
	ID           string            `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OwnerID      string            `json:"owner_id" gorm:"type:varchar(36);index:idx_email_owner_type"`
	EmailType    string            `json:"email_type" gorm:"type:varchar(64);index:idx_email_owner_type;not null"`
	DedupeKey    string            `json:"dedupe_key" gorm:"type:varchar(191);uniqueIndex;not null"`
	Status       string            `json:"status" gorm:"type:varchar(16);not null"`
	ErrorMessage *string           `json:"error_message,omitempty" gorm:"type:text"`
	Metadata     datatypes.JSONMap `json:"metadata"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func (EmailSendRecord) TableName() string { return "email_send_records" }

const (
	EmailStatusSent   = "sent"
	EmailStatusFailed = "failed"

	EmailTypeSaleCreated = "sale_created"
)
