package model

import (
	"time"

	"gorm.io/datatypes"
)

// EventLedgerEntry 外部通知账本，event_id 唯一（先插入后处理）
type EventLedgerEntry struct {
	ID           string            `json:"id" gorm:"primaryKey;type:varchar(36)"`
	EventID      string            `json:"event_id" gorm:"type:varchar(128);uniqueIndex;not null"`
	EventType    string            `json:"event_type" gorm:"type:varchar(64);not null"`
	PaymentID    string            `json:"payment_id" gorm:"type:varchar(128);index"`
	Metadata     datatypes.JSONMap `json:"metadata"`
	ProcessedAt  *time.Time        `json:"processed_at,omitempty" gorm:"index"`
	ErrorMessage *string           `json:"error_message,omitempty" gorm:"type:text"`
	Attempts     int               `json:"attempts" gorm:"not null;default:1"`
	CreatedAt    time.Time         `json:"created_at" gorm:"index"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func (EventLedgerEntry) TableName() string { return "event_ledger" }
