package model

import (
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"
	"gorm.io/datatypes"
)

// Draft 未发布的 listing 草稿，draft_key 全局唯一
type Draft struct {
	ID          string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OwnerID     string         `json:"owner_id" gorm:"type:varchar(36);index:idx_draft_owner;not null"`
	DraftKey    string         `json:"draft_key" gorm:"type:varchar(64);uniqueIndex;not null"`
	Status      string         `json:"status" gorm:"type:varchar(16);not null;default:active"`
	Payload     datatypes.JSON `json:"payload" gorm:"not null"`
	ContentHash string         `json:"content_hash" gorm:"type:varchar(64)"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (Draft) TableName() string { return "drafts" }

const (
	DraftStatusActive   = "active"
	DraftStatusConsumed = "consumed"
)

// HashPayload blake2b-256 摘要，十六进制
func HashPayload(payload []byte) string {
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
