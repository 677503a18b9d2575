package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/sale-promotion/internal/model"
)

// EmailRecordRepository 邮件发送记录仓储接口
type EmailRecordRepository interface {
	HasSent(ctx context.Context, ownerID, emailType, dedupeKey string) (bool, error)
	// Upsert 按 dedupe_key 插入或更新，已是 sent 的行不会被覆盖
	Upsert(ctx context.Context, rec *model.EmailSendRecord) error
	GetByDedupeKey(ctx context.Context, dedupeKey string) (*model.EmailSendRecord, error)
}

type emailRecordRepository struct {
	db *gorm.DB
}

func NewEmailRecordRepository(db *gorm.DB) EmailRecordRepository {
	return &emailRecordRepository{db: db}
}

func (r *emailRecordRepository) HasSent(ctx context.Context, ownerID, emailType, dedupeKey string) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&model.EmailSendRecord{}).
		Where("owner_id = ? AND email_type = ? AND dedupe_key = ? AND status = ?",
			ownerID, emailType, dedupeKey, model.EmailStatusSent).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *emailRecordRepository) Upsert(ctx context.Context, rec *model.EmailSendRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedupe_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "error_message", "metadata", "updated_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Neq{Column: clause.Column{Table: model.EmailSendRecord{}.TableName(), Name: "status"}, Value: model.EmailStatusSent},
			}},
		}).
		Create(rec).Error
}

func (r *emailRecordRepository) GetByDedupeKey(ctx context.Context, dedupeKey string) (*model.EmailSendRecord, error) {
	var rec model.EmailSendRecord
	if err := r.db.WithContext(ctx).Where("dedupe_key = ?", dedupeKey).First(&rec).Error; err != nil {
		return nil, mapErr(err)
	}
	return &rec, nil
}
