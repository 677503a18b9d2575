package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/sale-promotion/internal/model"
)

// EventLedgerRepository 通知账本：event_id 只能被认领一次
type EventLedgerRepository interface {
	// Claim INSERT ... ON CONFLICT (event_id) DO NOTHING，返回是否首个认领者
	Claim(ctx context.Context, e *model.EventLedgerEntry) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
	MarkErrored(ctx context.Context, eventID, message string) error
	Get(ctx context.Context, eventID string) (*model.EventLedgerEntry, error)
	// ListUnprocessed 未处理（含出错）条目，按创建时间升序
	ListUnprocessed(ctx context.Context, offset, limit int) ([]*model.EventLedgerEntry, int64, error)
	// BeginReplay 乐观锁：attempts 与期望值一致才自增并清空错误
	BeginReplay(ctx context.Context, eventID string, expectedAttempts int) (bool, error)
}

type eventLedgerRepository struct {
	db *gorm.DB
}

func NewEventLedgerRepository(db *gorm.DB) EventLedgerRepository {
	return &eventLedgerRepository{db: db}
}

func (r *eventLedgerRepository) Claim(ctx context.Context, e *model.EventLedgerEntry) (bool, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Attempts == 0 {
		e.Attempts = 1
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(e)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *eventLedgerRepository) MarkProcessed(ctx context.Context, eventID string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&model.EventLedgerEntry{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"processed_at":  now,
			"error_message": gorm.Expr("NULL"),
		}).Error
}

func (r *eventLedgerRepository) MarkErrored(ctx context.Context, eventID, message string) error {
	return r.db.WithContext(ctx).
		Model(&model.EventLedgerEntry{}).
		Where("event_id = ? AND processed_at IS NULL", eventID).
		Update("error_message", message).Error
}

func (r *eventLedgerRepository) Get(ctx context.Context, eventID string) (*model.EventLedgerEntry, error) {
	var e model.EventLedgerEntry
	if err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&e).Error; err != nil {
		return nil, mapErr(err)
	}
	return &e, nil
}

func (r *eventLedgerRepository) ListUnprocessed(ctx context.Context, offset, limit int) ([]*model.EventLedgerEntry, int64, error) {
	q := r.db.WithContext(ctx).
		Model(&model.EventLedgerEntry{}).
		Where("processed_at IS NULL").
		Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var res []*model.EventLedgerEntry
	err := q.Order("created_at ASC").Offset(offset).Limit(limit).Find(&res).Error
	return res, total, err
}

func (r *eventLedgerRepository) BeginReplay(ctx context.Context, eventID string, expectedAttempts int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.EventLedgerEntry{}).
		Where("event_id = ? AND processed_at IS NULL AND attempts = ?", eventID, expectedAttempts).
		Updates(map[string]interface{}{
			"attempts":      gorm.Expr("attempts + 1"),
			"error_message": gorm.Expr("NULL"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
