package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"

	"github.com/d60-Lab/sale-promotion/internal/model"
	"github.com/d60-Lab/sale-promotion/internal/repository"
)

const maxDraftKeyLen = 64

// DraftService 草稿读写：首次保存创建，之后仅 owner 可在 active 状态下更新。
// 已发布过的 draft_key 永久保留，不能再建新草稿
type DraftService interface {
	Save(ctx context.Context, ownerID, draftKey string, payload json.RawMessage) (*model.Draft, bool, error)
	Get(ctx context.Context, ownerID, draftKey string) (*model.Draft, error)
}

type draftService struct {
	drafts repository.DraftRepository
	sales  repository.SaleRepository
}

func NewDraftService(drafts repository.DraftRepository, sales repository.SaleRepository) DraftService {
	return &draftService{drafts: drafts, sales: sales}
}

func (s *draftService) Save(ctx context.Context, ownerID, draftKey string, payload json.RawMessage) (*model.Draft, bool, error) {
	draftKey = strings.TrimSpace(draftKey)
	if draftKey == "" || len(draftKey) > maxDraftKeyLen {
		return nil, false, validationErr("draft key must be 1-%d characters", maxDraftKeyLen)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil || obj == nil {
		return nil, false, validationErr("draft payload must be a JSON object")
	}

	d, err := s.drafts.GetByKey(ctx, draftKey)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		// 草稿只在 sale 写入之后删除，没有草稿行时只需查 sale
		if err := s.checkKeyUnpublished(ctx, draftKey); err != nil {
			return nil, false, err
		}
		d = &model.Draft{OwnerID: ownerID, DraftKey: draftKey, Payload: datatypes.JSON(payload)}
		err = s.drafts.Create(ctx, d)
		if err == nil {
			return d, true, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, false, fmt.Errorf("create draft: %w", err)
		}
		// 并发首存：退化为更新
		if d, err = s.drafts.GetByKey(ctx, draftKey); err != nil {
			return nil, false, fmt.Errorf("load draft: %w", err)
		}
	case err != nil:
		return nil, false, fmt.Errorf("load draft: %w", err)
	}

	if d.OwnerID != ownerID {
		return nil, false, ErrForbidden
	}
	if d.Status != model.DraftStatusActive {
		return nil, false, ErrDraftNotActive
	}
	ok, err := s.drafts.UpdatePayload(ctx, draftKey, ownerID, payload)
	if err != nil {
		return nil, false, fmt.Errorf("update draft: %w", err)
	}
	if !ok {
		// 更新前被发布或删除
		return nil, false, ErrDraftNotFound
	}
	d, err = s.drafts.GetByKey(ctx, draftKey)
	if err != nil {
		return nil, false, fmt.Errorf("load draft: %w", err)
	}
	return d, false, nil
}

func (s *draftService) checkKeyUnpublished(ctx context.Context, draftKey string) error {
	_, err := s.sales.GetByDraftKey(ctx, draftKey)
	switch {
	case err == nil:
		return fmt.Errorf("%w: key %q already published", ErrDraftNotActive, draftKey)
	case errors.Is(err, repository.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("load sale: %w", err)
	}
}

func (s *draftService) Get(ctx context.Context, ownerID, draftKey string) (*model.Draft, error) {
	d, err := s.drafts.GetByKey(ctx, draftKey)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrDraftNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	if d.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return d, nil
}
