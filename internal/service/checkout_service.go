package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/d60-Lab/sale-promotion/internal/model"
	"github.com/d60-Lab/sale-promotion/internal/payment"
	"github.com/d60-Lab/sale-promotion/internal/repository"
	"github.com/d60-Lab/sale-promotion/pkg/logger"
	"github.com/d60-Lab/sale-promotion/pkg/metrics"
)

type PublishRequest struct {
	DraftKey       string
	WantsPromotion bool
	Tier           string
	CallerID       string
}

// PublishResult 立即发布只返回 SaleID；推广发布返回 checkout 信息
type PublishResult struct {
	SaleID      string `json:"saleId,omitempty"`
	CheckoutURL string `json:"checkoutUrl,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
	PromotionID string `json:"promotionId,omitempty"`
}

// CheckoutService 草稿发布入口
type CheckoutService interface {
	Publish(ctx context.Context, req PublishRequest) (*PublishResult, error)
}

type CheckoutDeps struct {
	Drafts      repository.DraftRepository
	Promotions  repository.PromotionRepository
	Sales       repository.SaleRepository
	Users       repository.UserRepository
	Payments    payment.Client
	Tiers       TierPrices
	DefaultTier string
	Currency    string
	Metrics     *metrics.Metrics
}

type checkoutService struct {
	CheckoutDeps
}

func NewCheckoutService(d CheckoutDeps) CheckoutService {
	if d.DefaultTier == "" {
		d.DefaultTier = "featured"
	}
	if d.Currency == "" {
		d.Currency = "usd"
	}
	return &checkoutService{CheckoutDeps: d}
}

func (s *checkoutService) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	path := "immediate"
	if req.WantsPromotion {
		path = "promoted"
	}
	res, err := s.publish(ctx, req)
	if err != nil {
		s.Metrics.Publish(path, "error")
		return nil, err
	}
	s.Metrics.Publish(path, "ok")
	return res, nil
}

func (s *checkoutService) publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	if strings.TrimSpace(req.DraftKey) == "" {
		return nil, validationErr("draftKey is required")
	}
	draft, err := s.Drafts.GetByKey(ctx, req.DraftKey)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrDraftNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	if draft.OwnerID != req.CallerID {
		return nil, ErrForbidden
	}
	if draft.Status != model.DraftStatusActive {
		return nil, ErrDraftNotActive
	}

	listing, err := DecodeListing(draft.Payload)
	if err != nil {
		return nil, err
	}

	if !req.WantsPromotion {
		return s.publishImmediate(ctx, draft, listing)
	}
	return s.publishPromoted(ctx, req, draft, listing)
}

func (s *checkoutService) publishImmediate(ctx context.Context, draft *model.Draft, listing *model.ListingPayload) (*PublishResult, error) {
	sale := buildSale(draft, listing, nil, false)
	created, err := s.Sales.CreateWithItems(ctx, sale)
	if errors.Is(err, repository.ErrKeyTaken) {
		logger.Warn("immediate publish: draft key owned by another sale", zap.String("draft_key", draft.DraftKey))
		return nil, fmt.Errorf("%w: key %q already published", ErrDraftNotActive, draft.DraftKey)
	}
	if err != nil {
		logger.Error("immediate publish: sale insert failed", zap.String("draft_key", draft.DraftKey), zap.Error(err))
		return nil, fmt.Errorf("create sale: %w", err)
	}
	if !created {
		logger.Info("immediate publish: sale already exists for draft", zap.String("draft_key", draft.DraftKey), zap.String("sale_id", sale.ID))
	}
	if _, err := s.Drafts.DeleteByKey(ctx, draft.DraftKey, draft.OwnerID); err != nil {
		logger.Error("immediate publish: draft delete failed", zap.String("draft_key", draft.DraftKey), zap.Error(err))
		return nil, fmt.Errorf("delete draft: %w", err)
	}
	return &PublishResult{SaleID: sale.ID}, nil
}

func (s *checkoutService) publishPromoted(ctx context.Context, req PublishRequest, draft *model.Draft, listing *model.ListingPayload) (*PublishResult, error) {
	tier := strings.ToLower(strings.TrimSpace(req.Tier))
	if tier == "" {
		tier = s.DefaultTier
	}
	price, ok := s.Tiers.Price(tier)
	if !ok {
		return nil, validationErr("unknown promotion tier %q", tier)
	}

	// 重复请求：复用已有 session
	existing, err := s.Promotions.FindPendingByDraftKey(ctx, draft.DraftKey)
	if err == nil && existing.OwnerID == req.CallerID && existing.CheckoutSessionID != nil {
		return &PublishResult{
			CheckoutURL: existing.CheckoutURL,
			SessionID:   *existing.CheckoutSessionID,
			PromotionID: existing.ID,
		}, nil
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find pending promotion: %w", err)
	}

	draftKey := draft.DraftKey
	promo := &model.Promotion{
		OwnerID:  req.CallerID,
		DraftKey: &draftKey,
		Status:   model.PromotionStatusPending,
		Tier:     tier,
		Amount:   price,
		Currency: s.Currency,
	}
	if err := s.Promotions.Create(ctx, promo); err != nil {
		logger.Error("promoted publish: promotion insert failed", zap.String("draft_key", draftKey), zap.Error(err))
		return nil, fmt.Errorf("create promotion: %w", err)
	}

	var email string
	if s.Users != nil {
		if u, err := s.Users.GetByID(ctx, req.CallerID); err == nil {
			email = u.Email
		}
	}

	session, err := s.Payments.CreateSession(ctx, payment.SessionRequest{
		IdempotencyKey: promo.ID,
		Amount:         price,
		Currency:       s.Currency,
		Description:    fmt.Sprintf("Promote listing: %s", listing.Title),
		CustomerEmail:  email,
		Metadata:       payment.Metadata{DraftKey: draftKey, PromotionID: promo.ID, Tier: tier},
	})
	if err != nil {
		s.cancel(ctx, promo, err)
		if !errors.Is(err, ErrProcessor) {
			err = fmt.Errorf("%w: %v", ErrProcessor, err)
		}
		return nil, err
	}

	if err := s.Promotions.SetCheckoutSession(ctx, promo.ID, session.ID, session.URL); err != nil {
		s.cancel(ctx, promo, err)
		return nil, fmt.Errorf("store checkout session: %w", err)
	}

	logger.Info("checkout session opened",
		zap.String("draft_key", draftKey),
		zap.String("promotion_id", promo.ID),
		zap.String("tier", tier),
	)
	return &PublishResult{CheckoutURL: session.URL, SessionID: session.ID, PromotionID: promo.ID}, nil
}

// cancel 会话失败时取消推广，草稿保持原样
func (s *checkoutService) cancel(ctx context.Context, promo *model.Promotion, cause error) {
	logger.Warn("checkout session failed, canceling promotion",
		zap.String("draft_key", *promo.DraftKey),
		zap.String("promotion_id", promo.ID),
		zap.Error(cause),
	)
	if _, err := s.Promotions.Cancel(context.WithoutCancel(ctx), promo.ID); err != nil {
		logger.Error("promotion cancel failed", zap.String("promotion_id", promo.ID), zap.Error(err))
	}
}
