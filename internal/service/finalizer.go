package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/d60-Lab/sale-promotion/internal/cache"
	"github.com/d60-Lab/sale-promotion/internal/model"
	"github.com/d60-Lab/sale-promotion/internal/notify"
	"github.com/d60-Lab/sale-promotion/internal/payment"
	"github.com/d60-Lab/sale-promotion/internal/repository"
	"github.com/d60-Lab/sale-promotion/pkg/errtrack"
	"github.com/d60-Lab/sale-promotion/pkg/logger"
	"github.com/d60-Lab/sale-promotion/pkg/metrics"
)

const emailDeliveryFailed = "email delivery failed"

var tracer = otel.Tracer("github.com/d60-Lab/sale-promotion/internal/service")

// PaymentEvent 处理器回调（已验签）
type PaymentEvent struct {
	EventID   string
	Type      string
	PaymentID string
	Metadata  map[string]interface{}
}

type Outcome string

const (
	OutcomeIgnored          Outcome = "ignored"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeFinalized        Outcome = "finalized"
	OutcomeAlreadyFinalized Outcome = "already_finalized"
	OutcomeDraftMissing     Outcome = "draft_missing"
	OutcomeFailed           Outcome = "failed"
)

type FinalizeResult struct {
	Outcome  Outcome `json:"outcome"`
	SaleID   string  `json:"sale_id,omitempty"`
	Notified bool    `json:"notified"`
}

// Finalizer 支付完成 -> 发布 sale。每一步都可安全跳过或重跑
type Finalizer interface {
	HandlePaymentEvent(ctx context.Context, ev PaymentEvent) (*FinalizeResult, error)
	// Replay 运维重放一条未处理的账本条目
	Replay(ctx context.Context, eventID string) (*FinalizeResult, error)
	ListUnprocessed(ctx context.Context, page, pageSize int) ([]*model.EventLedgerEntry, int64, error)
}

type FinalizerDeps struct {
	Ledger     repository.EventLedgerRepository
	Drafts     repository.DraftRepository
	Promotions repository.PromotionRepository
	Sales      repository.SaleRepository
	Users      repository.UserRepository
	Dedupe     NotificationDedupe
	Sender     notify.Sender
	Cache      *cache.ProcessedEvents
	Tiers      TierPrices
	Metrics    *metrics.Metrics
}

type finalizer struct {
	FinalizerDeps
}

func NewFinalizer(d FinalizerDeps) Finalizer {
	return &finalizer{FinalizerDeps: d}
}

func (f *finalizer) HandlePaymentEvent(ctx context.Context, ev PaymentEvent) (*FinalizeResult, error) {
	ctx, span := tracer.Start(ctx, "finalizer.HandlePaymentEvent", trace.WithAttributes(
		attribute.String("event.id", ev.EventID),
		attribute.String("event.type", ev.Type),
	))
	defer span.End()

	if strings.TrimSpace(ev.EventID) == "" {
		return nil, validationErr("event id is required")
	}
	if ev.Type != payment.EventCheckoutCompleted {
		f.Metrics.Finalized(string(OutcomeIgnored))
		return &FinalizeResult{Outcome: OutcomeIgnored}, nil
	}

	if f.Cache.IsProcessed(ctx, ev.EventID) {
		f.Metrics.Finalized(string(OutcomeDuplicate))
		return &FinalizeResult{Outcome: OutcomeDuplicate}, nil
	}

	meta, decodeErr := payment.DecodeMetadata(ev.Metadata, f.Tiers.Known)

	entry := &model.EventLedgerEntry{
		EventID:   ev.EventID,
		EventType: ev.Type,
		PaymentID: ev.PaymentID,
		Metadata:  datatypes.JSONMap(ev.Metadata),
	}
	first, err := f.Ledger.Claim(ctx, entry)
	if err != nil {
		logger.Error("ledger claim failed", zap.String("event_id", ev.EventID), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim failed")
		return nil, fmt.Errorf("claim event: %w", err)
	}
	if !first {
		logger.Info("duplicate payment event", zap.String("event_id", ev.EventID))
		f.Metrics.Finalized(string(OutcomeDuplicate))
		return &FinalizeResult{Outcome: OutcomeDuplicate}, nil
	}

	if decodeErr != nil {
		return f.fail(ctx, entry, meta, "decode_metadata", decodeErr)
	}
	return f.run(ctx, entry, meta)
}

func (f *finalizer) Replay(ctx context.Context, eventID string) (*FinalizeResult, error) {
	ctx, span := tracer.Start(ctx, "finalizer.Replay", trace.WithAttributes(attribute.String("event.id", eventID)))
	defer span.End()

	entry, err := f.Ledger.Get(ctx, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load ledger entry: %w", err)
	}
	if entry.ProcessedAt != nil {
		return nil, ErrEventAlreadyProcessed
	}
	ok, err := f.Ledger.BeginReplay(ctx, eventID, entry.Attempts)
	if err != nil {
		return nil, fmt.Errorf("begin replay: %w", err)
	}
	if !ok {
		return nil, ErrReplayConflict
	}
	entry.Attempts++
	logger.Info("replaying payment event", zap.String("event_id", eventID), zap.Int("attempt", entry.Attempts))

	meta, err := payment.DecodeMetadata(map[string]interface{}(entry.Metadata), f.Tiers.Known)
	if err != nil {
		return f.fail(ctx, entry, meta, "decode_metadata", err)
	}
	return f.run(ctx, entry, meta)
}

func (f *finalizer) ListUnprocessed(ctx context.Context, page, pageSize int) ([]*model.EventLedgerEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return f.Ledger.ListUnprocessed(ctx, (page-1)*pageSize, pageSize)
}

// run 执行认领之后的步骤 2-7
func (f *finalizer) run(ctx context.Context, entry *model.EventLedgerEntry, meta payment.Metadata) (*FinalizeResult, error) {
	log := logger.L().With(
		zap.String("event_id", entry.EventID),
		zap.String("draft_key", meta.DraftKey),
		zap.String("promotion_id", meta.PromotionID),
	)

	var promo *model.Promotion
	if meta.PromotionID != "" {
		p, err := f.Promotions.GetByID(ctx, meta.PromotionID)
		if err != nil {
			return f.fail(ctx, entry, meta, "load_promotion", err)
		}
		promo = p
		if promo.SaleID != nil {
			// 语义重复：已有 sale，只清理残留草稿
			if err := f.removeLeftoverDraft(ctx, promo, meta.DraftKey); err != nil {
				return f.fail(ctx, entry, meta, "delete_leftover_draft", err)
			}
			log.Info("promotion already finalized", zap.String("sale_id", *promo.SaleID))
			return f.complete(ctx, entry, &FinalizeResult{Outcome: OutcomeAlreadyFinalized, SaleID: *promo.SaleID})
		}
		if promo.Status != model.PromotionStatusPending {
			return f.fail(ctx, entry, meta, "load_promotion", fmt.Errorf("promotion is %s", promo.Status))
		}
	}

	draft, err := f.Drafts.GetByKey(ctx, meta.DraftKey)
	if errors.Is(err, repository.ErrNotFound) {
		log.Info("draft already consumed, nothing to finalize")
		return f.complete(ctx, entry, &FinalizeResult{Outcome: OutcomeDraftMissing})
	}
	if err != nil {
		return f.fail(ctx, entry, meta, "load_draft", err)
	}
	if promo != nil && promo.OwnerID != draft.OwnerID {
		return f.fail(ctx, entry, meta, "load_draft", errors.New("promotion owner does not match draft owner"))
	}

	listing, err := DecodeListing(draft.Payload)
	if err != nil {
		return f.fail(ctx, entry, meta, "decode_listing", err)
	}

	var promoID *string
	if promo != nil {
		promoID = &promo.ID
	}
	sale := buildSale(draft, listing, promoID, true)
	stepCtx, span := tracer.Start(ctx, "finalizer.create_sale")
	created, err := f.Sales.CreateWithItems(stepCtx, sale)
	span.End()
	if err != nil {
		return f.fail(ctx, entry, meta, "create_sale", err)
	}

	effective := created
	if promo != nil {
		stepCtx, span := tracer.Start(ctx, "finalizer.activate_promotion")
		activated, err := f.Promotions.Activate(stepCtx, promo.ID, sale.ID)
		span.End()
		if err != nil {
			return f.fail(ctx, entry, meta, "activate_promotion", err)
		}
		if !activated {
			// 只有并发的另一次运行用同一个 sale 激活了推广才算成功
			cur, err := f.Promotions.GetByID(ctx, promo.ID)
			if err != nil {
				return f.fail(ctx, entry, meta, "activate_promotion", err)
			}
			if cur.SaleID == nil || *cur.SaleID != sale.ID {
				return f.fail(ctx, entry, meta, "activate_promotion",
					fmt.Errorf("promotion is %s and cannot be linked to sale %s", cur.Status, sale.ID))
			}
			log.Info("promotion activated by a concurrent run", zap.String("sale_id", sale.ID))
		}
		effective = activated
	}

	if _, err := f.Drafts.DeleteByKey(ctx, meta.DraftKey, draft.OwnerID); err != nil {
		return f.fail(ctx, entry, meta, "delete_draft", err)
	}

	res := &FinalizeResult{Outcome: OutcomeFinalized, SaleID: sale.ID}
	if effective {
		res.Notified = f.notify(ctx, entry, draft.OwnerID, sale)
	}
	log.Info("sale finalized", zap.String("sale_id", sale.ID), zap.Bool("created", created), zap.Bool("notified", res.Notified))
	return f.complete(ctx, entry, res)
}

// removeLeftoverDraft 只删除推广 owner 在推广创建之前就有的草稿
func (f *finalizer) removeLeftoverDraft(ctx context.Context, promo *model.Promotion, draftKey string) error {
	d, err := f.Drafts.GetByKey(ctx, draftKey)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if d.OwnerID != promo.OwnerID || d.CreatedAt.After(promo.CreatedAt) {
		logger.Warn("draft under finalized key is not the promoted draft, leaving it",
			zap.String("draft_key", draftKey),
			zap.String("promotion_id", promo.ID),
		)
		return nil
	}
	_, err = f.Drafts.DeleteByKey(ctx, draftKey, promo.OwnerID)
	return err
}

// notify 尽力而为；失败只记录，不影响发布结果
func (f *finalizer) notify(ctx context.Context, entry *model.EventLedgerEntry, ownerID string, sale *model.Sale) bool {
	ctx, span := tracer.Start(ctx, "finalizer.notify")
	defer span.End()

	log := logger.L().With(zap.String("event_id", entry.EventID), zap.String("sale_id", sale.ID))
	if entry.PaymentID == "" {
		log.Warn("skip sale email: no payment id")
		return false
	}
	if f.Users == nil || f.Sender == nil || f.Dedupe == nil {
		return false
	}
	owner, err := f.Users.GetByID(ctx, ownerID)
	if err != nil || owner.Email == "" {
		log.Warn("skip sale email: owner email unavailable", zap.String("owner_id", ownerID))
		return false
	}

	key := SaleCreatedDedupeKey(entry.PaymentID)
	ok, err := f.Dedupe.CanSend(ctx, ownerID, model.EmailTypeSaleCreated, key)
	if err != nil {
		log.Warn("skip sale email: dedupe lookup failed", zap.Error(err))
		return false
	}
	if !ok {
		log.Info("sale email already sent", zap.String("dedupe_key", key))
		return false
	}

	sendErr := f.Sender.Send(ctx, notify.Message{
		To:         owner.Email,
		OwnerID:    ownerID,
		EmailType:  model.EmailTypeSaleCreated,
		DedupeKey:  key,
		SaleID:     sale.ID,
		SaleTitle:  sale.Title,
		IsFeatured: true,
	})
	outcome := EmailOutcome{
		OwnerID:   ownerID,
		EmailType: model.EmailTypeSaleCreated,
		DedupeKey: key,
		Sent:      sendErr == nil,
		Metadata: map[string]interface{}{
			"event_id":   entry.EventID,
			"sale_id":    sale.ID,
			"payment_id": entry.PaymentID,
		},
	}
	if sendErr != nil {
		outcome.Error = emailDeliveryFailed
		log.Warn("sale email send failed", zap.Error(sendErr))
		span.RecordError(sendErr)
		f.Metrics.Email("failed")
	} else {
		f.Metrics.Email("sent")
	}
	if err := f.Dedupe.Record(ctx, outcome); err != nil {
		log.Warn("record email outcome failed", zap.Error(err))
	}
	return sendErr == nil
}

func (f *finalizer) complete(ctx context.Context, entry *model.EventLedgerEntry, res *FinalizeResult) (*FinalizeResult, error) {
	if err := f.Ledger.MarkProcessed(ctx, entry.EventID); err != nil {
		// 效果已落地，条目保持未处理，重放时各步骤会跳过
		logger.Error("mark ledger processed failed", zap.String("event_id", entry.EventID), zap.Error(err))
	} else {
		f.Cache.MarkProcessed(ctx, entry.EventID)
	}
	f.Metrics.Finalized(string(res.Outcome))
	return res, nil
}

func (f *finalizer) fail(ctx context.Context, entry *model.EventLedgerEntry, meta payment.Metadata, step string, cause error) (*FinalizeResult, error) {
	ferr := &FinalizationError{EventID: entry.EventID, Step: step, Err: cause}
	if err := f.Ledger.MarkErrored(context.WithoutCancel(ctx), entry.EventID, ferr.Error()); err != nil {
		logger.Error("mark ledger errored failed", zap.String("event_id", entry.EventID), zap.Error(err))
	}
	logger.Error("finalization failed",
		zap.String("event_id", entry.EventID),
		zap.String("draft_key", meta.DraftKey),
		zap.String("promotion_id", meta.PromotionID),
		zap.String("step", step),
		zap.Error(cause),
	)
	span := trace.SpanFromContext(ctx)
	span.RecordError(ferr)
	span.SetStatus(codes.Error, step)
	errtrack.Capture(ferr, map[string]string{
		"event_id":     entry.EventID,
		"draft_key":    meta.DraftKey,
		"promotion_id": meta.PromotionID,
		"step":         step,
	})
	f.Metrics.Finalized(string(OutcomeFailed))
	return &FinalizeResult{Outcome: OutcomeFailed}, ferr
}
