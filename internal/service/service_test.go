package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/d60-Lab/sale-promotion/internal/cache"
	"github.com/d60-Lab/sale-promotion/internal/model"
	"github.com/d60-Lab/sale-promotion/internal/notify"
	"github.com/d60-Lab/sale-promotion/internal/payment"
	"github.com/d60-Lab/sale-promotion/internal/repository"
	"github.com/d60-Lab/sale-promotion/pkg/database"
)

const listingJSON = `{
	"title": "Moving sale",
	"description": "Everything must go",
	"address": "1 Main St",
	"starts_at": "2026-05-01T09:00:00Z",
	"ends_at": "2026-05-01T17:00:00Z",
	"items": [
		{"name": "Sofa", "price": "120.00"},
		{"name": "Lamp", "price": 15.5}
	]
}`

type fakePayments struct {
	mu    sync.Mutex
	calls []payment.SessionRequest
	err   error
}

func (f *fakePayments) CreateSession(_ context.Context, req payment.SessionRequest) (*payment.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	id := fmt.Sprintf("cs_%d", len(f.calls))
	return &payment.Session{ID: id, URL: "https://pay.test/" + id}, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg notify.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type testEnv struct {
	db        *gorm.DB
	drafts    repository.DraftRepository
	promos    repository.PromotionRepository
	sales     repository.SaleRepository
	ledger    repository.EventLedgerRepository
	emails    repository.EmailRecordRepository
	users     repository.UserRepository
	payments  *fakePayments
	sender    *fakeSender
	draftSvc  DraftService
	checkout  CheckoutService
	finalizer Finalizer
}

func testTiers() TierPrices {
	return TierPrices{
		"featured":  decimal.RequireFromString("4.99"),
		"spotlight": decimal.RequireFromString("9.99"),
	}
}

func newEnv(t *testing.T, processed *cache.ProcessedEvents) *testEnv {
	t.Helper()
	db, err := database.OpenInMemory(t.Name())
	require.NoError(t, err)

	e := &testEnv{
		db:       db,
		drafts:   repository.NewDraftRepository(db),
		promos:   repository.NewPromotionRepository(db),
		sales:    repository.NewSaleRepository(db),
		ledger:   repository.NewEventLedgerRepository(db),
		emails:   repository.NewEmailRecordRepository(db),
		users:    repository.NewUserRepository(db),
		payments: &fakePayments{},
		sender:   &fakeSender{},
	}
	e.draftSvc = NewDraftService(e.drafts, e.sales)
	e.checkout = NewCheckoutService(CheckoutDeps{
		Drafts:     e.drafts,
		Promotions: e.promos,
		Sales:      e.sales,
		Users:      e.users,
		Payments:   e.payments,
		Tiers:      testTiers(),
	})
	e.finalizer = NewFinalizer(FinalizerDeps{
		Ledger:     e.ledger,
		Drafts:     e.drafts,
		Promotions: e.promos,
		Sales:      e.sales,
		Users:      e.users,
		Dedupe:     NewNotificationDedupe(e.emails),
		Sender:     e.sender,
		Cache:      processed,
		Tiers:      testTiers(),
	})

	ctx := context.Background()
	require.NoError(t, e.users.Create(ctx, &model.User{ID: "u1", Username: "alice", Email: "alice@example.com"}))
	require.NoError(t, e.users.Create(ctx, &model.User{ID: "u2", Username: "bob", Email: "bob@example.com"}))
	return e
}

func (e *testEnv) seedDraft(t *testing.T, owner, key, payload string) *model.Draft {
	t.Helper()
	d := &model.Draft{OwnerID: owner, DraftKey: key, Payload: datatypes.JSON(payload)}
	require.NoError(t, e.drafts.Create(context.Background(), d))
	return d
}

func (e *testEnv) count(t *testing.T, m interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := e.db.Model(m)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func completed(eventID, paymentID string, meta payment.Metadata) PaymentEvent {
	raw := map[string]interface{}{}
	for k, v := range meta.Map() {
		raw[k] = v
	}
	return PaymentEvent{EventID: eventID, Type: payment.EventCheckoutCompleted, PaymentID: paymentID, Metadata: raw}
}

// promote 打开推广 checkout，返回 promotion id
func (e *testEnv) promote(t *testing.T, owner, key string) string {
	t.Helper()
	res, err := e.checkout.Publish(context.Background(), PublishRequest{DraftKey: key, WantsPromotion: true, CallerID: owner})
	require.NoError(t, err)
	return res.PromotionID
}

var errBoom = errors.New("boom")
