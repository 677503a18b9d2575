package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/sale-promotion/config"
	"github.com/d60-Lab/sale-promotion/internal/api/handler"
	"github.com/d60-Lab/sale-promotion/internal/api/middleware"
	"github.com/d60-Lab/sale-promotion/internal/model"
	"github.com/d60-Lab/sale-promotion/internal/notify"
	"github.com/d60-Lab/sale-promotion/internal/payment"
	"github.com/d60-Lab/sale-promotion/internal/repository"
	"github.com/d60-Lab/sale-promotion/internal/service"
	"github.com/d60-Lab/sale-promotion/pkg/database"
	"github.com/d60-Lab/sale-promotion/pkg/metrics"
)

const listing = `{"title":"Moving sale","address":"1 Main St","starts_at":"2026-05-01T09:00:00Z","ends_at":"2026-05-01T17:00:00Z","items":[{"name":"Sofa","price":"120"}]}`

type stubPayments struct {
	mu   sync.Mutex
	fail bool
	n    int
}

func (s *stubPayments) CreateSession(_ context.Context, req payment.SessionRequest) (*payment.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, payment.ErrProcessor
	}
	s.n++
	return &payment.Session{ID: "cs_" + req.IdempotencyKey, URL: "https://pay.test/" + req.IdempotencyKey}, nil
}

type stubSender struct {
	mu   sync.Mutex
	sent int
}

func (s *stubSender) Send(context.Context, notify.Message) error {
	s.mu.Lock()
	s.sent++
	s.mu.Unlock()
	return nil
}

type server struct {
	t        *testing.T
	cfg      *config.Config
	http     http.Handler
	payments *stubPayments
	sender   *stubSender
	sales    repository.SaleRepository
}

func newServer(t *testing.T) *server {
	t.Helper()
	db, err := database.OpenInMemory(t.Name())
	require.NoError(t, err)

	cfg := &config.Config{
		Server:  config.ServerConfig{Mode: "test"},
		JWT:     config.JWTConfig{Secret: "jwt-secret", Issuer: "sale-promotion"},
		Payment: config.PaymentConfig{WebhookSecret: "whsec", WebhookTolerance: 5 * time.Minute},
	}
	tiers := service.TierPrices{"featured": decimal.RequireFromString("4.99")}

	drafts := repository.NewDraftRepository(db)
	promos := repository.NewPromotionRepository(db)
	sales := repository.NewSaleRepository(db)
	users := repository.NewUserRepository(db)
	require.NoError(t, users.Create(context.Background(), &model.User{ID: "u1", Username: "alice", Email: "alice@example.com"}))

	payments := &stubPayments{}
	sender := &stubSender{}
	m := metrics.New(prometheus.NewRegistry())

	checkout := service.NewCheckoutService(service.CheckoutDeps{
		Drafts: drafts, Promotions: promos, Sales: sales, Users: users,
		Payments: payments, Tiers: tiers, Metrics: m,
	})
	finalizer := service.NewFinalizer(service.FinalizerDeps{
		Ledger: repository.NewEventLedgerRepository(db), Drafts: drafts, Promotions: promos, Sales: sales, Users: users,
		Dedupe: service.NewNotificationDedupe(repository.NewEmailRecordRepository(db)), Sender: sender,
		Tiers: tiers, Metrics: m,
	})
	h := handler.NewHandler(service.NewDraftService(drafts, sales), checkout, finalizer, db)

	return &server{t: t, cfg: cfg, http: NewRouter(cfg, h, m), payments: payments, sender: sender, sales: sales}
}

func (s *server) token(userID, role string) string {
	tok, err := middleware.GenerateToken(s.cfg.JWT.Secret, s.cfg.JWT.Issuer, userID, role, time.Hour)
	require.NoError(s.t, err)
	return tok
}

func (s *server) do(method, path, token string, body []byte, header map[string]string) (int, map[string]interface{}) {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.http.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w.Code, out
}

func (s *server) webhook(event interface{}, secret string) (int, map[string]interface{}) {
	body, err := json.Marshal(event)
	require.NoError(s.t, err)
	return s.do(http.MethodPost, "/webhooks/payment", "", body, map[string]string{
		payment.SignatureHeader: payment.Sign(body, secret, time.Now()),
	})
}

func completedEvent(id, paymentID string, meta map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"id":   id,
		"type": payment.EventCheckoutCompleted,
		"data": map[string]interface{}{"object": map[string]interface{}{
			"id": "cs_x", "payment_intent": paymentID, "metadata": meta,
		}},
	}
}

func TestImmediatePublishFlow(t *testing.T) {
	s := newServer(t)
	alice := s.token("u1", "")

	code, body := s.do(http.MethodPut, "/drafts/D1", alice, []byte(listing), nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["ok"])

	code, _ = s.do(http.MethodPost, "/drafts/publish", "", []byte(`{"draftKey":"D1"}`), nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = s.do(http.MethodPost, "/drafts/publish", s.token("u2", ""), []byte(`{"draftKey":"D1"}`), nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "FORBIDDEN", body["code"])

	code, body = s.do(http.MethodPost, "/drafts/publish", alice, []byte(`{"draftKey":"D1","wantsPromotion":false}`), nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["ok"])
	assert.NotEmpty(t, body["saleId"])
	assert.NotContains(t, body, "checkoutUrl")

	code, body = s.do(http.MethodGet, "/drafts/D1", alice, nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "DRAFT_NOT_FOUND", body["code"])

	code, body = s.do(http.MethodPut, "/drafts/D1", s.token("u2", ""), []byte(listing), nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "DRAFT_NOT_ACTIVE", body["code"])
}

func TestPromotedPublishAndWebhookFlow(t *testing.T) {
	s := newServer(t)
	alice := s.token("u1", "")

	code, _ := s.do(http.MethodPut, "/drafts/D2", alice, []byte(listing), nil)
	require.Equal(t, http.StatusOK, code)

	code, body := s.do(http.MethodPost, "/drafts/publish", alice, []byte(`{"draftKey":"D2","wantsPromotion":true}`), nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.NotContains(t, body, "saleId")
	promoID, _ := body["promotionId"].(string)
	require.NotEmpty(t, promoID)
	assert.Equal(t, "https://pay.test/"+promoID, body["checkoutUrl"])

	ev := completedEvent("evt_1", "pi_1", map[string]interface{}{"draft_key": "D2", "promotion_id": promoID, "tier": "featured"})

	code, _ = s.webhook(ev, "wrong-secret")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = s.webhook(ev, "whsec")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "finalized", body["outcome"])

	code, body = s.webhook(ev, "whsec")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "duplicate", body["outcome"])

	sale, err := s.sales.GetByDraftKey(context.Background(), "D2")
	require.NoError(t, err)
	assert.True(t, sale.IsFeatured)
	assert.Equal(t, 1, s.sender.sent)
}

func TestPublishProcessorFailure(t *testing.T) {
	s := newServer(t)
	alice := s.token("u1", "")
	s.do(http.MethodPut, "/drafts/D2", alice, []byte(listing), nil)
	s.payments.fail = true

	code, body := s.do(http.MethodPost, "/drafts/publish", alice, []byte(`{"draftKey":"D2","wantsPromotion":true}`), nil)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "PROCESSOR_ERROR", body["code"])

	code, _ = s.do(http.MethodGet, "/drafts/D2", alice, nil, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestWebhookFailureStillOKAndAdminReplay(t *testing.T) {
	s := newServer(t)
	alice := s.token("u1", "")
	admin := s.token("ops", middleware.RoleAdmin)

	code, body := s.webhook(completedEvent("evt_bad", "pi_1", map[string]interface{}{"draft_key": "D9"}), "whsec")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "FINALIZATION_ERROR", body["error"])

	code, _ = s.do(http.MethodGet, "/admin/events", alice, nil, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = s.do(http.MethodGet, "/admin/events?page=1&page_size=10", admin, nil, nil)
	require.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]interface{})
	assert.EqualValues(t, 1, data["total"])

	// 元数据本身非法，重放仍然失败
	code, body = s.do(http.MethodPost, "/admin/events/evt_bad/replay", admin, nil, nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "FINALIZATION_ERROR", body["code"])

	code, body = s.do(http.MethodPost, "/admin/events/nope/replay", admin, nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "EVENT_NOT_FOUND", body["code"])

	code, body = s.webhook(map[string]interface{}{"id": "evt_2", "type": "charge.refunded"}, "whsec")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ignored", body["outcome"])
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	code, body := s.do(http.MethodGet, "/health", "", nil, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}
