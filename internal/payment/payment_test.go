package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/sale-promotion/config"
)

func knownTier(t string) bool { return t == "featured" || t == "spotlight" }

func TestDecodeMetadata(t *testing.T) {
	m, err := DecodeMetadata(map[string]interface{}{
		"draft_key": "dk1", "promotion_id": "p1", "tier": "Featured",
	}, knownTier)
	require.NoError(t, err)
	assert.Equal(t, Metadata{DraftKey: "dk1", PromotionID: "p1", Tier: "featured"}, m)

	m, err = DecodeMetadata(map[string]interface{}{"draft_key": "dk1", "tier": "spotlight"}, knownTier)
	require.NoError(t, err)
	assert.Empty(t, m.PromotionID)

	cases := map[string]map[string]interface{}{
		"missing draft key": {"tier": "featured"},
		"missing tier":      {"draft_key": "dk1"},
		"unknown tier":      {"draft_key": "dk1", "tier": "gold"},
		"unknown key":       {"draft_key": "dk1", "tier": "featured", "sale_id": "s1"},
		"non-string value":  {"draft_key": 42, "tier": "featured"},
		"nil map":           nil,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeMetadata(raw, knownTier)
			assert.ErrorIs(t, err, ErrInvalidMetadata)
		})
	}
}

func TestMetadataMapNeverCarriesSaleID(t *testing.T) {
	m := Metadata{DraftKey: "dk1", PromotionID: "p1", Tier: "featured"}.Map()
	assert.Equal(t, map[string]string{"draft_key": "dk1", "promotion_id": "p1", "tier": "featured"}, m)
	assert.NotContains(t, m, "sale_id")
}

func TestHTTPClient_CreateSession(t *testing.T) {
	var got createSessionBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "p1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(Session{ID: "cs_1", URL: "https://pay.test/cs_1"})
	}))
	defer srv.Close()

	c := NewHTTPClient(config.PaymentConfig{BaseURL: srv.URL + "/", APIKey: "sk_test", SuccessURL: "https://app/ok", CancelURL: "https://app/cancel"})
	s, err := c.CreateSession(context.Background(), SessionRequest{
		IdempotencyKey: "p1",
		Amount:         decimal.RequireFromString("4.99"),
		Currency:       "USD",
		Metadata:       Metadata{DraftKey: "dk1", PromotionID: "p1", Tier: "featured"},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", s.ID)
	assert.EqualValues(t, 499, got.Amount)
	assert.Equal(t, "usd", got.Currency)
	assert.Equal(t, "https://app/ok", got.SuccessURL)
	assert.Equal(t, "dk1", got.Metadata["draft_key"])
}

func TestHTTPClient_ProcessorFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"card_declined"}`, http.StatusPaymentRequired)
	}))
	defer srv.Close()

	c := NewHTTPClient(config.PaymentConfig{BaseURL: srv.URL})
	_, err := c.CreateSession(context.Background(), SessionRequest{Amount: decimal.NewFromInt(1), Currency: "usd"})
	assert.True(t, errors.Is(err, ErrProcessor))

	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":""}`))
	}))
	defer srv2.Close()
	_, err = NewHTTPClient(config.PaymentConfig{BaseURL: srv2.URL}).CreateSession(context.Background(), SessionRequest{})
	assert.ErrorIs(t, err, ErrProcessor)
}

func TestHTTPClient_ThrottleRespectsContext(t *testing.T) {
	c := NewHTTPClient(config.PaymentConfig{BaseURL: "http://127.0.0.1:1", RatePerSecond: 0.001, Burst: 1})
	c.limiter.Allow() // 用掉唯一令牌

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.CreateSession(ctx, SessionRequest{})
	assert.ErrorIs(t, err, ErrProcessor)
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Unix(1_700_000_000, 0)
	header := Sign(payload, "whsec", now)

	assert.NoError(t, VerifySignature(payload, header, "whsec", 5*time.Minute, now.Add(time.Minute)))
	assert.ErrorIs(t, VerifySignature(payload, header, "other", 5*time.Minute, now), ErrBadSignature)
	assert.ErrorIs(t, VerifySignature([]byte(`{"id":"evt_2"}`), header, "whsec", 5*time.Minute, now), ErrBadSignature)
	assert.ErrorIs(t, VerifySignature(payload, header, "whsec", 5*time.Minute, now.Add(10*time.Minute)), ErrStaleSignature)
	assert.ErrorIs(t, VerifySignature(payload, "", "whsec", 0, now), ErrMissingSignature)
	assert.ErrorIs(t, VerifySignature(payload, "t=1", "whsec", 0, now), ErrMissingSignature)

	rolled := header + ",v1=deadbeef"
	assert.NoError(t, VerifySignature(payload, rolled, "whsec", 0, now))
}
