package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/sale-promotion/config"
)

var ErrProcessor = errors.New("payment processor error")

// Client opens checkout sessions with the payment processor.
type Client interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}

type SessionRequest struct {
	// IdempotencyKey is sent as Idempotency-Key; the promotion id is used.
	IdempotencyKey string
	Amount         decimal.Decimal
	Currency       string
	Description    string
	CustomerEmail  string
	Metadata       Metadata
}

type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type createSessionBody struct {
	Mode          string            `json:"mode"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Description   string            `json:"description,omitempty"`
	CustomerEmail string            `json:"customer_email,omitempty"`
	SuccessURL    string            `json:"success_url"`
	CancelURL     string            `json:"cancel_url"`
	Metadata      map[string]string `json:"metadata"`
}

// HTTPClient talks JSON over HTTP to the processor and throttles itself
// client-side with a token bucket.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	successURL string
	cancelURL  string
	http       *http.Client
	limiter    *rate.Limiter
}

func NewHTTPClient(cfg config.PaymentConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		http:       &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
	}
}

func (c *HTTPClient) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: throttled: %v", ErrProcessor, err)
	}

	body, err := json.Marshal(createSessionBody{
		Mode:          "payment",
		Amount:        req.Amount.Shift(2).Round(0).IntPart(),
		Currency:      strings.ToLower(req.Currency),
		Description:   req.Description,
		CustomerEmail: req.CustomerEmail,
		SuccessURL:    c.successURL,
		CancelURL:     c.cancelURL,
		Metadata:      req.Metadata.Map(),
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessor, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrProcessor, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrProcessor, resp.StatusCode)
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: decode session: %v", ErrProcessor, err)
	}
	if s.ID == "" || s.URL == "" {
		return nil, fmt.Errorf("%w: session without id or url", ErrProcessor)
	}
	return &s, nil
}
