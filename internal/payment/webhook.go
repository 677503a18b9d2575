package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	SignatureHeader = "X-Payment-Signature"

	EventCheckoutCompleted = "checkout.session.completed"
)

var (
	ErrMissingSignature = errors.New("missing signature")
	ErrBadSignature     = errors.New("signature mismatch")
	ErrStaleSignature   = errors.New("signature timestamp outside tolerance")
)

// Event is the processor's notification envelope.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object EventObject `json:"object"`
	} `json:"data"`
}

type EventObject struct {
	ID            string                 `json:"id"`
	PaymentIntent string                 `json:"payment_intent"`
	CustomerEmail string                 `json:"customer_email,omitempty"`
	Metadata      map[string]interface{} `json:"metadata"`
}

// Sign returns the header value "t=<unix>,v1=<hex hmac-sha256>" for payload.
func Sign(payload []byte, secret string, ts time.Time) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", t, computeMAC(t, payload, secret))
}

// VerifySignature checks header against payload. Any v1 entry may match,
// so the processor can roll secrets.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if header == "" {
		return ErrMissingSignature
	}
	var (
		ts   string
		sigs []string
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return ErrMissingSignature
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	if tolerance > 0 {
		if d := now.Sub(time.Unix(unix, 0)); d > tolerance || d < -tolerance {
			return ErrStaleSignature
		}
	}

	expected := []byte(computeMAC(ts, payload, secret))
	for _, s := range sigs {
		if hmac.Equal(expected, []byte(s)) {
			return nil
		}
	}
	return ErrBadSignature
}

func computeMAC(ts string, payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
