// Package notify delivers domain events to an external webhook endpoint.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/toko-storefront/internal/events"
	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/resilience"
)

// ErrRejected marks deliveries the endpoint refused with a 4xx status.
// Retrying them would not help.
var ErrRejected = errors.New("webhook rejected")

// Delivery headers.
const (
	HeaderEventID     = "X-Event-ID"
	HeaderTopic       = "X-Event-Topic"
	HeaderTimestamp   = "X-Timestamp"
	HeaderIdempotency = "X-Idempotency-Key"
	HeaderSignature   = "X-Signature"
)

// Webhook posts signed event envelopes to a single endpoint.
type Webhook struct {
	URL    string
	Secret string
	HTTP   resilience.HTTPClient
	Now    func() time.Time
}

type envelope struct {
	EventID     string          `json:"eventId"`
	Topic       string          `json:"topic"`
	AggregateID string          `json:"aggregateId"`
	Data        json.RawMessage `json:"data"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// Deliver sends ev and returns the response status. Non-2xx responses are
// errors; 4xx responses wrap ErrRejected.
func (wh *Webhook) Deliver(ctx context.Context, ev events.Event) (int, error) {
	if wh == nil || wh.URL == "" {
		return 0, errors.New("notify: webhook url not configured")
	}
	if err := ValidateURL(wh.URL); err != nil {
		return 0, err
	}
	ctx, span := otel.Tracer("notify.Webhook").Start(ctx, "Webhook.Deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("webhook.topic", ev.Topic),
		attribute.String("webhook.event_id", ev.ID),
	)

	data := ev.Payload
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	body, err := json.Marshal(envelope{
		EventID:     ev.ID,
		Topic:       ev.Topic,
		AggregateID: ev.AggregateID,
		Data:        data,
		OccurredAt:  ev.OccurredAt,
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	now := time.Now
	if wh.Now != nil {
		now = wh.Now
	}
	ts := now().Unix()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "toko-storefront-webhooks/1.0")
	req.Header.Set(HeaderEventID, ev.ID)
	req.Header.Set(HeaderTopic, ev.Topic)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderIdempotency, ev.ID)
	req.Header.Set(HeaderSignature, ComputeSignature(wh.Secret, ts, ev.ID, body))

	start := time.Now()
	resp, err := wh.HTTP.Do(ctx, req)
	if err != nil {
		obs.ObserveWebhook("error", obs.DurationMillis(time.Since(start)))
		span.RecordError(err)
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		obs.ObserveWebhook("delivered", obs.DurationMillis(time.Since(start)))
		return resp.StatusCode, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		obs.ObserveWebhook("rejected", obs.DurationMillis(time.Since(start)))
		return resp.StatusCode, fmt.Errorf("notify: status %d: %w", resp.StatusCode, ErrRejected)
	default:
		obs.ObserveWebhook("failed", obs.DurationMillis(time.Since(start)))
		return resp.StatusCode, fmt.Errorf("notify: status %d", resp.StatusCode)
	}
}

// ValidateURL accepts https endpoints, and plain http only for loopback hosts.
func ValidateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid endpoint url: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return errors.New("webhook url must be http or https")
	}
	if parsed.Host == "" {
		return errors.New("webhook url must include host")
	}
	if parsed.Scheme == "http" {
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" {
			return errors.New("http webhook only allowed for localhost")
		}
	}
	return nil
}

// ComputeSignature calculates the webhook signature: HMAC-SHA256 over
// "<ts>.<eventID>.<body>" keyed by the endpoint secret.
func ComputeSignature(secret string, ts int64, eventID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(eventID))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// NewHTTPClient returns an otelhttp-instrumented client for webhook delivery.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
