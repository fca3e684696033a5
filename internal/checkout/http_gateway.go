package checkout

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
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/toko-storefront/internal/resilience"
)

const (
	// SignatureHeader carries the hex HMAC-SHA256 of the request body.
	SignatureHeader = "X-Toko-Signature"
	// ReferenceHeader carries the order reference for idempotent handling upstream.
	ReferenceHeader = "Idempotency-Key"
)

// HTTPGateway posts orders as JSON to the checkout service.
type HTTPGateway struct {
	URL    string
	Secret string
	Client resilience.HTTPClient
}

// HTTPGatewayConfig collects the knobs exposed through configuration.
type HTTPGatewayConfig struct {
	URL         string
	Secret      string
	Timeout     time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
	Breaker     *resilience.Breaker
}

// NewHTTPGateway wires an otelhttp-instrumented client behind retry and breaker.
func NewHTTPGateway(cfg HTTPGatewayConfig) *HTTPGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPGateway{
		URL:    strings.TrimSpace(cfg.URL),
		Secret: cfg.Secret,
		Client: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker:     cfg.Breaker,
			BaseBackoff: cfg.BaseBackoff,
			MaxAttempts: cfg.MaxAttempts,
			Jitter:      0.2,
			Timeout:     timeout,
		},
	}
}

// Budget is the worst-case duration of Submit including retries.
func (g *HTTPGateway) Budget() time.Duration {
	if g == nil {
		return 0
	}
	return g.Client.Budget()
}

// Submit implements Gateway.
func (g *HTTPGateway) Submit(ctx context.Context, order Order) (Result, error) {
	if g == nil || g.URL == "" {
		return Result{}, errors.New("checkout: service url not configured")
	}
	if len(order.Items) == 0 {
		return Failed(ReasonEmptyCart), nil
	}
	ctx, span := otel.Tracer("checkout.HTTPGateway").Start(ctx, "HTTPGateway.Submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("checkout.reference", order.Reference),
		attribute.Int("checkout.items", len(order.Items)),
	)

	payload, err := json.Marshal(order)
	if err != nil {
		return Result{}, fmt.Errorf("checkout: encode order: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("checkout: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(ReferenceHeader, order.Reference)
	if g.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(g.Secret, payload))
	}

	resp, err := g.Client.Do(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		return Result{}, fmt.Errorf("checkout: submit: %w", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Result{}, fmt.Errorf("checkout: read response: %w", err)
	}
	var result Result
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &result); err != nil {
			if resp.StatusCode >= http.StatusInternalServerError {
				return Result{}, fmt.Errorf("checkout: upstream status %d", resp.StatusCode)
			}
			return Result{}, fmt.Errorf("checkout: decode response: %w", err)
		}
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return Result{}, fmt.Errorf("checkout: upstream status %d", resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest || !result.Success {
		result.Success = false
		if strings.TrimSpace(result.Error) == "" {
			result.Error = fmt.Sprintf("checkout rejected (status %d)", resp.StatusCode)
		}
		result.OrderID = ""
	}
	return result, nil
}

// Sign computes the hex encoded HMAC-SHA256 of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
