package transport

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/aurum-solar/core/internal/corerrors"
)

const webhookServiceName = "dispatch.transport.webhook"

// acceptableWebhookStatuses are the success codes for the webhook
// transport (spec §4.5: "acceptable success codes are {200, 201, 202}").
var acceptableWebhookStatuses = map[int]bool{200: true, 201: true, 202: true}

// WebhookTransport sends an HMAC-signed payload (spec §4.5, §6). The
// signature uses stdlib crypto/hmac+crypto/sha256: no third-party HMAC
// signer exists anywhere in the retrieved pack, so this is the
// documented stdlib exception (see DESIGN.md).
type WebhookTransport struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker
	source  string
	log     *zap.Logger
}

// NewWebhookTransport builds a WebhookTransport.
func NewWebhookTransport(name, source string, log *zap.Logger) *WebhookTransport {
	if log == nil {
		log = zap.NewNop()
	}
	client := resty.New()
	client.SetTimeout(30 * time.Second)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &WebhookTransport{client: client, breaker: breaker, source: source, log: log}
}

// Send implements Transport (spec §4.5 webhook transport).
func (t *WebhookTransport) Send(ctx context.Context, req Request) Outcome {
	payload := BuildLeadPayload(req.Lead, t.source, req.Priority)
	body, err := CanonicalJSON(payload)
	if err != nil {
		return Outcome{Retryable: false, Err: corerrors.Transport(webhookServiceName, "Send", corerrors.CodeTransportMalformed, false, "failed to render payload", err)}
	}
	signable, err := SortedKeysJSON(payload)
	if err != nil {
		return Outcome{Retryable: false, Err: corerrors.Transport(webhookServiceName, "Send", corerrors.CodeTransportMalformed, false, "failed to render signature input", err)}
	}
	signature := Sign(signable, req.Platform.Credential)

	result, err := t.breaker.Execute(func() (interface{}, error) {
		return t.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetHeader("X-Signature", signature).
			SetHeader("Idempotency-Key", req.IdempotencyKey).
			SetBody(body).
			Post(req.Platform.Endpoint)
	})
	if err != nil {
		return classifyTransportErr(err)
	}

	resp := result.(*resty.Response)
	status := resp.StatusCode()
	if acceptableWebhookStatuses[status] {
		return Outcome{Delivered: true, HTTPStatus: status}
	}
	if status >= 500 {
		return Outcome{Delivered: false, Retryable: true, HTTPStatus: status,
			Err: corerrors.Transport(webhookServiceName, "Send", corerrors.CodeTransport5xx, true, "buyer server error", nil)}
	}
	return Outcome{Delivered: false, Retryable: false, HTTPStatus: status,
		Err: corerrors.Transport(webhookServiceName, "Send", corerrors.CodeTransport4xx, false, "buyer rejected webhook", nil)}
}

// Sign computes the spec §6 webhook signature: "X-Signature:
// sha256=<hex>", HMAC-SHA-256 over body keyed by secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches the expected HMAC
// of body under secret, using constant-time comparison.
func VerifySignature(body []byte, secret, signature string) bool {
	expected := Sign(body, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
