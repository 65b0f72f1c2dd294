package transport

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/aurum-solar/core/internal/corerrors"
)

const jsonAPIServiceName = "dispatch.transport.json-api"

// jsonAPIResponse is the minimal shape the transport looks for in a
// buyer's response body (spec §4.5: "expected to yield an
// external_transaction_id if present").
type jsonAPIResponse struct {
	ExternalTransactionID string `json:"external_transaction_id"`
}

// JSONAPITransport posts a canonicalized lead payload with bearer auth
// (spec §4.5), grounded on gds_service.go's resty-client-plus-
// gobreaker shape.
type JSONAPITransport struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker
	source  string
	log     *zap.Logger
}

// NewJSONAPITransport builds a JSONAPITransport. One circuit breaker
// is shared across platforms using this transport, keyed by name so
// per-platform trip state stays independent if callers construct one
// instance per platform.
func NewJSONAPITransport(name string, source string, log *zap.Logger) *JSONAPITransport {
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
		OnStateChange: func(n string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", zap.String("breaker", n), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	return &JSONAPITransport{client: client, breaker: breaker, source: source, log: log}
}

// Send implements Transport (spec §4.5 JSON-API transport).
func (t *JSONAPITransport) Send(ctx context.Context, req Request) Outcome {
	payload := BuildLeadPayload(req.Lead, t.source, req.Priority)
	body, err := CanonicalJSON(payload)
	if err != nil {
		return Outcome{Retryable: false, Err: corerrors.Transport(jsonAPIServiceName, "Send", corerrors.CodeTransportMalformed, false, "failed to render payload", err)}
	}

	result, err := t.breaker.Execute(func() (interface{}, error) {
		return t.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetHeader("Idempotency-Key", req.IdempotencyKey).
			SetAuthToken(req.Platform.Credential).
			SetBody(body).
			Post(req.Platform.Endpoint)
	})
	if err != nil {
		return classifyTransportErr(err)
	}

	resp := result.(*resty.Response)
	status := resp.StatusCode()

	if status >= 200 && status < 300 {
		var parsed jsonAPIResponse
		if jsonErr := json.Unmarshal(resp.Body(), &parsed); jsonErr != nil {
			return Outcome{Delivered: false, Retryable: true, HTTPStatus: status,
				Err: corerrors.Transport(jsonAPIServiceName, "Send", corerrors.CodeTransportMalformed, true, "malformed success response", jsonErr)}
		}
		return Outcome{Delivered: true, HTTPStatus: status, ExternalTransactionID: parsed.ExternalTransactionID}
	}

	if status >= 500 {
		return Outcome{Delivered: false, Retryable: true, HTTPStatus: status,
			Err: corerrors.Transport(jsonAPIServiceName, "Send", corerrors.CodeTransport5xx, true, "buyer server error", nil)}
	}
	return Outcome{Delivered: false, Retryable: false, HTTPStatus: status,
		Err: corerrors.Transport(jsonAPIServiceName, "Send", corerrors.CodeTransport4xx, false, "buyer rejected request", nil)}
}

func classifyTransportErr(err error) Outcome {
	if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
		return Outcome{Retryable: true, Err: corerrors.Transport(jsonAPIServiceName, "Send", corerrors.CodeTransportTimeout, true, "request timed out", err)}
	}
	return Outcome{Retryable: true, Err: corerrors.Transport(jsonAPIServiceName, "Send", corerrors.CodeTransportTimeout, true, "transport call failed", err)}
}
