package transport

import (
	"context"

	"github.com/aurum-solar/core/internal/model"
)

// Outcome is the result of one dispatch attempt (spec §4.5).
type Outcome struct {
	Delivered             bool
	Retryable             bool
	ExternalTransactionID string
	HTTPStatus            int
	Err                   error
}

// Request carries everything a transport needs for one attempt (spec
// §4.5 "polymorphic over the capability set {render payload, send,
// interpret response, classify error}").
type Request struct {
	Lead           *model.Lead
	Platform       *model.Platform
	IdempotencyKey string
	AttemptNumber  int
	Priority       int
}

// Transport sends one dispatch attempt and classifies the result.
type Transport interface {
	Send(ctx context.Context, req Request) Outcome
}
