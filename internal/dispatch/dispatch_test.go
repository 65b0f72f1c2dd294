package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurum-solar/core/internal/capacity"
	"github.com/aurum-solar/core/internal/clock"
	"github.com/aurum-solar/core/internal/dispatch/transport"
	"github.com/aurum-solar/core/internal/model"
)

var fixedNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func TestIdempotencyKeyStableAcrossRetriesOfSameAttempt(t *testing.T) {
	leadID := model.LeadID(uuid.New())
	a := IdempotencyKey(leadID, "acme", 2)
	b := IdempotencyKey(leadID, "acme", 2)
	assert.Equal(t, a, b)

	c := IdempotencyKey(leadID, "acme", 3)
	assert.NotEqual(t, a, c)
}

func TestFullJitterBackoffRespectsBounds(t *testing.T) {
	base := 2 * time.Second
	max := 10 * time.Minute
	for attempt := 1; attempt <= 5; attempt++ {
		d := FullJitterBackoff(attempt, base, max)
		assert.True(t, d >= 0)
		assert.True(t, d <= max)
	}
}

func TestQueuePopsHighestPriorityFirst(t *testing.T) {
	q := NewQueue(0, func() time.Time { return fixedNow })
	low := &model.DispatchJob{ID: model.JobID(uuid.New()), Tier: model.TierBasic, SLADeadline: fixedNow.Add(time.Hour)}
	high := &model.DispatchJob{ID: model.JobID(uuid.New()), Tier: model.TierPremium, SLADeadline: fixedNow.Add(time.Minute)}

	q.Push(low)
	q.Push(high)

	first := q.Pop()
	assert.Equal(t, high.ID, first.ID)
	second := q.Pop()
	assert.Equal(t, low.ID, second.ID)
}

func TestQueueRejectsPushBeyondCapacity(t *testing.T) {
	q := NewQueue(1, func() time.Time { return fixedNow })
	assert.True(t, q.Push(&model.DispatchJob{ID: model.JobID(uuid.New())}))
	assert.False(t, q.Push(&model.DispatchJob{ID: model.JobID(uuid.New())}), "backpressure: queue at capacity rejects new jobs")
}

// flakyThenSuccessTransport simulates S4: 503 on the first attempt,
// 200 with an external id on the second.
type flakyThenSuccessTransport struct {
	attempts int32
}

func (f *flakyThenSuccessTransport) Send(ctx context.Context, req transport.Request) transport.Outcome {
	n := atomic.AddInt32(&f.attempts, 1)
	if n == 1 {
		return transport.Outcome{Delivered: false, Retryable: true, HTTPStatus: 503, Err: assert.AnError}
	}
	return transport.Outcome{Delivered: true, HTTPStatus: 200, ExternalTransactionID: "ext-42"}
}

type recordingLedger struct {
	mu    sync.Mutex
	calls []string
}

func (l *recordingLedger) RecordDelivered(ctx context.Context, job *model.DispatchJob, gross string, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, job.ExternalTransactionID)
	return nil
}

type noopHealth struct{}

func (noopHealth) RecordAttemptOutcome(platformCode string, success bool, responseTime time.Duration) {}

func testPlatform() *model.Platform {
	return &model.Platform{Code: "acme", DeliveryMethod: model.DeliveryJSONAPI, MaxDaily: 100}
}

func TestRetryThenSuccessDeliversExactlyOnce(t *testing.T) {
	tr := &flakyThenSuccessTransport{}
	counter := capacity.NewMemoryCounter(clock.Real{})
	ledger := &recordingLedger{}

	d := NewDispatcher(
		map[model.DeliveryMethod]transport.Transport{model.DeliveryJSONAPI: tr},
		counter, ledger, noopHealth{}, nil, clock.Real{},
		Config{RetryBaseMS: 1, RetryMaxMS: 5, RetryMaxAttempts: 5, QueueCapacity: 10, WorkerCount: 1},
		nil,
	)

	lead := model.NewLead(model.LeadID(uuid.New()), model.SessionID(uuid.New()), fixedNow)
	job := &model.DispatchJob{
		ID:   model.JobID(uuid.New()),
		Lead: lead,
		Decision: model.RoutingDecision{
			LeadID:          lead.ID,
			PlatformCode:    "acme",
			ExpectedRevenue: decimal.NewFromInt(200),
		},
		Tier:        model.TierPremium,
		SLADeadline: fixedNow.Add(time.Hour),
	}
	d.Enqueue(job)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	platforms := func(code string) (*model.Platform, bool) {
		if code == "acme" {
			return testPlatform(), true
		}
		return nil, false
	}

	done := make(chan struct{})
	runCtx, runCancel := context.WithCancel(ctx)
	go func() {
		d.Run(runCtx, platforms)
		close(done)
	}()

	deadline := time.Now().Add(1500 * time.Millisecond)
	for time.Now().Before(deadline) {
		ledger.mu.Lock()
		n := len(ledger.calls)
		ledger.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	runCancel()
	<-done

	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	require.Len(t, ledger.calls, 1)
	assert.Equal(t, "ext-42", ledger.calls[0])
	assert.Equal(t, int32(2), atomic.LoadInt32(&tr.attempts))
}

type alwaysFailTransport struct{}

func (alwaysFailTransport) Send(ctx context.Context, req transport.Request) transport.Outcome {
	return transport.Outcome{Delivered: false, Retryable: false, HTTPStatus: 400, Err: assert.AnError}
}

type rerouteSpy struct {
	mu        sync.Mutex
	rerouted  int
	platform  string
}

func (r *rerouteSpy) RequestReroute(ctx context.Context, job *model.DispatchJob, platformCode string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rerouted++
	r.platform = platformCode
}

func TestPermanentFailureDecrementsReservedCapacityAndReroutes(t *testing.T) {
	counter := capacity.NewMemoryCounter(clock.Real{})
	key := capacity.PlatformDailyKey("acme", fixedNow)
	_, err := counter.CheckAndIncrement(context.Background(), key, capacity.WindowDay, 10)
	require.NoError(t, err)

	reroute := &rerouteSpy{}
	d := NewDispatcher(
		map[model.DeliveryMethod]transport.Transport{model.DeliveryJSONAPI: alwaysFailTransport{}},
		counter, nil, noopHealth{}, reroute, clock.NewFake(fixedNow),
		Config{RetryBaseMS: 1, RetryMaxMS: 5, RetryMaxAttempts: 3, QueueCapacity: 10, WorkerCount: 1},
		nil,
	)

	lead := model.NewLead(model.LeadID(uuid.New()), model.SessionID(uuid.New()), fixedNow)
	job := &model.DispatchJob{
		ID:          model.JobID(uuid.New()),
		Lead:        lead,
		Decision:    model.RoutingDecision{LeadID: lead.ID, PlatformCode: "acme"},
		Tier:        model.TierPremium,
		SLADeadline: fixedNow.Add(time.Hour),
	}
	d.Enqueue(job)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	platforms := func(code string) (*model.Platform, bool) { return testPlatform(), true }

	done := make(chan struct{})
	go func() { d.Run(ctx, platforms); close(done) }()
	<-done

	remaining, err := counter.Peek(context.Background(), key, capacity.WindowDay)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining, "permanent failure must decrement the daily reservation")

	reroute.mu.Lock()
	defer reroute.mu.Unlock()
	assert.Equal(t, 1, reroute.rerouted)
	assert.Equal(t, "acme", reroute.platform)
}
