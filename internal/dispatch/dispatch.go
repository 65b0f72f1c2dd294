package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aurum-solar/core/internal/capacity"
	"github.com/aurum-solar/core/internal/clock"
	"github.com/aurum-solar/core/internal/dispatch/transport"
	"github.com/aurum-solar/core/internal/metrics"
	"github.com/aurum-solar/core/internal/model"
)

// LedgerRecorder is the seam into internal/ledger: a delivered dispatch
// creates a pending RevenueTransaction (spec §4.5, §4.7); implemented
// there to avoid a dispatch→ledger import cycle.
type LedgerRecorder interface {
	RecordDelivered(ctx context.Context, job *model.DispatchJob, gross string, now time.Time) error
}

// PlatformHealthRecorder reflects dispatch outcomes into platform
// health bookkeeping (spec §4.5 health tracking).
type PlatformHealthRecorder interface {
	RecordAttemptOutcome(platformCode string, success bool, responseTime time.Duration)
}

// RerouteRequester is notified when a job permanently fails so the
// lead can re-enter routing with the failed platform blacklisted
// (spec §4.5), bounded by routing.max_dispatch_attempts_per_lead.
type RerouteRequester interface {
	RequestReroute(ctx context.Context, job *model.DispatchJob, blacklistPlatform string)
}

// Config bounds the dispatcher's retry policy (spec §4.5, §6).
type Config struct {
	RetryBaseMS      int
	RetryMaxMS       int
	RetryMaxAttempts int
	QueueCapacity    int
	WorkerCount      int
}

// Dispatcher owns the job queue and the worker pool draining it (spec
// §4.5). Workers are plain goroutines reading from the same Queue;
// shutdown is modeled with context cancellation, grounded on
// services/distribution_service/main.go's signal.Notify sequence.
type Dispatcher struct {
	queue     *Queue
	transports map[model.DeliveryMethod]transport.Transport
	counter   capacity.Counter
	ledger    LedgerRecorder
	health    PlatformHealthRecorder
	reroute   RerouteRequester
	clk       clock.Clock
	cfg       Config
	log       *zap.Logger
	metrics   *metrics.Registry

	wg sync.WaitGroup
}

// SetMetrics wires a metrics.Registry into the Dispatcher. Optional;
// nil (the default) makes every instrumentation point a no-op.
func (d *Dispatcher) SetMetrics(m *metrics.Registry) { d.metrics = m }

// SetReroute wires the RerouteRequester after construction, breaking
// the Dispatcher/Pipeline construction cycle: the pipeline embeds the
// dispatcher it reroutes through, so the reroute seam can only be
// supplied once both exist (spec §4.5).
func (d *Dispatcher) SetReroute(r RerouteRequester) { d.reroute = r }

// NewDispatcher builds a Dispatcher.
func NewDispatcher(transports map[model.DeliveryMethod]transport.Transport, counter capacity.Counter, ledger LedgerRecorder, health PlatformHealthRecorder, reroute RerouteRequester, clk clock.Clock, cfg Config, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	return &Dispatcher{
		queue:      NewQueue(cfg.QueueCapacity, clk.Now),
		transports: transports,
		counter:    counter,
		ledger:     ledger,
		health:     health,
		reroute:    reroute,
		clk:        clk,
		cfg:        cfg,
		log:        log,
	}
}

// Enqueue admits job for dispatch. Returns false if the queue is at
// capacity, in which case the job is not queued (spec §5
// backpressure).
func (d *Dispatcher) Enqueue(job *model.DispatchJob) bool {
	return d.queue.Push(job)
}

// Run starts the worker pool; it blocks until ctx is cancelled, then
// waits for every worker to return. Attempt contexts derive from ctx,
// so in-flight transport calls are cancelled rather than awaited;
// there is no separate drain timeout.
func (d *Dispatcher) Run(ctx context.Context, platforms func(code string) (*model.Platform, bool)) {
	for i := 0; i < d.cfg.WorkerCount; i++ {
		d.wg.Add(1)
		go d.worker(ctx, platforms)
	}
	<-ctx.Done()
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context, platforms func(code string) (*model.Platform, bool)) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			d.drainRemaining()
			return
		default:
		}

		job := d.queue.Pop()
		if job == nil {
			if !d.queue.Wait(200 * time.Millisecond) {
				continue
			}
			continue
		}

		platform, ok := platforms(job.Decision.PlatformCode)
		if !ok {
			d.finishPermanentFailure(ctx, job, "platform no longer configured")
			continue
		}
		d.attempt(ctx, job, platform)
	}
}

// drainRemaining marks queued-but-not-yet-attempted jobs cancelled on
// shutdown and restores their reserved capacity (spec §5: "marks
// remaining jobs as cancelled and restores counters").
func (d *Dispatcher) drainRemaining() {
	for {
		job := d.queue.Pop()
		if job == nil {
			return
		}
		job.Terminal = model.JobCancelled
		_ = d.counter.Decrement(context.Background(), capacity.PlatformDailyKey(job.Decision.PlatformCode, d.clk.Now()), capacity.WindowDay)
	}
}

func (d *Dispatcher) attempt(ctx context.Context, job *model.DispatchJob, platform *model.Platform) {
	job.AttemptCount++
	attemptCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tr, ok := d.transports[platform.DeliveryMethod]
	if !ok {
		d.finishPermanentFailure(ctx, job, "no transport registered for delivery method")
		return
	}

	start := d.clk.Now()
	req := transport.Request{
		Lead:           job.Lead,
		Platform:       platform,
		IdempotencyKey: IdempotencyKey(job.Decision.LeadID, platform.Code, job.AttemptCount),
		AttemptNumber:  job.AttemptCount,
		Priority:       int(job.Priority(start)),
	}
	if d.metrics != nil {
		d.metrics.DispatchAttempts.WithLabelValues(platform.Code, string(platform.DeliveryMethod)).Inc()
	}
	outcome := tr.Send(attemptCtx, req)
	elapsed := d.clk.Now().Sub(start)

	if d.health != nil {
		d.health.RecordAttemptOutcome(platform.Code, outcome.Delivered, elapsed)
	}

	if outcome.Delivered {
		d.finishDelivered(ctx, job, outcome)
		return
	}

	if !outcome.Retryable || job.AttemptCount >= d.cfg.RetryMaxAttempts {
		d.finishPermanentFailure(ctx, job, errString(outcome))
		return
	}

	job.LastError = errString(outcome)
	delay := FullJitterBackoff(job.AttemptCount, time.Duration(d.cfg.RetryBaseMS)*time.Millisecond, time.Duration(d.cfg.RetryMaxMS)*time.Millisecond)
	job.NextAttemptAt = d.clk.Now().Add(delay)
	time.AfterFunc(delay, func() {
		d.queue.Push(job)
	})
}

func (d *Dispatcher) finishDelivered(ctx context.Context, job *model.DispatchJob, outcome transport.Outcome) {
	job.Terminal = model.JobDelivered
	job.ExternalTransactionID = outcome.ExternalTransactionID
	if d.metrics != nil {
		d.metrics.DispatchOutcomes.WithLabelValues(job.Decision.PlatformCode, string(model.JobDelivered)).Inc()
	}

	now := d.clk.Now()
	_, _ = d.counter.CheckAndIncrement(ctx, capacity.PlatformWindowKey(job.Decision.PlatformCode, capacity.WindowHour, now), capacity.WindowHour, 1<<30)

	if d.ledger != nil {
		_ = d.ledger.RecordDelivered(ctx, job, job.Decision.Price.String(), now)
	}
}

func (d *Dispatcher) finishPermanentFailure(ctx context.Context, job *model.DispatchJob, reason string) {
	job.Terminal = model.JobPermanentlyFailed
	job.LastError = reason
	if d.metrics != nil {
		d.metrics.DispatchOutcomes.WithLabelValues(job.Decision.PlatformCode, string(model.JobPermanentlyFailed)).Inc()
	}

	now := d.clk.Now()
	_ = d.counter.Decrement(ctx, capacity.PlatformDailyKey(job.Decision.PlatformCode, now), capacity.WindowDay)

	if d.reroute != nil {
		d.reroute.RequestReroute(ctx, job, job.Decision.PlatformCode)
	}
}

func errString(o transport.Outcome) string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
