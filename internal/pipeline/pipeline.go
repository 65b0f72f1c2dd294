// Package pipeline wires the lead-to-revenue stages — scoring,
// tracking, routing, dispatch, ledger — into the two entry points the
// event bus delivers: an inbound conversation turn and a buyer
// feedback verdict. Grounded on
// services/distribution_service/src/controllers calling straight into
// injected services rather than owning business logic itself; this
// package plays that controller role for the core pipeline.
package pipeline

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aurum-solar/core/internal/clock"
	"github.com/aurum-solar/core/internal/corerrors"
	"github.com/aurum-solar/core/internal/dispatch"
	"github.com/aurum-solar/core/internal/feedback"
	"github.com/aurum-solar/core/internal/ledger"
	"github.com/aurum-solar/core/internal/marketdata"
	"github.com/aurum-solar/core/internal/metrics"
	"github.com/aurum-solar/core/internal/model"
	"github.com/aurum-solar/core/internal/routing"
	"github.com/aurum-solar/core/internal/scoring"
	"github.com/aurum-solar/core/internal/tracker"
)

// LeadStore persists the Lead records the pipeline mutates across
// turns; a thin, mutex-guarded in-process map by default
// (internal/pipeline/leadstore.go), swappable for a durable store
// without touching the pipeline itself.
type LeadStore interface {
	GetOrCreate(sessionID model.SessionID, now time.Time) *model.Lead
	BySession(sessionID model.SessionID) (*model.Lead, bool)
}

// Pipeline is the assembled lead-to-revenue processing core.
type Pipeline struct {
	leads     LeadStore
	tracker   *tracker.Tracker
	scorer    *scoring.Engine
	market    *marketdata.Store
	router    *routing.Engine
	dispatcher *dispatch.Dispatcher
	feedback  *feedback.Loop
	snapshots SnapshotRecorder

	requiredFields []string
	log            *zap.Logger
	metrics        *metrics.Registry

	clk                clock.Clock
	maxRerouteAttempts int
}

// SetMetrics wires a metrics.Registry into the pipeline. Optional —
// a nil registry (the default) means every instrumentation point is a
// no-op, matching the rest of this codebase's nil-safe dependency
// style (see Dispatcher.health, Pipeline.snapshots).
func (p *Pipeline) SetMetrics(m *metrics.Registry) { p.metrics = m }

// SetClock wires the clock RequestReroute uses to timestamp its
// re-routed job; defaults to clock.Real{} when never called. Separate
// from IngestTurn's explicit now parameter because reroute is invoked
// asynchronously by a dispatch worker, not from a request path that
// already carries a now value.
func (p *Pipeline) SetClock(clk clock.Clock) { p.clk = clk }

// SetMaxRerouteAttempts bounds how many times RequestReroute will
// re-enter routing for the same dispatch job (spec §4.4
// routing.max_dispatch_attempts_per_lead). 0 (the default) falls back
// to 3.
func (p *Pipeline) SetMaxRerouteAttempts(n int) { p.maxRerouteAttempts = n }

// SnapshotRecorder persists ScoreSnapshot history; satisfied by
// *internal/storage/snapshotstore.Store.
type SnapshotRecorder interface {
	Append(ctx context.Context, snap *model.ScoreSnapshot) error
}

// NoopSnapshotRecorder discards snapshots; the default when no
// snapshot store is wired (tests, local runs without MongoDB).
type NoopSnapshotRecorder struct{}

func (NoopSnapshotRecorder) Append(context.Context, *model.ScoreSnapshot) error { return nil }

// New assembles a Pipeline from its already-constructed stage
// engines.
func New(
	leads LeadStore,
	trk *tracker.Tracker,
	scorer *scoring.Engine,
	market *marketdata.Store,
	router *routing.Engine,
	dispatcher *dispatch.Dispatcher,
	fb *feedback.Loop,
	snapshots SnapshotRecorder,
	requiredFields []string,
	log *zap.Logger,
) *Pipeline {
	if snapshots == nil {
		snapshots = NoopSnapshotRecorder{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		leads: leads, tracker: trk, scorer: scorer, market: market,
		router: router, dispatcher: dispatcher, feedback: fb,
		snapshots: snapshots, requiredFields: requiredFields, log: log,
		clk: clock.Real{},
	}
}

// IngestTurn folds one conversation turn into its session, rescoring
// and — once the lead clears the required-field and tier bar —
// routing and enqueueing it for dispatch (spec §4.1 → §4.2 → §4.4 →
// §4.5 data flow). If the dispatch queue is full, the capacity
// reservation is rolled back and the lead is not dispatched: no
// deferred job is kept and the session tracker is not told.
func (p *Pipeline) IngestTurn(ctx context.Context, sessionID model.SessionID, slots map[string]model.SlotValue, meta model.MessageMeta, now time.Time) error {
	p.tracker.Open(ctx, sessionID)
	snap := p.tracker.OnMessage(sessionID, slots, meta, now)
	if snap == nil {
		return nil
	}

	lead := p.leads.GetOrCreate(sessionID, now)
	applySlots(lead, slots, now)

	market, hasMarket := p.market.Lookup(lead.Property.ZipCode)
	input := model.ScoringInput{
		SessionID: sessionID,
		Bill:      lead.Qualification.MonthlyElectricBill,
		HasBill:   lead.Qualification.MonthlyElectricBill.IsPositive(),
		Ownership: lead.Qualification.OwnershipVerified,
		Timeline:  lead.Qualification.Timeline,
		ZipCode:   lead.Property.ZipCode,
		History: model.MessageHistorySummary{
			TurnCount:         snap.QuestionsAsked,
			AvgSentiment:      snap.EngagementScore,
			ObjectionsHandled: meta.ObjectionsHandled,
			UrgencyCreated:    snap.UrgencyCreated,
		},
		Market:    market,
		HasMarket: hasMarket,
	}

	scoreStart := time.Now()
	scoreSnap, err := p.scorer.Score(input, now)
	if err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.ScoringLatency.Observe(time.Since(scoreStart).Seconds())
		p.metrics.ScoringTotal.WithLabelValues(string(scoreSnap.Tier)).Inc()
	}
	if err := p.snapshots.Append(ctx, scoreSnap); err != nil {
		p.log.Warn("snapshot append failed", zap.Error(err))
	}

	lead.ApplyRescore(scoreSnap.Total, scoreSnap.Tier, scoreSnap.RevenuePotential, now)

	requiredOK := lead.RequiredFieldsPresent(p.requiredFields)
	rescoreSnap := p.tracker.OnRescore(sessionID, scoreSnap, requiredOK, now)
	if rescoreSnap == nil || rescoreSnap.State != model.StateReady {
		return nil
	}
	if !lead.Tier.Eligible() {
		return nil
	}

	decision, err := p.router.Route(ctx, lead, scoreSnap, nil, now)
	if err != nil {
		p.log.Info("lead not routed", zap.String("lead_id", lead.ID.String()), zap.Error(err))
		if p.metrics != nil {
			p.metrics.RoutingDecisions.WithLabelValues(string(corerrors.CodeOf(err))).Inc()
		}
		return nil
	}
	if p.metrics != nil {
		p.metrics.RoutingDecisions.WithLabelValues(decision.PlatformCode).Inc()
	}

	job := &model.DispatchJob{
		ID:          model.NewID(),
		Lead:        lead,
		Decision:    *decision,
		SLADeadline: now.Add(defaultSLA(lead.Tier)),
		Tier:        lead.Tier,
	}
	if !p.dispatcher.Enqueue(job) {
		p.log.Warn("dispatch queue full, rolling back capacity reservation", zap.String("platform", decision.PlatformCode))
		_ = p.router.Rollback(ctx, decision.PlatformCode, now)
		return nil
	}

	p.tracker.OnDispatched(sessionID, now)
	lead.MarkExported(decision.PlatformCode, now)
	return nil
}

// ConsumeFeedback applies a buyer's verdict on a previously dispatched
// lead (spec §4.7 → §4.8).
func (p *Pipeline) ConsumeFeedback(ctx context.Context, fb *model.BuyerFeedback, tier model.Tier, now time.Time) error {
	return p.feedback.Consume(ctx, fb, tier, now)
}

// RunMaintenance runs the periodic, non-request-driven sweeps: idle
// session expiry and ledger aging. Callers run this on a ticker (spec
// §4.2 idle TTL, §4.7 aging).
func (p *Pipeline) RunMaintenance(ctx context.Context, ledgerSweeper *ledger.Ledger, now time.Time) {
	p.tracker.Tick(now)
	if ledgerSweeper != nil {
		if _, err := ledgerSweeper.RunAgingSweep(ctx, now); err != nil {
			p.log.Error("aging sweep failed", zap.Error(err))
		}
	}
}

func applySlots(lead *model.Lead, slots map[string]model.SlotValue, now time.Time) {
	if v, ok := slots["email"]; ok {
		lead.Contact.Email, _ = v.Value.(string)
	}
	if v, ok := slots["phone"]; ok {
		lead.Contact.Phone, _ = v.Value.(string)
	}
	if v, ok := slots["address"]; ok {
		lead.Property.Address, _ = v.Value.(string)
	}
	if v, ok := slots["zip_code"]; ok {
		lead.Property.ZipCode, _ = v.Value.(string)
	}
	if v, ok := slots["borough"]; ok {
		lead.Property.Borough, _ = v.Value.(string)
	}
	if v, ok := slots["monthly_electric_bill"]; ok {
		if f, ok := v.Value.(float64); ok {
			lead.Qualification.MonthlyElectricBill = decimal.NewFromFloat(f)
		}
	}
	if v, ok := slots["ownership_verified"]; ok {
		if b, ok := v.Value.(bool); ok {
			lead.Qualification.OwnershipVerified = &b
		}
	}
	if v, ok := slots["timeline"]; ok {
		if s, ok := v.Value.(string); ok {
			lead.Qualification.Timeline = model.Timeline(s)
		}
	}
	lead.UpdatedAt = now
}

func defaultSLA(tier model.Tier) time.Duration {
	switch tier {
	case model.TierPremium:
		return 15 * time.Minute
	case model.TierStandard:
		return time.Hour
	default:
		return 4 * time.Hour
	}
}
