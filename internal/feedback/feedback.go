// Package feedback implements the buyer feedback loop (spec §4.8):
// applying a BuyerFeedback record to the originating ledger
// transaction, updating the platform's rolling acceptance rate (the
// only platform metric updated here; no quality metric is kept), and
// running the scheduled, bounded tier-threshold
// recalibration. Grounded on b2b_integration.py's buyer-signal
// handling and the teacher's EWMA-flavored metrics fields
// (PricingMetrics/FallbackMetrics in pricing_service). Only
// deterministic, bounded adjustments are in scope here — no
// machine-learned weight updates (spec §4.8 "out of scope").
package feedback

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aurum-solar/core/internal/model"
)

// LedgerApplier is the seam into internal/ledger, avoiding an import
// cycle (ledger has no dependency on feedback).
type LedgerApplier interface {
	ApplyFeedback(ctx context.Context, fb *model.BuyerFeedback, now time.Time) error
}

// PlatformLookup resolves the platform whose rolling metrics get
// updated; satisfied structurally by *internal/routing.PlatformRegistry.
type PlatformLookup interface {
	Get(code string) (*model.Platform, bool)
}

// tierTelemetry accumulates a tier's observed accept rate and
// conversion value for the daily recalibration pass (spec §4.8 "3.").
type tierTelemetry struct {
	accepted           int
	total              int
	conversionValueSum decimal.Decimal
	conversionCount    int
}

func (t *tierTelemetry) observedAcceptRate() (float64, bool) {
	if t.total == 0 {
		return 0, false
	}
	return float64(t.accepted) / float64(t.total), true
}

// ThresholdAdjustment is an audited, bounded change to a tier
// threshold produced by Recalibrate (spec §4.8 "threshold changes are
// audited").
type ThresholdAdjustment struct {
	Tier     model.Tier
	OldValue int
	NewValue int
	Reason   string
	At       time.Time
}

// Loop is the feedback loop service.
type Loop struct {
	ledger    LedgerApplier
	platforms PlatformLookup

	mu          sync.Mutex
	telemetry   map[model.Tier]*tierTelemetry
	targetConversionRate float64

	log *zap.Logger
}

// NewLoop builds a Loop. targetConversionRate is the configured
// global conversion rate recalibration targets (spec §4.8, default
// 0.60).
func NewLoop(ledger LedgerApplier, platforms PlatformLookup, targetConversionRate float64, log *zap.Logger) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	if targetConversionRate <= 0 {
		targetConversionRate = 0.60
	}
	return &Loop{
		ledger:               ledger,
		platforms:            platforms,
		telemetry:            make(map[model.Tier]*tierTelemetry),
		targetConversionRate: targetConversionRate,
		log:                  log,
	}
}

// Consume applies fb to the ledger, updates the originating
// platform's rolling acceptance metric, and folds the outcome into
// the tier's calibration telemetry. tier is the lead's tier at the
// time of dispatch, supplied by the caller since BuyerFeedback itself
// carries no tier (spec §3 BuyerFeedback).
func (l *Loop) Consume(ctx context.Context, fb *model.BuyerFeedback, tier model.Tier, now time.Time) error {
	if err := l.ledger.ApplyFeedback(ctx, fb, now); err != nil {
		return err
	}

	accepted := fb.Type == model.FeedbackAccept || fb.Type == model.FeedbackConversion
	if l.platforms != nil {
		if p, ok := l.platforms.Get(fb.PlatformCode); ok {
			p.RecordFeedback(accepted)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	tel, ok := l.telemetry[tier]
	if !ok {
		tel = &tierTelemetry{}
		l.telemetry[tier] = tel
	}
	tel.total++
	if accepted {
		tel.accepted++
	}
	if fb.Type == model.FeedbackConversion && fb.ConversionValue != nil {
		tel.conversionValueSum = tel.conversionValueSum.Add(*fb.ConversionValue)
		tel.conversionCount++
	}
	return nil
}

// ObservedAcceptRate reports the tier's rolling accept rate from
// accumulated telemetry, or ok=false if no feedback has been
// recorded for the tier yet.
func (l *Loop) ObservedAcceptRate(tier model.Tier) (rate float64, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tel, exists := l.telemetry[tier]
	if !exists {
		return 0, false
	}
	return tel.observedAcceptRate()
}

// Recalibrate runs the scheduled (daily) threshold recalibration pass
// (spec §4.8 "3."): each tier's threshold moves toward the target
// global conversion rate, bounded to a ±5-point safety band per day,
// and never reordered out of basic < standard < premium. Returns the
// adjusted thresholds and an audit trail of what changed and why.
func (l *Loop) Recalibrate(current model.TierThresholds, now time.Time) (model.TierThresholds, []ThresholdAdjustment) {
	const safetyBand = 5

	l.mu.Lock()
	defer l.mu.Unlock()

	next := current
	var audit []ThresholdAdjustment

	adjust := func(tier model.Tier, value *int) {
		tel, ok := l.telemetry[tier]
		if !ok {
			return
		}
		observed, ok := tel.observedAcceptRate()
		if !ok {
			return
		}
		// Observed rate below target: tighten the threshold (raise
		// it) to improve quality. Above target: loosen it (lower) to
		// admit more volume. Magnitude is proportional to the gap,
		// clamped to the ±5 safety band.
		delta := int((l.targetConversionRate - observed) * 10)
		if delta > safetyBand {
			delta = safetyBand
		}
		if delta < -safetyBand {
			delta = -safetyBand
		}
		if delta == 0 {
			return
		}
		old := *value
		newValue := old + delta
		if newValue < 0 {
			newValue = 0
		}
		if newValue > 100 {
			newValue = 100
		}
		*value = newValue
		audit = append(audit, ThresholdAdjustment{
			Tier: tier, OldValue: old, NewValue: newValue,
			Reason: "daily recalibration toward target conversion rate", At: now,
		})
	}

	adjust(model.TierPremium, &next.Premium)
	adjust(model.TierStandard, &next.Standard)
	adjust(model.TierBasic, &next.Basic)

	// Re-assert monotonicity: a recalibration must never reorder the
	// tiers even if each individual delta was within its own band.
	if next.Basic >= next.Standard {
		next.Basic = next.Standard - 1
	}
	if next.Standard >= next.Premium {
		next.Standard = next.Premium - 1
	}

	return next, audit
}
