// Package scoring implements the real-time, deterministic lead
// scoring engine (spec §4.1). It is pure: the only side effect is the
// caller persisting the returned snapshot.
package scoring

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aurum-solar/core/internal/config"
	"github.com/aurum-solar/core/internal/corerrors"
	"github.com/aurum-solar/core/internal/model"
	"github.com/aurum-solar/core/internal/pricing"
)

const serviceName = "scoring"

var urgentTimelineTokens = []string{"immediately", "asap", "this year", "2025"}
var nearTimelineTokens = []string{"soon", "next few months"}
var mediumTimelineTokens = []string{"next year", "2026"}

// Engine computes ScoreSnapshots from a ScoringInput (spec §4.1).
type Engine struct {
	weights config.ScoringWeights
	pricer  *pricing.Engine

	mu         sync.RWMutex
	thresholds model.TierThresholds
}

// NewEngine builds a scoring Engine bound to the given weights and
// tier thresholds. Weight-sum validation happens in config.Validate
// at boot; NewEngine re-checks defensively so a mis-wired caller
// trips ComputationError rather than silently skewing every score.
// pricer supplies the revenue-potential estimate (spec §4.3) the
// returned snapshot carries; the per-buyer acceptance rate is not yet
// known at scoring time (routing hasn't chosen a platform), so the
// estimate uses pricing.DefaultAcceptanceRate, same as §4.3 specifies
// for "no data" cases.
func NewEngine(weights config.ScoringWeights, thresholds model.TierThresholds, pricer *pricing.Engine) (*Engine, error) {
	sum := weights.Bill + weights.Ownership + weights.Timeline + weights.Location +
		weights.Engagement + weights.Credit + weights.Objections + weights.NYCMarket
	if diff := sum - 1.0; diff > 1e-9 || diff < -1e-9 {
		return nil, corerrors.Computation(serviceName, "NewEngine", corerrors.CodeWeightMismatch,
			"scoring weights must sum to 1.0", nil)
	}
	return &Engine{weights: weights, pricer: pricer, thresholds: thresholds}, nil
}

// UpdateThresholds swaps in new tier thresholds, applied to every
// Score call from this point on (spec §4.8 "3." daily recalibration,
// bounded to a ±5-point safety band by internal/feedback.Recalibrate
// before it ever reaches here).
func (e *Engine) UpdateThresholds(t model.TierThresholds) {
	e.mu.Lock()
	e.thresholds = t
	e.mu.Unlock()
}

// Thresholds returns the engine's current tier thresholds.
func (e *Engine) Thresholds() model.TierThresholds {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.thresholds
}

// Score computes a ScoreSnapshot for one conversation turn (spec
// §4.1). It never fails on missing input data — only on an internal
// invariant violation (negative component score, which cannot occur
// given the piecewise functions below but is checked defensively per
// spec §4.1's failure contract).
func (e *Engine) Score(in model.ScoringInput, now time.Time) (*model.ScoreSnapshot, error) {
	// Ownership gate: explicit false short-circuits to zero/unqualified.
	// Unknown (nil) does not gate — it scores 0 for the ownership
	// component only (spec §4.1).
	if in.Ownership != nil && !*in.Ownership {
		return &model.ScoreSnapshot{
			SessionID: in.SessionID,
			Timestamp: now,
			Total:     0,
			Tier:      model.TierUnqualified,
		}, nil
	}

	comp := model.ComponentScores{
		Bill:       scoreBill(in.Bill, in.HasBill),
		Ownership:  scoreOwnership(in.Ownership),
		Timeline:   scoreTimeline(in.Timeline),
		Location:   scoreLocation(in.ZipCode, in.Market, in.HasMarket),
		Engagement: scoreEngagement(in.History),
		Credit:     scoreCredit(in.Bill, in.HasBill, in.Ownership, in.Market, in.HasMarket, in.Timeline),
		Objections: scoreObjections(in.History.ObjectionsHandled),
		NYCMarket:  scoreNYCMarket(in.Market, in.HasMarket),
	}

	for _, v := range []int{comp.Bill, comp.Ownership, comp.Timeline, comp.Location, comp.Engagement, comp.Credit, comp.Objections, comp.NYCMarket} {
		if v < 0 {
			return nil, corerrors.Computation(serviceName, "Score", corerrors.CodeNegativeComponent,
				"component score below zero", nil)
		}
	}

	weighted := float64(comp.Bill)*e.weights.Bill +
		float64(comp.Ownership)*e.weights.Ownership +
		float64(comp.Timeline)*e.weights.Timeline +
		float64(comp.Location)*e.weights.Location +
		float64(comp.Engagement)*e.weights.Engagement +
		float64(comp.Credit)*e.weights.Credit +
		float64(comp.Objections)*e.weights.Objections +
		float64(comp.NYCMarket)*e.weights.NYCMarket

	weighted = applyBonuses(weighted, in)

	total := bankRound(weighted)
	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}

	tier := model.TierFromScore(total, e.Thresholds())

	var revenuePotential decimal.Decimal
	if e.pricer != nil {
		priceInput := pricing.PriceInput{
			Tier:           tier,
			Score:          total,
			MonthlyBill:    in.Bill,
			HasBill:        in.HasBill,
			UrgencyCreated: in.History.UrgencyCreated,
		}
		if in.HasMarket {
			priceInput.HighValueZip = in.Market.HighValueZip
			priceInput.SolarAdoption = in.Market.SolarAdoptionRate
		}
		price := e.pricer.Price(priceInput)
		revenuePotential = pricing.RevenuePotential(price, 0)
	}

	return &model.ScoreSnapshot{
		SessionID:        in.SessionID,
		Timestamp:        now,
		Components:       comp,
		Total:            total,
		Tier:             tier,
		RevenuePotential: revenuePotential,
	}, nil
}

func scoreBill(bill decimal.Decimal, has bool) int {
	if !has || bill.IsZero() {
		return 0
	}
	f, _ := bill.Float64()
	switch {
	case f >= 400:
		return 100
	case f >= 300:
		return 85
	case f >= 200:
		return 70
	case f >= 150:
		return 55
	case f >= 100:
		return 40
	default:
		return 20
	}
}

func scoreOwnership(ownership *bool) int {
	if ownership != nil && *ownership {
		return 100
	}
	return 0
}

func scoreTimeline(t model.Timeline) int {
	if t == "" {
		return 50
	}
	lower := strings.ToLower(string(t))
	if containsAny(lower, urgentTimelineTokens) {
		return 100
	}
	if containsAny(lower, nearTimelineTokens) {
		return 80
	}
	if containsAny(lower, mediumTimelineTokens) {
		return 60
	}
	return 30
}

func containsAny(s string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

func scoreLocation(zip string, m model.MarketReference, hasMarket bool) int {
	score := 50.0
	if hasMarket {
		if m.HighValueZip {
			score += 20
		}
		switch {
		case m.SolarAdoptionRate > 0.15:
			score += 15
		case m.SolarAdoptionRate > 0.10:
			score += 10
		case m.SolarAdoptionRate > 0.05:
			score += 5
		}
		switch m.CompetitionLevel {
		case "low":
			score += 10
		case "high":
			score -= 5
		}
		switch m.Borough {
		case "Manhattan":
			score += 10
		case "Brooklyn":
			score += 5
		}
	}
	return clamp0to100(score)
}

func scoreEngagement(h model.MessageHistorySummary) int {
	score := 50.0
	switch {
	case h.TurnCount >= 5:
		score += 20
	case h.TurnCount >= 3:
		score += 10
	}
	if hasHighIntent(h.IntentsObserved) {
		score += 15
	}
	if h.UrgencyCreated {
		score += 10
	}
	if len(h.ObjectionsHandled) > 0 {
		score += 10
	}
	return clamp0to100(score)
}

var highIntentSignals = map[string]bool{
	"ready_to_buy":  true,
	"schedule_call": true,
	"request_quote": true,
	"high_interest": true,
}

func hasHighIntent(intents []string) bool {
	for _, in := range intents {
		if highIntentSignals[strings.ToLower(in)] {
			return true
		}
	}
	return false
}

func scoreCredit(bill decimal.Decimal, hasBill bool, ownership *bool, m model.MarketReference, hasMarket bool, timeline model.Timeline) int {
	score := 50.0
	if hasBill {
		if f, _ := bill.Float64(); f >= 300 {
			score += 20
		}
	}
	if ownership != nil && *ownership {
		score += 15
	}
	if hasMarket && m.HighValueZip {
		score += 15
	}
	if isUrgentTimeline(timeline) {
		score += 10
	}
	return clamp0to100(score)
}

func isUrgentTimeline(t model.Timeline) bool {
	return containsAny(strings.ToLower(string(t)), urgentTimelineTokens)
}

var objectionBonus = map[string]float64{
	"cost":       20,
	"roof":       15,
	"aesthetics": 10,
	"process":    15,
	"timeline":   25,
	"other":      10,
}

func scoreObjections(handled []string) int {
	if len(handled) == 0 {
		return 0
	}
	score := 50.0
	for _, category := range handled {
		if bonus, ok := objectionBonus[strings.ToLower(category)]; ok {
			score += bonus
		} else {
			score += objectionBonus["other"]
		}
	}
	return clamp0to100(score)
}

func scoreNYCMarket(m model.MarketReference, hasMarket bool) int {
	if !hasMarket {
		return 50
	}
	score := 50.0
	score += (m.SolarPotentialScore - 50) * 0.3
	switch {
	case m.ElectricRate >= 0.30:
		score += 15
	case m.ElectricRate >= 0.25:
		score += 10
	case m.ElectricRate >= 0.20:
		score += 5
	}
	if m.StateIncentives {
		score += 10
	}
	if m.LocalIncentives {
		score += 5
	}
	if m.NetMetering {
		score += 5
	}
	return clamp0to100(score)
}

// applyBonuses applies the multiplicative post-sum bonuses (spec
// §4.1), each capped such that the final score never exceeds 100.
func applyBonuses(weighted float64, in model.ScoringInput) float64 {
	billF, _ := in.Bill.Float64()
	owner := in.Ownership != nil && *in.Ownership

	if in.HasBill && billF >= 400 && owner && in.History.UrgencyCreated {
		weighted *= 1.10
	}
	if in.HasMarket && in.Market.HighValueZip {
		weighted *= 1.05
	}
	if in.History.TurnCount >= 8 {
		weighted *= 1.05
	}
	if weighted > 100 {
		weighted = 100
	}
	return weighted
}

func clamp0to100(v float64) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(math.Round(v))
}

// bankRound performs round-half-to-even ("banker's rounding") on a
// float already known to be within [0,100], matching spec §4.1's
// "bank-round to nearest integer" tie-break rule.
func bankRound(v float64) int {
	floor := math.Floor(v)
	diff := v - floor
	switch {
	case diff < 0.5:
		return int(floor)
	case diff > 0.5:
		return int(floor) + 1
	default:
		// Exactly .5: round to even.
		if int64(floor)%2 == 0 {
			return int(floor)
		}
		return int(floor) + 1
	}
}
