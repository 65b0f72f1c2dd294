// Package routing implements the B2B routing engine (spec §4.4): rule
// matching, candidate filtering, weighted platform scoring, tie-break,
// and atomic capacity reservation. Grounded on the original
// lead_routing_engine.py (rule/platform/score shapes) and the Go-idiom
// buyer-routing interfaces in other_examples/, generalized to the
// teacher's cached-rule, mutex-protected-map service-struct shape.
package routing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aurum-solar/core/internal/capacity"
	"github.com/aurum-solar/core/internal/corerrors"
	"github.com/aurum-solar/core/internal/marketdata"
	"github.com/aurum-solar/core/internal/model"
	"github.com/aurum-solar/core/internal/pricing"
)

const serviceName = "routing"

// Weighted component maxima from spec §4.4 step 3.
const (
	weightRevenue     = 0.40
	weightPerformance = 0.25
	weightCapacity    = 0.15
	weightNYC         = 0.10
	weightRuleBonus   = 0.10
)

// BoroughConversionRates gives the NYC-optimization component's
// borough-specific conversion-rate bonus input (spec §4.4 step 3:
// "+ borough conversion rate × 0.05").
type BoroughConversionRates map[string]float64

// Engine is the routing engine (spec §4.4).
type Engine struct {
	registry   *PlatformRegistry
	counter    capacity.Counter
	pricer     *pricing.Engine
	rules      []model.RoutingRule
	boroughCvr BoroughConversionRates
	market     marketdata.Provider
	leadLocks  *leadLockTable
}

// NewEngine builds a routing Engine. market supplies the zip-level
// HighValueZip/SolarAdoptionRate signal the NYC-optimization and
// revenue components read (spec §4.4 step 3); it may be nil, in which
// case both components treat every lead as having no market data.
func NewEngine(registry *PlatformRegistry, counter capacity.Counter, pricer *pricing.Engine, rules []model.RoutingRule, boroughCvr BoroughConversionRates, market marketdata.Provider) *Engine {
	return &Engine{
		registry:   registry,
		counter:    counter,
		pricer:     pricer,
		rules:      rules,
		boroughCvr: boroughCvr,
		market:     market,
		leadLocks:  newLeadLockTable(),
	}
}

// Route selects a destination platform for lead and atomically
// reserves its daily capacity as one step (spec §4.4 Atomicity). On
// success the platform's daily counter has already been incremented;
// callers MUST call Rollback on permanent dispatch failure.
func (e *Engine) Route(ctx context.Context, lead *model.Lead, snapshot *model.ScoreSnapshot, maxDailyOverride map[string]int, now time.Time) (*model.RoutingDecision, error) {
	unlock := e.leadLocks.lock(lead.ID)
	defer unlock()

	applicable := e.applicableRules(lead)
	base := e.candidatePlatforms(lead)
	if len(base) == 0 {
		return nil, corerrors.NoEligiblePlatform(serviceName, "Route", "no platform accepts this lead's tier/score/fields")
	}

	candidates := e.restrictByPreferred(base, applicable)
	if len(candidates) == 0 {
		candidates = base
	}

	scored := e.scoreCandidates(candidates, lead, applicable)
	sort.Slice(scored, func(i, j int) bool { return lessCandidate(scored[i], scored[j]) })

	for i, cand := range scored {
		platform, ok := e.registry.Get(cand.PlatformCode)
		if !ok {
			continue
		}
		key := capacity.PlatformDailyKey(platform.Code, now)
		limit := platform.MaxDaily
		if override, ok := maxDailyOverride[platform.Code]; ok {
			limit = override
		}
		res, err := e.counter.CheckAndIncrement(ctx, key, capacity.WindowDay, limit)
		if err != nil {
			return nil, corerrors.Internal(serviceName, "Route", "capacity counter failure", err)
		}
		if !res.Allowed {
			continue
		}

		decision := e.buildDecision(lead, platform, cand, scored, i, applicable)
		return decision, nil
	}

	return nil, corerrors.CapacityExhausted(serviceName, "Route", "all eligible platforms are at daily capacity")
}

// Rollback decrements the chosen platform's daily counter, compensating
// for a reservation made by Route whose dispatch permanently failed
// (spec §4.4 Atomicity, §4.5).
func (e *Engine) Rollback(ctx context.Context, platformCode string, now time.Time) error {
	key := capacity.PlatformDailyKey(platformCode, now)
	return e.counter.Decrement(ctx, key, capacity.WindowDay)
}

func (e *Engine) applicableRules(lead *model.Lead) []model.RoutingRule {
	var out []model.RoutingRule
	for _, r := range e.rules {
		if !r.Active {
			continue
		}
		if r.Predicate.Matches(lead) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

func (e *Engine) candidatePlatforms(lead *model.Lead) []*model.Platform {
	var out []*model.Platform
	for _, p := range e.registry.All() {
		if !p.Active || p.HealthStatus == model.HealthMaintenance || !p.IsAcceptingLeads {
			continue
		}
		if !p.AcceptsTier(lead.Tier) {
			continue
		}
		if lead.Score < p.MinScore || (p.MaxScore > 0 && lead.Score > p.MaxScore) {
			continue
		}
		if !lead.RequiredFieldsPresent(p.RequiredFields) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (e *Engine) restrictByPreferred(base []*model.Platform, applicable []model.RoutingRule) []*model.Platform {
	preferred := make(map[string]bool)
	any := false
	for _, r := range applicable {
		if len(r.PreferredPlatforms) > 0 {
			any = true
			for _, code := range r.PreferredPlatforms {
				preferred[code] = true
			}
		}
	}
	if !any {
		return base
	}
	var out []*model.Platform
	for _, p := range base {
		if preferred[p.Code] {
			out = append(out, p)
		}
	}
	return out
}

func (e *Engine) scoreCandidates(candidates []*model.Platform, lead *model.Lead, applicable []model.RoutingRule) []model.CandidateScore {
	priceInput := e.leadPriceInput(lead)
	market, hasMarket := e.lookupMarket(lead.Property.ZipCode)

	out := make([]model.CandidateScore, 0, len(candidates))
	for _, p := range candidates {
		price := e.pricer.Price(priceInput)
		commission := price.Mul(p.CommissionRate)
		net := price.Sub(commission)
		netF, _ := net.Float64()

		revenueNorm := clamp01(netF / 300.0)
		revComponent := weightRevenue * revenueNorm

		respFactor := 1.0 - minF(p.AvgResponseMillis/30000.0, 1.0)
		perfComponent := weightPerformance * (p.AcceptanceRate * respFactor)

		utilization := p.UtilizationNow
		capComponent := weightCapacity * (1.0 - clamp01(utilization))

		// NYC-optimization component (spec §4.4 step 3): the +0.10
		// high-value-zip bonus and the ×0.05 borough conversion-rate
		// bonus are two independent signals, the former keyed on
		// market reference data, the latter on the lead's borough.
		nycRaw := 0.0
		if hasMarket && market.HighValueZip {
			nycRaw += 0.10
		}
		nycRaw += e.boroughCvr[lead.Property.Borough] * 0.05
		nycComponent := minF(nycRaw, weightNYC)

		ruleBonusRaw := 0.0
		for _, r := range applicable {
			if containsStr(r.PreferredPlatforms, p.Code) {
				ruleBonusRaw += 0.10
			}
		}
		ruleBonusComponent := minF(ruleBonusRaw, weightRuleBonus)

		total := revComponent + perfComponent + capComponent + nycComponent + ruleBonusComponent

		out = append(out, model.CandidateScore{
			PlatformCode:   p.Code,
			AcceptanceRate: p.AcceptanceRate,
			Utilization:    utilization,
			Breakdown: model.ScoreBreakdown{
				Revenue:     revComponent,
				Performance: perfComponent,
				Capacity:    capComponent,
				NYCFit:      nycComponent,
				RuleBonus:   ruleBonusComponent,
				Total:       total,
			},
		})
	}
	return out
}

// lookupMarket resolves zip-level market reference data for the
// NYC-optimization and revenue components. A nil e.market or a miss
// is not an error — both components treat it as neutral, same as
// internal/scoring's contract for missing reference data.
func (e *Engine) lookupMarket(zipCode string) (model.MarketReference, bool) {
	if e.market == nil {
		return model.MarketReference{}, false
	}
	return e.market.Lookup(zipCode)
}

// leadPriceInput builds the pricing.PriceInput for a lead from its
// own qualification data plus zip-level market reference data (spec
// §4.3). It does not carry an urgency-created signal: that flag lives
// on the conversation session, not the persisted Lead, and is only
// available to internal/scoring at snapshot time.
func (e *Engine) leadPriceInput(lead *model.Lead) pricing.PriceInput {
	in := pricing.PriceInput{
		Tier:            lead.Tier,
		Score:           lead.Score,
		MonthlyBill:     lead.Qualification.MonthlyElectricBill,
		HasBill:         lead.Qualification.MonthlyElectricBill.IsPositive(),
		SurgeMultiplier: 1.0,
	}
	if market, ok := e.lookupMarket(lead.Property.ZipCode); ok {
		in.HighValueZip = market.HighValueZip
		in.SolarAdoption = market.SolarAdoptionRate
	}
	return in
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// lessCandidate orders candidates highest-total-first, breaking ties
// by (a) higher acceptance_rate, (b) lower utilization, (c)
// lexicographic platform code (spec §4.4 step 4).
func lessCandidate(a, b model.CandidateScore) bool {
	if a.Breakdown.Total != b.Breakdown.Total {
		return a.Breakdown.Total > b.Breakdown.Total
	}
	if a.AcceptanceRate != b.AcceptanceRate {
		return a.AcceptanceRate > b.AcceptanceRate
	}
	if a.Utilization != b.Utilization {
		return a.Utilization < b.Utilization
	}
	return a.PlatformCode < b.PlatformCode
}

func (e *Engine) buildDecision(lead *model.Lead, platform *model.Platform, chosen model.CandidateScore, scored []model.CandidateScore, chosenIdx int, applicable []model.RoutingRule) *model.RoutingDecision {
	price := e.pricer.Price(e.leadPriceInput(lead))
	expectedRevenue := pricing.RevenuePotential(price, platform.AcceptanceRate)

	reasoning := []string{
		fmt.Sprintf("selected %s with composite score %.4f", platform.Code, chosen.Breakdown.Total),
	}
	for _, r := range applicable {
		reasoning = append(reasoning, fmt.Sprintf("rule %q (priority %d) applied", r.Name, r.Priority))
	}

	var alternatives []model.CandidateScore
	for _, c := range scored {
		if c.PlatformCode == chosen.PlatformCode {
			continue
		}
		alternatives = append(alternatives, c)
		if len(alternatives) == 2 {
			break
		}
	}

	return &model.RoutingDecision{
		LeadID:          lead.ID,
		PlatformCode:    platform.Code,
		ConfidenceScore: chosen.Breakdown.Total,
		Breakdown:       chosen.Breakdown,
		Reasoning:       reasoning,
		Price:           price,
		ExpectedRevenue: expectedRevenue,
		Alternatives:    alternatives,
	}
}
