package routing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurum-solar/core/internal/capacity"
	"github.com/aurum-solar/core/internal/clock"
	"github.com/aurum-solar/core/internal/config"
	"github.com/aurum-solar/core/internal/corerrors"
	"github.com/aurum-solar/core/internal/marketdata"
	"github.com/aurum-solar/core/internal/model"
	"github.com/aurum-solar/core/internal/pricing"
)

func testMarket() *marketdata.Store {
	m := marketdata.NewStore()
	m.Seed(marketdata.SampleNYCData())
	return m
}

var fixedNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func premiumPlatform(code string, maxDaily int) *model.Platform {
	return &model.Platform{
		Code:           code,
		Active:         true,
		IsAcceptingLeads: true,
		AcceptedTiers:  map[model.Tier]bool{model.TierPremium: true, model.TierStandard: true},
		MinScore:       0,
		MaxScore:       100,
		CommissionRate: decimal.NewFromFloat(0.15),
		RequiredFields: []string{"email", "phone", "address", "zip_code"},
		MaxDaily:       maxDaily,
		HealthStatus:   model.HealthHealthy,
		AcceptanceRate: 0.85,
		AvgResponseMillis: 2000,
		UtilizationNow: 0.1,
	}
}

func testLead(tier model.Tier, score int) *model.Lead {
	l := model.NewLead(model.LeadID(uuid.New()), model.SessionID(uuid.New()), fixedNow)
	l.Tier = tier
	l.HighestEverTier = tier
	l.Score = score
	l.Contact.Email = "a@b.com"
	l.Contact.Phone = "555-0100"
	l.Property.Address = "1 Main St"
	l.Property.ZipCode = "11215"
	l.Property.Borough = "Brooklyn"
	return l
}

func newTestEngine(counter capacity.Counter, platforms ...*model.Platform) *Engine {
	reg := NewPlatformRegistry()
	for _, p := range platforms {
		reg.Upsert(p)
	}
	pricer := pricing.NewEngine(config.Default().Pricing)
	rules := []model.RoutingRule{}
	return NewEngine(reg, counter, pricer, rules, BoroughConversionRates{"Brooklyn": 0.3}, testMarket())
}

func TestRouteSelectsHighestScoringPlatform(t *testing.T) {
	counter := capacity.NewMemoryCounter(clock.Real{})
	weak := premiumPlatform("weak", 100)
	weak.AcceptanceRate = 0.40
	weak.AvgResponseMillis = 20000
	strong := premiumPlatform("strong", 100)
	strong.AcceptanceRate = 0.95
	strong.AvgResponseMillis = 500

	e := newTestEngine(counter, weak, strong)
	lead := testLead(model.TierPremium, 90)

	decision, err := e.Route(context.Background(), lead, nil, nil, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "strong", decision.PlatformCode)
	assert.Len(t, decision.Alternatives, 1)
	assert.NotEmpty(t, decision.Reasoning)
}

// S3: capacity exhaustion on the preferred platform falls back to the
// next-best eligible platform rather than failing the lead.
func TestRouteFallsBackWhenPreferredIsAtCapacity(t *testing.T) {
	counter := capacity.NewMemoryCounter(clock.Real{})
	full := premiumPlatform("full", 1)
	full.AcceptanceRate = 0.95
	fallback := premiumPlatform("fallback", 100)
	fallback.AcceptanceRate = 0.70

	e := newTestEngine(counter, full, fallback)
	lead1 := testLead(model.TierPremium, 90)

	d1, err := e.Route(context.Background(), lead1, nil, nil, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "full", d1.PlatformCode)

	lead2 := testLead(model.TierPremium, 90)
	d2, err := e.Route(context.Background(), lead2, nil, nil, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "fallback", d2.PlatformCode, "full platform is at daily capacity")
}

func TestRouteReturnsNoEligiblePlatformWhenNoneAccept(t *testing.T) {
	counter := capacity.NewMemoryCounter(clock.Real{})
	p := premiumPlatform("acme", 10)
	p.AcceptedTiers = map[model.Tier]bool{model.TierBasic: true}

	e := newTestEngine(counter, p)
	lead := testLead(model.TierPremium, 90)

	_, err := e.Route(context.Background(), lead, nil, nil, fixedNow)
	require.Error(t, err)
	assert.Equal(t, corerrors.CodeNoEligiblePlatform, corerrors.CodeOf(err))
}

func TestRouteReturnsCapacityExhaustedWhenAllPlatformsFull(t *testing.T) {
	counter := capacity.NewMemoryCounter(clock.Real{})
	p := premiumPlatform("acme", 1)
	e := newTestEngine(counter, p)

	_, err := e.Route(context.Background(), testLead(model.TierPremium, 90), nil, nil, fixedNow)
	require.NoError(t, err)

	_, err = e.Route(context.Background(), testLead(model.TierPremium, 90), nil, nil, fixedNow)
	require.Error(t, err)
	assert.Equal(t, corerrors.CodeCapacityExhausted, corerrors.CodeOf(err))
}

func TestRouteHonorsRequiredFields(t *testing.T) {
	counter := capacity.NewMemoryCounter(clock.Real{})
	p := premiumPlatform("acme", 10)
	p.RequiredFields = []string{"email", "phone", "address", "zip_code", "monthly_electric_bill"}
	e := newTestEngine(counter, p)

	lead := testLead(model.TierPremium, 90) // no monthly_electric_bill set
	_, err := e.Route(context.Background(), lead, nil, nil, fixedNow)
	require.Error(t, err)
	assert.Equal(t, corerrors.CodeNoEligiblePlatform, corerrors.CodeOf(err))
}

func TestRulePreferredPlatformsNarrowsCandidates(t *testing.T) {
	counter := capacity.NewMemoryCounter(clock.Real{})
	preferred := premiumPlatform("preferred", 10)
	other := premiumPlatform("other", 10)
	other.AcceptanceRate = 0.99 // would win on pure score but is excluded by the rule

	reg := NewPlatformRegistry()
	reg.Upsert(preferred)
	reg.Upsert(other)
	pricer := pricing.NewEngine(config.Default().Pricing)
	rules := []model.RoutingRule{
		{
			ID:                 "r1",
			Name:               "exclusive-to-preferred",
			Predicate:          model.RulePredicate{Tiers: []model.Tier{model.TierPremium}},
			PreferredPlatforms: []string{"preferred"},
			Priority:           10,
			Active:             true,
		},
	}
	e := NewEngine(reg, counter, pricer, rules, BoroughConversionRates{}, testMarket())

	decision, err := e.Route(context.Background(), testLead(model.TierPremium, 90), nil, nil, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "preferred", decision.PlatformCode)
}

func TestRollbackFreesReservedCapacity(t *testing.T) {
	counter := capacity.NewMemoryCounter(clock.Real{})
	p := premiumPlatform("acme", 1)
	e := newTestEngine(counter, p)

	d, err := e.Route(context.Background(), testLead(model.TierPremium, 90), nil, nil, fixedNow)
	require.NoError(t, err)

	require.NoError(t, e.Rollback(context.Background(), d.PlatformCode, fixedNow))

	_, err = e.Route(context.Background(), testLead(model.TierPremium, 90), nil, nil, fixedNow)
	require.NoError(t, err, "rollback should have freed the reserved slot")
}

func TestLessCandidateTieBreakOrdering(t *testing.T) {
	a := model.CandidateScore{PlatformCode: "b", AcceptanceRate: 0.9, Utilization: 0.5, Breakdown: model.ScoreBreakdown{Total: 0.5}}
	b := model.CandidateScore{PlatformCode: "a", AcceptanceRate: 0.9, Utilization: 0.5, Breakdown: model.ScoreBreakdown{Total: 0.5}}
	assert.True(t, lessCandidate(b, a), "equal score/acceptance/utilization falls back to lexicographic platform code")

	c := model.CandidateScore{PlatformCode: "z", AcceptanceRate: 0.9, Utilization: 0.1, Breakdown: model.ScoreBreakdown{Total: 0.5}}
	d := model.CandidateScore{PlatformCode: "a", AcceptanceRate: 0.9, Utilization: 0.9, Breakdown: model.ScoreBreakdown{Total: 0.5}}
	assert.True(t, lessCandidate(c, d), "lower utilization wins over alphabetically earlier code")
}
