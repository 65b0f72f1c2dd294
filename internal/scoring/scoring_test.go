package scoring

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurum-solar/core/internal/config"
	"github.com/aurum-solar/core/internal/model"
	"github.com/aurum-solar/core/internal/pricing"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	pricer := pricing.NewEngine(cfg.Pricing)
	e, err := NewEngine(cfg.Scoring.Weights, model.DefaultTierThresholds(), pricer)
	require.NoError(t, err)
	return e
}

func boolPtr(b bool) *bool { return &b }

var fixedNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func TestNewEngineRejectsBadWeights(t *testing.T) {
	bad := config.ScoringWeights{Bill: 0.5}
	_, err := NewEngine(bad, model.DefaultTierThresholds(), pricing.NewEngine(config.Default().Pricing))
	assert.Error(t, err)
}

// S2 from spec §8: unqualified renter.
func TestOwnershipGate(t *testing.T) {
	e := testEngine(t)
	in := model.ScoringInput{
		Ownership: boolPtr(false),
		HasBill:   true,
		Bill:      decimal.NewFromInt(250),
		ZipCode:   "10016",
	}
	snap, err := e.Score(in, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Total)
	assert.Equal(t, model.TierUnqualified, snap.Tier)
}

func TestOwnershipUnknownDoesNotGate(t *testing.T) {
	e := testEngine(t)
	in := model.ScoringInput{
		HasBill: true,
		Bill:    decimal.NewFromInt(250),
	}
	snap, err := e.Score(in, fixedNow)
	require.NoError(t, err)
	assert.NotEqual(t, 0, snap.Total)
}

// S1 from spec §8: premium routing scenario.
func TestPremiumScenario(t *testing.T) {
	e := testEngine(t)
	in := model.ScoringInput{
		HasBill:   true,
		Bill:      decimal.NewFromInt(380),
		Ownership: boolPtr(true),
		Timeline:  "2025 spring",
		ZipCode:   "11215",
		HasMarket: true,
		Market: model.MarketReference{
			ZipCode:      "11215",
			Borough:      "Brooklyn",
			HighValueZip: true,
		},
		History: model.MessageHistorySummary{
			TurnCount:         8,
			UrgencyCreated:    true,
			ObjectionsHandled: []string{"cost"},
		},
	}
	snap, err := e.Score(in, fixedNow)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, snap.Total, 85)
	assert.Equal(t, model.TierPremium, snap.Tier)
	assert.True(t, snap.RevenuePotential.IsPositive(), "a qualifying premium lead must carry a non-zero revenue-potential estimate")
}

// Regression: Score must populate RevenuePotential from the wired
// pricing.Engine (spec §4.1 output, §4.3 "revenue_potential reported
// to callers"); previously the field was always left at its zero
// value.
func TestScoreSetsRevenuePotentialForQualifyingLead(t *testing.T) {
	e := testEngine(t)
	in := model.ScoringInput{
		HasBill:   true,
		Bill:      decimal.NewFromInt(320),
		Ownership: boolPtr(true),
		Timeline:  "asap",
		ZipCode:   "10025",
		HasMarket: true,
		Market: model.MarketReference{
			ZipCode:           "10025",
			Borough:           "Manhattan",
			HighValueZip:      true,
			SolarAdoptionRate: 0.18,
		},
		History: model.MessageHistorySummary{TurnCount: 5},
	}
	snap, err := e.Score(in, fixedNow)
	require.NoError(t, err)
	require.True(t, snap.Tier.Eligible())
	assert.True(t, snap.RevenuePotential.IsPositive())
}

// Unqualified leads (ownership gate) must not carry a non-zero
// revenue-potential estimate.
func TestScoreRevenuePotentialZeroWhenUnqualified(t *testing.T) {
	e := testEngine(t)
	in := model.ScoringInput{
		Ownership: boolPtr(false),
		HasBill:   true,
		Bill:      decimal.NewFromInt(250),
		ZipCode:   "10016",
	}
	snap, err := e.Score(in, fixedNow)
	require.NoError(t, err)
	assert.True(t, snap.RevenuePotential.IsZero())
}

func TestMissingBillScoresZeroComponent(t *testing.T) {
	e := testEngine(t)
	in := model.ScoringInput{Ownership: boolPtr(true)}
	snap, err := e.Score(in, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Components.Bill)
}

func TestMissingMarketDataIsNeutralNotFailure(t *testing.T) {
	e := testEngine(t)
	in := model.ScoringInput{Ownership: boolPtr(true), HasMarket: false}
	snap, err := e.Score(in, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 50, snap.Components.Location)
	assert.Equal(t, 50, snap.Components.NYCMarket)
}

// Property 1: purity — identical inputs produce identical output.
func TestScorePurity(t *testing.T) {
	e := testEngine(t)
	in := model.ScoringInput{
		HasBill:   true,
		Bill:      decimal.NewFromInt(310),
		Ownership: boolPtr(true),
		Timeline:  "next year",
	}
	a, err := e.Score(in, fixedNow)
	require.NoError(t, err)
	b, err := e.Score(in, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

// Property 2: tier monotonicity on bill amount.
func TestMonotonicityOnBill(t *testing.T) {
	e := testEngine(t)
	base := model.ScoringInput{Ownership: boolPtr(true), HasBill: true}

	bills := []int64{50, 120, 175, 250, 350, 450}
	prevTotal := -1
	for _, b := range bills {
		in := base
		in.Bill = decimal.NewFromInt(b)
		snap, err := e.Score(in, fixedNow)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, snap.Total, prevTotal, "bill=%d should not score lower than previous", b)
		prevTotal = snap.Total
	}
}

// Property 2: tier monotonicity on homeowner status.
func TestMonotonicityOnOwnership(t *testing.T) {
	e := testEngine(t)
	in := model.ScoringInput{HasBill: true, Bill: decimal.NewFromInt(250)}

	withoutOwner, err := e.Score(in, fixedNow)
	require.NoError(t, err)

	in.Ownership = boolPtr(true)
	withOwner, err := e.Score(in, fixedNow)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, withOwner.Total, withoutOwner.Total)
}

// Property 3 is covered by TestOwnershipGate above.

func TestComponentsNeverNegative(t *testing.T) {
	e := testEngine(t)
	in := model.ScoringInput{Ownership: boolPtr(true)}
	snap, err := e.Score(in, fixedNow)
	require.NoError(t, err)
	for _, v := range []int{snap.Components.Bill, snap.Components.Ownership, snap.Components.Timeline,
		snap.Components.Location, snap.Components.Engagement, snap.Components.Credit,
		snap.Components.Objections, snap.Components.NYCMarket} {
		assert.GreaterOrEqual(t, v, 0)
	}
}

func TestBankRound(t *testing.T) {
	assert.Equal(t, 84, bankRound(84.5))
	assert.Equal(t, 86, bankRound(85.5))
	assert.Equal(t, 85, bankRound(85.4))
	assert.Equal(t, 86, bankRound(85.6))
}

func TestTimelineBuckets(t *testing.T) {
	assert.Equal(t, 100, scoreTimeline("ASAP"))
	assert.Equal(t, 80, scoreTimeline("soon"))
	assert.Equal(t, 60, scoreTimeline("next year"))
	assert.Equal(t, 30, scoreTimeline("maybe eventually"))
	assert.Equal(t, 50, scoreTimeline(""))
}
