package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurum-solar/core/internal/capacity"
	"github.com/aurum-solar/core/internal/clock"
	"github.com/aurum-solar/core/internal/config"
	"github.com/aurum-solar/core/internal/dispatch"
	"github.com/aurum-solar/core/internal/dispatch/transport"
	"github.com/aurum-solar/core/internal/feedback"
	"github.com/aurum-solar/core/internal/ledger"
	"github.com/aurum-solar/core/internal/marketdata"
	"github.com/aurum-solar/core/internal/model"
	"github.com/aurum-solar/core/internal/pricing"
	"github.com/aurum-solar/core/internal/routing"
	"github.com/aurum-solar/core/internal/scoring"
	"github.com/aurum-solar/core/internal/tracker"
)

type fakeTransport struct{ delivered bool }

func (f *fakeTransport) Send(ctx context.Context, req transport.Request) transport.Outcome {
	return transport.Outcome{Delivered: true, ExternalTransactionID: "ext-1"}
}

type fixedPlatforms map[string]*model.Platform

func (f fixedPlatforms) Get(code string) (*model.Platform, bool) { p, ok := f[code]; return p, ok }

func buildPipeline(t *testing.T) (*Pipeline, *ledger.Ledger, model.SessionID, *pricing.Engine, *model.Platform) {
	t.Helper()
	cfg := config.Default()
	pricer := pricing.NewEngine(cfg.Pricing)
	scorer, err := scoring.NewEngine(cfg.Scoring.Weights, cfg.Scoring.TierThresholds, pricer)
	require.NoError(t, err)

	market := marketdata.NewStore()
	market.Seed(marketdata.SampleNYCData())

	registry := routing.NewPlatformRegistry()
	platform := &model.Platform{
		Code: "acme", Active: true, IsAcceptingLeads: true,
		AcceptedTiers:  map[model.Tier]bool{model.TierPremium: true, model.TierStandard: true},
		MinScore:       0,
		MaxScore:       100,
		MaxDaily:       1000,
		CommissionRate: decimal.NewFromFloat(0.20),
		RequiredFields: []string{"email", "zip_code"},
	}
	registry.Upsert(platform)

	counter := capacity.NewMemoryCounter(clock.Real{})
	router := routing.NewEngine(registry, counter, pricer, nil, nil, market)

	store := ledger.NewMemoryStore()
	platforms := fixedPlatforms{"acme": platform}
	ldgr := ledger.NewLedger(store, platforms, cfg.Ledger.PaymentTermsDays, nil)

	dispatcher := dispatch.NewDispatcher(
		map[model.DeliveryMethod]transport.Transport{model.DeliveryJSONAPI: &fakeTransport{}},
		counter, ldgr, noopHealth{}, noopReroute{}, clock.Real{},
		dispatch.Config{QueueCapacity: 16, WorkerCount: 1}, nil,
	)

	trk := tracker.NewTracker(clock.Real{}, time.Hour, nil, nil)
	loop := feedback.NewLoop(ldgr, platforms, 0.60, nil)
	leads := NewMemoryLeadStore()

	p := New(leads, trk, scorer, market, router, dispatcher, loop, nil, []string{"email", "zip_code"}, nil)
	return p, ldgr, model.NewID(), pricer, platform
}

type noopHealth struct{}

func (noopHealth) RecordAttemptOutcome(string, bool, time.Duration) {}

type noopReroute struct{}

func (noopReroute) RequestReroute(context.Context, *model.DispatchJob, string) {}

func TestIngestTurnQualifiesEligibleLead(t *testing.T) {
	p, _, sessionID, _, _ := buildPipeline(t)
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	slots := map[string]model.SlotValue{
		"email":                 {Value: "jane@example.com", Confidence: 0.95},
		"zip_code":              {Value: "10025", Confidence: 0.9},
		"monthly_electric_bill": {Value: 320.0, Confidence: 0.9},
		"ownership_verified":    {Value: true, Confidence: 0.9},
		"timeline":              {Value: "asap", Confidence: 0.9},
	}
	meta := model.MessageMeta{Intent: "qualification", Sentiment: 0.6}

	require.NoError(t, p.IngestTurn(context.Background(), sessionID, slots, meta, now))

	lead, ok := p.leads.BySession(sessionID)
	require.True(t, ok)
	assert.True(t, lead.Tier.Eligible(), "high bill + ownership + urgent timeline should qualify")
}

func TestIngestTurnDoesNotRouteWithoutRequiredFields(t *testing.T) {
	p, _, sessionID, _, _ := buildPipeline(t)
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	slots := map[string]model.SlotValue{
		"monthly_electric_bill": {Value: 320.0, Confidence: 0.9},
		"ownership_verified":    {Value: true, Confidence: 0.9},
		"timeline":              {Value: "asap", Confidence: 0.9},
	}
	require.NoError(t, p.IngestTurn(context.Background(), sessionID, slots, model.MessageMeta{}, now))

	lead, ok := p.leads.BySession(sessionID)
	require.True(t, ok)
	assert.False(t, lead.Commercial.Exported, "missing email/zip_code must block dispatch")
}

// Regression: EstimatedValue must reflect the scoring engine's
// revenue-potential estimate (spec §3 Lead "derived: ... estimated_value"),
// and that estimate must agree with the expected revenue the chosen
// platform was routed on (spec §4.4 step 5), since both are the same
// tier/score/market-driven price evaluated at the default acceptance
// rate for a platform with no rolling acceptance data.
func TestIngestTurnSetsEstimatedValueMatchingExpectedRevenue(t *testing.T) {
	p, _, sessionID, pricer, platform := buildPipeline(t)
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	slots := map[string]model.SlotValue{
		"email":                 {Value: "jane@example.com", Confidence: 0.95},
		"zip_code":              {Value: "10025", Confidence: 0.9},
		"monthly_electric_bill": {Value: 320.0, Confidence: 0.9},
		"ownership_verified":    {Value: true, Confidence: 0.9},
		"timeline":              {Value: "asap", Confidence: 0.9},
	}
	meta := model.MessageMeta{Intent: "qualification", Sentiment: 0.6}

	require.NoError(t, p.IngestTurn(context.Background(), sessionID, slots, meta, now))

	lead, ok := p.leads.BySession(sessionID)
	require.True(t, ok)
	require.True(t, lead.Tier.Eligible())
	assert.True(t, lead.EstimatedValue.IsPositive(), "EstimatedValue must be populated by the scoring engine's revenue-potential estimate")

	expectedPrice := pricer.Price(pricing.PriceInput{
		Tier:          lead.Tier,
		Score:         lead.Score,
		HighValueZip:  true, // 10025 is seeded as a high-value zip
		SolarAdoption: 0.18,
		MonthlyBill:   lead.Qualification.MonthlyElectricBill,
		HasBill:       true,
	})
	expectedRevenue := pricing.RevenuePotential(expectedPrice, platform.AcceptanceRate)
	assert.True(t, lead.EstimatedValue.Equal(expectedRevenue),
		"EstimatedValue %s must match the platform's expected revenue %s", lead.EstimatedValue, expectedRevenue)
}
