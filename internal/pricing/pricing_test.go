package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/aurum-solar/core/internal/config"
	"github.com/aurum-solar/core/internal/model"
)

func testCfg() config.PricingConfig {
	cfg := config.Default()
	return cfg.Pricing
}

func TestUnqualifiedPricesZero(t *testing.T) {
	e := NewEngine(testCfg())
	price := e.Price(PriceInput{Tier: model.TierUnqualified, Score: 0})
	assert.True(t, price.IsZero())
}

// S1 from spec §8: premium lead prices >= 225 USD.
func TestPremiumPricingMeetsFloor(t *testing.T) {
	e := NewEngine(testCfg())
	price := e.Price(PriceInput{
		Tier:            model.TierPremium,
		Score:           90,
		HighValueZip:    false,
		MonthlyBill:     decimal.NewFromInt(380),
		HasBill:         true,
		UrgencyCreated:  true,
		SurgeMultiplier: 1.0,
	})
	assert.True(t, price.GreaterThanOrEqual(decimal.NewFromInt(225)), "price=%s", price)
}

func TestMultipliersCompose(t *testing.T) {
	e := NewEngine(testCfg())
	base := e.Price(PriceInput{Tier: model.TierPremium, Score: 100, SurgeMultiplier: 1.0})
	withAll := e.Price(PriceInput{
		Tier: model.TierPremium, Score: 100, SurgeMultiplier: 1.0,
		HighValueZip: true, SolarAdoption: 0.2, HasBill: true,
		MonthlyBill: decimal.NewFromInt(350), UrgencyCreated: true,
	})
	assert.True(t, withAll.GreaterThan(base))
}

func TestSurgeCappedAt150Percent(t *testing.T) {
	e := NewEngine(testCfg())
	price := e.Price(PriceInput{Tier: model.TierPremium, Score: 100, SurgeMultiplier: 10.0})
	uncapped := e.Price(PriceInput{Tier: model.TierPremium, Score: 100, SurgeMultiplier: 1.5})
	assert.True(t, price.Equal(uncapped))
}

func TestRevenuePotentialDefaultsAcceptance(t *testing.T) {
	rp := RevenuePotential(decimal.NewFromInt(100), 0)
	assert.True(t, rp.Equal(decimal.NewFromInt(80)))
}

func TestSurgeMultiplierBelowDemandIsOne(t *testing.T) {
	m := SurgeMultiplier(SurgeInput{UnservedEligibleLeadsPerMinute: 0.1, PremiumBuyerDailyCapacity: 1000}, 1.5)
	assert.Equal(t, 1.0, m)
}

func TestSurgeMultiplierCapped(t *testing.T) {
	m := SurgeMultiplier(SurgeInput{UnservedEligibleLeadsPerMinute: 100, PremiumBuyerDailyCapacity: 10}, 1.5)
	assert.Equal(t, 1.5, m)
}

func TestSurgeMultiplierNoCapacityIsNeutral(t *testing.T) {
	m := SurgeMultiplier(SurgeInput{UnservedEligibleLeadsPerMinute: 5, PremiumBuyerDailyCapacity: 0}, 1.5)
	assert.Equal(t, 1.0, m)
}
