// Package pricing implements the quality-tier classifier's dynamic
// pricing model (spec §4.3): base price by tier, quality and market
// multipliers, surge, and revenue-potential estimation. Grounded on
// the teacher's DynamicPricingEngine.go / PricingController.go
// structure and common/constants/pricing_constants.go's use of
// decimal.Decimal for every monetary value.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/aurum-solar/core/internal/config"
	"github.com/aurum-solar/core/internal/model"
)

// DefaultAcceptanceRate is used when a platform has no rolling
// acceptance-rate data yet (spec §4.3).
const DefaultAcceptanceRate = 0.80

// Engine computes per-lead pricing.
type Engine struct {
	cfg config.PricingConfig
}

// NewEngine builds a pricing Engine from the pricing section of
// config.
func NewEngine(cfg config.PricingConfig) *Engine {
	return &Engine{cfg: cfg}
}

func (e *Engine) basePrice(tier model.Tier) decimal.Decimal {
	switch tier {
	case model.TierPremium:
		return e.cfg.BasePremium
	case model.TierStandard:
		return e.cfg.BaseStandard
	case model.TierBasic:
		return e.cfg.BaseBasic
	default:
		return decimal.Zero
	}
}

// PriceInput carries everything the pricing model needs to compute a
// per-lead price (spec §4.3).
type PriceInput struct {
	Tier           model.Tier
	Score          int
	HighValueZip   bool
	SolarAdoption  float64
	MonthlyBill    decimal.Decimal
	HasBill        bool
	UrgencyCreated bool
	SurgeMultiplier float64
}

// Price computes the final per-lead price charged to the buyer (spec
// §4.3): base-by-tier × quality × market multipliers × surge,
// rounded to cents.
func (e *Engine) Price(in PriceInput) decimal.Decimal {
	if in.Tier == model.TierUnqualified {
		return decimal.Zero
	}

	base := e.basePrice(in.Tier)
	quality := decimal.NewFromInt(int64(in.Score)).Div(decimal.NewFromInt(100))

	price := base.Mul(quality)

	if in.HighValueZip {
		price = price.Mul(decimal.NewFromFloat(1.20))
	}
	if in.SolarAdoption > 0.15 {
		price = price.Mul(decimal.NewFromFloat(1.10))
	}
	if in.HasBill {
		if f, _ := in.MonthlyBill.Float64(); f >= 300 {
			price = price.Mul(decimal.NewFromFloat(1.15))
		}
	}
	if in.UrgencyCreated {
		price = price.Mul(decimal.NewFromFloat(1.10))
	}

	surge := in.SurgeMultiplier
	if surge <= 0 {
		surge = 1.0
	}
	if surge > e.cfg.SurgeCap {
		surge = e.cfg.SurgeCap
	}
	price = price.Mul(decimal.NewFromFloat(surge))

	return price.Round(2)
}

// RevenuePotential returns price × expected_acceptance_probability
// (spec §4.3), defaulting acceptanceRate to DefaultAcceptanceRate when
// the caller has no rolling data for the platform/tier yet.
func RevenuePotential(price decimal.Decimal, acceptanceRate float64) decimal.Decimal {
	if acceptanceRate <= 0 {
		acceptanceRate = DefaultAcceptanceRate
	}
	return price.Mul(decimal.NewFromFloat(acceptanceRate)).Round(2)
}
