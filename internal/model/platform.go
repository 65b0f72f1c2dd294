package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DeliveryMethod is a platform's transport mechanism (spec §3, §4.5).
type DeliveryMethod string

const (
	DeliveryJSONAPI   DeliveryMethod = "json-api"
	DeliveryWebhook   DeliveryMethod = "webhook"
	DeliveryCSVEmail  DeliveryMethod = "csv-email"
)

// HealthStatus is a platform's current operational health (spec §3).
type HealthStatus string

const (
	HealthHealthy     HealthStatus = "healthy"
	HealthDegraded    HealthStatus = "degraded"
	HealthUnhealthy   HealthStatus = "unhealthy"
	HealthMaintenance HealthStatus = "maintenance"
)

// RateLimits bounds outbound dispatch volume per window (spec §3).
type RateLimits struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

// Platform is a configured B2B buyer (spec §3).
type Platform struct {
	Code               string
	DisplayName        string
	DeliveryMethod     DeliveryMethod
	Endpoint           string
	Credential         string // bearer token or shared secret, per DeliveryMethod
	Active             bool
	IsAcceptingLeads   bool
	AcceptedTiers      map[Tier]bool
	MinScore           int
	MaxScore           int
	BasePrice          decimal.Decimal
	CommissionRate     decimal.Decimal
	RequiredFields     []string
	OptionalFields     []string
	RateLimits         RateLimits
	MaxDaily           int
	SLAMinutes         int

	HealthStatus          HealthStatus
	AcceptanceRate        float64 // rolling, EWMA-updated by feedback loop
	ConsecutiveFailures   int
	AvgResponseMillis     float64 // EWMA
	UtilizationNow        float64 // as supplied with the platform; nothing in the core updates it, and routing reads it for the capacity component and tie-break
}

// AcceptsTier reports whether t is in the platform's accepted set.
func (p *Platform) AcceptsTier(t Tier) bool {
	return p.AcceptedTiers != nil && p.AcceptedTiers[t]
}

// RecordFeedback updates the platform's rolling acceptance rate from
// a buyer's accept/reject/conversion verdict (spec §4.8 "2. The
// platform's rolling acceptance and quality metrics (exponentially
// weighted)"). accepted is true for accept and conversion feedback,
// false for reject.
func (p *Platform) RecordFeedback(accepted bool) {
	const ewmaAlpha = 0.1
	obs := 0.0
	if accepted {
		obs = 1.0
	}
	if p.AcceptanceRate == 0 {
		p.AcceptanceRate = obs
		return
	}
	p.AcceptanceRate = ewmaAlpha*obs + (1-ewmaAlpha)*p.AcceptanceRate
}

// RecordAttemptOutcome updates health bookkeeping after a dispatch
// attempt terminates (spec §4.5 health tracking): three consecutive
// failures degrade the platform, five mark it unhealthy.
func (p *Platform) RecordAttemptOutcome(success bool, responseTime time.Duration) {
	const ewmaAlpha = 0.2
	ms := float64(responseTime.Milliseconds())
	if p.AvgResponseMillis == 0 {
		p.AvgResponseMillis = ms
	} else {
		p.AvgResponseMillis = ewmaAlpha*ms + (1-ewmaAlpha)*p.AvgResponseMillis
	}

	if success {
		p.ConsecutiveFailures = 0
		if p.HealthStatus != HealthMaintenance {
			p.HealthStatus = HealthHealthy
		}
		return
	}

	p.ConsecutiveFailures++
	switch {
	case p.ConsecutiveFailures >= 5:
		p.HealthStatus = HealthUnhealthy
	case p.ConsecutiveFailures >= 3:
		p.HealthStatus = HealthDegraded
	}
}
