package model

import "github.com/shopspring/decimal"

// RoutingStrategy names the action a matched RoutingRule takes (spec
// §3).
type RoutingStrategy string

const (
	StrategyRevenueMaximization RoutingStrategy = "revenue-maximization"
	StrategyCapacityBalancing   RoutingStrategy = "capacity-balancing"
	StrategyQualityMatching     RoutingStrategy = "quality-matching"
	StrategyExclusive           RoutingStrategy = "exclusive"
)

// RulePredicate matches on lead attributes (spec §3 RoutingRule).
// Each non-nil field other than CustomFlags narrows the match; nil
// fields are "don't care". CustomFlags is not consulted by Matches.
type RulePredicate struct {
	Tiers       []Tier
	MinScore    *int
	MaxScore    *int
	ZipCodes    []string
	Boroughs    []string
	CustomFlags map[string]bool
}

// Matches reports whether the predicate matches lead at score/tier.
func (p RulePredicate) Matches(l *Lead) bool {
	if len(p.Tiers) > 0 && !containsTier(p.Tiers, l.Tier) {
		return false
	}
	if p.MinScore != nil && l.Score < *p.MinScore {
		return false
	}
	if p.MaxScore != nil && l.Score > *p.MaxScore {
		return false
	}
	if len(p.ZipCodes) > 0 && !containsStr(p.ZipCodes, l.Property.ZipCode) {
		return false
	}
	if len(p.Boroughs) > 0 && !containsStr(p.Boroughs, l.Property.Borough) {
		return false
	}
	return true
}

func containsTier(list []Tier, t Tier) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// RoutingRule is a declarative predicate + action (spec §3).
type RoutingRule struct {
	ID                 string
	Name               string
	Predicate          RulePredicate
	Strategy           RoutingStrategy
	PreferredPlatforms []string
	Priority           int
	Active             bool
}

// ScoreBreakdown is the per-component breakdown of a candidate
// platform's composite routing score (spec §3 RoutingDecision, §4.4
// step 3).
type ScoreBreakdown struct {
	Revenue     float64
	Performance float64
	Capacity    float64
	NYCFit      float64
	RuleBonus   float64
	Total       float64
}

// CandidateScore pairs a platform code with its computed breakdown,
// used for tie-break and alternatives selection.
type CandidateScore struct {
	PlatformCode   string
	Breakdown      ScoreBreakdown
	AcceptanceRate float64
	Utilization    float64
}

// RoutingDecision is produced per dispatch attempt (spec §3).
type RoutingDecision struct {
	LeadID          LeadID
	PlatformCode    string
	ConfidenceScore float64
	Breakdown       ScoreBreakdown
	Reasoning       []string
	Price           decimal.Decimal
	ExpectedRevenue decimal.Decimal
	Alternatives    []CandidateScore
}
