package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ComponentScores holds each weighted factor's [0,100] contribution
// before combination (spec §3 ScoreSnapshot, §4.1).
type ComponentScores struct {
	Bill        int
	Ownership   int
	Timeline    int
	Location    int
	Engagement  int
	Credit      int
	Objections  int
	NYCMarket   int
}

// ScoreSnapshot is the immutable, append-only result of one scoring
// pass over a session (spec §3).
type ScoreSnapshot struct {
	SessionID        SessionID
	Timestamp        time.Time
	Components       ComponentScores
	Total            int
	Tier             Tier
	RevenuePotential decimal.Decimal
}

// MarketReference is zip-code-keyed reference data consumed by the
// location and NYC-market scoring components (spec §4.1, supplemented
// per SPEC_FULL.md §10+ from the original NYC market service).
type MarketReference struct {
	ZipCode             string
	Borough             string
	HighValueZip        bool
	SolarAdoptionRate   float64
	CompetitionLevel    string // "low", "medium", "high"
	SolarPotentialScore float64
	ElectricRate        float64
	StateIncentives     bool
	LocalIncentives     bool
	NetMetering         bool
}

// MessageHistorySummary aggregates the conversation so far, feeding
// the engagement component (spec §4.1 input).
type MessageHistorySummary struct {
	TurnCount         int
	AvgSentiment      float64
	IntentsObserved   []string
	ObjectionsHandled []string
	UrgencyCreated    bool
}

// ScoringInput is everything the scoring engine needs for one pass
// (spec §4.1 input).
type ScoringInput struct {
	SessionID  SessionID
	Bill       decimal.Decimal
	HasBill    bool
	Ownership  *bool // nil = unknown
	Timeline   Timeline
	ZipCode    string
	History    MessageHistorySummary
	Market     MarketReference
	HasMarket  bool
}
