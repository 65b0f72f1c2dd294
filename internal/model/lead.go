package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoofType enumerates the property roof conditions the scoring and
// export payload care about.
type RoofType string

const (
	RoofUnknown  RoofType = ""
	RoofAsphalt  RoofType = "asphalt_shingle"
	RoofMetal    RoofType = "metal"
	RoofTile     RoofType = "tile"
	RoofFlat     RoofType = "flat"
)

// Timeline is the raw, free-text installation timeline extracted by
// the upstream conversational layer; scoring normalizes it via
// urgency-token matching (spec §4.1).
type Timeline string

// Contact holds the prospect's contact attributes (spec §3 Lead).
type Contact struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// Property holds the prospect's property attributes (spec §3 Lead).
type Property struct {
	Address        string
	City           string
	State          string
	ZipCode        string
	Borough        string
	PropertyType   string
	SquareFootage  int
	RoofType       RoofType
	RoofCondition  string
	ElectricProvider string
}

// Qualification holds the attributes the scoring engine consumes and
// produces (spec §3 Lead).
type Qualification struct {
	MonthlyElectricBill decimal.Decimal
	OwnershipVerified   *bool // nil = unknown, does not gate (spec §4.1)
	Timeline            Timeline
	Utility             string
}

// CommercialState tracks a lead's export/sale lifecycle (spec §3
// Lead). Invariant: once Tier.Eligible() is true the lead MUST NOT be
// silently unqualified by a later re-score (see Lead.ApplyRescore).
type CommercialState struct {
	Exported       bool
	ExportedTo     map[string]bool // platform code set
	FirstExportedAt *time.Time
	SoldAt          *time.Time
}

// Lead is the uniquely identified prospect record (spec §3).
type Lead struct {
	ID        LeadID
	SessionID SessionID

	Contact       Contact
	Property      Property
	Qualification Qualification

	Score           int
	Tier            Tier
	EstimatedValue  decimal.Decimal

	Commercial CommercialState

	CreatedAt time.Time
	UpdatedAt time.Time

	// HighestEverTier records the best tier ever achieved, because a
	// re-scoring that would lower the tier must not retroactively
	// unqualify an already-dispatched lead (spec §3 invariant).
	HighestEverTier Tier
}

// NewLead constructs a fresh, unscored lead.
func NewLead(id LeadID, sessionID SessionID, now time.Time) *Lead {
	return &Lead{
		ID:        id,
		SessionID: sessionID,
		Commercial: CommercialState{
			ExportedTo: make(map[string]bool),
		},
		Tier:            TierUnqualified,
		HighestEverTier: TierUnqualified,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// ApplyRescore records a new score/tier. If the lead was already
// eligible (dispatched or export-eligible) and the new tier would
// regress below the previously achieved tier, the regression is
// recorded but the lead's effective Tier is held at the prior
// eligible tier — a re-score never retroactively unqualifies an
// already-dispatched lead (spec §3).
func (l *Lead) ApplyRescore(score int, tier Tier, estimatedValue decimal.Decimal, now time.Time) {
	l.Score = score
	l.UpdatedAt = now

	wasEligible := l.HighestEverTier.Eligible()
	if tier.Rank() > l.HighestEverTier.Rank() {
		l.HighestEverTier = tier
	}

	if wasEligible && tier.Rank() < l.HighestEverTier.Rank() {
		// Regression after the lead already qualified: keep the
		// lead's commercial standing at its previously achieved
		// tier; the lower score is still recorded for observability
		// via l.Score above.
		l.Tier = l.HighestEverTier
		return
	}

	l.Tier = tier
	l.EstimatedValue = estimatedValue
}

// MarkExported records a successful dispatch to platformCode.
func (l *Lead) MarkExported(platformCode string, now time.Time) {
	if l.Commercial.ExportedTo == nil {
		l.Commercial.ExportedTo = make(map[string]bool)
	}
	l.Commercial.ExportedTo[platformCode] = true
	l.Commercial.Exported = true
	if l.Commercial.FirstExportedAt == nil {
		t := now
		l.Commercial.FirstExportedAt = &t
	}
	l.UpdatedAt = now
}

// RequiredFieldsPresent reports whether every field in required is
// non-empty on the lead, used by routing candidate filtering (§4.4).
func (l *Lead) RequiredFieldsPresent(required []string) bool {
	for _, f := range required {
		if !l.hasField(f) {
			return false
		}
	}
	return true
}

func (l *Lead) hasField(name string) bool {
	switch name {
	case "email":
		return l.Contact.Email != ""
	case "phone":
		return l.Contact.Phone != ""
	case "address":
		return l.Property.Address != ""
	case "zip_code":
		return l.Property.ZipCode != ""
	case "monthly_electric_bill":
		return l.Qualification.MonthlyElectricBill.GreaterThan(decimal.Zero)
	case "ownership_verified":
		return l.Qualification.OwnershipVerified != nil && *l.Qualification.OwnershipVerified
	case "timeline":
		return l.Qualification.Timeline != ""
	default:
		return false
	}
}
