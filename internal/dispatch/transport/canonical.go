// Package transport implements the three outbound dispatch transports
// (spec §4.5, §6): JSON-API, webhook, and CSV-email. Grounded on
// services/distribution_service/src/services/gds_service.go and
// ndc_service.go (resty client + gobreaker + per-provider endpoint
// map), generalized from GDS/NDC airline channels to B2B lead buyers.
package transport

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aurum-solar/core/internal/model"
)

// ContactPayload mirrors spec §6's `contact` object.
type ContactPayload struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// PropertyPayload mirrors spec §6's `property` object.
type PropertyPayload struct {
	Address       string `json:"address,omitempty"`
	City          string `json:"city,omitempty"`
	State         string `json:"state,omitempty"`
	ZipCode       string `json:"zip_code,omitempty"`
	Borough       string `json:"borough,omitempty"`
	PropertyType  string `json:"property_type,omitempty"`
	SquareFootage int    `json:"square_footage,omitempty"`
}

// SolarDetailsPayload mirrors spec §6's `solar_details` object.
type SolarDetailsPayload struct {
	RoofType            string `json:"roof_type,omitempty"`
	RoofCondition        string `json:"roof_condition,omitempty"`
	MonthlyElectricBill string `json:"monthly_electric_bill,omitempty"`
	ElectricProvider     string `json:"electric_provider,omitempty"`
}

// QualificationPayload mirrors spec §6's `qualification` object.
type QualificationPayload struct {
	LeadScore           int    `json:"lead_score"`
	LeadQuality         string `json:"lead_quality"`
	QualificationStatus string `json:"qualification_status"`
	EstimatedValue       string `json:"estimated_value,omitempty"`
}

// MetadataPayload mirrors spec §6's `metadata` object.
type MetadataPayload struct {
	Source         string `json:"source"`
	CreatedAt      string `json:"created_at"`
	QualityTier    string `json:"quality_tier"`
	ExportPriority int    `json:"export_priority"`
}

// LeadPayload is the canonical, stable-key-order outbound lead record
// (spec §6). Field declaration order is the marshaled key order —
// encoding/json preserves struct field order, unlike map iteration.
type LeadPayload struct {
	LeadID         string                 `json:"lead_id"`
	Contact        ContactPayload         `json:"contact"`
	Property       PropertyPayload        `json:"property"`
	SolarDetails   SolarDetailsPayload    `json:"solar_details"`
	Qualification  QualificationPayload   `json:"qualification"`
	Metadata       MetadataPayload        `json:"metadata"`
	CustomFields   map[string]interface{} `json:"custom_fields,omitempty"`
	AIInsights     map[string]interface{} `json:"ai_insights,omitempty"`
}

// BuildLeadPayload renders lead into the canonical outbound shape.
// priority is the dispatch queue priority surfaced as export_priority.
func BuildLeadPayload(lead *model.Lead, source string, priority int) LeadPayload {
	estimatedValue := ""
	if lead.EstimatedValue.GreaterThan(decimal.Zero) {
		estimatedValue = lead.EstimatedValue.StringFixed(2)
	}
	bill := ""
	if lead.Qualification.MonthlyElectricBill.GreaterThan(decimal.Zero) {
		bill = lead.Qualification.MonthlyElectricBill.StringFixed(2)
	}

	return LeadPayload{
		LeadID: lead.ID.String(),
		Contact: ContactPayload{
			FirstName: lead.Contact.FirstName,
			LastName:  lead.Contact.LastName,
			Email:     lead.Contact.Email,
			Phone:     lead.Contact.Phone,
		},
		Property: PropertyPayload{
			Address:       lead.Property.Address,
			City:          lead.Property.City,
			State:         lead.Property.State,
			ZipCode:       lead.Property.ZipCode,
			Borough:       lead.Property.Borough,
			PropertyType:  lead.Property.PropertyType,
			SquareFootage: lead.Property.SquareFootage,
		},
		SolarDetails: SolarDetailsPayload{
			RoofType:            string(lead.Property.RoofType),
			RoofCondition:       lead.Property.RoofCondition,
			MonthlyElectricBill: bill,
			ElectricProvider:    lead.Property.ElectricProvider,
		},
		Qualification: QualificationPayload{
			LeadScore:           lead.Score,
			LeadQuality:         string(lead.Tier),
			QualificationStatus: qualificationStatus(lead.Tier),
			EstimatedValue:      estimatedValue,
		},
		Metadata: MetadataPayload{
			Source:         source,
			CreatedAt:      lead.CreatedAt.UTC().Format(time.RFC3339),
			QualityTier:    string(lead.Tier),
			ExportPriority: priority,
		},
	}
}

func qualificationStatus(t model.Tier) string {
	if t.Eligible() {
		return "qualified"
	}
	return "unqualified"
}

// CanonicalJSON serializes payload with the stable, declared key
// order used on the wire for every outbound transport (spec §6). Go's
// encoding/json marshals struct fields in declaration order and
// produces no insignificant whitespace by default, which is exactly
// this requirement.
func CanonicalJSON(payload LeadPayload) ([]byte, error) {
	return json.Marshal(payload)
}

// SortedKeysJSON re-serializes payload with object keys sorted
// lexicographically, the input the webhook signature is computed over
// (spec §6: "JSON body serialized with sorted keys"). json.Marshal on
// a map[string]interface{} sorts keys automatically; round-tripping
// the struct through a generic map gives the sorted-key form without
// hand-rolling a key sort.
func SortedKeysJSON(payload LeadPayload) ([]byte, error) {
	ordered, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var generic map[string]interface{}
	if err := json.Unmarshal(ordered, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
