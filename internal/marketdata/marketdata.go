// Package marketdata provides zip-code-keyed reference data consumed
// by the scoring engine's location and NYC-market components.
// Grounded on the original Python source's nyc_market_service.py /
// nyc_expertise_database.py (SPEC_FULL.md §10+); seed data itself
// remains out of scope per spec.md §1, so this ships a small sample
// table sufficient for tests plus the lookup interface production
// code wires against.
package marketdata

import (
	"sync"

	"github.com/aurum-solar/core/internal/model"
)

// Provider resolves zip-code reference data for the scoring engine.
// Missing data is not an error — scoring treats it as neutral (spec
// §4.1) — so Lookup returns ok=false rather than an error.
type Provider interface {
	Lookup(zipCode string) (model.MarketReference, bool)
}

// Store is an in-memory, concurrency-safe Provider. Production
// deployments seed it at boot from whatever source of truth the
// operator configures; that ingestion path is outside this core per
// spec.md §1 ("seed data" Non-goal).
type Store struct {
	mu   sync.RWMutex
	data map[string]model.MarketReference
}

// NewStore builds an empty Store.
func NewStore() *Store {
	return &Store{data: make(map[string]model.MarketReference)}
}

// Seed replaces the zip-code table wholesale.
func (s *Store) Seed(entries []model.MarketReference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]model.MarketReference, len(entries))
	for _, e := range entries {
		s.data[e.ZipCode] = e
	}
}

// Upsert sets or replaces a single zip code's reference data.
func (s *Store) Upsert(ref model.MarketReference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(map[string]model.MarketReference)
	}
	s.data[ref.ZipCode] = ref
}

// Lookup implements Provider.
func (s *Store) Lookup(zipCode string) (model.MarketReference, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.data[zipCode]
	return ref, ok
}

// SampleNYCData returns a small, representative seed table of NYC
// zip codes used by tests and local development, grounded on the
// high-value zip list hardcoded in the original
// lead_routing_engine.py.
func SampleNYCData() []model.MarketReference {
	return []model.MarketReference{
		{
			ZipCode: "10025", Borough: "Manhattan", HighValueZip: true,
			SolarAdoptionRate: 0.18, CompetitionLevel: "high",
			SolarPotentialScore: 78, ElectricRate: 0.31,
			StateIncentives: true, LocalIncentives: true, NetMetering: true,
		},
		{
			ZipCode: "11215", Borough: "Brooklyn", HighValueZip: true,
			SolarAdoptionRate: 0.16, CompetitionLevel: "medium",
			SolarPotentialScore: 74, ElectricRate: 0.29,
			StateIncentives: true, LocalIncentives: true, NetMetering: true,
		},
		{
			ZipCode: "11101", Borough: "Queens", HighValueZip: true,
			SolarAdoptionRate: 0.12, CompetitionLevel: "low",
			SolarPotentialScore: 68, ElectricRate: 0.27,
			StateIncentives: true, LocalIncentives: false, NetMetering: true,
		},
		{
			ZipCode: "10451", Borough: "Bronx", HighValueZip: true,
			SolarAdoptionRate: 0.08, CompetitionLevel: "low",
			SolarPotentialScore: 60, ElectricRate: 0.26,
			StateIncentives: true, LocalIncentives: false, NetMetering: false,
		},
		{
			ZipCode: "10301", Borough: "Staten Island", HighValueZip: true,
			SolarAdoptionRate: 0.09, CompetitionLevel: "low",
			SolarPotentialScore: 62, ElectricRate: 0.25,
			StateIncentives: true, LocalIncentives: false, NetMetering: false,
		},
		{
			ZipCode: "10016", Borough: "Manhattan", HighValueZip: false,
			SolarAdoptionRate: 0.05, CompetitionLevel: "high",
			SolarPotentialScore: 55, ElectricRate: 0.24,
			StateIncentives: true, LocalIncentives: false, NetMetering: false,
		},
	}
}
