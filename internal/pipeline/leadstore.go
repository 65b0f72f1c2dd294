package pipeline

import (
	"sync"
	"time"

	"github.com/aurum-solar/core/internal/model"
)

// MemoryLeadStore is an in-process, mutex-guarded LeadStore keyed by
// session id — the single-process equivalent of a durable lead table,
// matching the Memory/durable-backend split used throughout this
// codebase (internal/capacity, internal/ledger).
type MemoryLeadStore struct {
	mu   sync.Mutex
	byID map[model.SessionID]*model.Lead
}

// NewMemoryLeadStore builds an empty MemoryLeadStore.
func NewMemoryLeadStore() *MemoryLeadStore {
	return &MemoryLeadStore{byID: make(map[model.SessionID]*model.Lead)}
}

// GetOrCreate returns the lead bound to sessionID, creating a fresh
// one on first reference.
func (s *MemoryLeadStore) GetOrCreate(sessionID model.SessionID, now time.Time) *model.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.byID[sessionID]; ok {
		return l
	}
	l := model.NewLead(model.NewID(), sessionID, now)
	s.byID[sessionID] = l
	return l
}

// BySession looks up a lead without creating one.
func (s *MemoryLeadStore) BySession(sessionID model.SessionID) (*model.Lead, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.byID[sessionID]
	return l, ok
}
