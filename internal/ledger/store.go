package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/aurum-solar/core/internal/model"
)

// Store is the ledger's persistence seam. GormStore is the production
// implementation; MemoryStore backs tests and single-process runs,
// mirroring the capacity package's MemoryCounter/RedisCounter split.
type Store interface {
	Create(ctx context.Context, tx *model.RevenueTransaction) error
	Update(ctx context.Context, tx *model.RevenueTransaction) error
	Get(ctx context.Context, id model.TransactionID) (*model.RevenueTransaction, error)
	GetByLeadPlatform(ctx context.Context, leadID model.LeadID, platformCode string) (*model.RevenueTransaction, error)
	ListDueForAging(ctx context.Context, asOf time.Time) ([]*model.RevenueTransaction, error)
	ListByPlatformWindow(ctx context.Context, platformCode string, start, end time.Time) ([]*model.RevenueTransaction, error)

	// HasProcessedFeedback and MarkProcessedFeedback implement the
	// (lead_id, feedback_id) idempotency key (spec §5, §8 property 6).
	HasProcessedFeedback(ctx context.Context, leadID model.LeadID, feedbackID string) (bool, error)
	MarkProcessedFeedback(ctx context.Context, leadID model.LeadID, feedbackID string) error
}

type feedbackKey struct {
	lead model.LeadID
	fb   string
}

// MemoryStore is an in-process Store for tests and single-process
// deployments.
type MemoryStore struct {
	mu        sync.RWMutex
	byID      map[model.TransactionID]*model.RevenueTransaction
	byLeadPl  map[string]model.TransactionID
	feedbacks map[feedbackKey]bool
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:      make(map[model.TransactionID]*model.RevenueTransaction),
		byLeadPl:  make(map[string]model.TransactionID),
		feedbacks: make(map[feedbackKey]bool),
	}
}

func leadPlatformKey(leadID model.LeadID, platformCode string) string {
	return leadID.String() + ":" + platformCode
}

func (s *MemoryStore) Create(ctx context.Context, tx *model.RevenueTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tx
	s.byID[tx.ID] = &cp
	s.byLeadPl[leadPlatformKey(tx.LeadID, tx.PlatformCode)] = tx.ID
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, tx *model.RevenueTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[tx.ID]; !ok {
		return errTransactionNotFound
	}
	cp := *tx
	s.byID[tx.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id model.TransactionID) (*model.RevenueTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *tx
	return &cp, nil
}

func (s *MemoryStore) GetByLeadPlatform(ctx context.Context, leadID model.LeadID, platformCode string) (*model.RevenueTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byLeadPl[leadPlatformKey(leadID, platformCode)]
	if !ok {
		return nil, nil
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *MemoryStore) ListDueForAging(ctx context.Context, asOf time.Time) ([]*model.RevenueTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.RevenueTransaction
	for _, tx := range s.byID {
		if tx.Status == model.TxConfirmed && tx.PaymentStatus == model.PayPending && asOf.After(tx.PaymentDueDate) {
			cp := *tx
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListByPlatformWindow(ctx context.Context, platformCode string, start, end time.Time) ([]*model.RevenueTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.RevenueTransaction
	for _, tx := range s.byID {
		if tx.PlatformCode != platformCode {
			continue
		}
		if tx.CreatedAt.Before(start) || tx.CreatedAt.After(end) {
			continue
		}
		cp := *tx
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) HasProcessedFeedback(ctx context.Context, leadID model.LeadID, feedbackID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feedbacks[feedbackKey{lead: leadID, fb: feedbackID}], nil
}

func (s *MemoryStore) MarkProcessedFeedback(ctx context.Context, leadID model.LeadID, feedbackID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedbacks[feedbackKey{lead: leadID, fb: feedbackID}] = true
	return nil
}
