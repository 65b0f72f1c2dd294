package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aurum-solar/core/internal/model"
)

// transactionRecord is the gorm-mapped row for a RevenueTransaction,
// grounded on order_service/src/models/order.go's tagging style
// (explicit gorm column tags, string-encoded decimals).
type transactionRecord struct {
	ID                    string `gorm:"primaryKey;size:36"`
	LeadID                string `gorm:"index;size:36"`
	PlatformCode          string `gorm:"index;size:64"`
	Gross                 string `gorm:"type:decimal(12,2)"`
	CommissionRate        string `gorm:"type:decimal(6,4)"`
	Commission            string `gorm:"type:decimal(12,2)"`
	Net                   string `gorm:"type:decimal(12,2)"`
	ExternalTransactionID string `gorm:"size:128"`
	Status                string `gorm:"size:20;index"`
	PaymentStatus         string `gorm:"size:20;index"`
	PaymentDueDate        time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (transactionRecord) TableName() string { return "revenue_transactions" }

// processedFeedbackRecord persists the (lead_id, feedback_id)
// idempotency key so feedback dedupe survives a process restart
// (spec §5, §8 property 6).
type processedFeedbackRecord struct {
	LeadID     string `gorm:"primaryKey;size:36"`
	FeedbackID string `gorm:"primaryKey;size:128"`
	ProcessedAt time.Time
}

func (processedFeedbackRecord) TableName() string { return "processed_buyer_feedback" }

// GormStore is the production Store backed by Postgres via gorm,
// grounded on order_repository.go's db-handle-as-field shape.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an existing *gorm.DB. Callers are responsible
// for running AutoMigrate (or an external migration tool, per
// SPEC_FULL.md's ambient-stack note on golang-migrate) before first
// use.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates/updates the ledger tables. Callers run this
// explicitly at boot (spec §9 "no side-effect-on-construction");
// actual schema migration tooling (golang-migrate) remains the
// operator's responsibility per spec.md §1's "persistent schema
// migration" Non-goal — this is a development/test convenience, not a
// migration system.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&transactionRecord{}, &processedFeedbackRecord{})
}

func toRecord(tx *model.RevenueTransaction) *transactionRecord {
	return &transactionRecord{
		ID:                    tx.ID.String(),
		LeadID:                tx.LeadID.String(),
		PlatformCode:          tx.PlatformCode,
		Gross:                 tx.Gross.String(),
		CommissionRate:        tx.CommissionRate.String(),
		Commission:            tx.Commission.String(),
		Net:                   tx.Net.String(),
		ExternalTransactionID: tx.ExternalTransactionID,
		Status:                string(tx.Status),
		PaymentStatus:         string(tx.PaymentStatus),
		PaymentDueDate:        tx.PaymentDueDate,
		CreatedAt:             tx.CreatedAt,
		UpdatedAt:             tx.UpdatedAt,
	}
}

func fromRecord(r *transactionRecord) *model.RevenueTransaction {
	id, _ := model.ParseID(r.ID)
	leadID, _ := model.ParseID(r.LeadID)
	gross, _ := decimal.NewFromString(r.Gross)
	rate, _ := decimal.NewFromString(r.CommissionRate)
	commission, _ := decimal.NewFromString(r.Commission)
	net, _ := decimal.NewFromString(r.Net)
	return &model.RevenueTransaction{
		ID:                    id,
		LeadID:                leadID,
		PlatformCode:          r.PlatformCode,
		Gross:                 gross,
		CommissionRate:        rate,
		Commission:            commission,
		Net:                   net,
		ExternalTransactionID: r.ExternalTransactionID,
		Status:                model.TransactionStatus(r.Status),
		PaymentStatus:         model.PaymentStatus(r.PaymentStatus),
		PaymentDueDate:        r.PaymentDueDate,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
}

func (s *GormStore) Create(ctx context.Context, tx *model.RevenueTransaction) error {
	return s.db.WithContext(ctx).Create(toRecord(tx)).Error
}

func (s *GormStore) Update(ctx context.Context, tx *model.RevenueTransaction) error {
	res := s.db.WithContext(ctx).Model(&transactionRecord{}).Where("id = ?", tx.ID.String()).Updates(toRecord(tx))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errTransactionNotFound
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, id model.TransactionID) (*model.RevenueTransaction, error) {
	var r transactionRecord
	err := s.db.WithContext(ctx).Where("id = ?", id.String()).First(&r).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fromRecord(&r), nil
}

func (s *GormStore) GetByLeadPlatform(ctx context.Context, leadID model.LeadID, platformCode string) (*model.RevenueTransaction, error) {
	var r transactionRecord
	err := s.db.WithContext(ctx).
		Where("lead_id = ? AND platform_code = ?", leadID.String(), platformCode).
		Order("created_at DESC").
		First(&r).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fromRecord(&r), nil
}

func (s *GormStore) ListDueForAging(ctx context.Context, asOf time.Time) ([]*model.RevenueTransaction, error) {
	var recs []transactionRecord
	err := s.db.WithContext(ctx).
		Where("status = ? AND payment_status = ? AND payment_due_date < ?", string(model.TxConfirmed), string(model.PayPending), asOf).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]*model.RevenueTransaction, 0, len(recs))
	for i := range recs {
		out = append(out, fromRecord(&recs[i]))
	}
	return out, nil
}

func (s *GormStore) ListByPlatformWindow(ctx context.Context, platformCode string, start, end time.Time) ([]*model.RevenueTransaction, error) {
	var recs []transactionRecord
	err := s.db.WithContext(ctx).
		Where("platform_code = ? AND created_at BETWEEN ? AND ?", platformCode, start, end).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]*model.RevenueTransaction, 0, len(recs))
	for i := range recs {
		out = append(out, fromRecord(&recs[i]))
	}
	return out, nil
}

func (s *GormStore) HasProcessedFeedback(ctx context.Context, leadID model.LeadID, feedbackID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&processedFeedbackRecord{}).
		Where("lead_id = ? AND feedback_id = ?", leadID.String(), feedbackID).
		Count(&count).Error
	return count > 0, err
}

func (s *GormStore) MarkProcessedFeedback(ctx context.Context, leadID model.LeadID, feedbackID string) error {
	return s.db.WithContext(ctx).Create(&processedFeedbackRecord{
		LeadID:      leadID.String(),
		FeedbackID:  feedbackID,
		ProcessedAt: time.Now().UTC(),
	}).Error
}
