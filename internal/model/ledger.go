package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the commercial transaction state (spec §3,
// §4.7).
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxConfirmed TransactionStatus = "confirmed"
	TxDisputed  TransactionStatus = "disputed"
	TxRefunded  TransactionStatus = "refunded"
	TxCancelled TransactionStatus = "cancelled"
)

// PaymentStatus is the payment lifecycle state (spec §3, §4.7).
type PaymentStatus string

const (
	PayPending    PaymentStatus = "pending"
	PayPaid       PaymentStatus = "paid"
	PayOverdue    PaymentStatus = "overdue"
	PayDisputed   PaymentStatus = "disputed"
	PayWrittenOff PaymentStatus = "written-off"
	PayCancelled  PaymentStatus = "cancelled"
	PayRefunded   PaymentStatus = "refunded"
)

// RevenueTransaction is an append-only ledger entry (spec §3).
type RevenueTransaction struct {
	ID                   TransactionID
	LeadID               LeadID
	PlatformCode         string
	Gross                decimal.Decimal
	CommissionRate       decimal.Decimal
	Commission           decimal.Decimal
	Net                  decimal.Decimal
	ExternalTransactionID string
	Status               TransactionStatus
	PaymentStatus        PaymentStatus
	PaymentDueDate        time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewRevenueTransaction builds a ledger entry in the initial
// (pending, pending) state (spec §4.7), computing commission/net from
// gross and commissionRate with cent-level rounding such that
// gross = commission + net within $0.01 (spec invariant, §3, §8.7).
func NewRevenueTransaction(id TransactionID, leadID LeadID, platformCode string, gross, commissionRate decimal.Decimal, paymentTermsDays int, now time.Time) *RevenueTransaction {
	commission := gross.Mul(commissionRate).Round(2)
	net := gross.Sub(commission).Round(2)
	return &RevenueTransaction{
		ID:             id,
		LeadID:         leadID,
		PlatformCode:   platformCode,
		Gross:          gross.Round(2),
		CommissionRate: commissionRate,
		Commission:     commission,
		Net:            net,
		Status:         TxPending,
		PaymentStatus:  PayPending,
		PaymentDueDate: now.AddDate(0, 0, paymentTermsDays),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// FeedbackType is the buyer's verdict on a delivered lead (spec §3).
type FeedbackType string

const (
	FeedbackAccept     FeedbackType = "accept"
	FeedbackReject     FeedbackType = "reject"
	FeedbackConversion FeedbackType = "conversion"
)

// BuyerFeedback is the buyer's verdict on a delivered lead (spec §3).
type BuyerFeedback struct {
	FeedbackID      string
	LeadID          LeadID
	PlatformCode    string
	Type            FeedbackType
	QualityScore    float64 // 0-10
	ConversionValue *decimal.Decimal
	Reason          string
	ReceivedAt      time.Time
}

// ReconciliationStatus is the outcome of comparing our ledger totals
// to a buyer-reported total (spec §4.7).
type ReconciliationStatus string

const (
	ReconciledOK         ReconciliationStatus = "reconciled"
	ReconciledMinor      ReconciliationStatus = "minor_discrepancy"
	ReconciledMajor      ReconciliationStatus = "major_discrepancy"
)

// ReconciliationRecord is the emitted (never ledger-mutating) output
// of a reconciliation pass (spec §4.7).
type ReconciliationRecord struct {
	PlatformCode string
	WindowStart  time.Time
	WindowEnd    time.Time
	OurTotal     decimal.Decimal
	TheirTotal   decimal.Decimal
	Delta        decimal.Decimal
	Issues       []string
	Status       ReconciliationStatus
}
