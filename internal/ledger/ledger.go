// Package ledger implements the append-only revenue ledger and its
// reconciliation pass (spec §4.7): transaction creation on delivered
// dispatch, the fixed state-machine transitions, payment-due aging,
// and per-platform reconciliation against buyer-reported totals.
// Grounded on order_service/src/models/order.go's status/payment-
// status enum shape and order_service/src/service/order_service.go's
// service-struct-with-injected-repo pattern, with the transition
// table fixed by spec §4.7 rather than the teacher's order lifecycle.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aurum-solar/core/internal/corerrors"
	"github.com/aurum-solar/core/internal/metrics"
	"github.com/aurum-solar/core/internal/model"
)

const serviceName = "ledger"

var errTransactionNotFound = errors.New("ledger: transaction not found")

// PlatformLookup resolves a platform's commission rate at dispatch
// time; satisfied structurally by *internal/routing.PlatformRegistry
// without an import-cycle-creating dependency on that package.
type PlatformLookup interface {
	Get(code string) (*model.Platform, bool)
}

// Ledger is the revenue ledger service (spec §4.7).
type Ledger struct {
	store            Store
	platforms        PlatformLookup
	locks            *leadLockTable
	paymentTermsDays int
	log              *zap.Logger
	metrics          *metrics.Registry
}

// SetMetrics wires a metrics.Registry into the Ledger. Optional; nil
// (the default) makes every instrumentation point a no-op.
func (l *Ledger) SetMetrics(m *metrics.Registry) { l.metrics = m }

// NewLedger builds a Ledger. paymentTermsDays is
// ledger.payment_terms_days (spec §6, default 30).
func NewLedger(store Store, platforms PlatformLookup, paymentTermsDays int, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		store:            store,
		platforms:        platforms,
		locks:            newLeadLockTable(),
		paymentTermsDays: paymentTermsDays,
		log:              log,
	}
}

// RecordDelivered creates a pending RevenueTransaction for a dispatch
// job that reached the `delivered` terminal state (spec §4.5, §4.7,
// §8 property 8 "a RevenueTransaction exists iff the corresponding
// dispatch reached terminal state delivered"). It implements
// internal/dispatch.LedgerRecorder.
func (l *Ledger) RecordDelivered(ctx context.Context, job *model.DispatchJob, gross string, now time.Time) error {
	grossAmount, err := decimal.NewFromString(gross)
	if err != nil {
		return corerrors.Validation(serviceName, "RecordDelivered", corerrors.CodeMalformedEvent, "invalid gross amount", err)
	}

	commissionRate := decimal.Zero
	if l.platforms != nil {
		if p, ok := l.platforms.Get(job.Decision.PlatformCode); ok {
			commissionRate = p.CommissionRate
		}
	}

	unlock := l.locks.lock(job.Decision.LeadID)
	defer unlock()

	tx := model.NewRevenueTransaction(model.NewID(), job.Decision.LeadID, job.Decision.PlatformCode, grossAmount, commissionRate, l.paymentTermsDays, now)
	tx.ExternalTransactionID = job.ExternalTransactionID

	if diff := tx.Gross.Sub(tx.Commission.Add(tx.Net)).Abs(); diff.GreaterThan(decimal.NewFromFloat(0.01)) {
		return corerrors.LedgerInvariant(serviceName, "RecordDelivered", corerrors.CodeLedgerConservation, "gross != commission + net within $0.01")
	}

	return l.store.Create(ctx, tx)
}

// ApplyFeedback applies a buyer's verdict to the originating
// transaction (spec §4.7, §4.8). Idempotent on (lead_id, feedback_id)
// per spec §5 and §8 property 6: a duplicate feedback_id is a no-op.
func (l *Ledger) ApplyFeedback(ctx context.Context, fb *model.BuyerFeedback, now time.Time) error {
	processed, err := l.store.HasProcessedFeedback(ctx, fb.LeadID, fb.FeedbackID)
	if err != nil {
		return err
	}
	if processed {
		return nil
	}

	unlock := l.locks.lock(fb.LeadID)
	defer unlock()

	tx, err := l.store.GetByLeadPlatform(ctx, fb.LeadID, fb.PlatformCode)
	if err != nil {
		return err
	}
	if tx == nil {
		return corerrors.LedgerInvariant(serviceName, "ApplyFeedback", corerrors.CodeLedgerInvalidTrans, "no transaction for (lead, platform)")
	}

	switch fb.Type {
	case model.FeedbackAccept, model.FeedbackConversion:
		if err := l.applyTransition(tx, model.TxPending, model.PayPending, model.TxConfirmed, model.PayPending, now); err != nil {
			return err
		}
	case model.FeedbackReject:
		if err := l.applyTransition(tx, model.TxPending, model.PayPending, model.TxCancelled, model.PayCancelled, now); err != nil {
			return err
		}
	default:
		return corerrors.Validation(serviceName, "ApplyFeedback", corerrors.CodeMalformedEvent, "unknown feedback type", nil)
	}

	if err := l.store.Update(ctx, tx); err != nil {
		return err
	}
	return l.store.MarkProcessedFeedback(ctx, fb.LeadID, fb.FeedbackID)
}

// ConfirmPaymentReceived records a received payment (spec §4.7:
// "(confirmed, pending|overdue) -> payment received -> (confirmed,
// paid)").
func (l *Ledger) ConfirmPaymentReceived(ctx context.Context, leadID model.LeadID, platformCode string, now time.Time) error {
	unlock := l.locks.lock(leadID)
	defer unlock()

	tx, err := l.store.GetByLeadPlatform(ctx, leadID, platformCode)
	if err != nil {
		return err
	}
	if tx == nil {
		return corerrors.LedgerInvariant(serviceName, "ConfirmPaymentReceived", corerrors.CodeLedgerInvalidTrans, "no transaction for (lead, platform)")
	}
	if tx.Status != model.TxConfirmed || (tx.PaymentStatus != model.PayPending && tx.PaymentStatus != model.PayOverdue) {
		return corerrors.LedgerInvariant(serviceName, "ConfirmPaymentReceived", corerrors.CodeLedgerInvalidTrans, "illegal transition: payment received")
	}
	tx.PaymentStatus = model.PayPaid
	tx.UpdatedAt = now
	return l.store.Update(ctx, tx)
}

// RaiseDispute transitions a confirmed transaction to disputed (spec
// §4.7: "(confirmed, *) -> dispute raised -> (disputed, disputed)").
func (l *Ledger) RaiseDispute(ctx context.Context, leadID model.LeadID, platformCode string, now time.Time) error {
	unlock := l.locks.lock(leadID)
	defer unlock()

	tx, err := l.store.GetByLeadPlatform(ctx, leadID, platformCode)
	if err != nil {
		return err
	}
	if tx == nil {
		return corerrors.LedgerInvariant(serviceName, "RaiseDispute", corerrors.CodeLedgerInvalidTrans, "no transaction for (lead, platform)")
	}
	if tx.Status != model.TxConfirmed {
		return corerrors.LedgerInvariant(serviceName, "RaiseDispute", corerrors.CodeLedgerInvalidTrans, "illegal transition: dispute raised")
	}
	tx.Status = model.TxDisputed
	tx.PaymentStatus = model.PayDisputed
	tx.UpdatedAt = now
	return l.store.Update(ctx, tx)
}

// ResolveDispute closes a disputed transaction, either confirming it
// (with resultPayment, e.g. paid or pending) or refunding it (spec
// §4.7: "(disputed, *) -> resolution -> (confirmed, *) or
// (refunded, *)").
func (l *Ledger) ResolveDispute(ctx context.Context, leadID model.LeadID, platformCode string, refund bool, resultPayment model.PaymentStatus, now time.Time) error {
	unlock := l.locks.lock(leadID)
	defer unlock()

	tx, err := l.store.GetByLeadPlatform(ctx, leadID, platformCode)
	if err != nil {
		return err
	}
	if tx == nil {
		return corerrors.LedgerInvariant(serviceName, "ResolveDispute", corerrors.CodeLedgerInvalidTrans, "no transaction for (lead, platform)")
	}
	if tx.Status != model.TxDisputed {
		return corerrors.LedgerInvariant(serviceName, "ResolveDispute", corerrors.CodeLedgerInvalidTrans, "illegal transition: resolve dispute")
	}
	if refund {
		tx.Status = model.TxRefunded
	} else {
		tx.Status = model.TxConfirmed
	}
	tx.PaymentStatus = resultPayment
	tx.UpdatedAt = now
	return l.store.Update(ctx, tx)
}

// Refund transitions a confirmed transaction directly to refunded
// (spec §4.7: "(confirmed, *) -> refund -> (refunded, *)").
func (l *Ledger) Refund(ctx context.Context, leadID model.LeadID, platformCode string, now time.Time) error {
	unlock := l.locks.lock(leadID)
	defer unlock()

	tx, err := l.store.GetByLeadPlatform(ctx, leadID, platformCode)
	if err != nil {
		return err
	}
	if tx == nil {
		return corerrors.LedgerInvariant(serviceName, "Refund", corerrors.CodeLedgerInvalidTrans, "no transaction for (lead, platform)")
	}
	if tx.Status != model.TxConfirmed {
		return corerrors.LedgerInvariant(serviceName, "Refund", corerrors.CodeLedgerInvalidTrans, "illegal transition: refund")
	}
	tx.Status = model.TxRefunded
	tx.PaymentStatus = model.PayRefunded
	tx.UpdatedAt = now
	return l.store.Update(ctx, tx)
}

// RunAgingSweep marks transactions whose due_date has passed and are
// still unpaid as (confirmed, overdue) (spec §4.7: "a background
// sweep runs at least once per hour"). Callers drive the cadence with
// a ticker; RunAgingSweep itself is a single pass.
func (l *Ledger) RunAgingSweep(ctx context.Context, now time.Time) (int, error) {
	due, err := l.store.ListDueForAging(ctx, now)
	if err != nil {
		return 0, err
	}
	marked := 0
	for _, tx := range due {
		unlock := l.locks.lock(tx.LeadID)
		tx.PaymentStatus = model.PayOverdue
		tx.UpdatedAt = now
		err := l.store.Update(ctx, tx)
		unlock()
		if err != nil {
			l.log.Error("aging sweep update failed", zap.String("transaction_id", tx.ID.String()), zap.Error(err))
			continue
		}
		marked++
	}
	return marked, nil
}

// applyTransition validates and performs a single state transition,
// failing with InvalidLedgerTransition if tx is not in the expected
// source state (spec §4.7 "illegal transitions fail").
func (l *Ledger) applyTransition(tx *model.RevenueTransaction, fromStatus model.TransactionStatus, fromPayment model.PaymentStatus, toStatus model.TransactionStatus, toPayment model.PaymentStatus, now time.Time) error {
	if tx.Status != fromStatus || tx.PaymentStatus != fromPayment {
		return corerrors.LedgerInvariant(serviceName, "applyTransition", corerrors.CodeLedgerInvalidTrans, "illegal ledger transition")
	}
	tx.Status = toStatus
	tx.PaymentStatus = toPayment
	tx.UpdatedAt = now
	if l.metrics != nil {
		l.metrics.LedgerTransitions.WithLabelValues(string(toStatus), string(toPayment)).Inc()
	}
	return nil
}
