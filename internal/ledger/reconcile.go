package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aurum-solar/core/internal/model"
)

// BuyerReportFetcher fetches a platform's self-reported total for a
// window; the fetch mechanism itself is out of scope for the core
// (spec §4.7 "fetched from the buyer, out of scope for transport").
type BuyerReportFetcher interface {
	FetchReportedTotal(ctx context.Context, platformCode string, start, end time.Time) (decimal.Decimal, error)
}

// Reconciler produces reconciliation records; it emits but never
// mutates ledger state (spec §4.7).
type Reconciler struct {
	store             Store
	minorThresholdUSD decimal.Decimal
	fetcher           BuyerReportFetcher
}

// NewReconciler builds a Reconciler. minorThresholdUSD is
// reconciliation.minor_threshold_usd (spec §6, default 100). fetcher
// may be nil when callers always supply the buyer-reported total
// directly via Reconcile.
func NewReconciler(store Store, minorThresholdUSD float64, fetcher BuyerReportFetcher) *Reconciler {
	return &Reconciler{
		store:             store,
		minorThresholdUSD: decimal.NewFromFloat(minorThresholdUSD),
		fetcher:           fetcher,
	}
}

// Reconcile compares our net_amount total for platformCode over
// [start, end], both ends inclusive, against buyerTotal, producing a ReconciliationRecord
// (spec §4.7). Running Reconcile twice with identical inputs over an
// unchanged ledger window yields a byte-identical record (spec §8
// property 10): the computation reads no clock and has no side
// effects.
//
// Transactions in cancelled or refunded state are excluded from our
// total — they represent revenue that was never, or is no longer,
// owed — while pending, confirmed, and disputed transactions all
// count, since a dispute does not retroactively zero out the amount
// in question (see DESIGN.md "Reconciliation inclusion rule").
func (r *Reconciler) Reconcile(ctx context.Context, platformCode string, start, end time.Time, buyerTotal decimal.Decimal) (*model.ReconciliationRecord, error) {
	txs, err := r.store.ListByPlatformWindow(ctx, platformCode, start, end)
	if err != nil {
		return nil, err
	}

	ourTotal := decimal.Zero
	var issues []string
	for _, tx := range txs {
		switch tx.Status {
		case model.TxCancelled, model.TxRefunded:
			continue
		}
		ourTotal = ourTotal.Add(tx.Net)
		if tx.Status == model.TxDisputed {
			issues = append(issues, fmt.Sprintf("transaction %s is disputed", tx.ID))
		}
	}

	delta := ourTotal.Sub(buyerTotal).Abs()
	status := model.ReconciledOK
	switch {
	case delta.IsZero():
		status = model.ReconciledOK
	case delta.LessThanOrEqual(r.minorThresholdUSD):
		status = model.ReconciledMinor
	default:
		status = model.ReconciledMajor
		issues = append(issues, fmt.Sprintf("delta %s exceeds minor threshold %s", delta, r.minorThresholdUSD))
	}

	return &model.ReconciliationRecord{
		PlatformCode: platformCode,
		WindowStart:  start,
		WindowEnd:    end,
		OurTotal:     ourTotal,
		TheirTotal:   buyerTotal,
		Delta:        delta,
		Issues:       issues,
		Status:       status,
	}, nil
}

// ReconcileFetch fetches the buyer-reported total via the configured
// BuyerReportFetcher, then reconciles against it.
func (r *Reconciler) ReconcileFetch(ctx context.Context, platformCode string, start, end time.Time) (*model.ReconciliationRecord, error) {
	if r.fetcher == nil {
		return nil, fmt.Errorf("ledger: no BuyerReportFetcher configured")
	}
	buyerTotal, err := r.fetcher.FetchReportedTotal(ctx, platformCode, start, end)
	if err != nil {
		return nil, err
	}
	return r.Reconcile(ctx, platformCode, start, end, buyerTotal)
}
