package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	client "github.com/aurum-solar/core/common/libraries/go/iaros-core/client"
)

// reportResponse is the minimal shape expected from a buyer's
// reconciliation-report endpoint (spec §4.7: "a buyer-reported total
// (fetched from the buyer, out of scope for transport)" — the fetch
// mechanism is left to the implementer; this is the HTTP rendition).
type reportResponse struct {
	TotalNetUSD string `json:"total_net_usd"`
}

// HTTPReportFetcher implements BuyerReportFetcher over a per-platform
// HTTP endpoint, reusing the shared retrying/circuit-breaking client
// rather than a bare http.Client.
type HTTPReportFetcher struct {
	client    *client.HTTPClient
	endpoints map[string]string // platform code -> report endpoint
	log       *zap.Logger
}

// NewHTTPReportFetcher builds a fetcher. endpoints maps platform code
// to its reconciliation-report URL; platforms absent from the map
// return an error from FetchReportedTotal.
func NewHTTPReportFetcher(endpoints map[string]string, log *zap.Logger) *HTTPReportFetcher {
	if log == nil {
		log = zap.NewNop()
	}
	c := client.NewHTTPClient("ledger.reconciliation-fetcher", client.Config{
		Timeout:        20 * time.Second,
		Retries:        2,
		CircuitBreaker: true,
	}, log)
	return &HTTPReportFetcher{client: c, endpoints: endpoints, log: log}
}

// FetchReportedTotal implements BuyerReportFetcher.
func (f *HTTPReportFetcher) FetchReportedTotal(ctx context.Context, platformCode string, start, end time.Time) (decimal.Decimal, error) {
	endpoint, ok := f.endpoints[platformCode]
	if !ok {
		return decimal.Zero, fmt.Errorf("ledger: no reconciliation endpoint configured for platform %s", platformCode)
	}
	url := fmt.Sprintf("%s?start=%s&end=%s", endpoint, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))

	var resp reportResponse
	if err := f.client.GetJSON(ctx, url, &resp, nil); err != nil {
		return decimal.Zero, fmt.Errorf("ledger: fetch reported total for %s: %w", platformCode, err)
	}
	total, err := decimal.NewFromString(resp.TotalNetUSD)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger: parse reported total for %s: %w", platformCode, err)
	}
	return total, nil
}
