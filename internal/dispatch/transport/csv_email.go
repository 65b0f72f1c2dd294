package transport

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"

	"github.com/aurum-solar/core/internal/corerrors"
	"github.com/aurum-solar/core/internal/model"
)

const csvEmailServiceName = "dispatch.transport.csv-email"

// csvHeader is the fixed header schema (spec §6, in order).
var csvHeader = []string{
	"lead_id", "quality_tier", "estimated_value", "customer_name",
	"customer_email", "customer_phone", "property_address",
	"property_zip", "property_borough", "monthly_bill",
	"homeowner_status", "timeline", "engagement_level",
	"recommended_system_kw", "annual_savings", "payback_years",
}

// EmailEnqueuer hands a rendered CSV row off to an external email
// dispatcher (spec §4.5: "enqueues for an email dispatcher (external);
// success is defined as successful enqueue, not delivery"). The
// dispatcher itself is out of scope; this is the seam SPEC_FULL.md's
// transport layer exercises.
type EmailEnqueuer interface {
	Enqueue(ctx context.Context, platformCode string, csvBody []byte) error
}

// CSVEmailTransport renders a single-row CSV with the fixed schema and
// hands it to an EmailEnqueuer (spec §4.5, §6). Grounded on
// original_source/.../b2b_export_service.py's CSV row shape; no
// third-party CSV writer exists in the pack, so stdlib encoding/csv is
// the correct, idiomatic choice (documented in DESIGN.md).
type CSVEmailTransport struct {
	enqueuer EmailEnqueuer
}

// NewCSVEmailTransport builds a CSVEmailTransport.
func NewCSVEmailTransport(enqueuer EmailEnqueuer) *CSVEmailTransport {
	return &CSVEmailTransport{enqueuer: enqueuer}
}

// Send implements Transport (spec §4.5 CSV-email transport).
func (t *CSVEmailTransport) Send(ctx context.Context, req Request) Outcome {
	row := buildCSVRow(req.Lead)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return Outcome{Retryable: false, Err: corerrors.Transport(csvEmailServiceName, "Send", corerrors.CodeTransportMalformed, false, "failed to render CSV header", err)}
	}
	if err := w.Write(row); err != nil {
		return Outcome{Retryable: false, Err: corerrors.Transport(csvEmailServiceName, "Send", corerrors.CodeTransportMalformed, false, "failed to render CSV row", err)}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return Outcome{Retryable: false, Err: corerrors.Transport(csvEmailServiceName, "Send", corerrors.CodeTransportMalformed, false, "CSV writer error", err)}
	}

	if err := t.enqueuer.Enqueue(ctx, req.Platform.Code, buf.Bytes()); err != nil {
		return Outcome{Delivered: false, Retryable: true,
			Err: corerrors.Transport(csvEmailServiceName, "Send", corerrors.CodeTransportTimeout, true, "failed to enqueue email", err)}
	}
	return Outcome{Delivered: true}
}

func buildCSVRow(lead *model.Lead) []string {
	homeowner := "unknown"
	if lead.Qualification.OwnershipVerified != nil {
		if *lead.Qualification.OwnershipVerified {
			homeowner = "owner"
		} else {
			homeowner = "renter"
		}
	}
	return []string{
		lead.ID.String(),
		string(lead.Tier),
		lead.EstimatedValue.StringFixed(2),
		fmt.Sprintf("%s %s", lead.Contact.FirstName, lead.Contact.LastName),
		lead.Contact.Email,
		lead.Contact.Phone,
		lead.Property.Address,
		lead.Property.ZipCode,
		lead.Property.Borough,
		lead.Qualification.MonthlyElectricBill.StringFixed(2),
		homeowner,
		string(lead.Qualification.Timeline),
		"", // engagement_level: always empty; tracker engagement data is not carried on model.Lead
		"", // recommended_system_kw: solar-sizing is out of SPEC_FULL.md scope
		"", // annual_savings: solar-sizing is out of SPEC_FULL.md scope
		"", // payback_years: solar-sizing is out of SPEC_FULL.md scope
	}
}
