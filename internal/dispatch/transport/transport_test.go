package transport

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurum-solar/core/internal/model"
)

func testLead() *model.Lead {
	l := model.NewLead(model.LeadID(uuid.New()), model.SessionID(uuid.New()), time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	l.Contact = model.Contact{FirstName: "Jane", LastName: "Doe", Email: "jane@example.com", Phone: "555-0100"}
	l.Property = model.Property{Address: "1 Main St", City: "Brooklyn", State: "NY", ZipCode: "11215", Borough: "Brooklyn"}
	l.Qualification.MonthlyElectricBill = decimal.NewFromInt(380)
	ownership := true
	l.Qualification.OwnershipVerified = &ownership
	l.Score = 90
	l.Tier = model.TierPremium
	l.EstimatedValue = decimal.NewFromInt(225)
	return l
}

func TestBuildLeadPayloadOmitsEmptyOptionalFields(t *testing.T) {
	payload := BuildLeadPayload(testLead(), "aurum-solar", 5)
	body, err := CanonicalJSON(payload)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "custom_fields")
	assert.NotContains(t, string(body), "ai_insights")
	assert.Contains(t, string(body), `"lead_id"`)
}

func TestCanonicalJSONStableKeyOrder(t *testing.T) {
	payload := BuildLeadPayload(testLead(), "aurum-solar", 1)
	a, err := CanonicalJSON(payload)
	require.NoError(t, err)
	b, err := CanonicalJSON(payload)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.True(t, indexOf(string(a), `"lead_id"`) < indexOf(string(a), `"contact"`))
	assert.True(t, indexOf(string(a), `"contact"`) < indexOf(string(a), `"property"`))
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestSignAndVerifySignature(t *testing.T) {
	body := []byte(`{"a":1}`)
	sig := Sign(body, "shared-secret")
	assert.Contains(t, sig, "sha256=")
	assert.True(t, VerifySignature(body, "shared-secret", sig))
	assert.False(t, VerifySignature(body, "wrong-secret", sig))
}

func TestSortedKeysJSONSortsTopLevelKeys(t *testing.T) {
	payload := BuildLeadPayload(testLead(), "aurum-solar", 1)
	sorted, err := SortedKeysJSON(payload)
	require.NoError(t, err)
	assert.True(t, indexOf(string(sorted), `"contact"`) < indexOf(string(sorted), `"lead_id"`), "sorted form orders contact before lead_id alphabetically")
}

type fakeEnqueuer struct {
	lastBody []byte
	err      error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, platformCode string, body []byte) error {
	f.lastBody = body
	return f.err
}

func TestCSVEmailTransportRendersFixedSchema(t *testing.T) {
	enq := &fakeEnqueuer{}
	tr := NewCSVEmailTransport(enq)
	platform := &model.Platform{Code: "acme"}

	outcome := tr.Send(context.Background(), Request{Lead: testLead(), Platform: platform})
	require.NoError(t, outcome.Err)
	assert.True(t, outcome.Delivered)
	assert.Contains(t, string(enq.lastBody), "lead_id,quality_tier,estimated_value")
	assert.Contains(t, string(enq.lastBody), "premium")
}

func TestCSVEmailTransportEnqueueFailureIsRetryable(t *testing.T) {
	enq := &fakeEnqueuer{err: assert.AnError}
	tr := NewCSVEmailTransport(enq)
	platform := &model.Platform{Code: "acme"}

	outcome := tr.Send(context.Background(), Request{Lead: testLead(), Platform: platform})
	require.Error(t, outcome.Err)
	assert.False(t, outcome.Delivered)
	assert.True(t, outcome.Retryable)
}
