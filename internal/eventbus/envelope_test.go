package eventbus

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurum-solar/core/internal/model"
)

func TestDecodeTurnRoundTrip(t *testing.T) {
	body := []byte(`{
		"session_id": "11111111-1111-1111-1111-111111111111",
		"timestamp": "2026-02-01T12:00:00Z",
		"extracted_slots": {"monthly_bill": {"value": 220, "confidence": 0.9}},
		"message_meta": {"intent": "discovery", "sentiment": 0.5, "objections_handled": ["price"], "urgency_created": true}
	}`)

	env, err := DecodeTurn(body)
	require.NoError(t, err)

	id, err := env.ParseSessionID()
	require.NoError(t, err)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", id.String())

	slots := env.Slots()
	require.Contains(t, slots, "monthly_bill")
	assert.InDelta(t, 220, slots["monthly_bill"].Value, 0.001)
	assert.Equal(t, 0.9, slots["monthly_bill"].Confidence)

	meta := env.Meta()
	assert.Equal(t, "discovery", meta.Intent)
	assert.True(t, meta.UrgencyCreated)
}

func TestDecodeFeedbackToModel(t *testing.T) {
	value := decimal.NewFromInt(500)
	env := &FeedbackEnvelope{
		FeedbackID:      "fb-1",
		LeadID:          "22222222-2222-2222-2222-222222222222",
		PlatformCode:    "acme",
		Type:            string(model.FeedbackConversion),
		ConversionValue: &value,
		Tier:            string(model.TierPremium),
		ReceivedAt:      time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}

	fb, tier, err := env.ToModel()
	require.NoError(t, err)
	assert.Equal(t, model.FeedbackConversion, fb.Type)
	assert.Equal(t, model.TierPremium, tier)
	assert.True(t, fb.ConversionValue.Equal(value))
}

func TestDecodeFeedbackInvalidLeadID(t *testing.T) {
	env := &FeedbackEnvelope{LeadID: "not-a-uuid"}
	_, _, err := env.ToModel()
	require.Error(t, err)
}
