package snapshotstore

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurum-solar/core/internal/model"
)

func TestSnapshotDocRoundTrip(t *testing.T) {
	snap := &model.ScoreSnapshot{
		SessionID: model.NewID(),
		Timestamp: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
		Components: model.ComponentScores{
			Bill: 20, Ownership: 10, Timeline: 15, Location: 10,
			Engagement: 5, Credit: 8, Objections: -3, NYCMarket: 7,
		},
		Total:            72,
		Tier:             model.TierStandard,
		RevenuePotential: decimal.NewFromFloat(312.50),
	}

	doc := toDoc(snap)
	assert.Equal(t, snap.SessionID.String(), doc.SessionID)
	assert.Equal(t, "312.5", doc.RevenuePotential)

	back, err := fromDoc(doc)
	require.NoError(t, err)
	assert.Equal(t, snap.SessionID, back.SessionID)
	assert.Equal(t, snap.Components, back.Components)
	assert.Equal(t, snap.Total, back.Total)
	assert.Equal(t, snap.Tier, back.Tier)
	assert.True(t, snap.RevenuePotential.Equal(back.RevenuePotential))
}

func TestSnapshotDocRejectsInvalidSessionID(t *testing.T) {
	doc := snapshotDoc{SessionID: "not-a-uuid", RevenuePotential: "0"}
	_, err := fromDoc(doc)
	require.Error(t, err)
}
