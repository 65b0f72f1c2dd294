package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadWeightSum(t *testing.T) {
	cfg := Default()
	cfg.Scoring.Weights.Bill = 0.99
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "weights must sum to 1.0")
}

func TestValidateRejectsNonMonotonicThresholds(t *testing.T) {
	cfg := Default()
	cfg.Scoring.TierThresholds.Standard = 90
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidateRejectsBadRetryBounds(t *testing.T) {
	cfg := Default()
	cfg.DispatchRetry.MaxMS = 10
	cfg.DispatchRetry.BaseMS = 2000
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestLoadMissingFileDefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 85, cfg.Scoring.TierThresholds.Premium)
	assert.True(t, cfg.Pricing.BasePremium.Equal(cfg.Pricing.BasePremium))
}
