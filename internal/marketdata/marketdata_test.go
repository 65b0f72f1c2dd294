package marketdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupMissingReturnsFalse(t *testing.T) {
	s := NewStore()
	_, ok := s.Lookup("00000")
	assert.False(t, ok)
}

func TestSeedAndLookup(t *testing.T) {
	s := NewStore()
	s.Seed(SampleNYCData())
	ref, ok := s.Lookup("11215")
	assert.True(t, ok)
	assert.Equal(t, "Brooklyn", ref.Borough)
	assert.True(t, ref.HighValueZip)
}

func TestUpsertOverridesExisting(t *testing.T) {
	s := NewStore()
	s.Seed(SampleNYCData())
	ref, _ := s.Lookup("10016")
	ref.HighValueZip = true
	s.Upsert(ref)
	updated, ok := s.Lookup("10016")
	assert.True(t, ok)
	assert.True(t, updated.HighValueZip)
}
