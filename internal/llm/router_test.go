package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demewebsolutions/truai/internal/classifier"
)

func TestRouteRisk(t *testing.T) {
	assert.Equal(t, TierCheap, RouteRisk(classifier.RiskLow))
	assert.Equal(t, TierMid, RouteRisk(classifier.RiskMedium))
	assert.Equal(t, TierHigh, RouteRisk(classifier.RiskHigh))
	// Unknown values fall back rather than panic.
	assert.Equal(t, TierCheap, RouteRisk(classifier.RiskLevel("BOGUS")))
}

func TestParseTier(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Tier
	}{
		{"cheap", TierCheap},
		{"CHEAP", TierCheap},
		{"Mid", TierMid},
		{"high", TierHigh},
	} {
		got, err := ParseTier(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}

	_, err := ParseTier("premium")
	require.Error(t, err)
}

func TestModelForDefaults(t *testing.T) {
	m := DefaultModelMap()
	assert.Equal(t, "gpt-3.5-turbo", m.ModelFor(TierCheap))
	assert.Equal(t, "gpt-4", m.ModelFor(TierMid))
	assert.Equal(t, "gpt-4-turbo", m.ModelFor(TierHigh))
}

func TestModelForPartialOverride(t *testing.T) {
	m := ModelMap{High: "o1"}
	assert.Equal(t, "o1", m.ModelFor(TierHigh))
	// Unset entries fall back to the defaults.
	assert.Equal(t, "gpt-3.5-turbo", m.ModelFor(TierCheap))
	assert.Equal(t, "gpt-4", m.ModelFor(TierMid))
}
