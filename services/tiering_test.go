package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ggstvfer/psd-covert-sub000/models"
)

func TestTieringPolicySwitchesOnceAtThreshold(t *testing.T) {
	policy := NewTieringPolicy(1000)

	require.Equal(t, models.TierEmbedded, policy.SelectTier(models.TierEmbedded, 500))
	require.Equal(t, models.TierEmbedded, policy.SelectTier(models.TierEmbedded, 1000))
	require.Equal(t, models.TierExternal, policy.SelectTier(models.TierEmbedded, 1001))

	// Once external, always external, regardless of size.
	require.Equal(t, models.TierExternal, policy.SelectTier(models.TierExternal, 1))
}
