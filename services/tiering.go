package services

import (
	"github.com/ggstvfer/psd-covert-sub000/models"
)

// TieringPolicy decides, per accepted chunk, which tier stores it. A
// session starts embedded and switches to external the first time its
// prospective cumulative size crosses the threshold. The switch happens
// at most once and never reverts; chunks already written stay where
// they are, so reconstruction probes both tiers by index instead of
// paying for a mid-upload migration.
type TieringPolicy struct {
	Threshold uint64
}

func NewTieringPolicy(threshold uint64) TieringPolicy {
	return TieringPolicy{Threshold: threshold}
}

func (p TieringPolicy) SelectTier(current models.StorageTier, prospectiveCumulative uint64) models.StorageTier {
	if current == models.TierExternal {
		return models.TierExternal
	}
	if prospectiveCumulative > p.Threshold {
		return models.TierExternal
	}
	return models.TierEmbedded
}
