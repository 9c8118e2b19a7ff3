// Package rewards tracks per-trader cumulative volume, volume-tiered
// cashback, referral and creator fee balances, and their claim lifecycle.
package rewards

import (
	"errors"
	"fmt"
	"sort"
)

// Tier is one volume bracket of the cashback program. A trader qualifies for
// the highest tier whose threshold is at or below their cumulative volume.
type Tier struct {
	Name            string `yaml:"name"`
	VolumeThreshold uint64 `yaml:"volume_threshold"`
	CashbackBPS     uint64 `yaml:"cashback_bps"`
}

// ErrInvalidTierTable is returned for tables that are empty, do not start at
// threshold zero, or have non-increasing thresholds.
var ErrInvalidTierTable = errors.New("invalid tier table")

// TierTable is an ordered sequence of tiers with strictly increasing
// thresholds, starting at zero so the base tier always qualifies.
type TierTable struct {
	tiers []Tier
}

// NewTierTable validates and builds a tier table.
func NewTierTable(tiers []Tier) (*TierTable, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidTierTable)
	}
	if tiers[0].VolumeThreshold != 0 {
		return nil, fmt.Errorf("%w: first threshold must be 0, got %d", ErrInvalidTierTable, tiers[0].VolumeThreshold)
	}
	for i := 1; i < len(tiers); i++ {
		if tiers[i].VolumeThreshold <= tiers[i-1].VolumeThreshold {
			return nil, fmt.Errorf("%w: thresholds must be strictly increasing at index %d", ErrInvalidTierTable, i)
		}
	}
	cp := make([]Tier, len(tiers))
	copy(cp, tiers)
	return &TierTable{tiers: cp}, nil
}

// TierOf returns the index of the highest tier whose threshold is at or
// below totalVolume. Boundary-inclusive: crossing a threshold exactly
// qualifies for the new tier.
func (t *TierTable) TierOf(totalVolume uint64) int {
	// First index whose threshold exceeds totalVolume; the answer is one
	// before it. Index 0 always matches (threshold 0).
	i := sort.Search(len(t.tiers), func(i int) bool {
		return t.tiers[i].VolumeThreshold > totalVolume
	})
	return i - 1
}

// Tier returns the tier at index i.
func (t *TierTable) Tier(i int) Tier {
	return t.tiers[i]
}

// CashbackBPS returns the cashback rate earned at totalVolume.
func (t *TierTable) CashbackBPS(totalVolume uint64) uint64 {
	return t.tiers[t.TierOf(totalVolume)].CashbackBPS
}

// MaxCashbackBPS returns the largest cashback rate any tier grants. The fee
// config validator bounds the waterfall against it.
func (t *TierTable) MaxCashbackBPS() uint64 {
	var maxBPS uint64
	for _, tier := range t.tiers {
		if tier.CashbackBPS > maxBPS {
			maxBPS = tier.CashbackBPS
		}
	}
	return maxBPS
}

// Len returns the number of tiers.
func (t *TierTable) Len() int {
	return len(t.tiers)
}

// DefaultTiers returns the production tier schedule. Volume thresholds are
// denominated in quote base units. The top rate plus the named fee buckets
// must stay within the discounted fee rate or the fee config is rejected.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "wood", VolumeThreshold: 0, CashbackBPS: 5},
		{Name: "bronze", VolumeThreshold: 10_000_000_000, CashbackBPS: 10},
		{Name: "silver", VolumeThreshold: 50_000_000_000, CashbackBPS: 12},
		{Name: "gold", VolumeThreshold: 250_000_000_000, CashbackBPS: 15},
		{Name: "platinum", VolumeThreshold: 1_000_000_000_000, CashbackBPS: 17},
		{Name: "diamond", VolumeThreshold: 5_000_000_000_000, CashbackBPS: 20},
		{Name: "champion", VolumeThreshold: 25_000_000_000_000, CashbackBPS: 25},
	}
}
