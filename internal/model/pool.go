package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PoolState is one liquidity pool as reported by a snapshot.
// Values are replaced on every update and never mutated in place.
type PoolState struct {
	Asset      string          `json:"asset"`
	AssetDepth decimal.Decimal `json:"asset_depth"`
	RuneDepth  decimal.Decimal `json:"rune_depth"`
	Units      decimal.Decimal `json:"units"`
	Enabled    bool            `json:"enabled"`
}

// PoolDelta is the element-wise difference of two pool states.
type PoolDelta struct {
	Asset      string          `json:"asset"`
	AssetDepth decimal.Decimal `json:"asset_depth"`
	RuneDepth  decimal.Decimal `json:"rune_depth"`
	Units      decimal.Decimal `json:"units"`
	Enabled    bool            `json:"enabled"`
}

// Equal reports structural equality over all fields.
func (p PoolState) Equal(other PoolState) bool {
	return p.Asset == other.Asset &&
		p.Enabled == other.Enabled &&
		p.AssetDepth.Equal(other.AssetDepth) &&
		p.RuneDepth.Equal(other.RuneDepth) &&
		p.Units.Equal(other.Units)
}

// Sub returns p minus other. Enabled is taken from p.
func (p PoolState) Sub(other PoolState) PoolDelta {
	return PoolDelta{
		Asset:      p.Asset,
		AssetDepth: p.AssetDepth.Sub(other.AssetDepth),
		RuneDepth:  p.RuneDepth.Sub(other.RuneDepth),
		Units:      p.Units.Sub(other.Units),
		Enabled:    p.Enabled,
	}
}

// RunesPerAsset is the pool price of one asset unit in rune.
func (p PoolState) RunesPerAsset() decimal.Decimal {
	if p.AssetDepth.IsZero() {
		return decimal.Zero
	}
	return p.RuneDepth.Div(p.AssetDepth)
}

func (p PoolState) StatusName() string {
	if p.Enabled {
		return "enabled"
	}
	return "bootstrapping"
}

func (p PoolState) String() string {
	return fmt.Sprintf("Pool(%s R vs %s %s, units = %s, %s)",
		p.RuneDepth.String(), p.AssetDepth.String(), p.Asset, p.Units.String(), p.StatusName())
}

// PriceTable maps pool assets to their RunesPerAsset price.
func PriceTable(pools []PoolState) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(pools))
	for _, pool := range pools {
		out[pool.Asset] = pool.RunesPerAsset()
	}
	return out
}
