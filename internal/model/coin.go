package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Midgard reports amounts and depths as integers in 1e-8 units.
const wireDecimals = 8

// Known rune assets across the chains THORChain has bridged from.
const (
	RuneNative  = "THOR.RUNE"
	RuneBnb     = "BNB.RUNE-B1A"
	RuneBnbTest = "BNB.RUNE-67C"
	RuneEth     = "ETH.RUNE-0X3155BA85D5F96B2D030A4966AF206230E46849CB"
)

var runeAssets = map[string]struct{}{
	RuneNative:  {},
	RuneBnb:     {},
	RuneBnbTest: {},
	RuneEth:     {},
}

// Coin is an amount of a single asset.
type Coin struct {
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

// IsRune reports whether asset is any flavour of RUNE.
func IsRune(asset string) bool {
	_, ok := runeAssets[strings.ToUpper(strings.TrimSpace(asset))]
	return ok
}

// ParseWireAmount converts a Midgard integer string into a scaled decimal.
func ParseWireAmount(input string) (decimal.Decimal, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(input)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", input, err)
	}
	if value.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount %q", input)
	}
	return value.Shift(-wireDecimals), nil
}

// PriceFunc returns the rune price of one unit of asset.
type PriceFunc func(asset string) decimal.Decimal

// PriceFromTable builds a PriceFunc from a PriceTable. Unknown assets are zero.
func PriceFromTable(table map[string]decimal.Decimal) PriceFunc {
	return func(asset string) decimal.Decimal {
		if price, ok := table[asset]; ok {
			return price
		}
		return decimal.Zero
	}
}

// RuneValue converts the coin into rune.
func (c Coin) RuneValue(price PriceFunc) decimal.Decimal {
	if IsRune(c.Asset) {
		return c.Amount
	}
	if price == nil {
		return decimal.Zero
	}
	return c.Amount.Mul(price(c.Asset))
}
