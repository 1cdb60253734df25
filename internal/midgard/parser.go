package midgard

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"midgardFeed/internal/model"
)

// Parser normalizes wire records of one schema version.
type Parser interface {
	Schema() SchemaVersion
	ParsePool(raw json.RawMessage) (model.PoolState, error)
	ParseTx(raw json.RawMessage) (model.Transaction, error)
}

// ParserFor returns the parser of a schema version.
func ParserFor(version SchemaVersion) (Parser, error) {
	switch version {
	case SchemaV1:
		return v1Parser{}, nil
	case SchemaV2:
		return v2Parser{}, nil
	}
	return nil, &ConfigError{Field: "version", Err: fmt.Errorf("%w: %q", ErrUnsupportedSchema, version)}
}

// ParsePools converts raw pool records, dropping malformed ones with a
// warning. It returns the pools kept and how many were dropped.
func ParsePools(parser Parser, raws []json.RawMessage, logger *zap.Logger) ([]model.PoolState, int) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pools := make([]model.PoolState, 0, len(raws))
	dropped := 0
	for idx, raw := range raws {
		pool, err := parser.ParsePool(raw)
		if err != nil {
			dropped++
			logger.Warn("drop malformed pool record", zap.Int("index", idx), zap.Error(err))
			continue
		}
		pools = append(pools, pool)
	}
	return pools, dropped
}

// ParseTxs converts raw action records, dropping malformed ones with a warning.
func ParseTxs(parser Parser, raws []json.RawMessage, logger *zap.Logger) ([]model.Transaction, int) {
	if logger == nil {
		logger = zap.NewNop()
	}
	txs := make([]model.Transaction, 0, len(raws))
	dropped := 0
	for idx, raw := range raws {
		tx, err := parser.ParseTx(raw)
		if err != nil {
			dropped++
			logger.Warn("drop malformed action record", zap.Int("index", idx), zap.Error(err))
			continue
		}
		txs = append(txs, tx)
	}
	return txs, dropped
}

// wireCoin and wireLeg are shared by both schema versions.
type wireCoin struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type wireLeg struct {
	Address string     `json:"address"`
	Coins   []wireCoin `json:"coins"`
	TxID    string     `json:"txID"`
}

func (l wireLeg) normalize() (model.Leg, error) {
	coins := make([]model.Coin, 0, len(l.Coins))
	for _, c := range l.Coins {
		amount, err := model.ParseWireAmount(c.Amount)
		if err != nil {
			return model.Leg{}, fmt.Errorf("coin %s: %w", c.Asset, err)
		}
		coins = append(coins, model.Coin{Asset: strings.TrimSpace(c.Asset), Amount: amount})
	}
	return model.Leg{Address: l.Address, TxID: l.TxID, Coins: coins}, nil
}

func normalizeLegs(legs []wireLeg) ([]model.Leg, error) {
	out := make([]model.Leg, 0, len(legs))
	for _, leg := range legs {
		normalized, err := leg.normalize()
		if err != nil {
			return nil, err
		}
		out = append(out, normalized)
	}
	return out, nil
}

func parseStatus(input string) (model.TxStatus, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "pending":
		return model.StatusPending, nil
	case "success", "refund":
		return model.StatusSuccess, nil
	}
	return "", fmt.Errorf("unknown status %q", input)
}

func parseDepths(asset, assetDepth, runeDepth, units string) (model.PoolState, error) {
	asset = strings.TrimSpace(asset)
	if asset == "" {
		return model.PoolState{}, fmt.Errorf("pool without asset")
	}
	assetValue, err := model.ParseWireAmount(assetDepth)
	if err != nil {
		return model.PoolState{}, fmt.Errorf("pool %s asset depth: %w", asset, err)
	}
	runeValue, err := model.ParseWireAmount(runeDepth)
	if err != nil {
		return model.PoolState{}, fmt.Errorf("pool %s rune depth: %w", asset, err)
	}
	unitsValue, err := parseUnits(units)
	if err != nil {
		return model.PoolState{}, fmt.Errorf("pool %s units: %w", asset, err)
	}
	return model.PoolState{
		Asset:      asset,
		AssetDepth: assetValue,
		RuneDepth:  runeValue,
		Units:      unitsValue,
	}, nil
}

// Liquidity units are plain integers, not 1e-8 amounts.
func parseUnits(input string) (decimal.Decimal, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(input)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid units %q: %w", input, err)
	}
	if value.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative units %q", input)
	}
	return value, nil
}
