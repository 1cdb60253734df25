package midgard

import (
	"encoding/json"
	"fmt"
	"strings"

	"midgardFeed/internal/model"
)

// v1 (BEPSwap chaosnet) reports one input leg per tx, dates in seconds and
// numeric heights.
type v1PoolDetail struct {
	Asset      string `json:"asset"`
	AssetDepth string `json:"assetDepth"`
	RuneDepth  string `json:"runeDepth"`
	Status     string `json:"status"`
	PoolUnits  string `json:"poolUnits"`
}

type v1Tx struct {
	In       *wireLeg  `json:"in"`
	LegacyIn *wireLeg  `json:"_in"`
	Out      []wireLeg `json:"out"`
	Pool     struct {
		Asset string `json:"asset"`
	} `json:"pool"`
	Status string `json:"status"`
	Type   string `json:"type"`
	Date   int64  `json:"date"`
	Height int64  `json:"height"`
}

type v1TxsPage struct {
	Txs   []json.RawMessage `json:"txs"`
	Count int64             `json:"count"`
}

var v1ActionTypes = map[string]model.ActionType{
	"swap":       model.ActionSwap,
	"doubleswap": model.ActionSwap,
	"stake":      model.ActionAddLiquidity,
	"unstake":    model.ActionWithdraw,
	"add":        model.ActionDonate,
	"refund":     model.ActionRefund,
}

type v1Parser struct{}

func (v1Parser) Schema() SchemaVersion {
	return SchemaV1
}

func (v1Parser) ParsePool(raw json.RawMessage) (model.PoolState, error) {
	var wire v1PoolDetail
	if err := json.Unmarshal(raw, &wire); err != nil {
		return model.PoolState{}, fmt.Errorf("decode pool detail: %w", err)
	}
	pool, err := parseDepths(wire.Asset, wire.AssetDepth, wire.RuneDepth, wire.PoolUnits)
	if err != nil {
		return model.PoolState{}, err
	}
	pool.Enabled = strings.EqualFold(wire.Status, "enabled")
	return pool, nil
}

func (v1Parser) ParseTx(raw json.RawMessage) (model.Transaction, error) {
	var wire v1Tx
	if err := json.Unmarshal(raw, &wire); err != nil {
		return model.Transaction{}, fmt.Errorf("decode tx: %w", err)
	}

	actionType, ok := v1ActionTypes[strings.ToLower(wire.Type)]
	if !ok {
		return model.Transaction{}, fmt.Errorf("unknown tx type %q", wire.Type)
	}
	status, err := parseStatus(wire.Status)
	if err != nil {
		return model.Transaction{}, err
	}

	var in []model.Leg
	inLeg := wire.In
	if inLeg == nil {
		inLeg = wire.LegacyIn
	}
	if inLeg != nil {
		leg, err := inLeg.normalize()
		if err != nil {
			return model.Transaction{}, fmt.Errorf("input: %w", err)
		}
		in = []model.Leg{leg}
	}
	out, err := normalizeLegs(wire.Out)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("output: %w", err)
	}

	var pools []string
	if asset := strings.TrimSpace(wire.Pool.Asset); asset != "" {
		pools = []string{asset}
	}

	dateMs := wire.Date * 1000
	return model.Transaction{
		Hash:   model.RealInputHash(dateMs, in),
		Type:   actionType,
		Status: status,
		DateMs: dateMs,
		Height: wire.Height,
		In:     in,
		Out:    out,
		Pools:  pools,
	}, nil
}

func decodeV1TxsPage(body []byte) ([]json.RawMessage, int64, error) {
	var page v1TxsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, 0, fmt.Errorf("decode txs page: %w", err)
	}
	return page.Txs, page.Count, nil
}
