package midgard

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"midgardFeed/internal/model"
)

type v2Pool struct {
	Asset      string `json:"asset"`
	AssetDepth string `json:"assetDepth"`
	RuneDepth  string `json:"runeDepth"`
	Status     string `json:"status"`
	Units      string `json:"units"`
}

type v2Action struct {
	Date   string    `json:"date"`
	Height string    `json:"height"`
	In     []wireLeg `json:"in"`
	Out    []wireLeg `json:"out"`
	Pools  []string  `json:"pools"`
	Status string    `json:"status"`
	Type   string    `json:"type"`
}

type v2ActionsPage struct {
	Actions []json.RawMessage `json:"actions"`
	Count   string            `json:"count"`
}

var v2ActionTypes = map[string]model.ActionType{
	"swap":         model.ActionSwap,
	"addliquidity": model.ActionAddLiquidity,
	"withdraw":     model.ActionWithdraw,
	"donate":       model.ActionDonate,
	"refund":       model.ActionRefund,
	"switch":       model.ActionSwitch,
}

type v2Parser struct{}

func (v2Parser) Schema() SchemaVersion {
	return SchemaV2
}

func (v2Parser) ParsePool(raw json.RawMessage) (model.PoolState, error) {
	var wire v2Pool
	if err := json.Unmarshal(raw, &wire); err != nil {
		return model.PoolState{}, fmt.Errorf("decode pool: %w", err)
	}
	pool, err := parseDepths(wire.Asset, wire.AssetDepth, wire.RuneDepth, wire.Units)
	if err != nil {
		return model.PoolState{}, err
	}
	switch strings.ToLower(wire.Status) {
	case "enabled", "available":
		pool.Enabled = true
	}
	return pool, nil
}

func (v2Parser) ParseTx(raw json.RawMessage) (model.Transaction, error) {
	var wire v2Action
	if err := json.Unmarshal(raw, &wire); err != nil {
		return model.Transaction{}, fmt.Errorf("decode action: %w", err)
	}

	actionType, ok := v2ActionTypes[strings.ToLower(wire.Type)]
	if !ok {
		return model.Transaction{}, fmt.Errorf("unknown action type %q", wire.Type)
	}
	status, err := parseStatus(wire.Status)
	if err != nil {
		return model.Transaction{}, err
	}
	dateNs, err := strconv.ParseInt(strings.TrimSpace(wire.Date), 10, 64)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("invalid date %q: %w", wire.Date, err)
	}
	var height int64
	if h := strings.TrimSpace(wire.Height); h != "" {
		height, err = strconv.ParseInt(h, 10, 64)
		if err != nil {
			return model.Transaction{}, fmt.Errorf("invalid height %q: %w", wire.Height, err)
		}
	}

	in, err := normalizeLegs(wire.In)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("input: %w", err)
	}
	out, err := normalizeLegs(wire.Out)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("output: %w", err)
	}

	dateMs := dateNs / 1_000_000
	return model.Transaction{
		Hash:   model.RealInputHash(dateMs, in),
		Type:   actionType,
		Status: status,
		DateMs: dateMs,
		Height: height,
		In:     in,
		Out:    out,
		Pools:  wire.Pools,
	}, nil
}

func decodeV2ActionsPage(body []byte) ([]json.RawMessage, int64, error) {
	var page v2ActionsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, 0, fmt.Errorf("decode actions page: %w", err)
	}
	var total int64
	if c := strings.TrimSpace(page.Count); c != "" {
		value, err := strconv.ParseInt(c, 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid action count %q: %w", page.Count, err)
		}
		total = value
	}
	return page.Actions, total, nil
}
