package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActionType is the kind of settlement action.
type ActionType string

const (
	ActionSwap         ActionType = "swap"
	ActionAddLiquidity ActionType = "addLiquidity"
	ActionWithdraw     ActionType = "withdraw"
	ActionDonate       ActionType = "donate"
	ActionRefund       ActionType = "refund"
	ActionSwitch       ActionType = "switch"
)

// TxStatus is the settlement state of an action.
type TxStatus string

const (
	StatusPending TxStatus = "pending"
	StatusSuccess TxStatus = "success"
)

// Leg is one side (input or output) of an action.
type Leg struct {
	Address string `json:"address"`
	TxID    string `json:"tx_id,omitempty"`
	Coins   []Coin `json:"coins"`
}

// Transaction is a normalized Midgard action. A newer value with the same
// Hash supersedes the old one when its status changes.
type Transaction struct {
	Hash   string     `json:"hash"`
	Type   ActionType `json:"type"`
	Status TxStatus   `json:"status"`
	DateMs int64      `json:"date_ms"`
	Height int64      `json:"height"`
	In     []Leg      `json:"in"`
	Out    []Leg      `json:"out"`
	Pools  []string   `json:"pools"`
}

// TxBatch is one page of actions plus the total count the source reports.
type TxBatch struct {
	Txs   []Transaction
	Total int64
}

func (t Transaction) Time() time.Time {
	return time.UnixMilli(t.DateMs).UTC()
}

// Age is now minus the action date.
func (t Transaction) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(t.DateMs))
}

func (t Transaction) IsPending() bool {
	return t.Status == StatusPending
}

// RuneVolume sums the rune value of the legs that carry the action's volume:
// outputs for withdraw and refund, inputs otherwise.
func (t Transaction) RuneVolume(price PriceFunc) decimal.Decimal {
	legs := t.In
	if t.Type == ActionWithdraw || t.Type == ActionRefund {
		legs = t.Out
	}

	total := decimal.Zero
	for _, leg := range legs {
		for _, coin := range leg.Coins {
			total = total.Add(coin.RuneValue(price))
		}
	}
	return total
}

// FirstPool returns the first pool involved, or "" for pool-less actions.
func (t Transaction) FirstPool() string {
	if len(t.Pools) == 0 {
		return ""
	}
	return t.Pools[0]
}
