package main

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"midgardFeed/internal/model"
)

func btcPool(rune, asset int64) *model.PoolState {
	return &model.PoolState{
		Asset:      "BTC.BTC",
		RuneDepth:  decimal.NewFromInt(rune),
		AssetDepth: decimal.NewFromInt(asset),
		Units:      decimal.NewFromInt(1),
		Enabled:    true,
	}
}

func swapEvent(hash string, at time.Time) model.DomainEvent {
	tx := model.Transaction{
		Hash:   hash,
		Type:   model.ActionSwap,
		Status: model.StatusSuccess,
		DateMs: at.UnixMilli(),
		In:     []model.Leg{{Address: "bc1q", Coins: []model.Coin{{Asset: "BTC.BTC", Amount: decimal.RequireFromString("0.5")}}}},
		Out:    []model.Leg{{Address: "thor1", Coins: []model.Coin{{Asset: "THOR.RUNE", Amount: decimal.NewFromInt(24)}}}},
		Pools:  []string{"BTC.BTC"},
	}
	return model.NewTxLifecycleEvent(model.TxEvent{Type: model.TxAdd, Tx: tx}, at)
}

func TestLogListenerPricesTransactions(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	listener := logListener(zap.New(core))
	at := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)

	listener.ReceiveEvent(model.NewPoolSnapshotEvent([]model.PoolState{*btcPool(100, 2)}, at))
	listener.ReceiveEvent(swapEvent("A", at))

	entries := logs.All()
	require.Len(t, entries, 2)
	fields := entries[1].ContextMap()
	require.Equal(t, "25", fields["rune_volume"])
	require.Equal(t, "BTC.BTC", fields["pool"])
	require.True(t, at.Equal(fields["tx_date"].(time.Time)))
	require.Equal(t, 1, int(entries[0].ContextMap()["pools"].(int64)))
}

func TestLogListenerFollowsPoolChanges(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	listener := logListener(zap.New(core))
	at := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)

	listener.ReceiveEvent(model.NewPoolSnapshotEvent([]model.PoolState{*btcPool(100, 2)}, at))
	listener.ReceiveEvent(model.NewPoolChangeEvent(model.PoolChange{
		Type: model.PoolDepthChanged, Date: at, Pool: btcPool(300, 3), Previous: btcPool(100, 2),
	}))
	listener.ReceiveEvent(swapEvent("A", at))

	listener.ReceiveEvent(model.NewPoolChangeEvent(model.PoolChange{
		Type: model.PoolRemoved, Date: at, Previous: btcPool(300, 3),
	}))
	listener.ReceiveEvent(swapEvent("B", at))

	txs := logs.FilterField(zap.String("kind", string(model.KindTxEvent))).All()
	require.Len(t, txs, 2)
	require.Equal(t, "50", txs[0].ContextMap()["rune_volume"])
	require.Equal(t, "0", txs[1].ContextMap()["rune_volume"])

	changes := logs.FilterField(zap.String("type", string(model.PoolDepthChanged))).All()
	require.Len(t, changes, 1)
	require.Equal(t, "200", changes[0].ContextMap()["rune_depth_delta"])
}
