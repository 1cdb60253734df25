package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"midgardFeed/internal/model"
)

func readLines(t *testing.T, path string) []model.DomainEvent {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var out []model.DomainEvent
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var event model.DomainEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		out = append(out, event)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestJSONLJournalAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.jsonl")
	at := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)

	journal, err := NewJSONLJournal(path, nil, nil)
	require.NoError(t, err)

	journal.ReceiveEvent(model.NewResetEvent(at))
	pool := model.PoolState{Asset: "BTC.BTC", RuneDepth: decimal.NewFromInt(10), Enabled: true}
	require.NoError(t, journal.PutEventBatch([]model.DomainEvent{
		model.NewPoolChangeEvent(model.PoolChange{Type: model.PoolAdded, Date: at, Pool: &pool}),
	}))
	require.NoError(t, journal.PutEventBatch(nil))
	require.NoError(t, journal.Close())
	require.NoError(t, journal.Close())

	reopened, err := NewJSONLJournal(path, nil, nil)
	require.NoError(t, err)
	reopened.ReceiveEvent(model.NewResetEvent(at.Add(time.Second)))
	require.NoError(t, reopened.Close())

	events := readLines(t, path)
	require.Len(t, events, 3)
	require.Equal(t, model.KindReset, events[0].Kind)
	require.Equal(t, model.KindPoolChange, events[1].Kind)
	require.Equal(t, "BTC.BTC", events[1].PoolChange.Asset())
	require.True(t, events[1].PoolChange.Pool.RuneDepth.Equal(decimal.NewFromInt(10)))
	require.Equal(t, at.Add(time.Second), events[2].Date.UTC())
}

func TestJSONLJournalWriteAfterClose(t *testing.T) {
	journal, err := NewJSONLJournal(filepath.Join(t.TempDir(), "events.jsonl"), nil, nil)
	require.NoError(t, err)
	require.NoError(t, journal.Close())

	err = journal.PutEventBatch([]model.DomainEvent{model.NewResetEvent(time.Now())})
	require.ErrorIs(t, err, os.ErrClosed)
}
