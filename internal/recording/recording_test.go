package recording

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"midgardFeed/internal/midgard"
)

func raws(items ...string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		out = append(out, json.RawMessage(item))
	}
	return out
}

func TestListDifferFeed(t *testing.T) {
	d := NewListDiffer(PoolKey, nil)

	first := d.Feed(raws(`{"asset":"B.B","runeDepth":"1"}`, `{"asset":"A.A","runeDepth":"1"}`))
	require.Len(t, first.Added, 2)
	require.JSONEq(t, `{"asset":"A.A","runeDepth":"1"}`, string(first.Added[0]))
	require.Empty(t, first.Changed)
	require.Empty(t, first.Removed)

	second := d.Feed(raws(`{"asset":"A.A", "runeDepth":"1"}`, `{"asset":"C.C","runeDepth":"3"}`, `{"no":"key"}`))
	require.Len(t, second.Added, 1)
	require.Len(t, second.Removed, 1)
	require.JSONEq(t, `{"asset":"B.B","runeDepth":"1"}`, string(second.Removed[0]))
	require.Empty(t, second.Changed, "whitespace is not a change")

	third := d.Feed(raws(`{"asset":"A.A","runeDepth":"2"}`, `{"asset":"C.C","runeDepth":"3"}`))
	require.Len(t, third.Changed, 1)
	require.True(t, d.Feed(raws(`{"asset":"A.A","runeDepth":"2"}`, `{"asset":"C.C","runeDepth":"3"}`)).Empty())
}

func TestDecodeLegacyArray(t *testing.T) {
	file, err := Decode([]byte(`[{"timestamp":1,"sec_from_start":0,"type":"pool_event","event":{"added":[]}}]`))
	require.NoError(t, err)
	require.Equal(t, DefaultVersion, file.Version)
	require.Len(t, file.Events, 1)
}

func TestDecodeRejectsUnordered(t *testing.T) {
	_, err := Decode([]byte(`{"version":"v2","start_date":"2021-03-01T12:00:00","events":[
		{"timestamp":1,"sec_from_start":5,"type":"pool_event","event":{}},
		{"timestamp":2,"sec_from_start":3,"type":"tx_event","event":{}}
	]}`))
	require.ErrorIs(t, err, ErrUnordered)

	_, err = Decode([]byte(`{"events":[{"sec_from_start":0,"type":"node_event","event":{}}]}`))
	require.Error(t, err)
}

func TestStartTime(t *testing.T) {
	file := File{StartDate: "2021-03-01T12:00:00.250000"}
	require.Equal(t, time.Date(2021, 3, 1, 12, 0, 0, 250_000_000, time.UTC), file.StartTime())

	file = File{StartDate: "2021-03-01T12:00:00+02:00"}
	require.Equal(t, time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC), file.StartTime())

	file = File{Events: []Envelope{{Timestamp: 1614600010, SecFromStart: 10, Type: PoolEnvelope}}}
	require.Equal(t, time.Unix(1614600000, 0).UTC(), file.StartTime())
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "session.json")

	require.ErrorIs(t, Save(path, &File{}), ErrEmptyRecording)

	in := &File{
		Version:   "v1",
		StartDate: "2021-03-01T12:00:00Z",
		Events: []Envelope{
			{Timestamp: 1, SecFromStart: 0, Type: PoolEnvelope, Event: Delta{Added: raws(`{"asset":"BNB.BNB"}`)}},
			{Timestamp: 2, SecFromStart: 1.5, Type: TxEnvelope, Event: Delta{Added: raws(`{"type":"swap"}`)}},
		},
	}
	require.NoError(t, Save(path, in))
	_, err := os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))

	out, err := Load(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, "v1", out.Version)
	require.Len(t, out.Events, 2)
	require.Equal(t, 1.5, out.Duration())
}

func TestLoadFromURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"version":"v2","events":[]}`))
	}))
	defer server.Close()

	file, err := Load(context.Background(), server.URL+"/record.json")
	require.NoError(t, err)
	require.Empty(t, file.Events)
	require.Zero(t, file.Duration())
}

type fakeRawSource struct {
	mu      sync.Mutex
	pools   []json.RawMessage
	actions []json.RawMessage
}

func (f *fakeRawSource) RawPools(ctx context.Context) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pools, nil
}

func (f *fakeRawSource) RawActions(ctx context.Context, offset, limit int) ([]json.RawMessage, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.actions, int64(len(f.actions)), nil
}

func TestRecorderPoll(t *testing.T) {
	parser, err := midgard.ParserFor(midgard.SchemaV2)
	require.NoError(t, err)

	source := &fakeRawSource{
		pools: raws(`{"asset":"BTC.BTC","assetDepth":"1","runeDepth":"1","status":"available","units":"1"}`),
		actions: raws(`{"date":"1616000000000000000","height":"1","status":"pending","type":"swap","pools":["BTC.BTC"],
			"in":[{"address":"a","txID":"T1","coins":[{"asset":"BTC.BTC","amount":"1"}]}],"out":[]}`),
	}
	rec, err := NewRecorder(RecorderConfig{Period: time.Second}, source, parser, nil)
	require.NoError(t, err)

	base := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	rec.clock = func() time.Time { return now }

	require.NoError(t, rec.Poll(context.Background()))
	require.Equal(t, 2, rec.Len())

	now = base.Add(2 * time.Second)
	require.NoError(t, rec.Poll(context.Background()))
	require.Equal(t, 2, rec.Len(), "unchanged snapshots add nothing")

	source.mu.Lock()
	source.pools = raws(`{"asset":"BTC.BTC","assetDepth":"1","runeDepth":"5","status":"available","units":"1"}`)
	source.mu.Unlock()
	now = base.Add(3 * time.Second)
	require.NoError(t, rec.Poll(context.Background()))

	file := rec.File()
	require.Equal(t, "v2", file.Version)
	require.Equal(t, base.Format(time.RFC3339Nano), file.StartDate)
	require.Len(t, file.Events, 3)
	require.Equal(t, PoolEnvelope, file.Events[0].Type)
	require.Equal(t, TxEnvelope, file.Events[1].Type)
	require.Equal(t, 3.0, file.Events[2].SecFromStart)
	require.Len(t, file.Events[2].Event.Changed, 1)
	require.NoError(t, file.Validate())
}
