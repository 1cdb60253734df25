package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"midgardFeed/internal/model"
	"midgardFeed/internal/recording"
)

var recordingStart = time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)

func rawPool(asset, runeDepth string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"asset":%q,"assetDepth":"1000000000","runeDepth":%q,"status":"available","units":"10"}`,
		asset, runeDepth))
}

func rawAction(txID, status string, at time.Time) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"date":"%d","height":"1","status":%q,"type":"swap","pools":["BTC.BTC"],`+
			`"in":[{"address":"bc1","txID":%q,"coins":[{"asset":"BTC.BTC","amount":"100000000"}]}],"out":[]}`,
		at.UnixNano(), status, txID))
}

func envelope(sec float64, kind recording.EnvelopeType, delta recording.Delta) recording.Envelope {
	return recording.Envelope{
		Timestamp:    float64(recordingStart.Unix()) + sec,
		SecFromStart: sec,
		Type:         kind,
		Event:        delta,
	}
}

func sampleRecording() *recording.File {
	txAt := recordingStart.Add(500 * time.Millisecond)
	return &recording.File{
		Version:   "v2",
		StartDate: recordingStart.Format(time.RFC3339Nano),
		Events: []recording.Envelope{
			envelope(0, recording.PoolEnvelope, recording.Delta{Added: []json.RawMessage{
				rawPool("BTC.BTC", "100000000000"),
				rawPool("ETH.ETH", "5000000000"),
			}}),
			envelope(1, recording.TxEnvelope, recording.Delta{Added: []json.RawMessage{
				rawAction("T1", "pending", txAt),
				json.RawMessage(`{"type":"swap","status":"nonsense"}`),
			}}),
			envelope(2, recording.PoolEnvelope, recording.Delta{Changed: []json.RawMessage{
				rawPool("BTC.BTC", "120000000000"),
			}}),
			envelope(3, recording.TxEnvelope, recording.Delta{Changed: []json.RawMessage{
				rawAction("T1", "success", txAt),
			}}),
			envelope(4, recording.PoolEnvelope, recording.Delta{Removed: []json.RawMessage{
				rawPool("ETH.ETH", "5000000000"),
			}}),
		},
	}
}

func describe(events []model.DomainEvent) []string {
	out := make([]string, 0, len(events))
	for _, event := range events {
		switch event.Kind {
		case model.KindPoolChange:
			out = append(out, fmt.Sprintf("pool:%s:%s", event.PoolChange.Type, event.PoolChange.Asset()))
		case model.KindTxEvent:
			out = append(out, fmt.Sprintf("tx:%s:%s", event.TxEvent.Type, event.TxEvent.Tx.Hash))
		default:
			out = append(out, string(event.Kind))
		}
	}
	return out
}

func encode(t *testing.T, events []model.DomainEvent) string {
	t.Helper()
	data, err := json.Marshal(events)
	require.NoError(t, err)
	return string(data)
}

func newLoadedPlayback(t *testing.T, cfg PlaybackConfig, listener Listener) *Playback {
	t.Helper()
	p, err := NewPlayback(cfg, listener, nil, nil)
	require.NoError(t, err)
	require.NoError(t, p.LoadFile(sampleRecording()))
	require.Equal(t, StateLoaded, p.State())
	return p
}

var expectedSequence = []string{
	"reset",
	"pool_snapshot",
	"tx:addTx:T1",
	"pool:depthChanged:BTC.BTC",
	"tx:statusUpdated:T1",
	"pool:removed:ETH.ETH",
}

func TestPlaybackRunToEnd(t *testing.T) {
	sink := &collector{}
	p := newLoadedPlayback(t, DefaultPlaybackConfig(), sink)

	require.NoError(t, p.RunToEnd(context.Background()))
	require.Equal(t, StateFinished, p.State())

	events := sink.snapshot()
	require.Equal(t, expectedSequence, describe(events))
	require.Equal(t, recordingStart, events[0].Date)
	require.Equal(t, recordingStart.Add(time.Second), events[2].Date)
	require.Equal(t, recordingStart.Add(2*time.Second), events[3].Date)
	require.Len(t, events[1].Pools, 2)

	select {
	case <-p.Done():
	default:
		t.Fatal("done channel should be closed after the last envelope")
	}
	require.Equal(t, 1.0, p.Progress())
}

func TestPlaybackDeterminism(t *testing.T) {
	cfg := DefaultPlaybackConfig()
	cfg.TimeScale = 1000

	play := func() string {
		sink := &collector{}
		p := newLoadedPlayback(t, cfg, sink)
		require.NoError(t, p.Play(context.Background()))
		select {
		case <-p.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("playback did not finish")
		}
		return encode(t, sink.snapshot())
	}

	first := play()
	second := play()
	require.Equal(t, first, second)

	sink := &collector{}
	p := newLoadedPlayback(t, cfg, sink)
	require.NoError(t, p.RunToEnd(context.Background()))
	require.Equal(t, first, encode(t, sink.snapshot()))

	p.Rewind()
	require.Equal(t, StateLoaded, p.State())
	require.Zero(t, p.Progress())
	rewound := &collector{}
	p.listener = rewound
	require.NoError(t, p.RunToEnd(context.Background()))
	require.Equal(t, expectedSequence[1:], describe(rewound.snapshot()), "rewind already emitted the reset")
}

func TestPlaybackWaitFirstEventKeepsSequence(t *testing.T) {
	cfg := DefaultPlaybackConfig()
	cfg.TimeScale = 1000
	cfg.WaitFirstEvent = true

	sink := &collector{}
	p := newLoadedPlayback(t, cfg, sink)
	require.NoError(t, p.Play(context.Background()))
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("playback did not finish")
	}
	require.Equal(t, expectedSequence, describe(sink.snapshot()))
}

func TestPlaybackPauseFromListenerAndResume(t *testing.T) {
	cfg := DefaultPlaybackConfig()
	cfg.TimeScale = 1000

	sink := &collector{}
	var p *Playback
	paused := make(chan struct{})
	listener := ListenerFunc(func(event model.DomainEvent) {
		sink.ReceiveEvent(event)
		if event.Kind == model.KindTxEvent && event.TxEvent.Type == model.TxAdd {
			p.Pause()
			close(paused)
		}
	})
	p = newLoadedPlayback(t, cfg, listener)

	require.NoError(t, p.Play(context.Background()))
	select {
	case <-paused:
	case <-time.After(5 * time.Second):
		t.Fatal("listener never paused playback")
	}
	require.Eventually(t, func() bool { return p.State() == StatePaused }, time.Second, time.Millisecond)
	require.Equal(t, expectedSequence[:3], describe(sink.snapshot()))

	require.NoError(t, p.Play(context.Background()))
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("playback did not finish after resume")
	}
	require.Equal(t, expectedSequence, describe(sink.snapshot()))
}

func TestPlaybackProgressAndDuration(t *testing.T) {
	cfg := DefaultPlaybackConfig()
	cfg.TimeScale = 2
	p := newLoadedPlayback(t, cfg, &collector{})

	require.Equal(t, 2*time.Second, p.TotalDuration())
	require.Zero(t, p.Progress())

	more, err := p.Step()
	require.NoError(t, err)
	require.True(t, more)
	more, err = p.Step()
	require.NoError(t, err)
	require.True(t, more)
	require.Equal(t, 0.25, p.Progress())
	require.Equal(t, StatePaused, p.State())
}

func TestPlaybackStepRequiresRecording(t *testing.T) {
	p, err := NewPlayback(DefaultPlaybackConfig(), &collector{}, nil, nil)
	require.NoError(t, err)

	_, err = p.Step()
	require.ErrorIs(t, err, ErrNotLoaded)
	require.Error(t, p.Play(context.Background()), "no path configured")
}

func TestPlaybackBoundsTxSet(t *testing.T) {
	cfg := DefaultPlaybackConfig()
	cfg.TxCacheSize = 2

	file := &recording.File{
		Version:   "v2",
		StartDate: recordingStart.Format(time.RFC3339Nano),
		Events: []recording.Envelope{
			envelope(10, recording.TxEnvelope, recording.Delta{Added: []json.RawMessage{
				rawAction("OLDEST", "pending", recordingStart.Add(1*time.Second)),
				rawAction("MIDDLE", "pending", recordingStart.Add(2*time.Second)),
				rawAction("NEWEST", "pending", recordingStart.Add(3*time.Second)),
			}}),
		},
	}

	sink := &collector{}
	p, err := NewPlayback(cfg, sink, nil, nil)
	require.NoError(t, err)
	require.NoError(t, p.LoadFile(file))
	require.NoError(t, p.RunToEnd(context.Background()))

	require.Equal(t, []string{"reset", "tx:addTx:NEWEST", "tx:addTx:MIDDLE"}, describe(sink.snapshot()))
}

func TestPlaybackLoadsFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.json")
	require.NoError(t, recording.Save(path, sampleRecording()))

	cfg := DefaultPlaybackConfig()
	cfg.Path = path
	sink := &collector{}
	p, err := NewPlayback(cfg, sink, nil, nil)
	require.NoError(t, err)

	require.NoError(t, p.RunToEnd(context.Background()))
	require.Equal(t, expectedSequence, describe(sink.snapshot()))
}

func TestPlaybackResumeDuringStepKeepsOneChain(t *testing.T) {
	cfg := DefaultPlaybackConfig()
	cfg.TimeScale = 1000

	sink := &collector{}
	var p *Playback
	paused := make(chan struct{})
	resumed := make(chan struct{})
	listener := ListenerFunc(func(event model.DomainEvent) {
		sink.ReceiveEvent(event)
		if event.Kind == model.KindTxEvent && event.TxEvent.Type == model.TxAdd {
			p.Pause()
			close(paused)
			<-resumed
		}
	})
	p = newLoadedPlayback(t, cfg, listener)

	require.NoError(t, p.Play(context.Background()))
	p.mu.Lock()
	firstToken := p.token
	p.mu.Unlock()

	select {
	case <-paused:
	case <-time.After(5 * time.Second):
		t.Fatal("listener never paused playback")
	}
	require.NoError(t, p.Play(context.Background()))

	p.mu.Lock()
	require.False(t, p.chainLive(p.gen, firstToken), "the interrupted chain must not reschedule")
	require.True(t, p.chainLive(p.gen, p.token))
	p.mu.Unlock()
	close(resumed)

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("playback did not finish after resume")
	}
	require.Equal(t, expectedSequence, describe(sink.snapshot()))
}
