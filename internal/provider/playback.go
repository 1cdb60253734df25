package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"midgardFeed/internal/analyze"
	"midgardFeed/internal/midgard"
	"midgardFeed/internal/model"
	"midgardFeed/internal/observability"
	"midgardFeed/internal/recording"
)

// ErrNotLoaded is returned when stepping a playback that has no recording.
var ErrNotLoaded = errors.New("playback recording not loaded")

// PlaybackState is the position of a Playback in its lifecycle.
type PlaybackState int

const (
	StateUnloaded PlaybackState = iota
	StateLoaded
	StatePlaying
	StatePaused
	StateFinished
)

func (s PlaybackState) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// PlaybackConfig controls replay of a recorded session.
type PlaybackConfig struct {
	Path           string
	TimeScale      float64
	WaitFirstEvent bool
	TxCacheSize    int
	MaxTxAge       time.Duration
	IgnoreOld      bool
}

func DefaultPlaybackConfig() PlaybackConfig {
	return PlaybackConfig{
		TimeScale:   1.0,
		TxCacheSize: analyze.DefaultMaxCacheSize,
		MaxTxAge:    analyze.DefaultMaxTxAge,
		IgnoreOld:   true,
	}
}

// replay is the cursor and caches of one pass over the recording.
type replay struct {
	cursor    int
	started   bool
	resetSent bool
	done      chan struct{}

	// Touched only by the goroutine holding stepMu.
	now   time.Time
	pools map[string]model.PoolState
	txs   map[string]model.Transaction
	poolA *analyze.PoolAnalyzer
	txA   *analyze.TxAnalyzer
}

// Playback replays a recording through its own analyzer pair. The emitted
// sequence depends only on the file and the time scale.
type Playback struct {
	cfg      PlaybackConfig
	listener Listener
	logger   *zap.Logger
	metrics  *observability.Metrics

	mu     sync.Mutex
	state  PlaybackState
	file   *recording.File
	parser midgard.Parser
	start  time.Time
	gen    uint64
	// token identifies the step chain started by the latest Play.
	token uint64
	run   *replay
	sched scheduler

	stepMu    sync.Mutex
	deliverMu sync.Mutex
}

func NewPlayback(cfg PlaybackConfig, listener Listener, logger *zap.Logger, metrics *observability.Metrics) (*Playback, error) {
	if listener == nil {
		return nil, fmt.Errorf("listener is nil")
	}
	if cfg.TimeScale <= 0 {
		return nil, fmt.Errorf("time scale must be greater than zero")
	}
	if cfg.TxCacheSize <= 0 {
		cfg.TxCacheSize = analyze.DefaultMaxCacheSize
	}
	if cfg.MaxTxAge <= 0 {
		cfg.MaxTxAge = analyze.DefaultMaxTxAge
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Playback{
		cfg:      cfg,
		listener: listener,
		logger:   logger,
		metrics:  metrics,
	}
	p.run = p.newReplay()
	return p, nil
}

// Load reads the configured recording. It resets caches and the cursor and
// does not start playback.
func (p *Playback) Load(ctx context.Context) error {
	if p.cfg.Path == "" {
		return fmt.Errorf("playback path is empty")
	}
	file, err := recording.Load(ctx, p.cfg.Path)
	if err != nil {
		return err
	}
	return p.LoadFile(file)
}

// LoadFile installs an already decoded recording.
func (p *Playback) LoadFile(file *recording.File) error {
	if file == nil {
		return fmt.Errorf("recording is nil")
	}
	if err := file.Validate(); err != nil {
		return err
	}
	version, err := midgard.ParseSchemaVersion(file.Version)
	if err != nil {
		return err
	}
	parser, err := midgard.ParserFor(version)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.sched.Cancel()
	p.file = file
	p.parser = parser
	p.start = file.StartTime()
	p.gen++
	p.run = p.newReplay()
	p.state = StateLoaded

	p.logger.Info("playback loaded",
		zap.String("version", string(version)),
		zap.Time("start", p.start),
		zap.Int("events", len(file.Events)),
		zap.Float64("duration_sec", file.Duration()),
	)
	return nil
}

func (p *Playback) newReplay() *replay {
	r := &replay{
		done:  make(chan struct{}),
		now:   p.start,
		pools: make(map[string]model.PoolState),
		txs:   make(map[string]model.Transaction),
	}
	clock := func() time.Time { return r.now }
	r.poolA = analyze.NewPoolAnalyzer(clock)
	r.txA = analyze.NewTxAnalyzer(analyze.TxConfig{
		MaxAge:       p.cfg.MaxTxAge,
		MaxCacheSize: p.cfg.TxCacheSize,
		IgnoreOld:    p.cfg.IgnoreOld,
	}, clock, p.logger)
	return r
}

// Play loads on demand, emits a reset on a fresh start and schedules steps.
// Playing after Finished starts over. Play and Rewind must not be called from
// the listener; Pause may.
func (p *Playback) Play(ctx context.Context) error {
	p.mu.Lock()
	if p.state == StateUnloaded {
		p.mu.Unlock()
		if err := p.Load(ctx); err != nil {
			return err
		}
		p.mu.Lock()
	}
	switch p.state {
	case StatePlaying:
		p.mu.Unlock()
		return nil
	case StateFinished:
		p.gen++
		p.run = p.newReplay()
	}
	p.state = StatePlaying
	p.token++
	gen, token := p.gen, p.token
	needReset := !p.run.resetSent
	p.run.resetSent = true
	at := p.start
	p.mu.Unlock()

	if needReset {
		p.deliver(gen, []model.DomainEvent{model.NewResetEvent(at)})
	}
	p.scheduleStep(gen, token, 0)
	return nil
}

// Pause cancels the pending step. A step already running completes.
func (p *Playback) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sched.Cancel()
	if p.state == StatePlaying {
		p.state = StatePaused
	}
}

// Rewind stops playback, clears caches and the cursor and emits a reset.
func (p *Playback) Rewind() {
	p.mu.Lock()
	if p.file == nil {
		p.mu.Unlock()
		return
	}
	p.sched.Cancel()
	p.gen++
	p.run = p.newReplay()
	p.run.resetSent = true
	p.state = StateLoaded
	gen := p.gen
	at := p.start
	p.mu.Unlock()

	p.deliver(gen, []model.DomainEvent{model.NewResetEvent(at)})
}

// Step applies the next envelope synchronously. It reports whether more
// envelopes remain.
func (p *Playback) Step() (bool, error) {
	p.mu.Lock()
	if p.file == nil {
		p.mu.Unlock()
		return false, ErrNotLoaded
	}
	if p.state == StateLoaded {
		p.state = StatePaused
	}
	gen := p.gen
	needReset := !p.run.resetSent
	p.run.resetSent = true
	at := p.start
	p.mu.Unlock()

	if needReset {
		p.deliver(gen, []model.DomainEvent{model.NewResetEvent(at)})
	}
	_, more := p.advance(gen, false)
	return more, nil
}

// RunToEnd replays every remaining envelope without waiting.
func (p *Playback) RunToEnd(ctx context.Context) error {
	if p.State() == StateUnloaded {
		if err := p.Load(ctx); err != nil {
			return err
		}
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		more, err := p.Step()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

func (p *Playback) State() PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Done is closed when the current pass reaches the end of the recording.
func (p *Playback) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run.done
}

// Progress is the offset of the last applied envelope over the recording
// duration, in [0, 1].
func (p *Playback) Progress() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return 0
	}
	total := p.file.Duration()
	if total <= 0 {
		if p.state == StateFinished {
			return 1
		}
		return 0
	}
	if p.run.cursor == 0 {
		return 0
	}
	current := p.file.Events[p.run.cursor-1].SecFromStart
	return current / total
}

// TotalDuration is the wall time a full pass takes at the configured scale.
func (p *Playback) TotalDuration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return 0
	}
	return p.scaled(p.file.Duration())
}

func (p *Playback) scaled(seconds float64) time.Duration {
	return time.Duration(seconds / p.cfg.TimeScale * float64(time.Second))
}

func (p *Playback) scheduleStep(gen, token uint64, delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.chainLive(gen, token) {
		return
	}
	p.sched.Schedule(delay, func() {
		p.mu.Lock()
		live := p.chainLive(gen, token)
		p.mu.Unlock()
		if !live {
			return
		}
		wait, more := p.advance(gen, true)
		if more {
			p.scheduleStep(gen, token, wait)
		}
	})
}

// chainLive reports whether the step chain of (gen, token) may continue.
func (p *Playback) chainLive(gen, token uint64) bool {
	return gen == p.gen && token == p.token && p.state == StatePlaying
}

// advance executes the envelope at the cursor and returns the wait until the
// next one. With honorWait the first step of a pass only waits when
// WaitFirstEvent is set.
func (p *Playback) advance(gen uint64, honorWait bool) (time.Duration, bool) {
	p.stepMu.Lock()
	defer p.stepMu.Unlock()

	p.mu.Lock()
	if gen != p.gen || p.file == nil {
		p.mu.Unlock()
		return 0, false
	}
	run := p.run
	events := p.file.Events
	if run.cursor >= len(events) {
		p.finishLocked(run)
		p.mu.Unlock()
		return 0, false
	}
	if honorWait && !run.started && p.cfg.WaitFirstEvent {
		run.started = true
		p.mu.Unlock()
		return p.scaled(events[0].SecFromStart), true
	}
	run.started = true
	idx := run.cursor
	run.cursor++
	more := run.cursor < len(events)
	var wait time.Duration
	if more {
		wait = p.scaled(events[run.cursor].SecFromStart - events[idx].SecFromStart)
	}
	parser := p.parser
	start := p.start
	p.mu.Unlock()

	out := p.apply(run, parser, start, events[idx])
	p.deliver(gen, out)

	if !more {
		p.mu.Lock()
		if gen == p.gen {
			p.finishLocked(run)
		}
		p.mu.Unlock()
	}
	return wait, more
}

func (p *Playback) finishLocked(run *replay) {
	if p.state == StateFinished {
		return
	}
	p.state = StateFinished
	p.sched.Cancel()
	close(run.done)
	p.logger.Info("playback finished", zap.Int("events", len(p.file.Events)))
}

func (p *Playback) apply(run *replay, parser midgard.Parser, start time.Time, envelope recording.Envelope) []model.DomainEvent {
	run.now = start.Add(time.Duration(envelope.SecFromStart * float64(time.Second)))

	switch envelope.Type {
	case recording.PoolEnvelope:
		return p.applyPools(run, parser, envelope.Event)
	case recording.TxEnvelope:
		return p.applyTxs(run, parser, envelope.Event)
	}
	p.logger.Warn("skip unknown envelope", zap.String("type", string(envelope.Type)))
	return nil
}

func (p *Playback) applyPools(run *replay, parser midgard.Parser, delta recording.Delta) []model.DomainEvent {
	removed, droppedRemoved := midgard.ParsePools(parser, delta.Removed, p.logger)
	upserts, droppedUpserts := midgard.ParsePools(parser, append(append([]json.RawMessage(nil), delta.Added...), delta.Changed...), p.logger)
	p.metrics.RecordDropped("playback", droppedRemoved+droppedUpserts)

	for _, pool := range removed {
		delete(run.pools, pool.Asset)
	}
	for _, pool := range upserts {
		run.pools[pool.Asset] = pool
	}

	keys := make([]string, 0, len(run.pools))
	for key := range run.pools {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	pools := make([]model.PoolState, 0, len(keys))
	for _, key := range keys {
		pools = append(pools, run.pools[key])
	}

	wasPrimed := run.poolA.Primed()
	changes := run.poolA.ProcessPools(pools)

	events := make([]model.DomainEvent, 0, len(changes)+1)
	if !wasPrimed {
		events = append(events, model.NewPoolSnapshotEvent(run.poolA.Snapshot(), run.now))
	}
	for _, change := range changes {
		events = append(events, model.NewPoolChangeEvent(change))
	}
	return events
}

func (p *Playback) applyTxs(run *replay, parser midgard.Parser, delta recording.Delta) []model.DomainEvent {
	removed, droppedRemoved := midgard.ParseTxs(parser, delta.Removed, p.logger)
	upserts, droppedUpserts := midgard.ParseTxs(parser, append(append([]json.RawMessage(nil), delta.Added...), delta.Changed...), p.logger)
	p.metrics.RecordDropped("playback", droppedRemoved+droppedUpserts)

	for _, tx := range removed {
		delete(run.txs, tx.Hash)
	}
	for _, tx := range upserts {
		if tx.Hash == "" {
			p.logger.Warn("skip recorded action without hash", zap.String("type", string(tx.Type)))
			continue
		}
		run.txs[tx.Hash] = tx
	}

	batch := make([]model.Transaction, 0, len(run.txs))
	for _, tx := range run.txs {
		batch = append(batch, tx)
	}
	sort.Slice(batch, func(i, j int) bool {
		if batch[i].DateMs != batch[j].DateMs {
			return batch[i].DateMs > batch[j].DateMs
		}
		return batch[i].Hash < batch[j].Hash
	})
	if len(batch) > p.cfg.TxCacheSize {
		for _, tx := range batch[p.cfg.TxCacheSize:] {
			delete(run.txs, tx.Hash)
		}
		batch = batch[:p.cfg.TxCacheSize]
	}

	txEvents, _ := run.txA.ProcessTransactions(batch)
	p.metrics.SetTxCacheSize(run.txA.Len())

	events := make([]model.DomainEvent, 0, len(txEvents))
	for _, event := range txEvents {
		events = append(events, model.NewTxLifecycleEvent(event, run.now))
	}
	return events
}

func (p *Playback) deliver(gen uint64, events []model.DomainEvent) {
	if len(events) == 0 {
		return
	}
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()
	for _, event := range events {
		p.mu.Lock()
		current := gen == p.gen
		p.mu.Unlock()
		if !current {
			return
		}
		p.listener.ReceiveEvent(event)
		p.metrics.RecordEvent(string(event.Kind))
	}
}
