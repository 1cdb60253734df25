package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"midgardFeed/internal/analyze"
	"midgardFeed/internal/model"
	"midgardFeed/internal/observability"
)

// ErrNotRunning is returned by Tick while the provider is idle.
var ErrNotRunning = errors.New("provider is not running")

// RealtimeConfig holds the polling policy.
type RealtimeConfig struct {
	TickInterval            time.Duration
	MaxPages                int
	PageSize                int
	FetchAttempts           int
	RetryDelay              time.Duration
	SuppressErrors          bool
	IgnoreOld               bool
	IgnoreFirstRunSuccesses bool
	MaxTxAge                time.Duration
	MaxTxCache              int
}

func DefaultRealtimeConfig() RealtimeConfig {
	return RealtimeConfig{
		TickInterval:   5 * time.Second,
		MaxPages:       2,
		PageSize:       50,
		FetchAttempts:  3,
		RetryDelay:     time.Second,
		SuppressErrors: true,
		IgnoreOld:      true,
		MaxTxAge:       analyze.DefaultMaxTxAge,
		MaxTxCache:     analyze.DefaultMaxCacheSize,
	}
}

// session is the analyzer pair of one Play..Pause span.
type session struct {
	pools *analyze.PoolAnalyzer
	txs   *analyze.TxAnalyzer
	ctx   context.Context
}

// Realtime polls a SnapshotSource on a fixed cadence and turns the snapshots
// into domain events.
type Realtime struct {
	cfg      RealtimeConfig
	source   SnapshotSource
	listener Listener
	logger   *zap.Logger
	metrics  *observability.Metrics
	clock    analyze.Clock

	mu      sync.Mutex
	session *session
	sched   scheduler

	// tickMu serializes ticks so analyzers see one batch at a time.
	tickMu sync.Mutex
	// deliverMu keeps the listener single-threaded. Pause never takes it.
	deliverMu sync.Mutex
}

// NewRealtime builds an idle provider.
func NewRealtime(cfg RealtimeConfig, source SnapshotSource, listener Listener, logger *zap.Logger, metrics *observability.Metrics) (*Realtime, error) {
	if source == nil {
		return nil, fmt.Errorf("snapshot source is nil")
	}
	if listener == nil {
		return nil, fmt.Errorf("listener is nil")
	}
	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("tick interval must be greater than zero")
	}
	if _, err := PlanPages(cfg.MaxPages, cfg.PageSize); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Realtime{
		cfg:      cfg,
		source:   source,
		listener: listener,
		logger:   logger,
		metrics:  metrics,
		clock:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Running reports whether Play was called without a later Pause.
func (r *Realtime) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != nil
}

// Play starts a fresh session: it emits a reset, tries one pool fetch to set
// the baseline and schedules the first tick. No-op while running.
func (r *Realtime) Play(ctx context.Context) {
	r.mu.Lock()
	if r.session != nil {
		r.mu.Unlock()
		return
	}
	s := &session{
		pools: analyze.NewPoolAnalyzer(r.clock),
		txs: analyze.NewTxAnalyzer(analyze.TxConfig{
			MaxAge:                  r.cfg.MaxTxAge,
			MaxCacheSize:            r.cfg.MaxTxCache,
			IgnoreOld:               r.cfg.IgnoreOld,
			IgnoreFirstRunSuccesses: r.cfg.IgnoreFirstRunSuccesses,
		}, r.clock, r.logger),
		ctx: ctx,
	}
	r.session = s
	r.mu.Unlock()

	r.logger.Info("realtime started",
		zap.Duration("tick_interval", r.cfg.TickInterval),
		zap.Int("max_pages", r.cfg.MaxPages),
		zap.Bool("suppress_errors", r.cfg.SuppressErrors),
	)
	r.deliver(s, []model.DomainEvent{model.NewResetEvent(r.clock())})

	r.tickMu.Lock()
	if err := r.syncPools(ctx, s); err != nil {
		r.logger.Warn("initial pool fetch failed", zap.Error(err))
	}
	r.tickMu.Unlock()

	r.scheduleNext(s)
}

// Pause cancels the pending tick. Results of calls still in flight are
// discarded. Idempotent and safe from inside the listener.
func (r *Realtime) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return
	}
	r.session = nil
	r.sched.Cancel()
	r.logger.Info("realtime paused")
}

// Run plays until ctx is done.
func (r *Realtime) Run(ctx context.Context) error {
	r.Play(ctx)
	<-ctx.Done()
	r.Pause()
	return ctx.Err()
}

// Tick runs one tick of the current session now.
func (r *Realtime) Tick(ctx context.Context) error {
	s := r.current()
	if s == nil {
		return ErrNotRunning
	}
	return r.tick(ctx, s)
}

func (r *Realtime) current() *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

func (r *Realtime) isCurrent(s *session) bool {
	return r.current() == s
}

func (r *Realtime) scheduleNext(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != s {
		return
	}
	r.sched.Schedule(r.cfg.TickInterval, func() { r.runScheduled(s) })
}

func (r *Realtime) runScheduled(s *session) {
	if !r.isCurrent(s) {
		return
	}
	if s.ctx.Err() != nil {
		r.Pause()
		return
	}
	if err := r.tick(s.ctx, s); err != nil {
		r.logger.Error("tick failed", zap.Error(err))
	}
	r.scheduleNext(s)
}

func (r *Realtime) tick(ctx context.Context, s *session) error {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()

	start := time.Now()
	var err error
	if r.cfg.SuppressErrors {
		err = withRetry(ctx, r.cfg.FetchAttempts, r.cfg.RetryDelay, func(attempt int, err error) {
			r.metrics.RecordRetry()
			r.logger.Warn("tick attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		}, func(ctx context.Context) error {
			return r.tickOnce(ctx, s)
		})
	} else {
		err = r.tickOnce(ctx, s)
	}
	r.metrics.RecordTick(time.Since(start), err)

	if err != nil && r.cfg.SuppressErrors {
		r.logger.Warn("tick skipped", zap.Int("attempts", r.cfg.FetchAttempts), zap.Error(err))
		return nil
	}
	return err
}

// tickOnce fetches pools and actions concurrently; each half delivers its
// own events as soon as it completes.
func (r *Realtime) tickOnce(ctx context.Context, s *session) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.syncPools(gctx, s)
	})
	g.Go(func() error {
		return r.syncActions(gctx, s)
	})
	return g.Wait()
}

func (r *Realtime) syncPools(ctx context.Context, s *session) error {
	pools, err := r.source.PoolState(ctx)
	if err != nil {
		return fmt.Errorf("fetch pools: %w", err)
	}
	if !r.isCurrent(s) {
		return nil
	}

	wasPrimed := s.pools.Primed()
	changes := s.pools.ProcessPools(pools)

	events := make([]model.DomainEvent, 0, len(changes)+1)
	if !wasPrimed {
		events = append(events, model.NewPoolSnapshotEvent(s.pools.Snapshot(), r.clock()))
	}
	for _, change := range changes {
		events = append(events, model.NewPoolChangeEvent(change))
	}
	r.deliver(s, events)
	return nil
}

func (r *Realtime) syncActions(ctx context.Context, s *session) error {
	pages, err := PlanPages(r.cfg.MaxPages, r.cfg.PageSize)
	if err != nil {
		return err
	}

	for _, page := range pages {
		batch, err := r.source.Transactions(ctx, page.Offset, page.Limit)
		if err != nil {
			return fmt.Errorf("fetch actions offset %d: %w", page.Offset, err)
		}
		if !r.isCurrent(s) {
			return nil
		}

		txEvents, more := s.txs.ProcessTransactions(batch.Txs)
		r.metrics.SetTxCacheSize(s.txs.Len())

		now := r.clock()
		events := make([]model.DomainEvent, 0, len(txEvents))
		for _, event := range txEvents {
			events = append(events, model.NewTxLifecycleEvent(event, now))
		}
		r.deliver(s, events)

		if !more || lastPage(page, len(batch.Txs), batch.Total) {
			break
		}
	}
	return nil
}

// deliver hands events to the listener in order while s is still the current
// session.
func (r *Realtime) deliver(s *session, events []model.DomainEvent) {
	if len(events) == 0 {
		return
	}
	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()
	for _, event := range events {
		if !r.isCurrent(s) {
			return
		}
		r.listener.ReceiveEvent(event)
		r.metrics.RecordEvent(string(event.Kind))
	}
}
