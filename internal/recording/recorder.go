package recording

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"midgardFeed/internal/midgard"
)

// RawSource serves raw wire records.
type RawSource interface {
	RawPools(ctx context.Context) ([]json.RawMessage, error)
	RawActions(ctx context.Context, offset, limit int) ([]json.RawMessage, int64, error)
}

// RecorderConfig controls a recording session.
type RecorderConfig struct {
	Period   time.Duration
	PageSize int
}

// Recorder polls a source and keeps the snapshot differences as envelopes.
type Recorder struct {
	cfg     RecorderConfig
	source  RawSource
	logger  *zap.Logger
	clock   func() time.Time
	pools   *ListDiffer
	actions *ListDiffer

	mu    sync.Mutex
	start time.Time
	file  File
}

func NewRecorder(cfg RecorderConfig, source RawSource, parser midgard.Parser, logger *zap.Logger) (*Recorder, error) {
	if source == nil {
		return nil, fmt.Errorf("raw source is nil")
	}
	if parser == nil {
		return nil, fmt.Errorf("parser is nil")
	}
	if cfg.Period <= 0 {
		cfg.Period = time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = midgard.MaxActionsPerCall
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		cfg:     cfg,
		source:  source,
		logger:  logger,
		clock:   func() time.Time { return time.Now().UTC() },
		pools:   NewListDiffer(PoolKey, logger),
		actions: NewListDiffer(ActionKey(parser), logger),
		file:    File{Version: string(parser.Schema())},
	}, nil
}

// Poll fetches pools and the newest action page once and appends the
// non-empty differences.
func (r *Recorder) Poll(ctx context.Context) error {
	var (
		pools   []json.RawMessage
		actions []json.RawMessage
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pools, err = r.source.RawPools(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		actions, _, err = r.source.RawActions(gctx, 0, r.cfg.PageSize)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("poll midgard: %w", err)
	}

	now := r.clock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.start.IsZero() {
		r.start = now
		r.file.StartDate = now.Format(time.RFC3339Nano)
	}
	offset := now.Sub(r.start).Seconds()
	timestamp := float64(now.UnixNano()) / 1e9

	if delta := r.pools.Feed(pools); !delta.Empty() {
		r.file.Events = append(r.file.Events, Envelope{Timestamp: timestamp, SecFromStart: offset, Type: PoolEnvelope, Event: delta})
	}
	if delta := r.actions.Feed(actions); !delta.Empty() {
		r.file.Events = append(r.file.Events, Envelope{Timestamp: timestamp, SecFromStart: offset, Type: TxEnvelope, Event: delta})
	}
	return nil
}

// Run polls every period until ctx is done. Failed polls are logged and
// skipped.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Period)
	defer ticker.Stop()

	for {
		if err := r.Poll(ctx); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			r.logger.Warn("poll failed", zap.Error(err))
		} else {
			r.logger.Debug("poll complete", zap.Int("envelopes", r.Len()))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Len is the number of envelopes recorded so far.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.file.Events)
}

// File returns a copy of the recording.
func (r *Recorder) File() *File {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.file
	out.Events = append([]Envelope(nil), r.file.Events...)
	return &out
}

// Save writes the recording to path atomically.
func (r *Recorder) Save(path string) error {
	return Save(path, r.File())
}
