package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"midgardFeed/internal/model"
	"midgardFeed/internal/observability"
)

const schema = `
CREATE TABLE IF NOT EXISTS domain_events (
	session_id uuid        NOT NULL,
	seq        bigint      NOT NULL,
	kind       text        NOT NULL,
	date       timestamptz NOT NULL,
	payload    jsonb       NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (session_id, seq)
);
CREATE INDEX IF NOT EXISTS domain_events_kind_date_idx ON domain_events (kind, date);
`

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("journal closed")

// JournalConfig controls buffering of the Postgres journal.
type JournalConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	WriteTimeout  time.Duration
}

func DefaultJournalConfig() JournalConfig {
	return JournalConfig{
		BufferSize:    1024,
		BatchSize:     100,
		FlushInterval: time.Second,
		WriteTimeout:  10 * time.Second,
	}
}

type row struct {
	seq     int64
	kind    model.EventKind
	date    time.Time
	payload []byte
}

// Journal persists domain events into Postgres. Every event received by one
// journal shares a session id and gets a monotonically increasing seq.
type Journal struct {
	pool    *pgxpool.Pool
	cfg     JournalConfig
	session uuid.UUID
	logger  *zap.Logger
	metrics *observability.Metrics

	seq atomic.Int64

	mu     sync.RWMutex
	closed bool
	queue  chan row
	done   chan struct{}
}

func NewJournal(ctx context.Context, dsn string, cfg JournalConfig, logger *zap.Logger, metrics *observability.Metrics) (*Journal, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	defaults := DefaultJournalConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaults.BufferSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	j := &Journal{
		pool:    pool,
		cfg:     cfg,
		session: uuid.New(),
		logger:  logger,
		metrics: metrics,
		queue:   make(chan row, cfg.BufferSize),
		done:    make(chan struct{}),
	}
	go j.run()
	return j, nil
}

// Session is the id stamped on every row written by this journal.
func (j *Journal) Session() uuid.UUID {
	return j.session
}

// EnsureSchema creates the events table when it does not exist.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create domain_events: %w", err)
	}
	return nil
}

// ReceiveEvent queues event for the background writer. A full buffer drops
// the event.
func (j *Journal) ReceiveEvent(event model.DomainEvent) {
	r, err := j.toRow(event)
	if err != nil {
		j.fail("encode event", err)
		return
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.fail("queue event", ErrClosed)
		return
	}
	select {
	case j.queue <- r:
	default:
		j.fail("queue event", fmt.Errorf("buffer full (%d)", j.cfg.BufferSize))
	}
}

// PutEventBatch writes events synchronously, bypassing the buffer.
func (j *Journal) PutEventBatch(events []model.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]row, 0, len(events))
	for _, event := range events {
		r, err := j.toRow(event)
		if err != nil {
			return err
		}
		rows = append(rows, r)
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.cfg.WriteTimeout)
	defer cancel()
	return j.insert(ctx, rows)
}

// Events reads back the events of one session in seq order.
func (j *Journal) Events(ctx context.Context, session uuid.UUID) ([]model.DomainEvent, error) {
	rows, err := j.pool.Query(ctx, `
		SELECT payload FROM domain_events
		WHERE session_id = $1
		ORDER BY seq
	`, session)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DomainEvent
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var event model.DomainEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("decode event payload: %w", err)
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

// Close stops accepting events, flushes the buffer and closes the pool.
func (j *Journal) Close() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()

	<-j.done
	j.pool.Close()
}

func (j *Journal) toRow(event model.DomainEvent) (row, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return row{}, fmt.Errorf("marshal event: %w", err)
	}
	return row{
		seq:     j.seq.Add(1),
		kind:    event.Kind,
		date:    event.Date,
		payload: payload,
	}, nil
}

func (j *Journal) run() {
	defer close(j.done)

	ticker := time.NewTicker(j.cfg.FlushInterval)
	defer ticker.Stop()

	pending := make([]row, 0, j.cfg.BatchSize)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), j.cfg.WriteTimeout)
		err := j.insert(ctx, pending)
		cancel()
		if err != nil {
			j.fail("write batch", err, zap.Int("rows", len(pending)))
		}
		pending = pending[:0]
	}

	for {
		select {
		case r, ok := <-j.queue:
			if !ok {
				flush()
				return
			}
			pending = append(pending, r)
			if len(pending) >= j.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (j *Journal) insert(ctx context.Context, rows []row) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO domain_events (session_id, seq, kind, date, payload)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (session_id, seq) DO NOTHING
		`,
			j.session,
			r.seq,
			string(r.kind),
			r.date,
			string(r.payload),
		)
	}

	br := j.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range rows {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (j *Journal) fail(msg string, err error, fields ...zap.Field) {
	j.metrics.RecordJournalFailure("postgres")
	fields = append(fields, zap.String("session", j.session.String()), zap.Error(err))
	j.logger.Warn(msg, fields...)
}
