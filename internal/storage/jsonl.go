package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"midgardFeed/internal/model"
	"midgardFeed/internal/observability"
)

// JSONLJournal appends domain events to a JSONL file, one event per line.
type JSONLJournal struct {
	path    string
	logger  *zap.Logger
	metrics *observability.Metrics

	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

func NewJSONLJournal(path string, logger *zap.Logger, metrics *observability.Metrics) (*JSONLJournal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal file: %w", err)
	}

	return &JSONLJournal{
		path:    path,
		logger:  logger,
		metrics: metrics,
		file:    file,
		writer:  bufio.NewWriter(file),
	}, nil
}

// ReceiveEvent writes one event and flushes it. Failures are logged.
func (j *JSONLJournal) ReceiveEvent(event model.DomainEvent) {
	if err := j.PutEventBatch([]model.DomainEvent{event}); err != nil {
		j.metrics.RecordJournalFailure("jsonl")
		j.logger.Warn("journal write failed",
			zap.String("path", j.path),
			zap.String("kind", string(event.Kind)),
			zap.Error(err))
	}
}

// PutEventBatch appends a batch of events as JSON lines.
func (j *JSONLJournal) PutEventBatch(events []model.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return os.ErrClosed
	}

	for _, event := range events {
		line, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if _, err := j.writer.Write(line); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
		if err := j.writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := j.writer.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}
	return nil
}

// Close flushes pending output and closes the file. It is safe to call twice.
func (j *JSONLJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}
	flushErr := j.writer.Flush()
	closeErr := j.file.Close()
	j.file = nil
	if flushErr != nil {
		return fmt.Errorf("flush journal: %w", flushErr)
	}
	return closeErr
}
