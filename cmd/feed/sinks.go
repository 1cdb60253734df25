package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"midgardFeed/internal/config"
	"midgardFeed/internal/model"
	"midgardFeed/internal/observability"
	"midgardFeed/internal/provider"
	"midgardFeed/internal/storage"
	"midgardFeed/internal/storage/postgres"
	"midgardFeed/internal/transport/ws"
)

// sinks is the listener fan-out of one command plus the resources it owns.
type sinks struct {
	listener provider.MultiListener
	closers  []func()
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func openSinks(ctx context.Context, cfg config.Sinks, reg *prometheus.Registry, metrics *observability.Metrics, logger *zap.Logger) (*sinks, error) {
	s := &sinks{listener: provider.MultiListener{logListener(logger)}}

	if cfg.Journal != "" {
		journal, err := storage.NewJSONLJournal(cfg.Journal, logger, metrics)
		if err != nil {
			return nil, err
		}
		s.add(journal, func() {
			if err := journal.Close(); err != nil {
				logger.Warn("close journal", zap.Error(err))
			}
		})
		logger.Info("journal enabled", zap.String("path", cfg.Journal))
	}

	if cfg.PGDSN != "" {
		journal, err := postgres.NewJournal(ctx, cfg.PGDSN, postgres.DefaultJournalConfig(), logger, metrics)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := journal.EnsureSchema(ctx); err != nil {
			journal.Close()
			s.Close()
			return nil, err
		}
		s.add(journal, journal.Close)
		logger.Info("postgres journal enabled", zap.String("session", journal.Session().String()))
	}

	if cfg.Listen != "" {
		hub := ws.NewHub(ws.DefaultHubConfig(), logger, metrics)
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.HandlerFor(reg))
		mux.Handle(ws.Path, hub.Handler())

		server := &http.Server{
			Addr:              cfg.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server failed", zap.String("addr", cfg.Listen), zap.Error(err))
			}
		}()

		s.add(hub, func() {
			hub.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http server shutdown", zap.Error(err))
			}
		})
		logger.Info("serving metrics and events", zap.String("addr", cfg.Listen))
	}

	return s, nil
}

func (s *sinks) add(listener provider.Listener, closer func()) {
	s.listener = append(s.listener, listener)
	s.closers = append(s.closers, closer)
}

// Close releases sinks in reverse order of opening.
func (s *sinks) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// eventLog logs every event. It tracks pool prices from snapshots and pool
// changes so transactions can be logged with their rune volume.
type eventLog struct {
	logger *zap.Logger

	mu     sync.Mutex
	prices map[string]decimal.Decimal
}

func logListener(logger *zap.Logger) *eventLog {
	return &eventLog{logger: logger, prices: make(map[string]decimal.Decimal)}
}

func (l *eventLog) ReceiveEvent(event model.DomainEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fields := []zap.Field{zap.String("kind", string(event.Kind)), zap.Time("date", event.Date)}
	switch event.Kind {
	case model.KindPoolChange:
		change := event.PoolChange
		fields = append(fields, zap.String("type", string(change.Type)), zap.String("asset", change.Asset()))
		if delta, ok := change.Delta(); ok {
			fields = append(fields,
				zap.String("rune_depth_delta", delta.RuneDepth.String()),
				zap.String("asset_depth_delta", delta.AssetDepth.String()))
		}
		if change.Pool != nil {
			l.prices[change.Pool.Asset] = change.Pool.RunesPerAsset()
		} else {
			delete(l.prices, change.Asset())
		}
	case model.KindTxEvent:
		tx := event.TxEvent.Tx
		fields = append(fields,
			zap.String("type", string(event.TxEvent.Type)),
			zap.String("hash", tx.Hash),
			zap.String("tx_type", string(tx.Type)),
			zap.String("status", string(tx.Status)),
			zap.Time("tx_date", tx.Time()),
			zap.String("rune_volume", tx.RuneVolume(model.PriceFromTable(l.prices)).String()))
		if pool := tx.FirstPool(); pool != "" {
			fields = append(fields, zap.String("pool", pool))
		}
	case model.KindPoolSnapshot:
		l.prices = model.PriceTable(event.Pools)
		fields = append(fields, zap.Int("pools", len(event.Pools)))
	}
	l.logger.Info("event", fields...)
}
