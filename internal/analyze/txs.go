package analyze

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"midgardFeed/internal/model"
)

const (
	DefaultMaxTxAge     = 12 * time.Hour
	DefaultMaxCacheSize = 50
)

// TxConfig bounds the transaction cache.
type TxConfig struct {
	MaxAge                  time.Duration
	MaxCacheSize            int
	IgnoreOld               bool
	IgnoreFirstRunSuccesses bool
}

// DefaultTxConfig returns 12h / 50 entries with old transactions ignored.
func DefaultTxConfig() TxConfig {
	return TxConfig{
		MaxAge:       DefaultMaxTxAge,
		MaxCacheSize: DefaultMaxCacheSize,
		IgnoreOld:    true,
	}
}

// TxAnalyzer tracks action lifecycles across pages of transactions.
type TxAnalyzer struct {
	cfg      TxConfig
	clock    Clock
	logger   *zap.Logger
	cache    map[string]model.Transaction
	firstRun bool

	// Hashes evicted for age while pending. A source that keeps listing
	// them must not cycle them through the cache again.
	stale      map[string]struct{}
	staleOrder []string
}

func NewTxAnalyzer(cfg TxConfig, clock Clock, logger *zap.Logger) *TxAnalyzer {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxTxAge
	}
	if cfg.MaxCacheSize <= 0 {
		cfg.MaxCacheSize = DefaultMaxCacheSize
	}
	if clock == nil {
		clock = systemClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TxAnalyzer{
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
		cache:    make(map[string]model.Transaction),
		firstRun: true,
		stale:    make(map[string]struct{}),
	}
}

// Reset clears the cache and re-arms the first-run latch.
func (a *TxAnalyzer) Reset() {
	a.cache = make(map[string]model.Transaction)
	a.firstRun = true
	a.stale = make(map[string]struct{})
	a.staleOrder = nil
}

// Len is the number of cached transactions.
func (a *TxAnalyzer) Len() int {
	return len(a.cache)
}

// Pending returns cached pending transactions ordered by date.
func (a *TxAnalyzer) Pending() []model.Transaction {
	out := make([]model.Transaction, 0)
	for _, tx := range a.cache {
		if tx.IsPending() {
			out = append(out, tx)
		}
	}
	sortByDate(out)
	return out
}

// ProcessTransactions merges batch into the cache. The boolean reports whether
// anything new was reported, which tells a pager that older pages may still
// hold unseen actions.
func (a *TxAnalyzer) ProcessTransactions(batch []model.Transaction) ([]model.TxEvent, bool) {
	now := a.clock()
	firstRun := a.firstRun
	a.firstRun = false

	var events []model.TxEvent
	inserted := make(map[string]struct{})

	for _, tx := range batch {
		if tx.Hash == "" {
			a.logger.Warn("skip transaction without hash",
				zap.String("type", string(tx.Type)),
				zap.Int64("date_ms", tx.DateMs),
			)
			continue
		}

		cached, ok := a.cache[tx.Hash]
		if !ok {
			if _, gone := a.stale[tx.Hash]; gone {
				if tx.IsPending() {
					continue
				}
				a.forgetStale(tx.Hash)
			}
			a.cache[tx.Hash] = tx
			inserted[tx.Hash] = struct{}{}
			if a.cfg.IgnoreOld && tx.Age(now) > a.cfg.MaxAge {
				continue
			}
			if firstRun && a.cfg.IgnoreFirstRunSuccesses && tx.Status == model.StatusSuccess {
				continue
			}
			events = append(events, model.TxEvent{Type: model.TxAdd, Tx: tx})
			continue
		}

		if cached.Status != tx.Status {
			a.cache[tx.Hash] = tx
			events = append(events, model.TxEvent{Type: model.TxStatusUpdated, Tx: tx})
		}
	}

	for _, tx := range a.agedPending(now, inserted) {
		delete(a.cache, tx.Hash)
		a.markStale(tx.Hash)
		events = append(events, model.TxEvent{Type: model.TxEvict, Tx: tx})
	}

	if overflow := len(a.cache) - a.cfg.MaxCacheSize; overflow > 0 {
		all := make([]model.Transaction, 0, len(a.cache))
		for _, tx := range a.cache {
			all = append(all, tx)
		}
		sortByDate(all)
		for _, tx := range all[:overflow] {
			delete(a.cache, tx.Hash)
			events = append(events, model.TxEvent{Type: model.TxEvict, Tx: tx})
		}
	}

	mayContinue := false
	for _, event := range events {
		if event.Type == model.TxAdd || event.Type == model.TxStatusUpdated {
			mayContinue = true
			break
		}
	}

	return events, mayContinue
}

func (a *TxAnalyzer) agedPending(now time.Time, skip map[string]struct{}) []model.Transaction {
	var out []model.Transaction
	for hash, tx := range a.cache {
		if _, ok := skip[hash]; ok {
			continue
		}
		if tx.IsPending() && tx.Age(now) > a.cfg.MaxAge {
			out = append(out, tx)
		}
	}
	sortByDate(out)
	return out
}

// markStale remembers hash, keeping at most four cache sizes of tombstones.
func (a *TxAnalyzer) markStale(hash string) {
	if _, ok := a.stale[hash]; ok {
		return
	}
	a.stale[hash] = struct{}{}
	a.staleOrder = append(a.staleOrder, hash)
	for limit := 4 * a.cfg.MaxCacheSize; len(a.staleOrder) > limit; {
		delete(a.stale, a.staleOrder[0])
		a.staleOrder = a.staleOrder[1:]
	}
}

func (a *TxAnalyzer) forgetStale(hash string) {
	delete(a.stale, hash)
	for i, h := range a.staleOrder {
		if h == hash {
			a.staleOrder = append(a.staleOrder[:i], a.staleOrder[i+1:]...)
			return
		}
	}
}

func sortByDate(txs []model.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if txs[i].DateMs != txs[j].DateMs {
			return txs[i].DateMs < txs[j].DateMs
		}
		return txs[i].Hash < txs[j].Hash
	})
}
