package analyze

import (
	"sort"
	"time"

	"midgardFeed/internal/model"
)

// Clock returns the current time. Playback injects a virtual clock.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

// PoolAnalyzer diffs successive pool snapshots.
type PoolAnalyzer struct {
	clock    Clock
	previous map[string]model.PoolState
	primed   bool
}

// NewPoolAnalyzer builds an analyzer with an empty baseline.
func NewPoolAnalyzer(clock Clock) *PoolAnalyzer {
	if clock == nil {
		clock = systemClock
	}
	return &PoolAnalyzer{
		clock:    clock,
		previous: make(map[string]model.PoolState),
	}
}

// Reset drops the retained snapshot. The next ProcessPools call is a baseline.
func (a *PoolAnalyzer) Reset() {
	a.previous = make(map[string]model.PoolState)
	a.primed = false
}

// Primed reports whether a baseline snapshot has been recorded.
func (a *PoolAnalyzer) Primed() bool {
	return a.primed
}

// Snapshot returns the retained pools sorted by asset.
func (a *PoolAnalyzer) Snapshot() []model.PoolState {
	out := make([]model.PoolState, 0, len(a.previous))
	for _, key := range sortedKeys(a.previous) {
		out = append(out, a.previous[key])
	}
	return out
}

// ProcessPools records pools as the new snapshot and returns what changed
// since the previous one: removed pools first, then added, then changed.
// The first call after construction or Reset returns nothing.
func (a *PoolAnalyzer) ProcessPools(pools []model.PoolState) []model.PoolChange {
	current := make(map[string]model.PoolState, len(pools))
	for _, pool := range pools {
		current[pool.Asset] = pool
	}

	if !a.primed {
		a.previous = current
		a.primed = true
		return nil
	}

	now := a.clock()
	var changes []model.PoolChange

	for _, key := range sortedKeys(a.previous) {
		if _, ok := current[key]; ok {
			continue
		}
		prev := a.previous[key]
		changes = append(changes, model.PoolChange{Type: model.PoolRemoved, Date: now, Previous: &prev})
	}

	currentKeys := sortedKeys(current)
	for _, key := range currentKeys {
		if _, ok := a.previous[key]; ok {
			continue
		}
		pool := current[key]
		changes = append(changes, model.PoolChange{Type: model.PoolAdded, Date: now, Pool: &pool})
	}

	for _, key := range currentKeys {
		prev, ok := a.previous[key]
		if !ok {
			continue
		}
		pool := current[key]
		if pool.Equal(prev) {
			continue
		}
		changeType := model.PoolDepthChanged
		if pool.Enabled != prev.Enabled {
			changeType = model.PoolStatusChanged
		}
		changes = append(changes, model.PoolChange{Type: changeType, Date: now, Pool: &pool, Previous: &prev})
	}

	a.previous = current
	return changes
}

func sortedKeys(pools map[string]model.PoolState) []string {
	keys := make([]string, 0, len(pools))
	for key := range pools {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
