package recording

import (
	"bytes"
	"encoding/json"
	"sort"

	"go.uber.org/zap"

	"midgardFeed/internal/midgard"
)

// KeyFunc extracts the identity of a raw record. ok=false discards it.
type KeyFunc func(raw json.RawMessage) (key string, ok bool)

// PoolKey keys pool records by asset.
func PoolKey(raw json.RawMessage) (string, bool) {
	var record struct {
		Asset string `json:"asset"`
	}
	if err := json.Unmarshal(raw, &record); err != nil || record.Asset == "" {
		return "", false
	}
	return record.Asset, true
}

// ActionKey keys action records by their real input hash.
func ActionKey(parser midgard.Parser) KeyFunc {
	return func(raw json.RawMessage) (string, bool) {
		tx, err := parser.ParseTx(raw)
		if err != nil || tx.Hash == "" {
			return "", false
		}
		return tx.Hash, true
	}
}

type entry struct {
	raw     json.RawMessage
	compact []byte
}

// ListDiffer diffs successive lists of raw records by key. The first Feed
// reports every record as added.
type ListDiffer struct {
	key    KeyFunc
	logger *zap.Logger
	old    map[string]entry
}

func NewListDiffer(key KeyFunc, logger *zap.Logger) *ListDiffer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListDiffer{key: key, logger: logger, old: make(map[string]entry)}
}

func (d *ListDiffer) Reset() {
	d.old = make(map[string]entry)
}

// Feed records items as the current list and returns the difference to the
// previous one. Each group is ordered by key.
func (d *ListDiffer) Feed(items []json.RawMessage) Delta {
	current := make(map[string]entry, len(items))
	for _, raw := range items {
		key, ok := d.key(raw)
		if !ok {
			d.logger.Warn("differ discards record without key", zap.ByteString("record", raw))
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			d.logger.Warn("differ discards invalid record", zap.Error(err))
			continue
		}
		current[key] = entry{raw: append(json.RawMessage(nil), raw...), compact: buf.Bytes()}
	}

	var delta Delta
	for _, key := range sortedEntryKeys(current) {
		item := current[key]
		prev, ok := d.old[key]
		if !ok {
			delta.Added = append(delta.Added, item.raw)
			continue
		}
		if !bytes.Equal(prev.compact, item.compact) {
			delta.Changed = append(delta.Changed, item.raw)
		}
	}
	for _, key := range sortedEntryKeys(d.old) {
		if _, ok := current[key]; !ok {
			delta.Removed = append(delta.Removed, d.old[key].raw)
		}
	}

	d.old = current
	return delta
}

func sortedEntryKeys(entries map[string]entry) []string {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
