package recording

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	// ErrUnordered is returned when sec_from_start decreases between envelopes.
	ErrUnordered = errors.New("recording events are not ordered by sec_from_start")

	// ErrEmptyRecording is returned when there is nothing to save.
	ErrEmptyRecording = errors.New("recording has no events")
)

// DefaultVersion is assumed for files that carry no version tag.
const DefaultVersion = "v2"

// EnvelopeType tells which snapshot an envelope diffs.
type EnvelopeType string

const (
	PoolEnvelope EnvelopeType = "pool_event"
	TxEnvelope   EnvelopeType = "tx_event"
)

// Delta holds raw wire records in the schema named by File.Version.
type Delta struct {
	Added   []json.RawMessage `json:"added"`
	Changed []json.RawMessage `json:"changed"`
	Removed []json.RawMessage `json:"removed"`
}

func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Changed) == 0 && len(d.Removed) == 0
}

// Envelope is one recorded snapshot difference.
type Envelope struct {
	Timestamp    float64      `json:"timestamp"`
	SecFromStart float64      `json:"sec_from_start"`
	Type         EnvelopeType `json:"type"`
	Event        Delta        `json:"event"`
}

// File is a recorded session.
type File struct {
	Version   string     `json:"version"`
	StartDate string     `json:"start_date"`
	Events    []Envelope `json:"events"`
}

// Validate checks envelope types and that offsets never go backwards.
func (f *File) Validate() error {
	prev := 0.0
	for idx, envelope := range f.Events {
		switch envelope.Type {
		case PoolEnvelope, TxEnvelope:
		default:
			return fmt.Errorf("event %d: unknown envelope type %q", idx, envelope.Type)
		}
		if math.IsNaN(envelope.SecFromStart) || envelope.SecFromStart < 0 {
			return fmt.Errorf("event %d: invalid sec_from_start %v", idx, envelope.SecFromStart)
		}
		if idx > 0 && envelope.SecFromStart < prev {
			return fmt.Errorf("event %d (%.3f < %.3f): %w", idx, envelope.SecFromStart, prev, ErrUnordered)
		}
		prev = envelope.SecFromStart
	}
	return nil
}

// Duration is the offset of the last envelope in seconds.
func (f *File) Duration() float64 {
	if len(f.Events) == 0 {
		return 0
	}
	return f.Events[len(f.Events)-1].SecFromStart
}

// isoLayouts covers RFC 3339 and the zone-less form Python's isoformat writes.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// StartTime is the wall-clock origin of sec_from_start. Zone-less dates are
// UTC. Without a parseable start_date it is derived from the first envelope.
func (f *File) StartTime() time.Time {
	if raw := strings.TrimSpace(f.StartDate); raw != "" {
		for _, layout := range isoLayouts {
			if parsed, err := time.Parse(layout, raw); err == nil {
				return parsed.UTC()
			}
		}
	}
	if len(f.Events) > 0 && f.Events[0].Timestamp > 0 {
		first := f.Events[0]
		return secondsToTime(first.Timestamp - first.SecFromStart)
	}
	return time.Unix(0, 0).UTC()
}

func secondsToTime(seconds float64) time.Time {
	whole, frac := math.Modf(seconds)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC().Truncate(time.Millisecond)
}
