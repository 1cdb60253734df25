package model

import "time"

// PoolChangeType classifies a pool difference between two snapshots.
type PoolChangeType string

const (
	PoolAdded         PoolChangeType = "added"
	PoolRemoved       PoolChangeType = "removed"
	PoolStatusChanged PoolChangeType = "statusChanged"
	PoolDepthChanged  PoolChangeType = "depthChanged"
)

// PoolChange is one pool difference. Added carries Pool, Removed carries
// Previous, status and depth changes carry both.
type PoolChange struct {
	Type     PoolChangeType `json:"type"`
	Date     time.Time      `json:"date"`
	Pool     *PoolState     `json:"pool,omitempty"`
	Previous *PoolState     `json:"previous,omitempty"`
}

// Delta returns Pool minus Previous when both are present.
func (c PoolChange) Delta() (PoolDelta, bool) {
	if c.Pool == nil || c.Previous == nil {
		return PoolDelta{}, false
	}
	return c.Pool.Sub(*c.Previous), true
}

// Asset returns the symbol of the pool the change is about.
func (c PoolChange) Asset() string {
	if c.Pool != nil {
		return c.Pool.Asset
	}
	if c.Previous != nil {
		return c.Previous.Asset
	}
	return ""
}

// TxEventType is a transaction lifecycle transition.
type TxEventType string

const (
	TxAdd           TxEventType = "addTx"
	TxStatusUpdated TxEventType = "statusUpdated"
	TxEvict         TxEventType = "evictTx"
)

type TxEvent struct {
	Type TxEventType `json:"type"`
	Tx   Transaction `json:"tx"`
}

// EventKind tags the payload of a DomainEvent.
type EventKind string

const (
	KindReset        EventKind = "reset"
	KindPoolChange   EventKind = "pool_change"
	KindTxEvent      EventKind = "tx_event"
	KindPoolSnapshot EventKind = "pool_snapshot"
)

// DomainEvent is the only value handed to a listener. Exactly one payload
// field is set, matching Kind; reset events carry none.
type DomainEvent struct {
	Date       time.Time   `json:"date"`
	Kind       EventKind   `json:"kind"`
	PoolChange *PoolChange `json:"pool_change,omitempty"`
	TxEvent    *TxEvent    `json:"tx_event,omitempty"`
	Pools      []PoolState `json:"pools,omitempty"`
}

func NewResetEvent(at time.Time) DomainEvent {
	return DomainEvent{Date: at, Kind: KindReset}
}

func NewPoolChangeEvent(change PoolChange) DomainEvent {
	return DomainEvent{Date: change.Date, Kind: KindPoolChange, PoolChange: &change}
}

func NewTxLifecycleEvent(event TxEvent, at time.Time) DomainEvent {
	return DomainEvent{Date: at, Kind: KindTxEvent, TxEvent: &event}
}

// NewPoolSnapshotEvent announces the baseline an analyzer has just recorded.
func NewPoolSnapshotEvent(pools []PoolState, at time.Time) DomainEvent {
	return DomainEvent{Date: at, Kind: KindPoolSnapshot, Pools: pools}
}
