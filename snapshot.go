// snapshot.go: consumer-facing view of one key
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fresco

import "time"

// State is the lifecycle state of a key as seen by a consumer.
type State int

const (
	// StateIdle means nothing is cached and nothing is loading.
	StateIdle State = iota
	// StateLoading means a fetch runs and no data is available yet.
	StateLoading
	// StateSettled means the entry holds a result (data, error or both).
	StateSettled
	// StateValidating means a fetch runs while cached data is served.
	StateValidating
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateSettled:
		return "settled"
	case StateValidating:
		return "validating"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time read of one key.
type Snapshot struct {
	Data    any
	HasData bool
	Err     error

	// UpdatedAt is the time of the last data or error write, zero if none.
	UpdatedAt time.Time

	// IsLoading is true while a fetch runs and no data is available.
	IsLoading bool

	// IsValidating is true while any fetch runs for the key, retries included.
	IsValidating bool

	State State
}

func newSnapshot(e Entry, ok, pending bool) Snapshot {
	snap := Snapshot{IsValidating: pending}
	if ok {
		snap.Data = e.Data
		snap.HasData = e.HasData
		snap.Err = e.Err
		snap.UpdatedAt = time.Unix(0, e.UpdatedAt)
	}
	switch {
	case pending && !snap.HasData:
		snap.State = StateLoading
		snap.IsLoading = true
	case pending:
		snap.State = StateValidating
	case ok:
		snap.State = StateSettled
	default:
		snap.State = StateIdle
	}
	return snap
}
