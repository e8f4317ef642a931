// store.go: keyed entry store, the single source of truth for fetched data
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fresco

import (
	"sync"
	"time"
)

// Entry is the cached state of one key.
type Entry struct {
	// Data is the last successfully fetched (or seeded, or mutated) value.
	Data any

	// HasData reports whether Data is set; nil is a valid value.
	HasData bool

	// Err is the last fetch failure. A success clears it, a failure keeps Data.
	Err error

	// UpdatedAt is the time of the last data or error write, in nanoseconds.
	UpdatedAt int64
}

// record is the store-internal view of a key. A record exists while it holds
// a value or a pending fetch; an orphaned record only carries the pending slot.
type record struct {
	Entry
	hasValue bool

	pending  *fetchCall
	orphaned bool

	evictTimer Timer
	evictGen   uint64

	hash uint64
}

// cacheStore maps keys to records. It never schedules fetches or emits
// notifications; the engine and the fetch coordinator do that around it.
type cacheStore struct {
	mu         sync.Mutex
	records    map[string]*record
	sketch     *frequencySketch
	maxEntries int
}

func newCacheStore(maxEntries int) *cacheStore {
	size := maxEntries
	if size <= 0 {
		size = 1024
	}
	return &cacheStore{
		records:    make(map[string]*record),
		sketch:     newFrequencySketch(size),
		maxEntries: maxEntries,
	}
}

// get returns a copy of the entry for key. Reads never touch UpdatedAt.
func (s *cacheStore) get(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[key]
	if !ok || !r.hasValue {
		return Entry{}, false
	}
	s.sketch.increment(r.hash)
	return r.Entry, true
}

// view returns the entry and whether a fetch is pending, in one step.
func (s *cacheStore) view(key string) (e Entry, ok bool, pending bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, found := s.records[key]
	if !found {
		return Entry{}, false, false
	}
	if r.hasValue {
		s.sketch.increment(r.hash)
	}
	return r.Entry, r.hasValue, r.pending != nil
}

// peek is get without recording an access.
func (s *cacheStore) peek(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[key]
	if !ok || !r.hasValue {
		return Entry{}, false
	}
	return r.Entry, true
}

// recordLocked returns the record for key, creating an empty one.
func (s *cacheStore) recordLocked(key string) *record {
	r, ok := s.records[key]
	if !ok {
		r = &record{hash: keyHash(key)}
		s.records[key] = r
	}
	return r
}

// set replaces data, error and timestamp, preserving the pending slot.
func (s *cacheStore) set(key string, data any, hasData bool, err error, ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.recordLocked(key)
	r.Data = data
	r.HasData = hasData
	if !hasData {
		r.Data = nil
	}
	r.Err = err
	r.UpdatedAt = ts
	r.hasValue = true
}

// seed writes data only when key holds no value. It reports whether it wrote.
func (s *cacheStore) seed(key string, data any, ts int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.recordLocked(key)
	if r.hasValue {
		return false
	}
	r.Data = data
	r.HasData = true
	r.Err = nil
	r.UpdatedAt = ts
	r.hasValue = true
	return true
}

// update applies fn to the current data and stores the result.
// It runs under the store lock so concurrent mutations never interleave.
func (s *cacheStore) update(key string, fn Updater, ts int64) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.recordLocked(key)
	r.Data = fn(r.Data, r.HasData)
	r.HasData = true
	r.UpdatedAt = ts
	r.hasValue = true
	return r.Entry
}

// setPending claims the pending slot for call. When another call already
// holds it, that call is returned with started == false.
func (s *cacheStore) setPending(key string, call *fetchCall) (actual *fetchCall, started bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.recordLocked(key)
	if r.pending != nil {
		return r.pending, false
	}
	r.pending = call
	r.orphaned = false
	return call, true
}

// pendingCall returns the in-flight call for key, if any.
func (s *cacheStore) pendingCall(key string) *fetchCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.records[key]; ok {
		return r.pending
	}
	return nil
}

// fail stores err for key, keeping the previous data for stale-while-error.
func (s *cacheStore) fail(key string, err error, ts int64) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.recordLocked(key)
	r.Err = err
	r.UpdatedAt = ts
	r.hasValue = true
	return r.Entry
}

// releasePending releases the slot held by call. handoff runs under the
// store lock and may return a queued call that takes the slot over, so no
// other request can claim the key in between.
func (s *cacheStore) releasePending(key string, call *fetchCall, handoff func() *fetchCall) *fetchCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[key]
	if !ok || r.pending != call {
		return nil
	}
	var next *fetchCall
	if handoff != nil {
		next = handoff()
	}
	r.pending = next
	r.orphaned = false
	if next != nil {
		return next
	}
	if !r.hasValue && r.evictTimer == nil {
		delete(s.records, key)
	}
	return nil
}

// isOrphaned reports whether key's value was evicted while a fetch was in
// flight.
func (s *cacheStore) isOrphaned(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[key]
	return ok && r.orphaned
}

// delete removes the value for key. A pending fetch keeps its slot so no
// second fetch can start for the key until it ends; onPending is called
// with it under the store lock, while it still holds the slot.
func (s *cacheStore) delete(key string, onPending func(*fetchCall)) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.records[key]; ok && r.pending != nil && onPending != nil {
		onPending(r.pending)
	}
	return s.deleteLocked(key, false)
}

// deleteLocked drops the value of key. With orphan set a surviving pending
// slot is flagged as belonging to an evicted key.
func (s *cacheStore) deleteLocked(key string, orphan bool) (Entry, bool) {
	r, ok := s.records[key]
	if !ok {
		return Entry{}, false
	}
	prev, had := r.Entry, r.hasValue
	s.stopTimerLocked(r)
	if r.pending != nil {
		r.Entry = Entry{}
		r.hasValue = false
		r.orphaned = r.orphaned || orphan
		return prev, had
	}
	delete(s.records, key)
	return prev, had
}

// clear removes every value and returns the keys that held one. onPending
// is called for every pending fetch, as in delete.
func (s *cacheStore) clear(onPending func(*fetchCall)) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.records))
	for key, r := range s.records {
		if r.hasValue {
			keys = append(keys, key)
		}
		if r.pending != nil && onPending != nil {
			onPending(r.pending)
		}
		s.deleteLocked(key, false)
	}
	s.sketch.clear()
	return keys
}

// reset drops every record, pending slots included.
func (s *cacheStore) reset() []*fetchCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	var calls []*fetchCall
	for _, r := range s.records {
		s.stopTimerLocked(r)
		if r.pending != nil {
			calls = append(calls, r.pending)
		}
	}
	s.records = make(map[string]*record)
	s.sketch.clear()
	return calls
}

// scheduleEviction arms the grace timer for key unless one is running or
// the key holds nothing. fire runs with the generation it was armed for.
func (s *cacheStore) scheduleEviction(key string, d time.Duration, sched Scheduler, fire func(key string, gen uint64)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[key]
	if !ok || !r.hasValue || r.evictTimer != nil {
		return false
	}
	r.evictGen++
	gen := r.evictGen
	r.evictTimer = sched.AfterFunc(d, func() { fire(key, gen) })
	return true
}

// cancelEviction stops the grace timer for key.
func (s *cacheStore) cancelEviction(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[key]
	if !ok || r.evictTimer == nil {
		return false
	}
	s.stopTimerLocked(r)
	return true
}

func (s *cacheStore) stopTimerLocked(r *record) {
	if r.evictTimer != nil {
		r.evictTimer.Stop()
		r.evictTimer = nil
	}
	r.evictGen++
}

// expire deletes key if the timer of generation gen is still the armed one
// and the key is not observed. The timer is disarmed either way.
func (s *cacheStore) expire(key string, gen uint64, isObserved func(string) bool) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[key]
	if !ok || r.evictGen != gen || r.evictTimer == nil {
		return Entry{}, false
	}
	r.evictTimer = nil
	if isObserved(key) {
		return Entry{}, false
	}
	return s.deleteLocked(key, true)
}

// enforceBound drops the least frequently read unobserved, idle entries
// until the store fits maxEntries. Victims are returned with their entries.
func (s *cacheStore) enforceBound(isObserved func(string) bool) map[string]Entry {
	if s.maxEntries <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted map[string]Entry
	for s.lenLocked() > s.maxEntries {
		victim := ""
		minFreq := ^uint64(0)
		sampled := 0
		for key, r := range s.records {
			if !r.hasValue || r.pending != nil || isObserved(key) {
				continue
			}
			if f := s.sketch.estimate(r.hash); f < minFreq {
				minFreq = f
				victim = key
			}
			sampled++
			if sampled >= evictionSampleSize {
				break
			}
		}
		if victim == "" {
			break
		}
		if evicted == nil {
			evicted = make(map[string]Entry)
		}
		evicted[victim] = s.records[victim].Entry
		s.deleteLocked(victim, true)
	}
	return evicted
}

func (s *cacheStore) lenLocked() int {
	n := 0
	for _, r := range s.records {
		if r.hasValue {
			n++
		}
	}
	return n
}

// len returns the number of keys holding a value.
func (s *cacheStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lenLocked()
}

// keys returns every key holding a value.
func (s *cacheStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.records))
	for key, r := range s.records {
		if r.hasValue {
			keys = append(keys, key)
		}
	}
	return keys
}
