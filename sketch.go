// sketch.go: access frequency sketch used to pick size-bound victims
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fresco

import (
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// frequencySketch implements a Count-Min Sketch with 4-bit counters.
// Reads through the store increment it; the size bound evicts the
// sampled entry with the lowest estimate.
type frequencySketch struct {
	// table stores 4-bit counters packed into uint64 values
	table []uint64

	tableMask uint64

	// seeds for the 4 hash functions
	seeds [4]uint64

	// sampleSize tracks operations for periodic aging
	sampleSize     int64
	resetThreshold int64
}

// newFrequencySketch creates a sketch sized for maxEntries keys.
func newFrequencySketch(maxEntries int) *frequencySketch {
	tableSize := nextPowerOf2(maxEntries / 4)
	if tableSize < 64 {
		tableSize = 64
	}
	threshold := int64(maxEntries * 10)
	if threshold < 1024 {
		threshold = 1024
	}

	return &frequencySketch{
		table:     make([]uint64, tableSize),
		tableMask: uint64(tableSize - 1), // #nosec G115 - tableSize is a bounded power of 2
		seeds: [4]uint64{
			0x9e3779b97f4a7c15,
			0xbf58476d1ce4e5b9,
			0x94d049bb133111eb,
			0xbf58476d1ce4e5b7,
		},
		resetThreshold: threshold,
	}
}

// nextPowerOf2 returns the next power of 2 greater than or equal to n.
func nextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// keyHash hashes a cache key.
func keyHash(key string) uint64 {
	return xxhash.Sum64String(key)
}

// increment records one access for the key hash.
func (s *frequencySketch) increment(h uint64) {
	if atomic.AddInt64(&s.sampleSize, 1)%s.resetThreshold == 0 {
		s.reset()
	}
	for i, seed := range s.seeds {
		s.incrementCounter((h*seed)>>32&s.tableMask, subPosition(h, i))
	}
}

// subPosition picks the 4-bit slot (0-15) inside a word for hash function i.
func subPosition(h uint64, i int) uint64 {
	return ((h >> (uint(i) * 4)) & 0xF) * 4
}

// incrementCounter atomically increments a 4-bit counter, saturating at 15.
func (s *frequencySketch) incrementCounter(tablePos, subPos uint64) {
	mask := uint64(0xF) << subPos
	for {
		old := atomic.LoadUint64(&s.table[tablePos])
		counter := (old >> subPos) & 0xF
		if counter >= 15 {
			return
		}
		next := (old & ^mask) | ((counter + 1) << subPos)
		if atomic.CompareAndSwapUint64(&s.table[tablePos], old, next) {
			return
		}
	}
}

// estimate returns the minimum of the 4 counters for the key hash.
func (s *frequencySketch) estimate(h uint64) uint64 {
	est := uint64(15)
	for i, seed := range s.seeds {
		pos := (h * seed) >> 32 & s.tableMask
		c := (atomic.LoadUint64(&s.table[pos]) >> subPosition(h, i)) & 0xF
		if c < est {
			est = c
		}
	}
	return est
}

// reset ages the sketch by halving every counter.
func (s *frequencySketch) reset() {
	for i := range s.table {
		for {
			old := atomic.LoadUint64(&s.table[i])
			var next uint64
			for j := 0; j < 16; j++ {
				shift := uint64(j * 4) // #nosec G115 - j is bounded 0-15
				next |= (((old >> shift) & 0xF) >> 1) << shift
			}
			if atomic.CompareAndSwapUint64(&s.table[i], old, next) {
				break
			}
		}
	}
}

// clear zeroes every counter.
func (s *frequencySketch) clear() {
	for i := range s.table {
		atomic.StoreUint64(&s.table[i], 0)
	}
	atomic.StoreInt64(&s.sampleSize, 0)
}
