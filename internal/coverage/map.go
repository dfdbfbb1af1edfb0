// Package coverage models the fixed-size edge-coverage bitmap shared with
// the instrumented target.
package coverage

import "hash/fnv"

// Map is a fixed-size hit-count map, one byte per instrumented edge. A Map
// is owned by exactly one executor during a run; scheduler-owned copies are
// taken with Snapshot.
type Map struct {
	bits []byte
}

// New returns a zeroed map of the given size.
func New(size int) *Map {
	return &Map{bits: make([]byte, size)}
}

// FromBytes wraps raw bitmap bytes read back from the target.
func FromBytes(bits []byte) *Map {
	return &Map{bits: bits}
}

// Size returns the edge capacity.
func (m *Map) Size() int { return len(m.bits) }

// Bytes exposes the raw buffer for the harness to fill. Callers must not
// retain it past the execution.
func (m *Map) Bytes() []byte { return m.bits }

// Reset zeroes the map for the next execution.
func (m *Map) Reset() {
	for i := range m.bits {
		m.bits[i] = 0
	}
}

// Snapshot returns an independent copy.
func (m *Map) Snapshot() *Map {
	bits := make([]byte, len(m.bits))
	copy(bits, m.bits)
	return &Map{bits: bits}
}

// bucket collapses a raw hit count into its AFL-style power-of-two bucket,
// so loop-count jitter does not register as novelty.
func bucket(count byte) byte {
	switch {
	case count == 0:
		return 0
	case count == 1:
		return 1
	case count == 2:
		return 2
	case count == 3:
		return 4
	case count <= 7:
		return 8
	case count <= 15:
		return 16
	case count <= 31:
		return 32
	case count <= 127:
		return 64
	default:
		return 128
	}
}

// EdgeCount is the number of edges with a non-zero hit count.
func (m *Map) EdgeCount() int {
	count := 0
	for _, b := range m.bits {
		if b != 0 {
			count++
		}
	}
	return count
}

// CountNovel returns how many edges in m carry a bucketed hit not present
// in global. global may be smaller-or-equal sized; excess edges count as
// novel.
func (m *Map) CountNovel(global *Map) int {
	novel := 0
	for i, b := range m.bits {
		if b == 0 {
			continue
		}
		if i >= len(global.bits) || global.bits[i]&bucket(b) == 0 {
			novel++
		}
	}
	return novel
}

// Union ors m's bucketed hits into global, returning the number of edges
// that were new to global.
func (m *Map) Union(global *Map) int {
	novel := 0
	for i, b := range m.bits {
		if b == 0 || i >= len(global.bits) {
			continue
		}
		bkt := bucket(b)
		if global.bits[i]&bkt == 0 {
			if global.bits[i] == 0 {
				novel++
			}
			global.bits[i] |= bkt
		}
	}
	return novel
}

// Dominates reports whether every edge hit in other is also hit in m.
func (m *Map) Dominates(other *Map) bool {
	for i, b := range other.bits {
		if b != 0 && (i >= len(m.bits) || m.bits[i] == 0) {
			return false
		}
	}
	return true
}

// Hash is a stable FNV-64 digest of the bucketed map, used for crash dedup
// signatures.
func (m *Map) Hash() uint64 {
	h := fnv.New64a()
	buf := make([]byte, len(m.bits))
	for i, b := range m.bits {
		buf[i] = bucket(b)
	}
	h.Write(buf)
	return h.Sum64()
}
