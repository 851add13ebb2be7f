// Package keyfilter keeps the per-key remap, block and pass tables consulted
// by the hook callbacks. Each table has its own lock and is replaced
// wholesale on update, so readers never see a half-built map.
package keyfilter

import (
	"sort"
	"sync"
)

// Remap maps one virtual key to another.
type Remap struct {
	From    uint32 `json:"from" mapstructure:"from"`
	To      uint32 `json:"to" mapstructure:"to"`
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
}

// Class is the outcome of Classify.
type Class int

const (
	ClassNone Class = iota
	ClassBlocked
	ClassPassed
	ClassRemapped
)

func (c Class) String() string {
	switch c {
	case ClassBlocked:
		return "blocked"
	case ClassPassed:
		return "passed"
	case ClassRemapped:
		return "remapped"
	}
	return "none"
}

type keySet map[uint32]struct{}

// Tables holds the three filter tables.
type Tables struct {
	remapMu sync.RWMutex
	remaps  map[uint32]uint32

	blockMu sync.RWMutex
	blocked keySet

	passMu sync.RWMutex
	passed keySet
}

// New returns empty tables.
func New() *Tables {
	return &Tables{
		remaps:  map[uint32]uint32{},
		blocked: keySet{},
		passed:  keySet{},
	}
}

// SetRemaps replaces the remap table. Disabled entries, zero codes and
// identity mappings are dropped. It returns the number of entries kept.
func (t *Tables) SetRemaps(list []Remap) int {
	next := make(map[uint32]uint32, len(list))
	for _, r := range list {
		if !r.Enabled || r.From == 0 || r.To == 0 || r.From == r.To {
			continue
		}
		next[r.From] = r.To
	}

	t.remapMu.Lock()
	t.remaps = next
	t.remapMu.Unlock()
	return len(next)
}

func (t *Tables) ClearRemaps() {
	t.remapMu.Lock()
	t.remaps = map[uint32]uint32{}
	t.remapMu.Unlock()
}

func (t *Tables) IsRemapped(key uint32) bool {
	t.remapMu.RLock()
	_, ok := t.remaps[key]
	t.remapMu.RUnlock()
	return ok
}

// RemappedTarget returns the mapped code, or key itself when it has no mapping.
func (t *Tables) RemappedTarget(key uint32) uint32 {
	t.remapMu.RLock()
	to, ok := t.remaps[key]
	t.remapMu.RUnlock()
	if !ok {
		return key
	}
	return to
}

// Remaps returns a copy of the current remap table.
func (t *Tables) Remaps() map[uint32]uint32 {
	t.remapMu.RLock()
	defer t.remapMu.RUnlock()
	out := make(map[uint32]uint32, len(t.remaps))
	for k, v := range t.remaps {
		out[k] = v
	}
	return out
}

func (t *Tables) SetBlocked(keys []uint32) {
	next := newKeySet(keys)
	t.blockMu.Lock()
	t.blocked = next
	t.blockMu.Unlock()
}

func (t *Tables) ClearBlocked() {
	t.blockMu.Lock()
	t.blocked = keySet{}
	t.blockMu.Unlock()
}

func (t *Tables) IsBlocked(key uint32) bool {
	t.blockMu.RLock()
	_, ok := t.blocked[key]
	t.blockMu.RUnlock()
	return ok
}

// Blocked returns the blocked keys in ascending order.
func (t *Tables) Blocked() []uint32 {
	t.blockMu.RLock()
	defer t.blockMu.RUnlock()
	return t.blocked.sorted()
}

func (t *Tables) SetPassed(keys []uint32) {
	next := newKeySet(keys)
	t.passMu.Lock()
	t.passed = next
	t.passMu.Unlock()
}

func (t *Tables) ClearPassed() {
	t.passMu.Lock()
	t.passed = keySet{}
	t.passMu.Unlock()
}

func (t *Tables) IsPassed(key uint32) bool {
	t.passMu.RLock()
	_, ok := t.passed[key]
	t.passMu.RUnlock()
	return ok
}

// Passed returns the passed keys in ascending order.
func (t *Tables) Passed() []uint32 {
	t.passMu.RLock()
	defer t.passMu.RUnlock()
	return t.passed.sorted()
}

// Classify resolves the policy for key. Blocked wins over passed, and a
// passed key is never remapped. The returned code is the key to deliver.
func (t *Tables) Classify(key uint32) (Class, uint32) {
	if t.IsBlocked(key) {
		return ClassBlocked, key
	}
	if t.IsPassed(key) {
		return ClassPassed, key
	}
	t.remapMu.RLock()
	to, ok := t.remaps[key]
	t.remapMu.RUnlock()
	if ok {
		return ClassRemapped, to
	}
	return ClassNone, key
}

func newKeySet(keys []uint32) keySet {
	s := make(keySet, len(keys))
	for _, k := range keys {
		if k != 0 {
			s[k] = struct{}{}
		}
	}
	return s
}

func (s keySet) sorted() []uint32 {
	out := make([]uint32, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
