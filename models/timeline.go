package models

import (
	"errors"
	"fmt"
	"sort"
)

// ErrEmptyTimeline is returned when a timeline has no snapshots to resolve against
var ErrEmptyTimeline = errors.New("timeline has no snapshots")

// Timeline maps discrete time keys to snapshots
type Timeline struct {
	snapshots map[int]*GraphSnapshot
	keys      []int // sorted ascending
}

// NewTimeline creates a timeline from the given snapshots.
// A later snapshot with the same key replaces an earlier one.
func NewTimeline(snapshots ...*GraphSnapshot) *Timeline {
	t := &Timeline{snapshots: make(map[int]*GraphSnapshot)}
	for _, s := range snapshots {
		t.Put(s)
	}
	return t
}

// Put stores a snapshot under its key
func (t *Timeline) Put(s *GraphSnapshot) {
	if _, exists := t.snapshots[s.Key]; !exists {
		t.keys = append(t.keys, s.Key)
		sort.Ints(t.keys)
	}
	t.snapshots[s.Key] = s
}

// Keys returns the available time keys in ascending order
func (t *Timeline) Keys() []int {
	return append([]int(nil), t.keys...)
}

// Len returns the number of snapshots
func (t *Timeline) Len() int {
	return len(t.keys)
}

// Range returns the smallest and largest key
func (t *Timeline) Range() (lo, hi int, err error) {
	if len(t.keys) == 0 {
		return 0, 0, ErrEmptyTimeline
	}
	return t.keys[0], t.keys[len(t.keys)-1], nil
}

// NearestKey resolves requested to the available key with the smallest absolute
// difference. Keys are folded left to right in ascending order and a later key only
// wins when strictly closer, so ties go to the smaller key.
func (t *Timeline) NearestKey(requested int) (int, error) {
	return NearestKey(t.keys, requested)
}

// Snapshot returns the snapshot stored under key
func (t *Timeline) Snapshot(key int) (*GraphSnapshot, error) {
	s, ok := t.snapshots[key]
	if !ok {
		return nil, fmt.Errorf("no snapshot for key %d", key)
	}
	return s, nil
}

// Resolve returns the snapshot nearest to requested
func (t *Timeline) Resolve(requested int) (*GraphSnapshot, error) {
	key, err := t.NearestKey(requested)
	if err != nil {
		return nil, err
	}
	return t.Snapshot(key)
}

// NearestKey is the left-fold nearest match over keys in the order given
func NearestKey(keys []int, requested int) (int, error) {
	if len(keys) == 0 {
		return 0, ErrEmptyTimeline
	}
	best := keys[0]
	for _, k := range keys[1:] {
		if absInt(k-requested) < absInt(best-requested) {
			best = k
		}
	}
	return best, nil
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
