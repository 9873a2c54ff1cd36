// Package powschedule holds the time-indexed proof-of-work difficulty
// table and the background refresher that keeps it current via DNS TXT
// lookups (spec §4.B).
package powschedule

import (
	"sort"
	"sync/atomic"
	"time"
)

// Entry is one difficulty activation point.
type Entry struct {
	ActivationMS uint64
	Difficulty   int32
}

// Schedule is an immutable, ordered-by-ActivationMS difficulty table.
// ServiceNode clones/snapshots it at admission time (spec §9) so the
// refresh tick never races with a verification in flight.
type Schedule struct {
	entries []Entry
}

// New builds a Schedule from entries, sorting them by ActivationMS.
func New(entries []Entry) Schedule {
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ActivationMS < sorted[j].ActivationMS })
	return Schedule{entries: sorted}
}

// SelectDifficulty returns the difficulty of the entry with the largest
// ActivationMS ≤ tsMS; if ts precedes every entry, the earliest entry is
// used (spec §4.B).
func (s Schedule) SelectDifficulty(tsMS uint64) (int32, bool) {
	if len(s.entries) == 0 {
		return 0, false
	}
	best := s.entries[0]
	for _, e := range s.entries {
		if e.ActivationMS <= tsMS {
			best = e
		} else {
			break
		}
	}
	return best.Difficulty, true
}

// Store is a lock-free holder for the current Schedule, snapshotted by
// readers and swapped wholesale by the refresher.
type Store struct {
	v atomic.Value // holds Schedule
}

// NewStore creates a Store seeded with an initial schedule.
func NewStore(initial Schedule) *Store {
	st := &Store{}
	st.v.Store(initial)
	return st
}

// Snapshot returns the schedule currently in effect.
func (st *Store) Snapshot() Schedule {
	return st.v.Load().(Schedule)
}

// Swap installs a newly fetched schedule.
func (st *Store) Swap(s Schedule) {
	st.v.Store(s)
}

// NowMS returns the current time in milliseconds since the epoch, exposed
// so admission code and tests can share one clock source.
func NowMS() uint64 {
	return uint64(time.Now().UnixMilli())
}
