// Package timer is the minimal cooperative scheduler the receiver
// uses for its three per-transaction timer keys (NAK, INACTIVITY,
// FINISHED_ACK_WAIT). It is a one-shot, re-entrant-safe scheduler:
// firing a callback that itself calls Schedule must not fire the
// rescheduled timer within the same Tick.
//
// The ticker-driven pump is the same shape as the teacher repo's
// backup scheduler (internal/backup/scheduler.go's time.NewTicker
// loop); the lock-with-TTL idea of "stale after N, safe to replace"
// that runner/health_lock.go uses for cross-process repair locks is
// reflected here in Schedule's "replace the prior timer for this key"
// contract.
package timer

import "time"

// Clock abstracts time.Now so tests can drive the scheduler without
// sleeping.
type Clock func() time.Time

type entry struct {
	key    string
	fireAt time.Time
	fn     func()
	gen    uint64 // incremented on every (re)schedule of this key, guards stale fires
}

// Service is a single-threaded scheduler: Schedule, Cancel, and Tick
// must all be called from the same goroutine the receiver serializes
// its event loop on (spec.md §5).
type Service struct {
	now     Clock
	entries map[string]*entry
	gen     uint64
}

// New creates a Service using the real wall clock.
func New() *Service {
	return NewWithClock(time.Now)
}

// NewWithClock creates a Service driven by an injected clock, for
// deterministic tests of NAK/inactivity/ack-wait retransmission.
func NewWithClock(clock Clock) *Service {
	return &Service{now: clock, entries: make(map[string]*entry)}
}

// Schedule registers a one-shot callback to fire at now+delay. If key
// already has a pending timer, it is cancelled and replaced.
func (s *Service) Schedule(key string, delay time.Duration, onFire func()) {
	s.gen++
	s.entries[key] = &entry{
		key:    key,
		fireAt: s.now().Add(delay),
		fn:     onFire,
		gen:    s.gen,
	}
}

// Cancel removes the timer for key, if present. Always safe and
// idempotent.
func (s *Service) Cancel(key string) {
	delete(s.entries, key)
}

// Pending reports whether key has an outstanding timer.
func (s *Service) Pending(key string) bool {
	_, ok := s.entries[key]
	return ok
}

// Tick fires all callbacks due at or before the current clock time,
// in scheduled-fire-time order. Callbacks that reschedule their own
// key mid-tick are given a new generation stamp and are not fired
// again within this same Tick call, since the due-list is computed
// once up front.
func (s *Service) Tick() {
	now := s.now()
	due := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.fireAt.After(now) {
			due = append(due, e)
		}
	}
	sortByFireTime(due)

	for _, e := range due {
		cur, ok := s.entries[e.key]
		if !ok || cur.gen != e.gen {
			// Cancelled or replaced since the due-list was computed.
			continue
		}
		delete(s.entries, e.key)
		e.fn()
	}
}

func sortByFireTime(es []*entry) {
	// Small N (at most 3 live keys per transaction, times however many
	// transactions share one Service); insertion sort keeps this
	// dependency-free and avoids importing sort for a handful of items.
	for i := 1; i < len(es); i++ {
		for j := i; j > 0 && es[j].fireAt.Before(es[j-1].fireAt); j-- {
			es[j], es[j-1] = es[j-1], es[j]
		}
	}
}
