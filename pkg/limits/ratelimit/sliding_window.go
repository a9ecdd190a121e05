package ratelimit

import (
	"sort"
	"sync"
	"time"
)

// SlidingWindow is an ordered log of event timestamps bounded to a rolling
// window.
type SlidingWindow struct {
	window time.Duration

	mu        sync.Mutex
	stamps    []time.Time // ascending
	firstSeen time.Time
	lastSeen  time.Time
	retired   bool
}

// NewSlidingWindow creates a log that retains events for window.
func NewSlidingWindow(window time.Duration) *SlidingWindow {
	return &SlidingWindow{window: window}
}

// Record appends an event at now, prunes events older than the window and
// returns, for each span, the number of retained events no older than span.
func (sw *SlidingWindow) Record(now time.Time, spans ...time.Duration) []int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.recordLocked(now, spans)
}

// TryRecord is Record for a window that may have been retired. It records
// nothing and returns false once Retire succeeded.
func (sw *SlidingWindow) TryRecord(now time.Time, spans ...time.Duration) ([]int, bool) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.retired {
		return nil, false
	}
	return sw.recordLocked(now, spans), true
}

// Retire marks the window as no longer accepting events if it is idle at
// now. Callers that own a registry drop a retired window and start a new one.
func (sw *SlidingWindow) Retire(now time.Time) bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.retired {
		return true
	}
	if now.Sub(sw.lastSeen) <= sw.window {
		return false
	}
	sw.retired = true
	return true
}

// recordLocked appends an event. Caller must hold the lock.
func (sw *SlidingWindow) recordLocked(now time.Time, spans []time.Duration) []int {
	if sw.firstSeen.IsZero() {
		sw.firstSeen = now
	}
	if now.After(sw.lastSeen) {
		sw.lastSeen = now
	}

	// Clock steps backwards are recorded at the newest timestamp to keep the
	// log sorted.
	stamp := now
	if n := len(sw.stamps); n > 0 && stamp.Before(sw.stamps[n-1]) {
		stamp = sw.stamps[n-1]
	}
	sw.stamps = append(sw.stamps, stamp)
	sw.pruneLocked(now)

	counts := make([]int, len(spans))
	for i, span := range spans {
		counts[i] = sw.countSinceLocked(now.Add(-span))
	}
	return counts
}

// CountSince returns the number of retained events at or after cutoff.
func (sw *SlidingWindow) CountSince(cutoff time.Time) int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.countSinceLocked(cutoff)
}

// Prune drops events older than the window relative to now and returns the
// number still retained.
func (sw *SlidingWindow) Prune(now time.Time) int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.pruneLocked(now)
	return len(sw.stamps)
}

// Len returns the number of retained events.
func (sw *SlidingWindow) Len() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return len(sw.stamps)
}

// FirstSeen returns the time of the first recorded event.
func (sw *SlidingWindow) FirstSeen() time.Time {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.firstSeen
}

// LastSeen returns the time of the most recent recorded event.
func (sw *SlidingWindow) LastSeen() time.Time {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.lastSeen
}

// Idle reports whether no event was recorded within the window before now.
func (sw *SlidingWindow) Idle(now time.Time) bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return now.Sub(sw.lastSeen) > sw.window
}

// Reset clears the log.
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.stamps = nil
	sw.firstSeen = time.Time{}
	sw.lastSeen = time.Time{}
}

// pruneLocked removes events older than the window.
// Caller must hold the lock.
func (sw *SlidingWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-sw.window)
	i := sort.Search(len(sw.stamps), func(i int) bool {
		return !sw.stamps[i].Before(cutoff)
	})
	if i == 0 {
		return
	}
	if i == len(sw.stamps) {
		sw.stamps = sw.stamps[:0]
		return
	}
	sw.stamps = append(sw.stamps[:0], sw.stamps[i:]...)
}

// countSinceLocked counts events at or after cutoff.
// Caller must hold the lock.
func (sw *SlidingWindow) countSinceLocked(cutoff time.Time) int {
	i := sort.Search(len(sw.stamps), func(i int) bool {
		return !sw.stamps[i].Before(cutoff)
	})
	return len(sw.stamps) - i
}
