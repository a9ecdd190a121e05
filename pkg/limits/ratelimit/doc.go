// Package ratelimit provides the sliding-window request log used by
// admission control.
//
// # Sliding Window
//
// A SlidingWindow keeps the exact timestamps of recent events in ascending
// order and drops those older than its window on every write:
//
//	sw := ratelimit.NewSlidingWindow(5 * time.Minute)
//	counts := sw.Record(time.Now(), time.Second, time.Minute)
//	if counts[0] > 10 {
//	    // burst threshold exceeded
//	}
//
// Counting uses a binary search over the retained timestamps, so the cost
// of a check is logarithmic in the number of retained events.
//
// # Thread Safety
//
// SlidingWindow is safe for concurrent use. Each window has its own mutex,
// so independent windows never contend.
package ratelimit
