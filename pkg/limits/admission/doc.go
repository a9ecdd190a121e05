// Package admission implements per-IP admission control.
//
// A Guard keeps a sliding-window log of request timestamps for every
// client IP. A request is refused when the IP is currently blocked, or
// when recording it pushes the IP over the per-second (burst) or
// per-minute (sustained) threshold, in which case the IP is blocked for
// the configured block duration.
//
//	guard := admission.NewGuard(admission.Config{
//	    MaxRequestsPerSecond: 10,
//	    MaxRequestsPerMinute: 100,
//	    TimeWindow:           5 * time.Minute,
//	    BlockDuration:        30 * time.Minute,
//	})
//	if d := guard.Check(admission.ClientIP(r)); !d.Allowed {
//	    // respond 429
//	}
//
// Detection fails open: a panic inside Check is logged and the request is
// allowed. Block expiry is checked lazily on lookup; a scheduled sweep
// additionally drops idle statistics and expired blocks to bound memory.
package admission
