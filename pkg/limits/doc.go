// Package limits groups the gateway's request limiting packages.
//
//   - ratelimit: sliding-window request counters per client IP.
//   - storage: persistence for temporary IP blocks, in memory or SQLite.
//   - admission: the per-IP guard that counts requests, applies the
//     per-second and per-minute thresholds and holds blocks.
//
// The guard is consulted before routing; a blocked client receives 429
// with a Retry-After header until its block expires.
package limits
