package admission

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"mercator-hq/gatehouse/pkg/limits/ratelimit"
	"mercator-hq/gatehouse/pkg/limits/storage"
)

// Block reasons.
const (
	ReasonBlocked   = "blocked"
	ReasonBurst     = "burst"
	ReasonSustained = "sustained"
)

// Check results reported to a Recorder.
const (
	ResultAllowed = "allowed"
	ResultBlocked = "blocked"
	ResultFault   = "fault"
)

// Default thresholds.
const (
	DefaultMaxRequestsPerSecond = 10
	DefaultMaxRequestsPerMinute = 100
	DefaultTimeWindow           = 5 * time.Minute
	DefaultBlockDuration        = 30 * time.Minute
	DefaultSweepSchedule        = "@every 5m"
)

const persistTimeout = 2 * time.Second

// Config holds admission thresholds.
type Config struct {
	MaxRequestsPerSecond int
	MaxRequestsPerMinute int

	// TimeWindow is how long request timestamps are retained.
	TimeWindow time.Duration

	// BlockDuration is how long a flagged IP stays blocked.
	BlockDuration time.Duration

	// SweepSchedule is the cron schedule of Sweep.
	SweepSchedule string
}

func (c *Config) applyDefaults() {
	if c.MaxRequestsPerSecond <= 0 {
		c.MaxRequestsPerSecond = DefaultMaxRequestsPerSecond
	}
	if c.MaxRequestsPerMinute <= 0 {
		c.MaxRequestsPerMinute = DefaultMaxRequestsPerMinute
	}
	if c.TimeWindow <= 0 {
		c.TimeWindow = DefaultTimeWindow
	}
	if c.BlockDuration <= 0 {
		c.BlockDuration = DefaultBlockDuration
	}
	if c.SweepSchedule == "" {
		c.SweepSchedule = DefaultSweepSchedule
	}
}

// Decision is the outcome of a Check.
type Decision struct {
	Allowed bool

	// Reason is set when the request is refused.
	Reason string

	// BlockedUntil is when the block on the IP expires.
	BlockedUntil time.Time
}

// RetryAfter returns how long the client should wait, measured from now.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || !d.BlockedUntil.After(now) {
		return 0
	}
	return d.BlockedUntil.Sub(now)
}

// Recorder receives admission measurements.
type Recorder interface {
	RecordAdmission(result, reason string)
	SetTrackedClients(n int)
	SetBlockedClients(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordAdmission(string, string) {}
func (nopRecorder) SetTrackedClients(int)          {}
func (nopRecorder) SetBlockedClients(int)          {}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) { g.logger = logger }
}

// WithBackend persists blocks to backend.
func WithBackend(backend storage.Backend) Option {
	return func(g *Guard) { g.backend = backend }
}

// WithRecorder reports measurements to r.
func WithRecorder(r Recorder) Option {
	return func(g *Guard) { g.recorder = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// Guard is the per-IP admission controller. Statistics and blocks live in
// per-key concurrent maps; only the per-IP log takes a lock.
type Guard struct {
	cfg      Config
	logger   *slog.Logger
	backend  storage.Backend
	recorder Recorder
	now      func() time.Time

	stats  sync.Map // ip -> *ratelimit.SlidingWindow
	blocks sync.Map // ip -> *storage.Block

	scheduler *Scheduler
}

// NewGuard creates a guard. Zero thresholds take their defaults.
func NewGuard(cfg Config, opts ...Option) *Guard {
	cfg.applyDefaults()

	g := &Guard{
		cfg:      cfg,
		logger:   slog.Default().With("component", "admission"),
		recorder: nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.scheduler = NewScheduler(g, g.logger)

	return g
}

// Config returns the effective configuration.
func (g *Guard) Config() Config {
	return g.cfg
}

// Check records a request from ip and decides whether it may proceed.
func (g *Guard) Check(ip string) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("Admission check failed, allowing request",
				"ip", ip,
				"panic", r,
			)
			g.recorder.RecordAdmission(ResultFault, "")
			d = Decision{Allowed: true}
		}
	}()

	now := g.now()

	if v, ok := g.blocks.Load(ip); ok {
		b := v.(*storage.Block)
		if b.Active(now) {
			g.recorder.RecordAdmission(ResultBlocked, ReasonBlocked)
			return Decision{Reason: ReasonBlocked, BlockedUntil: b.BlockedUntil}
		}
		if g.blocks.CompareAndDelete(ip, b) {
			g.forget(ip)
			g.recorder.SetBlockedClients(g.countBlocks())
		}
	}

	counts := g.record(ip, now)

	reason := ""
	switch {
	case counts[0] > g.cfg.MaxRequestsPerSecond:
		reason = ReasonBurst
	case counts[1] > g.cfg.MaxRequestsPerMinute:
		reason = ReasonSustained
	}
	if reason == "" {
		g.recorder.RecordAdmission(ResultAllowed, "")
		return Decision{Allowed: true}
	}

	b := g.block(ip, now, reason, counts)
	sw.Reset()
	g.recorder.RecordAdmission(ResultBlocked, reason)
	return Decision{Reason: reason, BlockedUntil: b.BlockedUntil}
}

// record adds a request for ip at now. A window retired by a concurrent
// Sweep is replaced so the request is never counted in a dropped window.
func (g *Guard) record(ip string, now time.Time) []int {
	for {
		sw := g.window(ip)
		if counts, ok := sw.TryRecord(now, time.Second, time.Minute); ok {
			return counts
		}
		g.stats.CompareAndDelete(ip, sw)
	}
}

func (g *Guard) window(ip string) *ratelimit.SlidingWindow {
	if v, ok := g.stats.Load(ip); ok {
		return v.(*ratelimit.SlidingWindow)
	}
	v, loaded := g.stats.LoadOrStore(ip, ratelimit.NewSlidingWindow(g.cfg.TimeWindow))
	if !loaded {
		g.recorder.SetTrackedClients(g.countStats())
	}
	return v.(*ratelimit.SlidingWindow)
}

// block creates or overwrites the block entry for ip.
func (g *Guard) block(ip string, now time.Time, reason string, counts []int) *storage.Block {
	b := &storage.Block{
		IP:           ip,
		BlockedUntil: now.Add(g.cfg.BlockDuration),
		Reason:       reason,
		CreatedAt:    now,
	}
	g.blocks.Store(ip, b)
	g.recorder.SetBlockedClients(g.countBlocks())

	g.logger.Warn("Client blocked",
		"ip", ip,
		"reason", reason,
		"requests_last_second", counts[0],
		"requests_last_minute", counts[1],
		"blocked_until", b.BlockedUntil.Format(time.RFC3339),
	)

	if g.backend != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := g.backend.Save(ctx, b); err != nil {
			g.logger.Error("Failed to persist block", "ip", ip, "error", err)
		}
	}

	return b
}

func (g *Guard) forget(ip string) {
	if g.backend == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := g.backend.Delete(ctx, ip); err != nil {
		g.logger.Error("Failed to delete persisted block", "ip", ip, "error", err)
	}
}

// Unblock lifts the block on ip and clears its statistics. It reports
// whether a block was present.
func (g *Guard) Unblock(ip string) bool {
	_, ok := g.blocks.LoadAndDelete(ip)
	if v, found := g.stats.Load(ip); found {
		v.(*ratelimit.SlidingWindow).Reset()
	}
	if ok {
		g.forget(ip)
		g.recorder.SetBlockedClients(g.countBlocks())
		g.logger.Info("Client unblocked", "ip", ip)
	}
	return ok
}

// Blocked returns the active blocks ordered by IP.
func (g *Guard) Blocked() []*storage.Block {
	now := g.now()
	var out []*storage.Block
	g.blocks.Range(func(_, v any) bool {
		b := v.(*storage.Block)
		if b.Active(now) {
			c := *b
			out = append(out, &c)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })
	return out
}

// TrackedClients returns the number of IPs with retained statistics.
func (g *Guard) TrackedClients() int {
	return g.countStats()
}

// Sweep drops statistics of IPs idle for longer than the time window and
// expired blocks, including persisted ones.
func (g *Guard) Sweep(ctx context.Context) {
	now := g.now()

	stats := 0
	g.stats.Range(func(k, v any) bool {
		sw := v.(*ratelimit.SlidingWindow)
		if sw.Retire(now) && g.stats.CompareAndDelete(k, sw) {
			stats++
		}
		return true
	})

	blocks := 0
	g.blocks.Range(func(k, v any) bool {
		if !v.(*storage.Block).Active(now) && g.blocks.CompareAndDelete(k, v) {
			blocks++
		}
		return true
	})

	persisted := 0
	if g.backend != nil {
		n, err := g.backend.Cleanup(ctx, now)
		if err != nil {
			g.logger.Error("Failed to clean up persisted blocks", "error", err)
		}
		persisted = n
	}

	g.recorder.SetTrackedClients(g.countStats())
	g.recorder.SetBlockedClients(g.countBlocks())

	g.logger.Debug("Admission sweep completed",
		"stats_removed", stats,
		"blocks_removed", blocks,
		"persisted_removed", persisted,
	)
}

// Start restores persisted blocks and schedules Sweep. The schedule stops
// when ctx is cancelled or Stop is called.
func (g *Guard) Start(ctx context.Context) error {
	if g.backend != nil {
		blocks, err := g.backend.ListActive(ctx, g.now())
		if err != nil {
			return err
		}
		for _, b := range blocks {
			g.blocks.Store(b.IP, b)
		}
		g.recorder.SetBlockedClients(g.countBlocks())
		if len(blocks) > 0 {
			g.logger.Info("Restored persisted blocks", "count", len(blocks))
		}
	}

	return g.scheduler.Start(ctx, g.cfg.SweepSchedule)
}

// Stop halts the sweep schedule.
func (g *Guard) Stop() {
	g.scheduler.Stop()
}

func (g *Guard) countStats() int {
	n := 0
	g.stats.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (g *Guard) countBlocks() int {
	n := 0
	g.blocks.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
