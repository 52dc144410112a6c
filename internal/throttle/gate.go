// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package throttle provides an in-memory sliding-window rate limiter keyed
// by strategy and caller identity.
package throttle

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	shardCount = 32

	// DefaultGCInterval is how often stale entries are collected.
	DefaultGCInterval = time.Minute
)

// Strategy is a named rate limiting policy. Each name is its own key space.
// A strategy with a non-positive window or request limit never rejects.
type Strategy struct {
	Name        string
	Window      time.Duration
	MaxRequests int
}

// Predefined strategies used by the session flows.
var (
	Login          = Strategy{Name: "login", Window: 15 * time.Minute, MaxRequests: 5}
	Register       = Strategy{Name: "register", Window: time.Hour, MaxRequests: 3}
	Refresh        = Strategy{Name: "refresh", Window: time.Minute, MaxRequests: 10}
	PasswordChange = Strategy{Name: "passwordChange", Window: time.Hour, MaxRequests: 3}
	PasswordReset  = Strategy{Name: "passwordReset", Window: time.Hour, MaxRequests: 10}
)

// Result is the outcome of a Check.
type Result struct {
	Allowed   bool
	Remaining int
	// RetryAfter is zero when allowed. When rejected it is never shorter
	// than the time until the next call would be accepted.
	RetryAfter time.Duration
}

// Config configures a Gate.
type Config struct {
	// GCInterval defaults to DefaultGCInterval when zero or negative.
	GCInterval time.Duration

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

type entryKey struct {
	strategy string
	key      string
}

// entry is the sliding log for one (strategy, key) pair, oldest first.
type entry struct {
	window time.Duration
	hits   []time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[entryKey]*entry
}

// Gate is a sliding-window log rate limiter. It is safe for concurrent use.
//
// Gate runs a background goroutine that drops entries whose every timestamp
// has left its window. Call Close to stop it.
type Gate struct {
	shards [shardCount]shard
	now    func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	keysGauge  prometheus.Gauge
	rejections *prometheus.CounterVec
}

// NewGate creates a Gate and starts its collector goroutine.
func NewGate(cfg Config) *Gate {
	return newGate(cfg, nil)
}

// NewGateWithRegistry creates a Gate and registers its tracked-key gauge and
// rejection counter with reg.
func NewGateWithRegistry(cfg Config, reg prometheus.Registerer) *Gate {
	return newGate(cfg, reg)
}

func newGate(cfg Config, reg prometheus.Registerer) *Gate {
	interval := cfg.GCInterval
	if interval <= 0 {
		interval = DefaultGCInterval
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	g := &Gate{
		now:      now,
		stopChan: make(chan struct{}),
	}
	for i := range g.shards {
		g.shards[i].entries = make(map[entryKey]*entry)
	}

	if reg != nil {
		g.keysGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "authcore_throttle_keys",
			Help: "Current number of tracked throttle keys",
		})
		g.rejections = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_throttle_rejections_total",
			Help: "Requests rejected by the throttle gate",
		}, []string{"strategy"})
		reg.MustRegister(g.keysGauge, g.rejections)
	}

	g.wg.Add(1)
	go g.collectLoop(interval)

	return g
}

// Check records an attempt for key under s and reports whether it is allowed.
// Rejected attempts are not recorded.
func (g *Gate) Check(s Strategy, key string) Result {
	if s.Window <= 0 || s.MaxRequests <= 0 {
		return Result{Allowed: true}
	}

	k := entryKey{strategy: s.Name, key: key}
	sh := g.shardFor(k)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := g.now()
	e, ok := sh.entries[k]
	if !ok {
		e = &entry{window: s.Window}
		sh.entries[k] = e
	}
	e.window = s.Window
	e.evict(now)

	if len(e.hits) >= s.MaxRequests {
		// The slot reopens when enough of the oldest hits have aged out.
		reopen := e.hits[len(e.hits)-s.MaxRequests].Add(s.Window)
		if g.rejections != nil {
			g.rejections.WithLabelValues(s.Name).Inc()
		}
		return Result{Allowed: false, RetryAfter: ceilMillis(reopen.Sub(now))}
	}

	e.hits = append(e.hits, now)
	return Result{Allowed: true, Remaining: s.MaxRequests - len(e.hits)}
}

// CheckLimit is Check with an ad-hoc strategy.
func (g *Gate) CheckLimit(name, key string, window time.Duration, maxRequests int) Result {
	return g.Check(Strategy{Name: name, Window: window, MaxRequests: maxRequests}, key)
}

// Reset forgets all attempts recorded for key under strategy.
func (g *Gate) Reset(strategy, key string) {
	k := entryKey{strategy: strategy, key: key}
	sh := g.shardFor(k)
	sh.mu.Lock()
	delete(sh.entries, k)
	sh.mu.Unlock()
}

// Len returns the number of tracked keys across all strategies.
func (g *Gate) Len() int {
	n := 0
	for i := range g.shards {
		sh := &g.shards[i]
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

// Collect drops entries with no timestamps left inside their window.
// It runs automatically on the configured interval.
func (g *Gate) Collect() {
	now := g.now()
	total := 0
	for i := range g.shards {
		sh := &g.shards[i]
		sh.mu.Lock()
		for k, e := range sh.entries {
			e.evict(now)
			if len(e.hits) == 0 {
				delete(sh.entries, k)
			}
		}
		total += len(sh.entries)
		sh.mu.Unlock()
	}
	if g.keysGauge != nil {
		g.keysGauge.Set(float64(total))
	}
}

// Close stops the collector goroutine and waits for it to exit.
// It is safe to call more than once.
func (g *Gate) Close() {
	g.stopOnce.Do(func() { close(g.stopChan) })
	g.wg.Wait()
}

func (g *Gate) collectLoop(interval time.Duration) {
	defer g.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopChan:
			return
		case <-ticker.C:
			g.Collect()
		}
	}
}

func (g *Gate) shardFor(k entryKey) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(k.strategy))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(k.key))
	return &g.shards[h.Sum32()%shardCount]
}

// evict drops hits at or before now-window.
func (e *entry) evict(now time.Time) {
	cutoff := now.Add(-e.window)
	i := 0
	for i < len(e.hits) && !e.hits[i].After(cutoff) {
		i++
	}
	if i > 0 {
		e.hits = append(e.hits[:0], e.hits[i:]...)
	}
}

func ceilMillis(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Millisecond
	}
	return ((d + time.Millisecond - 1) / time.Millisecond) * time.Millisecond
}
