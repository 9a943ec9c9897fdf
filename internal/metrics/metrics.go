package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the global metrics collector instance
var (
	globalCollector *Collector
	once            sync.Once
)

// Collector tracks polling and mutation metrics in memory
type Collector struct {
	// Counters (atomic for thread-safety)
	totalPollTicks    atomic.Int64
	totalPollFailures atomic.Int64
	totalPollPanics   atomic.Int64
	activePollers     atomic.Int64

	// Mutation tracking by action key (protected by mutex)
	mu                 sync.RWMutex
	mutationsSucceeded map[string]int64
	mutationsFailed    map[string]int64
	totalPollDuration  time.Duration
	startTime          time.Time
}

// Metrics represents a snapshot of current metrics
type Metrics struct {
	TotalPollTicks     int64            `json:"total_poll_ticks"`
	TotalPollFailures  int64            `json:"total_poll_failures"`
	TotalPollPanics    int64            `json:"total_poll_panics"`
	ActivePollers      int64            `json:"active_pollers"`
	MutationsSucceeded map[string]int64 `json:"mutations_succeeded"`
	MutationsFailed    map[string]int64 `json:"mutations_failed"`
	AvgPollDuration    time.Duration    `json:"avg_poll_duration"`
	PollErrorRate      float64          `json:"poll_error_rate"`
	Uptime             time.Duration    `json:"uptime"`
}

// Default returns the global metrics collector instance
func Default() *Collector {
	once.Do(func() {
		globalCollector = NewCollector()
	})
	return globalCollector
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		mutationsSucceeded: make(map[string]int64),
		mutationsFailed:    make(map[string]int64),
		startTime:          time.Now(),
	}
}

// RecordPoll records one completed worker invocation. A panicking call is
// recorded with RecordPollPanic instead.
func (c *Collector) RecordPoll(duration time.Duration, err error) {
	c.totalPollTicks.Add(1)
	if err != nil {
		c.totalPollFailures.Add(1)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalPollDuration += duration
}

// RecordPollPanic records a worker invocation that panicked
func (c *Collector) RecordPollPanic() {
	c.totalPollTicks.Add(1)
	c.totalPollPanics.Add(1)
}

// RecordPollerStarted increments the active poller gauge
func (c *Collector) RecordPollerStarted() {
	c.activePollers.Add(1)
}

// RecordPollerStopped decrements the active poller gauge
func (c *Collector) RecordPollerStopped() {
	c.activePollers.Add(-1)
}

// RecordMutation records the outcome of an operator action such as "STOP"
func (c *Collector) RecordMutation(action string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.mutationsFailed[action]++
		return
	}
	c.mutationsSucceeded[action]++
}

// GetMetrics returns a snapshot of current metrics
func (c *Collector) GetMetrics() Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	succeeded := make(map[string]int64, len(c.mutationsSucceeded))
	for k, v := range c.mutationsSucceeded {
		succeeded[k] = v
	}

	failed := make(map[string]int64, len(c.mutationsFailed))
	for k, v := range c.mutationsFailed {
		failed[k] = v
	}

	ticks := c.totalPollTicks.Load()
	failures := c.totalPollFailures.Load()
	panics := c.totalPollPanics.Load()

	// Panicked calls have no recorded duration
	var avgDuration time.Duration
	if completed := ticks - panics; completed > 0 {
		avgDuration = c.totalPollDuration / time.Duration(completed)
	}

	var errorRate float64
	if ticks > 0 {
		errorRate = float64(failures+panics) / float64(ticks) * 100
	}

	return Metrics{
		TotalPollTicks:     ticks,
		TotalPollFailures:  failures,
		TotalPollPanics:    panics,
		ActivePollers:      c.activePollers.Load(),
		MutationsSucceeded: succeeded,
		MutationsFailed:    failed,
		AvgPollDuration:    avgDuration,
		PollErrorRate:      errorRate,
		Uptime:             time.Since(c.startTime),
	}
}

// Reset clears all metrics (useful for testing)
func (c *Collector) Reset() {
	c.totalPollTicks.Store(0)
	c.totalPollFailures.Store(0)
	c.totalPollPanics.Store(0)
	c.activePollers.Store(0)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.mutationsSucceeded = make(map[string]int64)
	c.mutationsFailed = make(map[string]int64)
	c.totalPollDuration = 0
	c.startTime = time.Now()
}

// GetMetrics returns metrics from the global collector
func GetMetrics() Metrics {
	return Default().GetMetrics()
}

// ResetMetrics resets the global collector
func ResetMetrics() {
	Default().Reset()
}
