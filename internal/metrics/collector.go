package metrics

import (
	"context"
	"sync"
	"time"
)

// CountProvider reports how many templates the edit cache holds.
type CountProvider interface {
	Count() (int, error)
}

// Collector periodically refreshes gauge metrics from live state.
type Collector struct {
	metrics   *Metrics
	cache     CountProvider
	interval  time.Duration
	startTime time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a collector updating gauges every interval.
func NewCollector(m *Metrics, cache CountProvider, interval time.Duration) *Collector {
	if interval == 0 {
		interval = 10 * time.Second
	}
	return &Collector{
		metrics:   m,
		cache:     cache,
		interval:  interval,
		startTime: time.Now(),
		stopCh:    make(chan struct{}),
	}
}

// Start begins the collector background loop
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.updateLoop(ctx)
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Collector) updateLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.refresh()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.refresh()
		}
	}
}

func (c *Collector) refresh() {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())

	if c.cache != nil {
		if n, err := c.cache.Count(); err == nil {
			c.metrics.CachedTemplates.Set(float64(n))
		}
	}
}
