package metrics

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Probe checks that a dependency is reachable
type Probe func(ctx context.Context) error

// Collector periodically runs probes and feeds the results into the
// component health registry and the component_up gauge
type Collector struct {
	interval time.Duration
	timeout  time.Duration

	mu     sync.Mutex
	probes map[string]Probe

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewCollector creates a new probe collector
func NewCollector(interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		interval: interval,
		timeout:  interval / 2,
		probes:   make(map[string]Probe),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Add registers a probe under a component name
func (c *Collector) Add(name string, p Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = p
}

// Start begins probing
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		defer close(c.done)

		// Collect immediately on start
		c.Collect(context.Background())

		for {
			select {
			case <-ticker.C:
				c.Collect(context.Background())
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector and waits for the running probe pass
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.done
}

// Collect runs every probe once
func (c *Collector) Collect(ctx context.Context) {
	c.mu.Lock()
	names := make([]string, 0, len(c.probes))
	for name := range c.probes {
		names = append(names, name)
	}
	probes := make(map[string]Probe, len(c.probes))
	for k, v := range c.probes {
		probes[k] = v
	}
	c.mu.Unlock()
	sort.Strings(names)

	for _, name := range names {
		pctx, cancel := context.WithTimeout(ctx, c.timeout)
		err := probes[name](pctx)
		cancel()

		if err != nil {
			UpdateComponent(name, false, err.Error())
			ComponentUp.WithLabelValues(name).Set(0)
			continue
		}
		UpdateComponent(name, true, "")
		ComponentUp.WithLabelValues(name).Set(1)
	}
}
