package telemetry

import (
	"sync"
	"time"
)

// StatsProvider is implemented by components whose sizes are sampled
// periodically rather than tracked on every change.
type StatsProvider interface {
	SubscriberCount() int
}

// MetricsCollector periodically collects stats and updates telemetry gauges
type MetricsCollector struct {
	hub      StatsProvider
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(hub StatsProvider, interval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		hub:      hub,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic collection
func (mc *MetricsCollector) Start() {
	mc.wg.Add(1)
	go mc.collectLoop()
}

// Stop stops the collector
func (mc *MetricsCollector) Stop() {
	mc.stopOnce.Do(func() { close(mc.stopCh) })
	mc.wg.Wait()
}

func (mc *MetricsCollector) collectLoop() {
	defer mc.wg.Done()

	ticker := time.NewTicker(mc.interval)
	defer ticker.Stop()

	mc.collect()

	for {
		select {
		case <-ticker.C:
			mc.collect()
		case <-mc.stopCh:
			return
		}
	}
}

func (mc *MetricsCollector) collect() {
	if mc.hub == nil {
		return
	}
	NotifySubscribers.Set(float64(mc.hub.SubscriberCount()))
}
