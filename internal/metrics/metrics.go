// Package metrics exposes event context and engine counters to Prometheus.
package metrics

import (
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/eventq/internal/engine"
	"github.com/dshills/eventq/internal/queue"
)

const namespace = "eventq"

// Collector reads context statistics at scrape time. It implements
// prometheus.Collector.
type Collector struct {
	pending  *prometheus.Desc
	capacity *prometheus.Desc
	leaks    *prometheus.Desc
	masked   *prometheus.Desc
	filtered *prometheus.Desc
	dropped  *prometheus.Desc
	ticks    *prometheus.Desc
	enqueued *prometheus.Desc
	polled   *prometheus.Desc
	steps    *prometheus.Desc
	pulses   *prometheus.Desc
	moved    *prometheus.Desc
	dispatch *prometheus.Desc
	failures *prometheus.Desc
	routes   *prometheus.Desc

	mu       sync.RWMutex
	contexts map[string]*queue.Context
	loop     func() engine.Stats
}

func queueDesc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, "queue", name), help, []string{"queue"}, nil)
}

func engineDesc(name, help string, labels ...string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, "engine", name), help, labels, nil)
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		pending:  queueDesc("pending", "Events waiting to be polled."),
		capacity: queueDesc("capacity", "Usable ring slots."),
		leaks:    queueDesc("leaks_total", "Events rejected by the input mask or overwritten because the ring was full."),
		masked:   queueDesc("masked_total", "Events rejected by the input or output mask."),
		filtered: queueDesc("filtered_total", "Analog samples held back by the analog filter."),
		dropped:  queueDesc("dropped_total", "Invalid events and events lost to a closed or unavailable context."),
		ticks:    queueDesc("ticks_total", "Logical ticks elapsed."),
		enqueued: queueDesc("enqueued_total", "Events accepted by enqueue."),
		polled:   queueDesc("polled_total", "Events returned by poll."),
		steps:    engineDesc("steps_total", "Engine loop iterations."),
		pulses:   engineDesc("pulses_total", "Timer pulses emitted."),
		moved:    engineDesc("transferred_total", "Events moved from frameserver routes."),
		dispatch: engineDesc("dispatched_total", "Events handed to the dispatcher."),
		failures: engineDesc("errors_total", "Dispatch and journal failures.", "stage"),
		routes:   engineDesc("routes", "Registered frameserver routes."),
		contexts: make(map[string]*queue.Context),
	}
}

// Add starts reporting c under its name, replacing a context of the same
// name.
func (c *Collector) Add(ctx *queue.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contexts[ctx.Name()] = ctx
}

// Remove stops reporting the named context.
func (c *Collector) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.contexts, name)
}

// SetLoop reports the statistics returned by stats, usually Loop.Stats.
func (c *Collector) SetLoop(stats func() engine.Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loop = stats
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.pending, c.capacity, c.leaks, c.masked, c.filtered, c.dropped,
		c.ticks, c.enqueued, c.polled,
		c.steps, c.pulses, c.moved, c.dispatch, c.failures, c.routes,
	} {
		ch <- d
	}
}

// snapshot returns the registered contexts sorted by name and the loop
// statistics source.
func (c *Collector) snapshot() ([]string, []*queue.Context, func() engine.Stats) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.contexts))
	for name := range c.contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	contexts := make([]*queue.Context, len(names))
	for i, name := range names {
		contexts[i] = c.contexts[name]
	}
	return names, contexts, c.loop
}

// Queues returns the statistics of every registered context, sorted by
// name.
func (c *Collector) Queues() []queue.Stats {
	names, contexts, _ := c.snapshot()
	out := make([]queue.Stats, len(contexts))
	for i, ctx := range contexts {
		out[i] = ctx.Stats()
		out[i].Name = names[i]
	}
	return out
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	names, contexts, loop := c.snapshot()

	for i, ctx := range contexts {
		s := ctx.Stats()
		name := names[i]
		gauge := func(d *prometheus.Desc, v float64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, name)
		}
		counter := func(d *prometheus.Desc, v uint64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), name)
		}
		gauge(c.pending, float64(s.Pending))
		gauge(c.capacity, float64(s.Capacity))
		counter(c.leaks, s.Leaks)
		counter(c.masked, s.Masked)
		counter(c.filtered, s.Filtered)
		counter(c.dropped, s.Dropped)
		counter(c.ticks, s.Ticks)
		counter(c.enqueued, s.Enqueued)
		counter(c.polled, s.Polled)
	}

	if loop == nil {
		return
	}
	s := loop()
	ch <- prometheus.MustNewConstMetric(c.steps, prometheus.CounterValue, float64(s.Steps))
	ch <- prometheus.MustNewConstMetric(c.pulses, prometheus.CounterValue, float64(s.Pulses))
	ch <- prometheus.MustNewConstMetric(c.moved, prometheus.CounterValue, float64(s.Transferred))
	ch <- prometheus.MustNewConstMetric(c.dispatch, prometheus.CounterValue, float64(s.Dispatched))
	ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(s.DispatchErrors), "dispatch")
	ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(s.JournalErrors), "journal")
	ch <- prometheus.MustNewConstMetric(c.routes, prometheus.GaugeValue, float64(s.Routes))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// NewRegistry returns a registry holding c plus the Go runtime and process
// collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}
