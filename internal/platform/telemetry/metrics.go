// Package telemetry collects request and live-feed metrics in process and
// serves them in the Prometheus text exposition format.
package telemetry

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medintake/intake/internal/platform/websocket"
)

var defaultDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// histogram keeps non-cumulative bucket counts; cumulative counts are
// computed at export time.
type histogram struct {
	boundaries   []float64
	bucketCounts []int64
	count        int64
	sum          uint64 // math.Float64bits
	mu           sync.Mutex
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{
		boundaries:   boundaries,
		bucketCounts: make([]int64, len(boundaries)),
	}
}

func (h *histogram) Observe(v float64) {
	atomic.AddInt64(&h.count, 1)
	atomicAddFloat64(&h.sum, v)

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, b := range h.boundaries {
		if v <= b {
			h.bucketCounts[i]++
			return
		}
	}
}

func (h *histogram) Count() int64 {
	return atomic.LoadInt64(&h.count)
}

func (h *histogram) Sum() float64 {
	return math.Float64frombits(atomic.LoadUint64(&h.sum))
}

func (h *histogram) cumulativeBuckets() []int64 {
	h.mu.Lock()
	raw := make([]int64, len(h.bucketCounts))
	copy(raw, h.bucketCounts)
	h.mu.Unlock()

	var running int64
	for i, c := range raw {
		running += c
		raw[i] = running
	}
	return raw
}

func atomicAddFloat64(addr *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(addr)
		next := math.Float64frombits(old) + delta
		if atomic.CompareAndSwapUint64(addr, old, math.Float64bits(next)) {
			return
		}
	}
}

// LabelsKey builds the key of a labeled series.
func LabelsKey(values ...string) string {
	return strings.Join(values, "|")
}

type histogramStore struct {
	mu    sync.RWMutex
	items map[string]*histogram
}

func (s *histogramStore) getOrCreate(key string) *histogram {
	s.mu.RLock()
	h, ok := s.items[key]
	s.mu.RUnlock()
	if ok {
		return h
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok = s.items[key]; !ok {
		h = newHistogram(defaultDurationBuckets)
		s.items[key] = h
	}
	return h
}

type counterStore struct {
	mu    sync.RWMutex
	items map[string]*int64
}

func (s *counterStore) inc(key string) {
	s.mu.RLock()
	p, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		s.mu.Lock()
		if p, ok = s.items[key]; !ok {
			p = new(int64)
			s.items[key] = p
		}
		s.mu.Unlock()
	}
	atomic.AddInt64(p, 1)
}

func (s *counterStore) get(key string) int64 {
	s.mu.RLock()
	p, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(p)
}

type gauge struct {
	name string
	help string
	read func() int64
}

// Metrics is the process-wide metrics registry.
type Metrics struct {
	durations histogramStore
	events    counterStore
	active    int64

	gaugeMu sync.RWMutex
	gauges  []gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		durations: histogramStore{items: make(map[string]*histogram)},
		events:    counterStore{items: make(map[string]*int64)},
	}
}

// RegisterGauge adds a gauge whose value is read at scrape time.
func (m *Metrics) RegisterGauge(name, help string, read func() int64) {
	m.gaugeMu.Lock()
	defer m.gaugeMu.Unlock()
	m.gauges = append(m.gauges, gauge{name: name, help: help, read: read})
}

// Middleware records the duration of every request except scrapes,
// labeled by method, route pattern and status.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Path() == "/metrics" {
				return next(c)
			}
			atomic.AddInt64(&m.active, 1)
			start := time.Now()

			err := next(c)

			atomic.AddInt64(&m.active, -1)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok && !c.Response().Committed {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			key := LabelsKey(c.Request().Method, route, strconv.Itoa(status))
			m.durations.getOrCreate(key).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// RequestCount returns how many requests were observed for the series.
func (m *Metrics) RequestCount(method, route string, status int) int64 {
	m.durations.mu.RLock()
	h, ok := m.durations.items[LabelsKey(method, route, strconv.Itoa(status))]
	m.durations.mu.RUnlock()
	if !ok {
		return 0
	}
	return h.Count()
}

// EventCount returns how many events of eventType were published to topic.
func (m *Metrics) EventCount(eventType, topic string) int64 {
	return m.events.get(LabelsKey(eventType, topic))
}

type countingPublisher struct {
	next    websocket.Publisher
	metrics *Metrics
}

func (p countingPublisher) Publish(ctx context.Context, event websocket.Event) error {
	p.metrics.events.inc(LabelsKey(event.Type, event.Topic))
	return p.next.Publish(ctx, event)
}

// WrapPublisher counts every event before handing it to next.
func (m *Metrics) WrapPublisher(next websocket.Publisher) websocket.Publisher {
	return countingPublisher{next: next, metrics: m}
}

// Handler serves the registry at /metrics.
func (m *Metrics) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder
		m.write(&b)
		return c.Blob(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
	}
}

func (m *Metrics) write(b *strings.Builder) {
	b.WriteString("# HELP http_server_request_duration_seconds Duration of HTTP requests in seconds.\n")
	b.WriteString("# TYPE http_server_request_duration_seconds histogram\n")
	m.durations.mu.RLock()
	keys := sortedKeys(m.durations.items)
	for _, key := range keys {
		parts := strings.SplitN(key, "|", 3)
		if len(parts) != 3 {
			continue
		}
		labels := fmt.Sprintf("method=%q,route=%q,status_code=%q", parts[0], parts[1], parts[2])
		writeHistogram(b, "http_server_request_duration_seconds", labels, m.durations.items[key])
	}
	m.durations.mu.RUnlock()
	b.WriteByte('\n')

	b.WriteString("# HELP http_server_active_requests Number of in-flight HTTP requests.\n")
	b.WriteString("# TYPE http_server_active_requests gauge\n")
	fmt.Fprintf(b, "http_server_active_requests %d\n\n", atomic.LoadInt64(&m.active))

	b.WriteString("# HELP intake_events_published_total Live feed events published by type and topic.\n")
	b.WriteString("# TYPE intake_events_published_total counter\n")
	m.events.mu.RLock()
	for _, key := range sortedKeys(m.events.items) {
		parts := strings.SplitN(key, "|", 2)
		if len(parts) != 2 {
			continue
		}
		fmt.Fprintf(b, "intake_events_published_total{type=%q,topic=%q} %d\n",
			parts[0], parts[1], atomic.LoadInt64(m.events.items[key]))
	}
	m.events.mu.RUnlock()
	b.WriteByte('\n')

	m.gaugeMu.RLock()
	defer m.gaugeMu.RUnlock()
	for _, g := range m.gauges {
		fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n\n", g.name, g.help, g.name, g.name, g.read())
	}
}

func writeHistogram(b *strings.Builder, name, labels string, h *histogram) {
	cum := h.cumulativeBuckets()
	total := h.Count()
	for i, boundary := range h.boundaries {
		fmt.Fprintf(b, "%s_bucket{%s,le=\"%g\"} %d\n", name, labels, boundary, cum[i])
	}
	fmt.Fprintf(b, "%s_bucket{%s,le=\"+Inf\"} %d\n", name, labels, total)
	fmt.Fprintf(b, "%s_sum{%s} %g\n", name, labels, h.Sum())
	fmt.Fprintf(b, "%s_count{%s} %d\n", name, labels, total)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
