// Package telemetry collects in-process request and export metrics and
// serves them in the Prometheus text exposition format.
package telemetry

import (
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
)

var (
	defaultDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	defaultSizeBuckets     = []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576}
)

// histogram is a thread-safe histogram. Bucket counts are stored
// non-cumulative and summed at exposition time.
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
	for i, b := range h.boundaries {
		if v <= b {
			h.bucketCounts[i]++
			break
		}
	}
	h.mu.Unlock()
}

func (h *histogram) Count() int64 { return atomic.LoadInt64(&h.count) }

func (h *histogram) Sum() float64 { return math.Float64frombits(atomic.LoadUint64(&h.sum)) }

func (h *histogram) cumulativeBuckets() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	cum := make([]int64, len(h.bucketCounts))
	var running int64
	for i, c := range h.bucketCounts {
		running += c
		cum[i] = running
	}
	return cum
}

func atomicAddFloat64(addr *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(addr)
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if atomic.CompareAndSwapUint64(addr, old, next) {
			return
		}
	}
}

// Metrics holds every series the server exposes. The zero value is not
// usable; call New.
type Metrics struct {
	active int64

	mu        sync.RWMutex
	requests  map[string]*histogram // method|route|status
	exports   map[string]int64      // format
	failures  map[string]int64      // format
	sizes     map[string]*histogram // format
	startedAt time.Time
}

func New() *Metrics {
	return &Metrics{
		requests:  make(map[string]*histogram),
		exports:   make(map[string]int64),
		failures:  make(map[string]int64),
		sizes:     make(map[string]*histogram),
		startedAt: time.Now(),
	}
}

// LabelsKey joins request labels into a store key.
func LabelsKey(method, route, status string) string {
	return method + "|" + route + "|" + status
}

func (m *Metrics) requestHistogram(key string) *histogram {
	m.mu.RLock()
	h, ok := m.requests[key]
	m.mu.RUnlock()
	if ok {
		return h
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok = m.requests[key]; !ok {
		h = newHistogram(defaultDurationBuckets)
		m.requests[key] = h
	}
	return h
}

// ObserveExport counts one produced document of the given format.
func (m *Metrics) ObserveExport(format string, size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exports[format]++
	h, ok := m.sizes[format]
	if !ok {
		h = newHistogram(defaultSizeBuckets)
		m.sizes[format] = h
	}
	h.Observe(float64(size))
}

// ObserveFailure counts an export attempt that returned an error.
func (m *Metrics) ObserveFailure(format string) {
	m.mu.Lock()
	m.failures[format]++
	m.mu.Unlock()
}

// Exports returns the number of successful exports for format.
func (m *Metrics) Exports(format string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exports[format]
}

// Failures returns the number of failed exports for format.
func (m *Metrics) Failures(format string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failures[format]
}

// Requests returns how many requests matched the label set.
func (m *Metrics) Requests(method, route, status string) int64 {
	m.mu.RLock()
	h, ok := m.requests[LabelsKey(method, route, status)]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return h.Count()
}

// Middleware records request duration by route pattern and status.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			atomic.AddInt64(&m.active, 1)
			defer atomic.AddInt64(&m.active, -1)
			start := time.Now()

			err := next(c)
			if err != nil {
				// Let the error handler write the response so the
				// recorded status is the one the client sees.
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			status := strconv.Itoa(c.Response().Status)
			m.requestHistogram(LabelsKey(c.Request().Method, route, status)).
				Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// Handler serves the current snapshot in Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		m.mu.RLock()
		requests := copyHistograms(m.requests)
		sizes := copyHistograms(m.sizes)
		exports := copyCounters(m.exports)
		failures := copyCounters(m.failures)
		m.mu.RUnlock()

		b.WriteString("# HELP http_server_request_duration_seconds Duration of HTTP requests in seconds.\n")
		b.WriteString("# TYPE http_server_request_duration_seconds histogram\n")
		for _, key := range sortedKeys(requests) {
			parts := strings.SplitN(key, "|", 3)
			labels := fmt.Sprintf("method=%q,route=%q,status_code=%q", parts[0], parts[1], parts[2])
			writeHistogram(&b, "http_server_request_duration_seconds", labels, requests[key])
		}
		b.WriteByte('\n')

		b.WriteString("# HELP http_server_active_requests Number of in-flight HTTP requests.\n")
		b.WriteString("# TYPE http_server_active_requests gauge\n")
		fmt.Fprintf(&b, "http_server_active_requests %d\n\n", atomic.LoadInt64(&m.active))

		writeCounter(&b, "notexport_exports_total", "Documents exported by format.", exports)
		writeCounter(&b, "notexport_export_failures_total", "Export attempts that failed by format.", failures)

		b.WriteString("# HELP notexport_export_size_bytes Size of exported documents in bytes.\n")
		b.WriteString("# TYPE notexport_export_size_bytes histogram\n")
		for _, format := range sortedKeys(sizes) {
			writeHistogram(&b, "notexport_export_size_bytes", fmt.Sprintf("format=%q", format), sizes[format])
		}
		b.WriteByte('\n')

		b.WriteString("# HELP process_uptime_seconds Seconds since the metrics store was created.\n")
		b.WriteString("# TYPE process_uptime_seconds gauge\n")
		fmt.Fprintf(&b, "process_uptime_seconds %g\n", time.Since(m.startedAt).Seconds())

		c.Response().Header().Set(echo.HeaderContentType, "text/plain; version=0.0.4; charset=utf-8")
		return c.String(http.StatusOK, b.String())
	}
}

func writeCounter(b *strings.Builder, name, help string, values map[string]int64) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s counter\n", name)
	for _, format := range sortedKeys(values) {
		fmt.Fprintf(b, "%s{format=%q} %d\n", name, format, values[format])
	}
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, name, labels string, h *histogram) {
	cum := h.cumulativeBuckets()
	for i, boundary := range h.boundaries {
		fmt.Fprintf(b, "%s_bucket{%s,le=\"%g\"} %d\n", name, labels, boundary, cum[i])
	}
	total := h.Count()
	fmt.Fprintf(b, "%s_bucket{%s,le=\"+Inf\"} %d\n", name, labels, total)
	fmt.Fprintf(b, "%s_sum{%s} %g\n", name, labels, h.Sum())
	fmt.Fprintf(b, "%s_count{%s} %d\n", name, labels, total)
}

func copyHistograms(src map[string]*histogram) map[string]*histogram {
	out := make(map[string]*histogram, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func copyCounters(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
