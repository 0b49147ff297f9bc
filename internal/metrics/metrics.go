package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Collector tracks offline-edge metrics for Prometheus-compatible export.
// Counter keys are composed from the request's policy class.
type Collector struct {
	mu sync.RWMutex

	// Request metrics
	requestsTotal    map[string]int64          // key: class|status
	requestDurations map[string]*HistogramData // key: class

	// Cache metrics
	cacheHits       map[string]int64 // key: class
	cacheMisses     map[string]int64 // key: class
	cacheFallbacks  map[string]int64 // key: class (network failed, cache served)
	networkFailures map[string]int64 // key: class

	// Upstream reachability: 0=unreachable, 1=reachable
	upstreamReachable int
}

// HistogramData stores histogram-like data for durations
type HistogramData struct {
	Count   int64
	Sum     float64
	Buckets map[float64]int64 // upper bound -> count
}

// DefaultBuckets are default histogram buckets in seconds
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		requestsTotal:    make(map[string]int64),
		requestDurations: make(map[string]*HistogramData),
		cacheHits:        make(map[string]int64),
		cacheMisses:      make(map[string]int64),
		cacheFallbacks:   make(map[string]int64),
		networkFailures:  make(map[string]int64),
	}
}

// RecordRequest records a completed request
func (c *Collector) RecordRequest(class string, statusCode int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := class + "|" + strconv.Itoa(statusCode)
	c.requestsTotal[key]++

	hd, ok := c.requestDurations[class]
	if !ok {
		hd = &HistogramData{
			Buckets: make(map[float64]int64),
		}
		for _, b := range DefaultBuckets {
			hd.Buckets[b] = 0
		}
		c.requestDurations[class] = hd
	}

	secs := duration.Seconds()
	hd.Count++
	hd.Sum += secs
	for _, bound := range DefaultBuckets {
		if secs <= bound {
			hd.Buckets[bound]++
		}
	}
}

// RecordCacheHit records a response served from cache
func (c *Collector) RecordCacheHit(class string) {
	c.mu.Lock()
	c.cacheHits[class]++
	c.mu.Unlock()
}

// RecordCacheMiss records a cache lookup that found nothing
func (c *Collector) RecordCacheMiss(class string) {
	c.mu.Lock()
	c.cacheMisses[class]++
	c.mu.Unlock()
}

// RecordFallback records a network failure recovered from cache
func (c *Collector) RecordFallback(class string) {
	c.mu.Lock()
	c.cacheFallbacks[class]++
	c.mu.Unlock()
}

// RecordNetworkFailure records a failed upstream fetch
func (c *Collector) RecordNetworkFailure(class string) {
	c.mu.Lock()
	c.networkFailures[class]++
	c.mu.Unlock()
}

// SetUpstreamReachable sets the advisory upstream reachability gauge
func (c *Collector) SetUpstreamReachable(reachable bool) {
	c.mu.Lock()
	if reachable {
		c.upstreamReachable = 1
	} else {
		c.upstreamReachable = 0
	}
	c.mu.Unlock()
}

// MetricsSnapshot holds a snapshot of all metrics
type MetricsSnapshot struct {
	RequestsTotal     map[string]int64              `json:"requests_total"`
	RequestDurations  map[string]*HistogramSnapshot `json:"request_durations"`
	CacheHits         map[string]int64              `json:"cache_hits"`
	CacheMisses       map[string]int64              `json:"cache_misses"`
	CacheFallbacks    map[string]int64              `json:"cache_fallbacks"`
	NetworkFailures   map[string]int64              `json:"network_failures"`
	UpstreamReachable int                           `json:"upstream_reachable"`
}

// HistogramSnapshot is a snapshot of histogram data
type HistogramSnapshot struct {
	Count   int64             `json:"count"`
	Sum     float64           `json:"sum"`
	Buckets map[float64]int64 `json:"buckets"`
}

// Snapshot returns a point-in-time snapshot of all metrics
func (c *Collector) Snapshot() *MetricsSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := &MetricsSnapshot{
		RequestsTotal:     make(map[string]int64),
		RequestDurations:  make(map[string]*HistogramSnapshot),
		CacheHits:         make(map[string]int64),
		CacheMisses:       make(map[string]int64),
		CacheFallbacks:    make(map[string]int64),
		NetworkFailures:   make(map[string]int64),
		UpstreamReachable: c.upstreamReachable,
	}

	for k, v := range c.requestsTotal {
		snap.RequestsTotal[k] = v
	}

	for k, v := range c.requestDurations {
		hs := &HistogramSnapshot{
			Count:   v.Count,
			Sum:     v.Sum,
			Buckets: make(map[float64]int64),
		}
		for b, cnt := range v.Buckets {
			hs.Buckets[b] = cnt
		}
		snap.RequestDurations[k] = hs
	}

	for k, v := range c.cacheHits {
		snap.CacheHits[k] = v
	}
	for k, v := range c.cacheMisses {
		snap.CacheMisses[k] = v
	}
	for k, v := range c.cacheFallbacks {
		snap.CacheFallbacks[k] = v
	}
	for k, v := range c.networkFailures {
		snap.NetworkFailures[k] = v
	}

	return snap
}

// WritePrometheus writes metrics in Prometheus text exposition format
func (c *Collector) WritePrometheus(w http.ResponseWriter) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// edge_requests_total
	writeHelp(w, "edge_requests_total", "Total number of intercepted requests", "counter")
	for key, count := range c.requestsTotal {
		parts := splitKey(key, 2)
		if len(parts) == 2 {
			writeMetric(w, "edge_requests_total", count,
				"class", parts[0], "status", parts[1])
		}
	}

	// edge_request_duration_seconds
	writeHelp(w, "edge_request_duration_seconds", "Request duration in seconds", "histogram")
	for class, hd := range c.requestDurations {
		for _, bound := range DefaultBuckets {
			cnt := hd.Buckets[bound]
			writeMetricFloat(w, "edge_request_duration_seconds_bucket", float64(cnt),
				"class", class, "le", strconv.FormatFloat(bound, 'f', -1, 64))
		}
		writeMetricFloat(w, "edge_request_duration_seconds_bucket", float64(hd.Count),
			"class", class, "le", "+Inf")
		writeMetricFloat(w, "edge_request_duration_seconds_sum", hd.Sum,
			"class", class)
		writeMetric(w, "edge_request_duration_seconds_count", hd.Count,
			"class", class)
	}

	// edge_cache_hits_total
	writeHelp(w, "edge_cache_hits_total", "Responses served from cache", "counter")
	for class, count := range c.cacheHits {
		writeMetric(w, "edge_cache_hits_total", count, "class", class)
	}

	// edge_cache_misses_total
	writeHelp(w, "edge_cache_misses_total", "Cache lookups that found nothing", "counter")
	for class, count := range c.cacheMisses {
		writeMetric(w, "edge_cache_misses_total", count, "class", class)
	}

	// edge_cache_fallbacks_total
	writeHelp(w, "edge_cache_fallbacks_total", "Network failures recovered from cache", "counter")
	for class, count := range c.cacheFallbacks {
		writeMetric(w, "edge_cache_fallbacks_total", count, "class", class)
	}

	// edge_network_failures_total
	writeHelp(w, "edge_network_failures_total", "Failed upstream fetches", "counter")
	for class, count := range c.networkFailures {
		writeMetric(w, "edge_network_failures_total", count, "class", class)
	}

	// edge_upstream_reachable
	writeHelp(w, "edge_upstream_reachable", "Upstream reachability (0=unreachable, 1=reachable)", "gauge")
	writeMetric(w, "edge_upstream_reachable", int64(c.upstreamReachable))
}

func writeHelp(w http.ResponseWriter, name, help, metricType string) {
	w.Write([]byte("# HELP " + name + " " + help + "\n"))
	w.Write([]byte("# TYPE " + name + " " + metricType + "\n"))
}

func writeMetric(w http.ResponseWriter, name string, value int64, labels ...string) {
	line := name + formatLabels(labels) + " " + strconv.FormatInt(value, 10) + "\n"
	w.Write([]byte(line))
}

func writeMetricFloat(w http.ResponseWriter, name string, value float64, labels ...string) {
	line := name + formatLabels(labels) + " " + strconv.FormatFloat(value, 'f', -1, 64) + "\n"
	w.Write([]byte(line))
}

func formatLabels(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	result := "{"
	for i := 0; i < len(labels)-1; i += 2 {
		if i > 0 {
			result += ","
		}
		result += labels[i] + "=\"" + labels[i+1] + "\""
	}
	return result + "}"
}

func splitKey(key string, n int) []string {
	parts := make([]string, 0, n)
	start := 0
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			parts = append(parts, key[start:i])
			start = i + 1
			if len(parts) == n-1 {
				parts = append(parts, key[start:])
				return parts
			}
		}
	}
	if start < len(key) {
		parts = append(parts, key[start:])
	}
	return parts
}
