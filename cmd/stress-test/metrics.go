package main

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	maxSampledDurations = 10000
	maxFailureDetails   = 1000
)

// FailureDetail is one recorded failed request
type FailureDetail struct {
	Timestamp    time.Time `json:"timestamp"`
	RequestID    int64     `json:"request_id"`
	StatusCode   int       `json:"status_code"`
	ErrorMessage string    `json:"error_message"`
	ErrorType    string    `json:"error_type"`
	DurationMs   int64     `json:"duration_ms"`
	Endpoint     string    `json:"endpoint"`
}

// EndpointStats counts requests per operation
type EndpointStats struct {
	Requests int64 `json:"requests"`
	Failed   int64 `json:"failed"`
	TotalMs  int64 `json:"total_ms"`
}

// Metrics collects request outcomes from all workers
type Metrics struct {
	mu sync.Mutex

	total     int64
	succeeded int64
	failed    int64
	min, max  time.Duration
	durations []time.Duration

	byEndpoint map[string]*EndpointStats
	byStatus   map[int]int64
	byType     map[string]int64
	failures   []FailureDetail

	started time.Time
}

// NewMetrics starts the clock
func NewMetrics() *Metrics {
	return &Metrics{
		durations:  make([]time.Duration, 0, 1024),
		byEndpoint: make(map[string]*EndpointStats),
		byStatus:   make(map[int]int64),
		byType:     make(map[string]int64),
		started:    time.Now(),
	}
}

// Record stores one request. A request succeeds on a 2xx status.
func (m *Metrics) Record(id int64, endpoint string, d time.Duration, status int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	if m.total == 1 || d < m.min {
		m.min = d
	}
	m.max = max(m.max, d)
	if len(m.durations) < maxSampledDurations {
		m.durations = append(m.durations, d)
	}

	ep := m.byEndpoint[endpoint]
	if ep == nil {
		ep = &EndpointStats{}
		m.byEndpoint[endpoint] = ep
	}
	ep.Requests++
	ep.TotalMs += d.Milliseconds()

	if err == nil && status >= 200 && status < 300 {
		m.succeeded++
		return
	}

	m.failed++
	ep.Failed++
	kind, msg := classifyFailure(status, err)
	m.byStatus[status]++
	m.byType[kind]++
	if len(m.failures) < maxFailureDetails {
		m.failures = append(m.failures, FailureDetail{
			Timestamp:    time.Now(),
			RequestID:    id,
			StatusCode:   status,
			ErrorMessage: msg,
			ErrorType:    kind,
			DurationMs:   d.Milliseconds(),
			Endpoint:     endpoint,
		})
	}
}

// FailureRate is the failed share in percent
func (m *Metrics) FailureRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.total == 0 {
		return 0
	}
	return float64(m.failed) / float64(m.total) * 100
}

// Summary is the exported report
type Summary struct {
	Duration       string                    `json:"duration"`
	TotalRequests  int64                     `json:"total_requests"`
	Succeeded      int64                     `json:"succeeded"`
	Failed         int64                     `json:"failed"`
	RequestsPerSec float64                   `json:"requests_per_second"`
	MinMs          int64                     `json:"min_ms"`
	MaxMs          int64                     `json:"max_ms"`
	Percentiles    map[string]int64          `json:"percentiles_ms"`
	Endpoints      map[string]*EndpointStats `json:"endpoints"`
	FailuresByCode map[int]int64             `json:"failures_by_code,omitempty"`
	FailuresByType map[string]int64          `json:"failures_by_type,omitempty"`
	Failures       []FailureDetail           `json:"failures,omitempty"`
}

// Summarize builds the report for a run that lasted elapsed
func (m *Metrics) Summarize(elapsed time.Duration) Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Summary{
		Duration:       elapsed.Round(time.Millisecond).String(),
		TotalRequests:  m.total,
		Succeeded:      m.succeeded,
		Failed:         m.failed,
		MinMs:          m.min.Milliseconds(),
		MaxMs:          m.max.Milliseconds(),
		Percentiles:    make(map[string]int64),
		Endpoints:      make(map[string]*EndpointStats, len(m.byEndpoint)),
		FailuresByCode: m.byStatus,
		FailuresByType: m.byType,
		Failures:       m.failures,
	}
	if elapsed > 0 {
		s.RequestsPerSec = float64(m.total) / elapsed.Seconds()
	}
	for name, ep := range m.byEndpoint {
		copied := *ep
		s.Endpoints[name] = &copied
	}

	sorted := slices.Clone(m.durations)
	slices.Sort(sorted)
	for _, p := range []float64{50, 75, 90, 95, 99} {
		s.Percentiles[fmt.Sprintf("p%.0f", p)] = percentile(sorted, p).Milliseconds()
	}
	return s
}

// percentile uses nearest-rank on sorted durations
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p / 100)
	return sorted[min(idx, len(sorted)-1)]
}

func classifyFailure(status int, err error) (kind, msg string) {
	if err != nil {
		msg = err.Error()
		var netErr net.Error
		switch {
		case errors.As(err, &netErr) && netErr.Timeout():
			return "timeout", msg
		case strings.Contains(msg, "connection refused"):
			return "connection_refused", msg
		case strings.Contains(msg, "connection reset"):
			return "connection_reset", msg
		case strings.Contains(msg, "no such host"):
			return "dns_error", msg
		case strings.Contains(msg, "EOF"):
			return "connection_closed", msg
		default:
			return "network_error", msg
		}
	}

	msg = fmt.Sprintf("HTTP %d", status)
	switch {
	case status == 429:
		return "rate_limited", msg
	case status == 503:
		return "unavailable", msg
	case status >= 400 && status < 500:
		return "client_error", msg
	case status >= 500:
		return "server_error", msg
	default:
		return "unknown_error", msg
	}
}
