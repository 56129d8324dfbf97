// Package storage persists request history for the coach actions.
// It stores metadata only - no SQL text or model output.
package storage

import (
	"sort"
	"time"
)

// Status represents the final status of a request.
type Status string

const (
	StatusInFlight Status = "in_flight"
	StatusSuccess  Status = "success"
	StatusError    Status = "error"
	StatusCanceled Status = "canceled"
)

// Record is one handled action.
type Record struct {
	ID      string `json:"id"`
	TSStart int64  `json:"ts_start"` // unix ms
	TSEnd   *int64 `json:"ts_end"`   // nullable until complete
	Action  string `json:"action"`
	Dialect string `json:"dialect,omitempty"`
	Status  Status `json:"status"`

	ErrorClass    string `json:"error_class,omitempty"`
	DurationMs    int    `json:"duration_ms"`
	QueryChars    int    `json:"query_chars"`
	ResponseBytes int64  `json:"response_bytes"`
	Cached        bool   `json:"cached"`
}

// RecordUpdate contains fields that can be updated after insert.
type RecordUpdate struct {
	TSEnd         *int64
	Status        *Status
	Dialect       *string
	QueryChars    *int
	ErrorClass    *string
	DurationMs    *int
	ResponseBytes *int64
	Cached        *bool
}

// ListOptions filters for listing records.
type ListOptions struct {
	Limit  int
	Offset int
	Status *Status
	Action string
	Window time.Duration // only records within this window
}

// Overview contains summary statistics for a time window.
type Overview struct {
	TotalRequests int     `json:"total_requests"`
	SuccessCount  int     `json:"success_count"`
	ErrorCount    int     `json:"error_count"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMs int     `json:"avg_duration_ms"`
	P95DurationMs int     `json:"p95_duration_ms"`
	TotalBytes    int64   `json:"total_bytes"`
	CacheHits     int     `json:"cache_hits"`
}

// ActionStat contains per-action rollup statistics.
type ActionStat struct {
	Action        string  `json:"action"`
	RequestCount  int     `json:"request_count"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMs int     `json:"avg_duration_ms"`
	CacheHitRate  float64 `json:"cache_hit_rate"`
}

// DataPoint is a single time series point.
type DataPoint struct {
	Timestamp int64   `json:"ts"` // unix ms, bin start
	Value     float64 `json:"value"`
}

// Series metrics.
const (
	MetricRequestCount = "req_count"
	MetricDurationP95  = "duration_p95"
	MetricErrorRate    = "error_rate"
)

// SeriesOptions selects a time series.
type SeriesOptions struct {
	Window time.Duration
	Metric string
	Action string // empty = all actions
}

// Store is the persistence interface for request history.
type Store interface {
	Insert(rec *Record) error
	Update(id string, upd RecordUpdate) error
	GetByID(id string) (*Record, error)
	List(opts ListOptions) ([]Record, error)
	Overview(window time.Duration) (*Overview, error)
	ActionStats(window time.Duration) ([]ActionStat, error)
	Series(opts SeriesOptions) ([]DataPoint, error)
	InFlightCount() (int, error)
	Close() error
}

// GetBinConfig returns the number of bins and bin interval for a window.
//   - <= 1h: 60 bins of 1 minute
//   - <= 24h: 96 bins of 15 minutes
//   - otherwise: 168 bins of 1 hour
func GetBinConfig(window time.Duration) (bins int, interval time.Duration) {
	switch {
	case window <= time.Hour:
		return 60, time.Minute
	case window <= 24*time.Hour:
		return 96, 15 * time.Minute
	default:
		return 168, time.Hour
	}
}

// aggregateBin reduces the values collected for one bin.
func aggregateBin(metric string, vals []float64) float64 {
	switch metric {
	case MetricRequestCount:
		return float64(len(vals))
	case MetricDurationP95:
		return percentile95(vals)
	case MetricErrorRate:
		var sum float64
		for _, v := range vals {
			sum += v
		}
		return sum / float64(len(vals))
	}
	return 0
}

func percentile95(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
