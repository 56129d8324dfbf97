package storage

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store using an in-memory ring buffer.
// This is used when STORAGE=memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	byID    map[string]int // ID -> index in records
	maxRows int
	head    int // next write position
	count   int
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(maxRows int) *MemoryStore {
	if maxRows < 1 {
		maxRows = 1
	}
	return &MemoryStore{
		records: make([]Record, maxRows),
		byID:    make(map[string]int),
		maxRows: maxRows,
	}
}

// Insert adds a new record, overwriting the oldest when full.
func (s *MemoryStore) Insert(rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == s.maxRows {
		delete(s.byID, s.records[s.head].ID)
	}

	s.records[s.head] = *rec
	s.byID[rec.ID] = s.head

	s.head = (s.head + 1) % s.maxRows
	if s.count < s.maxRows {
		s.count++
	}
	return nil
}

// Update modifies an existing record.
func (s *MemoryStore) Update(id string, upd RecordUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byID[id]
	if !ok {
		return nil // not found is not an error
	}
	rec := &s.records[idx]

	if upd.TSEnd != nil {
		v := *upd.TSEnd
		rec.TSEnd = &v
	}
	if upd.Status != nil {
		rec.Status = *upd.Status
	}
	if upd.Dialect != nil {
		rec.Dialect = *upd.Dialect
	}
	if upd.QueryChars != nil {
		rec.QueryChars = *upd.QueryChars
	}
	if upd.ErrorClass != nil {
		rec.ErrorClass = *upd.ErrorClass
	}
	if upd.DurationMs != nil {
		rec.DurationMs = *upd.DurationMs
	}
	if upd.ResponseBytes != nil {
		rec.ResponseBytes = *upd.ResponseBytes
	}
	if upd.Cached != nil {
		rec.Cached = *upd.Cached
	}
	return nil
}

// GetByID retrieves a single record. It returns nil, nil when absent.
func (s *MemoryStore) GetByID(id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	rec := s.records[idx]
	return &rec, nil
}

// List returns records matching the filter options, newest first.
func (s *MemoryStore) List(opts ListOptions) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := int64(0)
	if opts.Window > 0 {
		cutoff = time.Now().Add(-opts.Window).UnixMilli()
	}

	var filtered []Record
	for _, rec := range s.collectOrdered() {
		if opts.Status != nil && rec.Status != *opts.Status {
			continue
		}
		if opts.Action != "" && rec.Action != opts.Action {
			continue
		}
		if cutoff > 0 && rec.TSStart < cutoff {
			continue
		}
		filtered = append(filtered, rec)
	}

	if opts.Offset >= len(filtered) {
		return nil, nil
	}
	filtered = filtered[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(filtered) {
		filtered = filtered[:opts.Limit]
	}
	return filtered, nil
}

// Overview returns aggregate statistics.
func (s *MemoryStore) Overview(window time.Duration) (*Overview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-window).UnixMilli()

	var o Overview
	var durations []int
	for _, rec := range s.collectOrdered() {
		if rec.TSStart < cutoff {
			continue
		}

		o.TotalRequests++
		switch rec.Status {
		case StatusSuccess:
			o.SuccessCount++
		case StatusError, StatusCanceled:
			o.ErrorCount++
		}
		if rec.Status != StatusInFlight && rec.DurationMs > 0 {
			durations = append(durations, rec.DurationMs)
		}
		o.TotalBytes += rec.ResponseBytes
		if rec.Cached {
			o.CacheHits++
		}
	}

	if o.TotalRequests > 0 {
		o.SuccessRate = float64(o.SuccessCount) / float64(o.TotalRequests)
	}

	if len(durations) > 0 {
		sort.Ints(durations)
		sum := 0
		for _, d := range durations {
			sum += d
		}
		o.AvgDurationMs = sum / len(durations)

		p95Idx := int(float64(len(durations)) * 0.95)
		if p95Idx >= len(durations) {
			p95Idx = len(durations) - 1
		}
		o.P95DurationMs = durations[p95Idx]
	}

	return &o, nil
}

// ActionStats returns per-action statistics, busiest first.
func (s *MemoryStore) ActionStats(window time.Duration) ([]ActionStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-window).UnixMilli()

	byAction := make(map[string][]Record)
	for _, rec := range s.collectOrdered() {
		if rec.TSStart < cutoff {
			continue
		}
		byAction[rec.Action] = append(byAction[rec.Action], rec)
	}

	stats := make([]ActionStat, 0, len(byAction))
	for action, recs := range byAction {
		as := ActionStat{Action: action, RequestCount: len(recs)}

		var success, cached, finished, durSum int
		for _, rec := range recs {
			if rec.Status == StatusSuccess {
				success++
			}
			if rec.Cached {
				cached++
			}
			if rec.Status != StatusInFlight {
				finished++
				durSum += rec.DurationMs
			}
		}
		as.SuccessRate = float64(success) / float64(as.RequestCount)
		as.CacheHitRate = float64(cached) / float64(as.RequestCount)
		if finished > 0 {
			as.AvgDurationMs = durSum / finished
		}
		stats = append(stats, as)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].RequestCount != stats[j].RequestCount {
			return stats[i].RequestCount > stats[j].RequestCount
		}
		return stats[i].Action < stats[j].Action
	})
	return stats, nil
}

// Series returns time-binned data for charts.
func (s *MemoryStore) Series(opts SeriesOptions) ([]DataPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bins, interval := GetBinConfig(opts.Window)
	cutoff := time.Now().Add(-opts.Window)

	points := make([]DataPoint, bins)
	for i := 0; i < bins; i++ {
		points[i] = DataPoint{Timestamp: cutoff.Add(time.Duration(i) * interval).UnixMilli()}
	}

	binValues := make([][]float64, bins)
	for _, rec := range s.collectOrdered() {
		if rec.TSStart < cutoff.UnixMilli() {
			continue
		}
		if opts.Action != "" && rec.Action != opts.Action {
			continue
		}

		var value float64
		switch opts.Metric {
		case MetricRequestCount:
			value = 1
		case MetricDurationP95:
			if rec.Status == StatusInFlight {
				continue
			}
			value = float64(rec.DurationMs)
		case MetricErrorRate:
			if rec.Status == StatusInFlight {
				continue
			}
			if rec.Status != StatusSuccess {
				value = 1
			}
		default:
			return points, nil
		}

		idx := int((rec.TSStart - cutoff.UnixMilli()) / interval.Milliseconds())
		if idx >= 0 && idx < bins {
			binValues[idx] = append(binValues[idx], value)
		}
	}

	for i, vals := range binValues {
		if len(vals) > 0 {
			points[i].Value = aggregateBin(opts.Metric, vals)
		}
	}
	return points, nil
}

// InFlightCount returns the number of in-flight records.
func (s *MemoryStore) InFlightCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for i := 0; i < s.count; i++ {
		idx := (s.head - 1 - i + s.maxRows) % s.maxRows
		if s.records[idx].Status == StatusInFlight {
			count++
		}
	}
	return count, nil
}

// Close is a no-op for memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// collectOrdered returns all records sorted by ts_start descending.
func (s *MemoryStore) collectOrdered() []Record {
	if s.count == 0 {
		return nil
	}

	out := make([]Record, 0, s.count)
	for i := 0; i < s.count; i++ {
		// Start from head-1 (most recent) and go backward
		idx := (s.head - 1 - i + s.maxRows) % s.maxRows
		out = append(out, s.records[idx])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TSStart > out[j].TSStart })
	return out
}
