package api

import (
	"net/http"

	"sqlcoach/internal/storage"
)

const maxListLimit = 500

// OverviewResponse contains summary statistics and time series data.
type OverviewResponse struct {
	Summary SummaryData `json:"summary"`
	Series  SeriesData  `json:"series"`
}

// SummaryData contains aggregate statistics.
type SummaryData struct {
	storage.Overview
	InFlight int `json:"in_flight"`
}

// SeriesData contains time-binned chart data.
type SeriesData struct {
	DurationP95  []storage.DataPoint `json:"duration_p95"`
	RequestCount []storage.DataPoint `json:"req_count"`
	ErrorRate    []storage.DataPoint `json:"error_rate"`
}

// handleOverview returns summary statistics and time series.
// GET /api/v1/overview?window=1h|24h|7d
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	window := parseWindow(r)
	cacheKey := window.String()

	s.overviewCacheMu.RLock()
	if cached, ok := s.overviewCache[cacheKey]; ok && s.now().Before(cached.expiresAt) {
		s.overviewCacheMu.RUnlock()
		s.writeJSON(w, cached.data)
		return
	}
	s.overviewCacheMu.RUnlock()

	overview, err := s.store.Overview(window)
	if err != nil {
		s.logger.Error("failed to get overview", "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get overview")
		return
	}

	inFlight, _ := s.store.InFlightCount()

	durationSeries, _ := s.store.Series(storage.SeriesOptions{Window: window, Metric: storage.MetricDurationP95})
	reqCountSeries, _ := s.store.Series(storage.SeriesOptions{Window: window, Metric: storage.MetricRequestCount})
	errRateSeries, _ := s.store.Series(storage.SeriesOptions{Window: window, Metric: storage.MetricErrorRate})

	resp := &OverviewResponse{
		Summary: SummaryData{Overview: *overview, InFlight: inFlight},
		Series: SeriesData{
			DurationP95:  durationSeries,
			RequestCount: reqCountSeries,
			ErrorRate:    errRateSeries,
		},
	}

	s.overviewCacheMu.Lock()
	s.overviewCache[cacheKey] = &cachedOverview{
		data:      resp,
		expiresAt: s.now().Add(overviewCacheDuration),
	}
	s.overviewCacheMu.Unlock()

	s.writeJSON(w, resp)
}

// HistoryListResponse contains a page of history records.
type HistoryListResponse struct {
	Records []storage.Record `json:"records"`
	Count   int              `json:"count"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// handleListHistory returns a paginated list of records.
// GET /api/v1/history?limit=50&offset=0&action=&status=&window=24h
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	q := r.URL.Query()
	limit := parseInt(q.Get("limit"), 50)
	if limit == 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	offset := parseInt(q.Get("offset"), 0)

	opts := storage.ListOptions{
		Limit:  limit,
		Offset: offset,
		Action: q.Get("action"),
		Window: parseWindow(r),
	}
	if status := q.Get("status"); status != "" {
		st := storage.Status(status)
		opts.Status = &st
	}

	records, err := s.store.List(opts)
	if err != nil {
		s.logger.Error("failed to list history", "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if records == nil {
		records = []storage.Record{}
	}

	s.writeJSON(w, HistoryListResponse{
		Records: records,
		Count:   len(records),
		Limit:   limit,
		Offset:  offset,
	})
}

// handleGetRecord returns a single record.
// GET /api/v1/history/{id}
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request, id string) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	rec, err := s.store.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get record", "err", err, "id", id)
		s.writeError(w, http.StatusInternalServerError, "failed to get record")
		return
	}
	if rec == nil {
		s.writeError(w, http.StatusNotFound, "record not found")
		return
	}
	s.writeJSON(w, rec)
}

// ActionListResponse contains per-action statistics.
type ActionListResponse struct {
	Actions []storage.ActionStat `json:"actions"`
}

// handleListActions returns per-action rollup statistics.
// GET /api/v1/actions?window=24h|7d
func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	stats, err := s.store.ActionStats(parseWindow(r))
	if err != nil {
		s.logger.Error("failed to get action stats", "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get action stats")
		return
	}
	if stats == nil {
		stats = []storage.ActionStat{}
	}
	s.writeJSON(w, ActionListResponse{Actions: stats})
}

// ActionSeriesResponse contains time series data for one action.
type ActionSeriesResponse struct {
	Action string              `json:"action"`
	Metric string              `json:"metric"`
	Series []storage.DataPoint `json:"series"`
}

// handleActionSeries returns time-binned data for one action.
// GET /api/v1/actions/{action}/series?window=1h|24h|7d&metric=duration_p95|req_count|error_rate
func (s *Server) handleActionSeries(w http.ResponseWriter, r *http.Request, action string) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	metric := r.URL.Query().Get("metric")
	switch metric {
	case "":
		metric = storage.MetricDurationP95
	case storage.MetricDurationP95, storage.MetricRequestCount, storage.MetricErrorRate:
	default:
		s.writeError(w, http.StatusBadRequest, "unknown metric: "+metric)
		return
	}

	series, err := s.store.Series(storage.SeriesOptions{
		Window: parseWindow(r),
		Metric: metric,
		Action: action,
	})
	if err != nil {
		s.logger.Error("failed to get action series", "err", err, "action", action)
		s.writeError(w, http.StatusInternalServerError, "failed to get action series")
		return
	}

	s.writeJSON(w, ActionSeriesResponse{Action: action, Metric: metric, Series: series})
}

// ConfigResponse contains the non-secret runtime configuration.
type ConfigResponse struct {
	Storage        string `json:"storage"`
	StorageMaxRows int    `json:"storage_max_rows"`
	LLMModel       string `json:"llm_model"`
	LLMBaseURL     string `json:"llm_base_url"`
	LLMRetryMax    int    `json:"llm_retry_max"`
	LLMCacheTTL    string `json:"llm_cache_ttl"`
	SandboxTimeout string `json:"sandbox_timeout"`
	SandboxMaxRows int    `json:"sandbox_max_rows"`
	Features       struct {
		History  bool `json:"history"`
		API      bool `json:"api"`
		Metrics  bool `json:"metrics"`
		Cache    bool `json:"cache"`
		Health   bool `json:"health"`
		Practice bool `json:"practice"`
	} `json:"features"`
}

// handleConfig returns the current configuration. The API key is never sent.
// GET /api/v1/config
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	features := s.cfg.Features()

	resp := ConfigResponse{
		Storage:        string(s.cfg.Storage),
		StorageMaxRows: s.cfg.StorageMaxRows,
		LLMModel:       s.cfg.LLMModel,
		LLMBaseURL:     s.cfg.LLMBaseURL,
		LLMRetryMax:    s.cfg.LLMRetryMax,
		LLMCacheTTL:    s.cfg.LLMCacheTTL.String(),
		SandboxTimeout: s.cfg.SandboxTimeout.String(),
		SandboxMaxRows: s.cfg.SandboxMaxRows,
	}
	resp.Features.History = features.History
	resp.Features.API = features.API
	resp.Features.Metrics = features.Metrics
	resp.Features.Cache = features.Cache
	resp.Features.Health = features.Health
	resp.Features.Practice = features.Practice

	s.writeJSON(w, resp)
}
