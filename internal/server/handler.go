// Package server is the HTTP surface of sqlcoach: the coach, sandbox and
// practice actions, the history API, health, metrics and the embedded UI.
package server

import (
	"context"
	"encoding/json"
	"io/fs"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sqlcoach/internal/api"
	"sqlcoach/internal/coach"
	"sqlcoach/internal/config"
	"sqlcoach/internal/llm"
	"sqlcoach/internal/metrics"
	"sqlcoach/internal/practice"
	"sqlcoach/internal/sandbox"
	"sqlcoach/internal/session"
	"sqlcoach/internal/storage"
	"sqlcoach/internal/util"
)

// Deps are the collaborators a Handler dispatches to. Store, API, Metrics
// and Health may be nil.
type Deps struct {
	Config   config.Config
	Coach    *coach.Coach
	Sandbox  *sandbox.Sandbox
	Practice *practice.Service
	Sessions *session.Store
	Store    storage.Store
	API      *api.Server
	Metrics  *metrics.Metrics
	Health   *llm.HealthChecker
	Assets   fs.FS
	Logger   *slog.Logger
}

// actionFunc handles one decoded action and returns the JSON response body.
type actionFunc func(ctx context.Context, c *call) (any, error)

type action struct {
	fn actionFunc
	// upstream actions talk to the LLM; their unclassified errors are 502.
	upstream bool
}

type route struct {
	method string
	action string
}

// Handler is the http.Handler for the whole service.
type Handler struct {
	cfg      config.Config
	features config.Features
	coach    *coach.Coach
	sandbox  *sandbox.Sandbox
	practice *practice.Service
	sessions *session.Store
	store    storage.Store
	apiSrv   *api.Server
	metrics  *metrics.Metrics
	health   *llm.HealthChecker
	assets   fs.FS
	logger   *slog.Logger

	routes  map[string]route
	actions map[string]action
}

// New constructs the handler and its dispatch table.
func New(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	h := &Handler{
		cfg:      d.Config,
		features: d.Config.Features(),
		coach:    d.Coach,
		sandbox:  d.Sandbox,
		practice: d.Practice,
		sessions: d.Sessions,
		store:    d.Store,
		apiSrv:   d.API,
		metrics:  d.Metrics,
		health:   d.Health,
		assets:   d.Assets,
		logger:   d.Logger,
	}

	h.actions = map[string]action{
		"analyze":          {fn: h.analyze, upstream: true},
		"optimize":         {fn: h.optimize, upstream: true},
		"explain":          {fn: h.explain, upstream: true},
		"render":           {fn: h.render},
		"compile":          {fn: h.compile},
		"practice_list":    {fn: h.practiceList},
		"practice_schema":  {fn: h.practiceSchema},
		"practice_execute": {fn: h.practiceExecute},
		"session_clear":    {fn: h.sessionClear},
	}
	h.routes = map[string]route{
		"/analyze":                {http.MethodPost, "analyze"},
		"/optimize":               {http.MethodPost, "optimize"},
		"/explain":                {http.MethodPost, "explain"},
		"/render":                 {http.MethodPost, "render"},
		"/compile-sql":            {http.MethodPost, "compile"},
		"/get-practice-questions": {http.MethodGet, "practice_list"},
		"/get-question-schema":    {http.MethodPost, "practice_schema"},
		"/execute-question":       {http.MethodPost, "practice_execute"},
		"/session/clear":          {http.MethodPost, "session_clear"},
	}
	return h
}

// ServeHTTP routes a request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.cfg.CORSAllowOrigin != "" {
		w.Header().Set("Access-Control-Allow-Origin", h.cfg.CORSAllowOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if h.features.API && h.apiSrv != nil && h.apiSrv.Handles(r.URL.Path) {
		h.apiSrv.ServeHTTP(w, r)
		return
	}

	switch r.URL.Path {
	case "/metrics":
		if h.features.Metrics && r.Method == http.MethodGet {
			h.handleMetrics(w, r)
			return
		}
	case "/healthz":
		h.handleHealthz(w, r)
		return
	case "/healthz/upstream":
		h.handleHealthzUpstream(w, r)
		return
	}

	if rt, ok := h.routes[r.URL.Path]; ok {
		if r.Method != rt.method {
			w.Header().Set("Allow", rt.method)
			h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.run(w, r, rt.action)
		return
	}

	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		h.handleStatic(w, r)
		return
	}
	h.writeError(w, http.StatusNotFound, "not found")
}

// call carries one action's request, session and history annotations.
type call struct {
	r       *http.Request
	w       http.ResponseWriter
	session string
	maxBody int64

	dialect    string
	queryChars int
}

func (c *call) decode(v any) error {
	return util.DecodeRequest(c.r, c.maxBody, v)
}

// note records the query shape for history. Only sizes are kept.
func (c *call) note(dialect, query string) {
	c.dialect = dialect
	c.queryChars = len([]rune(query))
}

// run executes one action inside a busy scope: the in-flight gauge and a
// history record are held for its whole duration and always released.
func (h *Handler) run(w http.ResponseWriter, r *http.Request, name string) {
	act := h.actions[name]

	h.metrics.IncInFlight()
	defer h.metrics.DecInFlight()

	start := time.Now()
	ctx, info := llm.WithCallInfo(r.Context())
	cw := NewCountingWriter(w)
	c := &call{
		r:       r.WithContext(ctx),
		w:       cw,
		session: session.ID(cw, r),
		maxBody: h.cfg.RequestBodyMaxBytes,
	}
	id := h.begin(name, start)

	status := storage.StatusSuccess
	class := ""
	defer func() {
		if p := recover(); p != nil {
			h.logger.Error("action panicked", "action", name, "panic", p, "stack", string(debug.Stack()))
			status, class = storage.StatusError, classPanic
			if !cw.Written() {
				h.writeError(cw, http.StatusInternalServerError, "internal error")
			}
		}
		cached := info.CacheHits > 0 && info.Calls == 0
		h.finish(id, name, c, status, class, start, cw.BytesWritten(), cached)
	}()

	resp, err := act.fn(ctx, c)
	if err != nil {
		code, msg, cls := classify(err, act.upstream)
		status, class = storage.StatusError, cls
		if cls == classCanceled {
			status = storage.StatusCanceled
		}
		level := slog.LevelInfo
		if code >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		h.logger.Log(ctx, level, "action failed", "action", name, "status", code, "class", cls, "err", err)
		h.writeError(cw, code, msg)
		return
	}
	h.writeJSON(cw, resp)
}

// begin inserts the in-flight history record and returns its id.
func (h *Handler) begin(name string, start time.Time) string {
	id := uuid.NewString()
	if h.store == nil {
		return id
	}
	rec := &storage.Record{
		ID:      id,
		TSStart: start.UnixMilli(),
		Action:  name,
		Status:  storage.StatusInFlight,
	}
	if err := h.store.Insert(rec); err != nil {
		h.logger.Error("failed to insert history record", "err", err, "action", name)
	}
	return id
}

// finish finalizes the history record and request metrics.
func (h *Handler) finish(id, name string, c *call, status storage.Status, class string, start time.Time, bytesOut int64, cached bool) {
	elapsed := time.Since(start)
	h.metrics.RecordRequest(name, string(status), elapsed, bytesOut)

	h.logger.Debug("action finished", "action", name, "id", id, "status", status,
		"duration_ms", elapsed.Milliseconds(), "response_bytes", bytesOut, "cached", cached)

	if h.store == nil {
		return
	}
	now := time.Now().UnixMilli()
	durationMs := int(elapsed.Milliseconds())
	upd := storage.RecordUpdate{
		TSEnd:         &now,
		Status:        &status,
		DurationMs:    &durationMs,
		ResponseBytes: &bytesOut,
		Cached:        &cached,
		Dialect:       &c.dialect,
		QueryChars:    &c.queryChars,
	}
	if class != "" {
		upd.ErrorClass = &class
	}
	if err := h.store.Update(id, upd); err != nil {
		h.logger.Error("failed to finalize history record", "err", err, "id", id)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		http.Error(w, "metrics not enabled", http.StatusServiceUnavailable)
		return
	}
	promhttp.Handler().ServeHTTP(w, r)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil && !h.health.Healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("upstream unhealthy"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleHealthzUpstream(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		h.writeJSON(w, map[string]any{
			"healthy":    false,
			"configured": false,
			"last_error": llm.ErrNoAPIKey.Error(),
		})
		return
	}

	healthy := h.health.Healthy()
	response := map[string]any{
		"healthy":    healthy,
		"configured": true,
		"last_check": h.health.LastCheck().Format(time.RFC3339),
	}
	if lastError := h.health.LastError(); lastError != "" {
		response["last_error"] = lastError
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(response)
}
