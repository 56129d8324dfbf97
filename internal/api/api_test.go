package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"sqlcoach/internal/config"
	"sqlcoach/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.MemoryStore) {
	t.Helper()
	cfg, err := config.Load(viper.New())
	require.NoError(t, err)

	store := storage.NewMemoryStore(100)
	now := time.Now().UnixMilli()
	recs := []storage.Record{
		{ID: "r1", TSStart: now - 3000, Action: "analyze", Status: storage.StatusSuccess, DurationMs: 100},
		{ID: "r2", TSStart: now - 2000, Action: "compile", Status: storage.StatusError, ErrorClass: "sql_query", DurationMs: 5},
		{ID: "r3", TSStart: now - 1000, Action: "analyze", Status: storage.StatusInFlight},
	}
	for i := range recs {
		require.NoError(t, store.Insert(&recs[i]))
	}
	return NewServer(store, cfg, nil), store
}

func get(t *testing.T, s *Server, target string, out any) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func TestOverview(t *testing.T) {
	s, _ := newTestServer(t)

	var resp OverviewResponse
	rec := get(t, s, "/api/v1/overview?window=1h", &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 3, resp.Summary.TotalRequests)
	require.Equal(t, 1, resp.Summary.InFlight)
	require.Len(t, resp.Series.RequestCount, 60)
	require.Contains(t, rec.Body.String(), `"total_requests":3`)
}

func TestOverviewIsCached(t *testing.T) {
	s, store := newTestServer(t)
	now := time.Now()
	s.now = func() time.Time { return now }

	var first OverviewResponse
	get(t, s, "/api/v1/overview?window=1h", &first)

	require.NoError(t, store.Insert(&storage.Record{ID: "r4", TSStart: now.UnixMilli(), Action: "render", Status: storage.StatusSuccess}))

	var cached OverviewResponse
	get(t, s, "/api/v1/overview?window=1h", &cached)
	require.Equal(t, first.Summary.TotalRequests, cached.Summary.TotalRequests)

	now = now.Add(3 * time.Second)
	var fresh OverviewResponse
	get(t, s, "/api/v1/overview?window=1h", &fresh)
	require.Equal(t, 4, fresh.Summary.TotalRequests)
}

func TestHistoryList(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		target string
		want   []string
	}{
		{"/api/v1/history", []string{"r3", "r2", "r1"}},
		{"/api/v1/history?limit=1&offset=1", []string{"r2"}},
		{"/api/v1/history?action=analyze", []string{"r3", "r1"}},
		{"/api/v1/history?status=error", []string{"r2"}},
		{"/api/v1/history?status=canceled", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			var resp HistoryListResponse
			rec := get(t, s, tt.target, &resp)
			require.Equal(t, http.StatusOK, rec.Code)
			ids := make([]string, 0, len(resp.Records))
			for _, r := range resp.Records {
				ids = append(ids, r.ID)
			}
			require.Equal(t, tt.want, ids)
			require.Equal(t, len(tt.want), resp.Count)
		})
	}
}

func TestHistoryGet(t *testing.T) {
	s, _ := newTestServer(t)

	var got storage.Record
	rec := get(t, s, "/api/v1/history/r2", &got)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "compile", got.Action)
	require.Equal(t, "sql_query", got.ErrorClass)

	rec = get(t, s, "/api/v1/history/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.JSONEq(t, `{"error":"record not found"}`, rec.Body.String())
}

func TestActions(t *testing.T) {
	s, _ := newTestServer(t)

	var list ActionListResponse
	require.Equal(t, http.StatusOK, get(t, s, "/api/v1/actions", &list).Code)
	require.Len(t, list.Actions, 2)
	require.Equal(t, "analyze", list.Actions[0].Action)

	var series ActionSeriesResponse
	require.Equal(t, http.StatusOK, get(t, s, "/api/v1/actions/analyze/series?window=1h&metric=req_count", &series).Code)
	require.Equal(t, "analyze", series.Action)
	var total float64
	for _, p := range series.Series {
		total += p.Value
	}
	require.Equal(t, 2.0, total)

	require.Equal(t, http.StatusBadRequest, get(t, s, "/api/v1/actions/analyze/series?metric=bogus", nil).Code)
}

func TestConfigHidesAPIKey(t *testing.T) {
	v := viper.New()
	v.Set("LLM_API_KEY", "secret-key")
	cfg, err := config.Load(v)
	require.NoError(t, err)
	s := NewServer(nil, cfg, nil)

	var resp ConfigResponse
	rec := get(t, s, "/api/v1/config", &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "secret-key")
	require.True(t, resp.Features.Health)
	require.Equal(t, "sqlite", resp.Storage)
}

func TestNoStoreAndRouting(t *testing.T) {
	cfg, err := config.Load(viper.New())
	require.NoError(t, err)
	s := NewServer(nil, cfg, nil)

	require.Equal(t, http.StatusServiceUnavailable, get(t, s, "/api/v1/overview", nil).Code)
	require.Equal(t, http.StatusNotFound, get(t, s, "/api/v1/nope", nil).Code)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/history", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	require.True(t, s.Handles("/api/v1/history"))
	require.False(t, s.Handles("/analyze"))
}
