package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sqlcoach/internal/metrics"
)

// HealthChecker periodically checks the LLM upstream by listing models.
type HealthChecker struct {
	modelsURL     string
	apiKey        string
	checkInterval time.Duration
	timeout       time.Duration
	healthy       atomic.Bool
	lastCheck     atomic.Value // time.Time
	lastError     atomic.Value // string
	metrics       *metrics.Metrics
	logger        *slog.Logger
	client        *http.Client
	stopCh        chan struct{}
	stopOnce      sync.Once
}

// NewHealthChecker creates a health checker and starts its background loop.
func NewHealthChecker(baseURL, apiKey string, checkInterval, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *HealthChecker {
	if logger == nil {
		logger = slog.Default()
	}
	hc := &HealthChecker{
		modelsURL:     strings.TrimRight(baseURL, "/") + "/models",
		apiKey:        apiKey,
		checkInterval: checkInterval,
		timeout:       timeout,
		metrics:       m,
		logger:        logger,
		client: &http.Client{
			Timeout: timeout,
		},
		stopCh: make(chan struct{}),
	}

	// Unhealthy until the first check completes.
	hc.healthy.Store(false)

	go hc.run()

	return hc
}

func (hc *HealthChecker) run() {
	hc.check()

	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hc.check()
		case <-hc.stopCh:
			return
		}
	}
}

func (hc *HealthChecker) check() {
	ctx, cancel := context.WithTimeout(context.Background(), hc.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.modelsURL, nil)
	if err != nil {
		hc.updateHealth(false, err.Error())
		return
	}
	if hc.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+hc.apiKey)
	}

	resp, err := hc.client.Do(req)
	if err != nil {
		hc.updateHealth(false, err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		hc.updateHealth(true, "")
	} else {
		hc.updateHealth(false, fmt.Sprintf("status code: %d", resp.StatusCode))
	}
}

func (hc *HealthChecker) updateHealth(healthy bool, errMsg string) {
	hc.healthy.Store(healthy)
	hc.lastCheck.Store(time.Now())
	hc.lastError.Store(errMsg)
	if errMsg != "" {
		hc.logger.Debug("upstream health check failed", "err", errMsg)
	}
	hc.metrics.UpdateUpstreamHealth(healthy)
}

// Healthy returns whether the upstream is currently healthy.
func (hc *HealthChecker) Healthy() bool {
	return hc.healthy.Load()
}

// LastCheck returns the time of the last health check.
func (hc *HealthChecker) LastCheck() time.Time {
	if v := hc.lastCheck.Load(); v != nil {
		return v.(time.Time)
	}
	return time.Time{}
}

// LastError returns the last error message, if any.
func (hc *HealthChecker) LastError() string {
	if v := hc.lastError.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// Stop ends the background loop. It is safe to call more than once.
func (hc *HealthChecker) Stop() {
	hc.stopOnce.Do(func() { close(hc.stopCh) })
}
