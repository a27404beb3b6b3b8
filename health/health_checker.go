// Package health provides health checking functionality for the pharmacy price API.
package health

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/giygas/pharmaprice-api/interfaces"
	"github.com/giygas/pharmaprice-api/kvstore"
	"github.com/giygas/pharmaprice-api/scheduler"
)

const pingTimeout = 2 * time.Second

// Sources are the components the health check reads from
type Sources struct {
	Analyzer         interfaces.Analyzer
	Collections      interfaces.CollectionStore
	Store            kvstore.Store
	Refresh          interfaces.RefreshTracker
	OracleConfigured bool
	// RefreshSchedule is empty when the scheduled refresh is disabled
	RefreshSchedule string
}

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	src Sources
}

// NewHealthChecker creates a new health checker with injected dependencies
func NewHealthChecker(src Sources) interfaces.HealthChecker {
	return &HealthCheckerImpl{src: src}
}

// HealthCheck returns HTTP-specific health data.
// Unreachable storage is unhealthy; a missing oracle key or a refresh that
// failed for every saved prescription is degraded.
func (h *HealthCheckerImpl) HealthCheck(ctx context.Context) (status string, data map[string]any, httpStatus int) {
	storageErr := h.pingStore(ctx)
	report := h.src.Refresh.GetLastReport()
	lastRefresh := h.src.Refresh.GetLastRefreshed()
	lastSuccess := h.src.Analyzer.LastSuccess()

	switch {
	case storageErr != nil:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case !h.src.OracleConfigured:
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable

	case report.Failed > 0 && report.Refreshed == 0:
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable

	default:
		status = "healthy"
		httpStatus = http.StatusOK
	}

	storage := map[string]any{
		"backend":   h.backend(),
		"reachable": storageErr == nil,
	}
	if storageErr != nil {
		storage["error"] = storageErr.Error()
	}

	data = map[string]any{
		"storage":              storage,
		"oracle_configured":    h.src.OracleConfigured,
		"analysis_in_progress": h.src.Analyzer.InProgress(),
		"last_analysis":        formatTime(lastSuccess),
		"collections":          h.src.Collections.Counts(),
		"refresh": map[string]any{
			"enabled":      h.src.RefreshSchedule != "",
			"in_progress":  h.src.Refresh.IsRefreshing(),
			"last_refresh": formatTime(lastRefresh),
			"next_refresh": formatTime(h.CalculateNextUpdate()),
			"refreshed":    report.Refreshed,
			"failed":       report.Failed,
			"skipped":      report.Skipped,
			"age_hours":    ageHours(lastRefresh),
			"schedule":     h.src.RefreshSchedule,
		},
	}

	return status, data, httpStatus
}

// CalculateNextUpdate returns the next scheduled refresh, zero when disabled
func (h *HealthCheckerImpl) CalculateNextUpdate() time.Time {
	if h.src.RefreshSchedule == "" {
		return time.Time{}
	}
	return scheduler.NextRun(h.src.RefreshSchedule, time.Now())
}

func (h *HealthCheckerImpl) pingStore(ctx context.Context) error {
	if h.src.Store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return h.src.Store.Ping(ctx)
}

func (h *HealthCheckerImpl) backend() string {
	if h.src.Store == nil {
		return "none"
	}
	return h.src.Store.Backend()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// ageHours is rounded to one decimal, -1 when the event never happened
func ageHours(t time.Time) float64 {
	if t.IsZero() {
		return -1
	}
	return math.Round(time.Since(t).Hours()*10) / 10
}
