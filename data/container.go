// Package data keeps the process-wide refresh state behind atomics so the
// scheduler, the health checks and the handlers can read it without locks.
package data

import (
	"sync/atomic"
	"time"

	"github.com/giygas/pharmaprice-api/interfaces"
	"github.com/giygas/pharmaprice-api/logging"
)

// Compile-time check to ensure RefreshContainer implements RefreshTracker
var _ interfaces.RefreshTracker = (*RefreshContainer)(nil)

// RefreshContainer holds the saved prescriptions refresh state
type RefreshContainer struct {
	lastRefreshed   atomic.Value // time.Time
	lastReport      atomic.Value // interfaces.RefreshReport
	refreshing      atomic.Bool
	serverStartTime atomic.Value // time.Time
}

// NewRefreshContainer creates a container that has never refreshed
func NewRefreshContainer() *RefreshContainer {
	rc := &RefreshContainer{}
	rc.lastRefreshed.Store(time.Time{})
	rc.lastReport.Store(interfaces.RefreshReport{})
	rc.serverStartTime.Store(time.Now())
	return rc
}

// GetLastRefreshed returns the end time of the last refresh, zero if none ran
func (rc *RefreshContainer) GetLastRefreshed() time.Time {
	if v := rc.lastRefreshed.Load(); v != nil {
		if lastRefreshed, ok := v.(time.Time); ok {
			return lastRefreshed
		}
	}

	logging.Warn("Could not get the last refreshed value")
	return time.Time{}
}

// GetLastReport returns the outcome of the last refresh
func (rc *RefreshContainer) GetLastReport() interfaces.RefreshReport {
	if v := rc.lastReport.Load(); v != nil {
		if report, ok := v.(interfaces.RefreshReport); ok {
			return report
		}
	}
	return interfaces.RefreshReport{}
}

// IsRefreshing returns true while a refresh is running
func (rc *RefreshContainer) IsRefreshing() bool {
	return rc.refreshing.Load()
}

// SetServerStartTime sets the server start time
func (rc *RefreshContainer) SetServerStartTime(startTime time.Time) {
	rc.serverStartTime.Store(startTime)
}

// GetServerStartTime returns the server start time
func (rc *RefreshContainer) GetServerStartTime() time.Time {
	if v := rc.serverStartTime.Load(); v != nil {
		if startTime, ok := v.(time.Time); ok {
			return startTime
		}
	}

	logging.Warn("Could not get the server start time value")
	return time.Time{}
}

// BeginRefresh marks the start of a refresh.
// Returns true if the refresh can proceed, false if another one is running.
func (rc *RefreshContainer) BeginRefresh() bool {
	return rc.refreshing.CompareAndSwap(false, true)
}

// EndRefresh records the report and releases the refresh flag
func (rc *RefreshContainer) EndRefresh(report interfaces.RefreshReport) {
	rc.lastReport.Store(report)
	rc.lastRefreshed.Store(time.Now())
	rc.refreshing.Store(false)
}
