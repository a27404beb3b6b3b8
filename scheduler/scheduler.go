// Package scheduler re-prices the saved prescriptions on a daily schedule
// and watches how long ago the last refresh ran.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/giygas/pharmaprice-api/analysis"
	"github.com/giygas/pharmaprice-api/interfaces"
	"github.com/giygas/pharmaprice-api/logging"
)

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

// staleAfter is how long saved prices may go without a refresh before a warning
const staleAfter = 25 * time.Hour

// Scheduler refreshes saved prescriptions using injected dependencies
type Scheduler struct {
	analyzer interfaces.Analyzer
	store    interfaces.CollectionStore
	tracker  interfaces.RefreshTracker

	schedule       string
	callTimeout    time.Duration
	monitorEvery   time.Duration
	scheduler      *gocron.Scheduler
	stopMonitoring chan struct{}
	stopOnce       sync.Once
}

// NewScheduler creates a scheduler running at schedule, a gocron "HH:MM;HH:MM" list.
// Each oracle call is bounded by callTimeout.
func NewScheduler(analyzer interfaces.Analyzer, store interfaces.CollectionStore,
	tracker interfaces.RefreshTracker, schedule string, callTimeout time.Duration) *Scheduler {
	return &Scheduler{
		analyzer:       analyzer,
		store:          store,
		tracker:        tracker,
		schedule:       schedule,
		callTimeout:    callTimeout,
		monitorEvery:   time.Hour,
		scheduler:      gocron.NewScheduler(time.Local),
		stopMonitoring: make(chan struct{}),
	}
}

// Start schedules the refresh job and the staleness monitor
func (s *Scheduler) Start() error {
	if _, err := ParseSchedule(s.schedule); err != nil {
		return fmt.Errorf("invalid refresh schedule: %w", err)
	}

	_, err := s.scheduler.Every(1).Days().At(s.schedule).Do(func() {
		if _, err := s.RefreshSaved(context.Background()); err != nil {
			logging.Error("Failed to refresh saved prescriptions", "error", err)
		}
	})
	if err != nil {
		logging.Error("Failed to schedule refresh", "error", err)
		return fmt.Errorf("failed to schedule refresh: %w", err)
	}

	s.scheduler.StartAsync()
	s.startHealthMonitoring()

	logging.Info("Saved prescriptions refresh scheduled", "schedule", s.schedule, "next_run", NextRun(s.schedule, time.Now()).Format(time.RFC3339))
	return nil
}

// Stop stops the scheduler and the monitor
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	s.stopOnce.Do(func() { close(s.stopMonitoring) })
}

// RefreshSaved re-analyzes every saved prescription and swaps in the fresh
// record. It never runs next to an interactive analysis or another refresh.
func (s *Scheduler) RefreshSaved(ctx context.Context) (interfaces.RefreshReport, error) {
	var report interfaces.RefreshReport

	if s.analyzer.InProgress() {
		logging.Info("Analysis already in progress, skipping refresh...")
		return report, nil
	}

	// Prevent concurrent refreshes
	if !s.tracker.BeginRefresh() {
		logging.Info("Refresh already in progress, skipping...")
		return report, nil
	}
	start := time.Now()
	defer func() {
		report.Duration = time.Since(start)
		s.tracker.EndRefresh(report)
	}()

	saved := s.store.Saved()
	logging.Info("Starting saved prescriptions refresh", "count", len(saved))

	for _, record := range saved {
		if err := ctx.Err(); err != nil {
			report.Skipped += len(saved) - report.Refreshed - report.Failed - report.Skipped
			return report, fmt.Errorf("refresh interrupted: %w", err)
		}

		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		result, err := s.analyzer.Refresh(callCtx, record.MedicationName)
		cancel()

		switch {
		case errors.Is(err, analysis.ErrAnalysisInProgress):
			report.Skipped++
			continue
		case err != nil:
			report.Failed++
			logging.Warn("Failed to refresh saved prescription", "medication", record.MedicationName, "error", err)
			continue
		}

		if result.Record.MedicationName != record.MedicationName {
			report.Skipped++
			logging.Warn("Refreshed record carries another name, keeping the saved one",
				"medication", record.MedicationName,
				"refreshed_as", result.Record.MedicationName)
			continue
		}

		// The record may have been unsaved while the oracle was answering
		if s.store.ReplaceSaved(result.Record) {
			report.Refreshed++
		} else {
			report.Skipped++
		}
	}

	logging.Info("Saved prescriptions refresh completed",
		"duration", time.Since(start).String(),
		"refreshed", report.Refreshed,
		"failed", report.Failed,
		"skipped", report.Skipped)

	return report, nil
}

// startHealthMonitoring warns when saved prices have not been refreshed for too long
func (s *Scheduler) startHealthMonitoring() {
	go func() {
		ticker := time.NewTicker(s.monitorEvery)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopMonitoring:
				return
			case <-ticker.C:
				if s.isStale(time.Now()) {
					logging.Warn("Saved prescriptions haven't been refreshed in over 25 hours")
				}
			}
		}
	}()
}

func (s *Scheduler) isStale(now time.Time) bool {
	if len(s.store.Saved()) == 0 {
		return false
	}
	last := s.tracker.GetLastRefreshed()
	if last.IsZero() {
		last = s.tracker.GetServerStartTime()
	}
	return now.Sub(last) > staleAfter
}

// ParseSchedule parses a gocron At list such as "06:00;18:00" into minutes after midnight
func ParseSchedule(schedule string) ([]int, error) {
	var minutes []int
	for _, part := range strings.Split(schedule, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		if len(fields) < 2 || len(fields) > 3 {
			return nil, fmt.Errorf("time %q must be HH:MM or HH:MM:SS", part)
		}
		hour, err := strconv.Atoi(fields[0])
		if err != nil || hour < 0 || hour > 23 {
			return nil, fmt.Errorf("invalid hour in %q", part)
		}
		minute, err := strconv.Atoi(fields[1])
		if err != nil || minute < 0 || minute > 59 {
			return nil, fmt.Errorf("invalid minute in %q", part)
		}
		minutes = append(minutes, hour*60+minute)
	}
	if len(minutes) == 0 {
		return nil, fmt.Errorf("schedule %q has no times", schedule)
	}
	return minutes, nil
}

// NextRun returns the first scheduled time strictly after now, zero when the schedule is invalid
func NextRun(schedule string, now time.Time) time.Time {
	minutes, err := ParseSchedule(schedule)
	if err != nil {
		return time.Time{}
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var next time.Time
	for day := 0; day <= 1; day++ {
		base := midnight.AddDate(0, 0, day)
		for _, m := range minutes {
			candidate := base.Add(time.Duration(m) * time.Minute)
			if candidate.After(now) && (next.IsZero() || candidate.Before(next)) {
				next = candidate
			}
		}
		if !next.IsZero() {
			return next
		}
	}
	return next
}
