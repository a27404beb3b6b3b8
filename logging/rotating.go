package logging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const filePrefix = "pharmaprice-"

var numberedFileRe = regexp.MustCompile(`^` + filePrefix + `\d{4}-W\d{2}_(\d{2})\.log$`)

// RotatingLogger is an io.Writer that opens one file per ISO week and
// starts a numbered sibling once the size limit is reached
type RotatingLogger struct {
	logDir      string
	currentFile *os.File
	currentWeek string
	retention   time.Duration
	maxFileSize int64
	currentSize atomic.Int64
	mu          sync.Mutex

	stop     context.CancelFunc
	janitor  chan struct{}
	stopOnce sync.Once
}

// NewRotatingLogger creates a rotating writer. A maxFileSize of 0 disables
// size based rotation.
func NewRotatingLogger(logDir string, retentionWeeks int, maxFileSize int64) *RotatingLogger {
	return &RotatingLogger{
		logDir:      logDir,
		retention:   time.Duration(retentionWeeks) * 7 * 24 * time.Hour,
		maxFileSize: maxFileSize,
	}
}

func weekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// open switches to the file for week (caller holds mu)
func (rl *RotatingLogger) open(week string, full bool) error {
	if rl.currentFile != nil {
		_ = rl.currentFile.Close()
		rl.currentFile = nil
	}

	name, fresh := rl.pickFile(week, full)
	path := filepath.Join(rl.logDir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	rl.currentFile = file
	rl.currentWeek = week
	rl.currentSize.Store(0)
	if !fresh {
		if info, statErr := file.Stat(); statErr == nil {
			rl.currentSize.Store(info.Size())
		}
	}
	return nil
}

// pickFile returns the file name to append to and whether it is a new numbered file
func (rl *RotatingLogger) pickFile(week string, full bool) (string, bool) {
	base := fmt.Sprintf("%s%s.log", filePrefix, week)
	if !full {
		info, err := os.Stat(filepath.Join(rl.logDir, base))
		if err != nil || rl.maxFileSize == 0 || info.Size() < rl.maxFileSize {
			return base, false
		}
	}

	highest, lastName, lastSize := 0, "", int64(0)
	matches, _ := filepath.Glob(filepath.Join(rl.logDir, fmt.Sprintf("%s%s_??.log", filePrefix, week)))
	for _, match := range matches {
		m := numberedFileRe.FindStringSubmatch(filepath.Base(match))
		if len(m) < 2 {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		if num <= highest {
			continue
		}
		highest, lastName, lastSize = num, filepath.Base(match), 0
		if info, err := os.Stat(match); err == nil {
			lastSize = info.Size()
		}
	}

	if !full && lastName != "" && lastSize < rl.maxFileSize {
		return lastName, false
	}
	return fmt.Sprintf("%s%s_%02d.log", filePrefix, week, highest+1), true
}

// Write appends p to the current file, rotating first when the week changed
// or the write would cross the size limit
func (rl *RotatingLogger) Write(p []byte) (int, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	week := weekKey(time.Now())
	if rl.currentFile == nil || rl.currentWeek != week {
		if err := rl.open(week, false); err != nil {
			return 0, err
		}
	}

	if rl.maxFileSize > 0 {
		size := rl.currentSize.Load()
		if size > 0 && size+int64(len(p)) > rl.maxFileSize {
			if err := rl.open(week, true); err != nil {
				return 0, err
			}
		}
	}

	n, err := rl.currentFile.Write(p)
	rl.currentSize.Add(int64(n))
	return n, err
}

// cleanupOldLogs removes rotated files whose modification time is past retention
func (rl *RotatingLogger) cleanupOldLogs() (int, error) {
	entries, err := os.ReadDir(rl.logDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read log directory: %w", err)
	}

	cutoff := time.Now().Add(-rl.retention)
	deleted := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if os.Remove(filepath.Join(rl.logDir, name)) == nil {
			deleted++
		}
	}
	return deleted, nil
}

// startJanitor runs cleanupOldLogs once a day until Close
func (rl *RotatingLogger) startJanitor(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	rl.stop = cancel
	rl.janitor = make(chan struct{})

	go func() {
		defer close(rl.janitor)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := rl.cleanupOldLogs(); err != nil {
					fmt.Fprintf(os.Stderr, "log cleanup failed: %v\n", err)
				} else if n > 0 {
					fmt.Fprintf(os.Stderr, "cleaned up %d old log files\n", n)
				}
			}
		}
	}()
}

// Close stops the janitor and closes the current file
func (rl *RotatingLogger) Close() error {
	rl.stopOnce.Do(func() {
		if rl.stop != nil {
			rl.stop()
			<-rl.janitor
		}
	})

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.currentFile == nil {
		return nil
	}
	err := rl.currentFile.Close()
	rl.currentFile = nil
	return err
}
