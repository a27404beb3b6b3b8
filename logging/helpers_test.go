package logging

import (
	"log/slog"
	"testing"

	"github.com/giygas/pharmaprice-api/config"
)

// ResetForTest installs a logger writing into dir and restores the previous
// global logger when the test ends
func ResetForTest(t testing.TB, dir string, env config.Environment, level string, retentionWeeks int, maxFileSize int64) {
	t.Helper()
	previous := DefaultLoggingService
	previousDefault := slog.Default()

	service := InitLogger(Options{
		LogDir:         dir,
		Env:            env,
		Level:          level,
		RetentionWeeks: retentionWeeks,
		MaxFileSize:    maxFileSize,
	})

	t.Cleanup(func() {
		_ = service.Close()
		DefaultLoggingService = previous
		slog.SetDefault(previousDefault)
	})
}
