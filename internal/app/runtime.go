package app

import (
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

const testModeEnv = "CARRIERNEST_TEST_MODE"

var (
	testMode     atomic.Bool
	testModeOnce sync.Once
)

func loadTestMode() {
	on, err := strconv.ParseBool(os.Getenv(testModeEnv))
	testMode.Store(err == nil && on)
}

// InTestMode reports whether commands should skip connecting to Postgres,
// Redis and the mail relay.
func InTestMode() bool {
	testModeOnce.Do(loadTestMode)
	return testMode.Load()
}

// RefreshTestMode re-reads CARRIERNEST_TEST_MODE after the environment changed.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	loadTestMode()
}

// SkipStartup logs and returns true when component must not start because
// the process runs under test.
func SkipStartup(component string) bool {
	if !InTestMode() {
		return false
	}
	slog.Default().Info("test mode detected, skipping startup", slog.String("component", component))
	return true
}
