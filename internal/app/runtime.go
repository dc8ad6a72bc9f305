package app

import (
	"os"
	"sync"
	"sync/atomic"
)

const testModeEnv = "CUSTODY_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

func detectTestMode() {
	v := os.Getenv(testModeEnv)
	testModeFlag.Store(v == "1" || v == "true")
}

// InTestMode reports whether binaries should skip runtime side effects such as
// opening database pools or listening on ports.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode re-reads CUSTODY_TEST_MODE after environment changes.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	detectTestMode()
}
