package app

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

const testModeEnv = "ODYSSEY_TEST_MODE"

var (
	testModeRead sync.Once
	testMode     atomic.Bool
)

func readTestMode() {
	on, err := strconv.ParseBool(os.Getenv(testModeEnv))
	testMode.Store(err == nil && on)
}

// InTestMode reports whether ODYSSEY_TEST_MODE is set. Entrypoints return
// before touching Postgres or Redis when it is.
func InTestMode() bool {
	testModeRead.Do(readTestMode)
	return testMode.Load()
}

// RefreshTestMode re-reads ODYSSEY_TEST_MODE.
func RefreshTestMode() {
	testModeRead.Do(func() {})
	readTestMode()
}
