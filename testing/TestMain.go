// Package testing flags the process as a test run when blank-imported from
// a _test.go file.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("GUARDPOST_TEST_MODE", "1")
		if os.Getenv("DISPLAY_TIMEZONE") == "" {
			_ = os.Setenv("DISPLAY_TIMEZONE", "UTC")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
