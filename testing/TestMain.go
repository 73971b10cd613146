// Package testing sets process-wide test mode for packages that import it
// and carries small fixtures shared by their tests.
package testing

import (
	"io"
	"log/slog"
	"os"
	"sync"
	stdtesting "testing"
)

const testModeEnv = "ODYSSEY_TEST_MODE"

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv(testModeEnv, "1")
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}

// QuietLogger discards every record.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
