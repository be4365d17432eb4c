package app

import (
	"os"
	"testing"

	"github.com/specialistvlad/unloadcopy/internal/testutil"
)

// SetupAppTest creates a new app instance for system testing. Logs are
// captured in the returned buffer; set UNLOADCOPY_TEST_LOGS=true to print them.
func SetupAppTest(t *testing.T, cfg *Config, opts ...Option) (*App, *testutil.SafeBuffer) {
	t.Helper()

	logBuffer := &testutil.SafeBuffer{}
	cfg.LogLevel = "debug"
	cfg.NoColor = true
	testApp := NewApp(logBuffer, cfg, opts...)

	t.Cleanup(func() {
		if os.Getenv("UNLOADCOPY_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
