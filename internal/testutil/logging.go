package testutil

import (
	"context"
	"os"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/specialistvlad/unloadcopy/internal/ctxlog"
)

// LoggerContext returns a context carrying a debug-level logger that writes
// into the returned buffer. Set UNLOADCOPY_TEST_LOGS=true to dump the output
// after the test.
func LoggerContext(t *testing.T) (context.Context, *SafeBuffer) {
	t.Helper()

	buf := &SafeBuffer{}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewDevelopmentEncoderConfig()),
		buf,
		zapcore.DebugLevel,
	)
	logger := zap.New(core)

	t.Cleanup(func() {
		if os.Getenv("UNLOADCOPY_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), buf.String())
		}
	})
	return ctxlog.WithLogger(context.Background(), logger), buf
}
