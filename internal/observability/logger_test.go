// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/scalpel-driver/internal/config"
)

// syncBuffer is a bytes.Buffer satisfying zapcore.WriteSyncer.
type syncBuffer struct{ bytes.Buffer }

func (*syncBuffer) Sync() error { return nil }

func TestBuild(t *testing.T) {
	t.Run("console output is colorized and named", func(t *testing.T) {
		var buf syncBuffer
		logger, _, err := Build(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "driver",
			Colors:      config.ColorConfig{Info: "blue"},
		}, &buf)
		require.NoError(t, err)

		logger.Named("server").Info("Listening.")
		logger.Warn("Careful.")

		out := buf.String()
		assert.Contains(t, out, colorBlue+"INFO"+colorReset, "configured color wins")
		assert.Contains(t, out, colorYellow+"WARN"+colorReset, "unset levels use the default color")
		assert.Contains(t, out, "driver.server.")
		assert.Contains(t, out, "Listening.")
	})

	t.Run("json output", func(t *testing.T) {
		var buf syncBuffer
		logger, _, err := Build(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "driver"}, &buf)
		require.NoError(t, err)

		logger.Warn("Command abandoned.", zap.String("session_id", "abc"))
		logger.Debug("Dropped by level.")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "exactly one JSON line expected")
		assert.Equal(t, "warn", entry["level"])
		assert.Equal(t, "driver", entry["logger"])
		assert.Equal(t, "Command abandoned.", entry["msg"])
		assert.Equal(t, "abc", entry["session_id"])
	})

	t.Run("also writes a rotated file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "driver.log")
		logger, closer, err := Build(config.LoggerConfig{
			Level:   "debug",
			Format:  "console",
			LogFile: path,
			MaxSize: 1,
		}, zapcore.AddSync(&bytes.Buffer{}))
		require.NoError(t, err)

		logger.Error("Session crashed.")
		require.NoError(t, logger.Sync())
		require.NoError(t, closer.Close())

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), `"msg":"Session crashed."`, "file copy is JSON")
	})

	t.Run("rejects an unknown level", func(t *testing.T) {
		_, _, err := Build(config.LoggerConfig{Level: "verbose"}, &syncBuffer{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}

func TestInitialize(t *testing.T) {
	t.Cleanup(ResetForTest)

	t.Run("only the first call takes effect", func(t *testing.T) {
		ResetForTest()
		var buf syncBuffer
		require.NoError(t, Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "First"}, &buf))
		first := GetLogger()

		require.NoError(t, Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, &buf))
		assert.Same(t, first, GetLogger())

		GetLogger().Info("hello")
		Sync()
		assert.Contains(t, buf.String(), "First")
		assert.NotContains(t, buf.String(), "Second")
	})

	t.Run("a failed initialization leaves the fallback", func(t *testing.T) {
		ResetForTest()
		err := Initialize(config.LoggerConfig{Level: "loud"}, &syncBuffer{})
		require.Error(t, err)
		assert.Nil(t, globalLogger.Load())
		assert.NotNil(t, GetLogger())
	})
}
