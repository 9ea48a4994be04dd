package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/liliang-cn/doclens/internal/config"
)

func TestNew_ConsoleLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := newWithConsole(config.LogConfig{Level: "warn", Format: "console"}, &buf)
	require.NoError(t, err)

	l.Info("hidden")
	l.Warn("shown", zap.String("session_id", "S1"))
	require.NoError(t, l.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "S1")
}

func TestNew_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doclens.log")
	var buf bytes.Buffer
	l, err := newWithConsole(config.LogConfig{Level: "info", Format: "json", File: path}, &buf)
	require.NoError(t, err)

	l.Info("upload complete", zap.Int("chunks", 5))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"chunks":5`)
	assert.Contains(t, buf.String(), `"msg":"upload complete"`)
}

func TestNew_BadLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}
