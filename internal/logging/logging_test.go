package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPreInitLoggerUsesConfiguredCore(t *testing.T) {
	logger := L("interceptor")

	var buf bytes.Buffer
	Init("info", "json", &buf)
	t.Cleanup(func() { Init("info", "console", nil) })

	logger.Info("attached", zap.Uintptr(KeyWindow, 0x1234))

	out := buf.String()
	assert.Contains(t, out, `"msg":"attached"`)
	assert.Contains(t, out, `"component":"interceptor"`)
	assert.Contains(t, out, `"hwnd":4660`)
}

func TestPreInitLoggerRespectsConfiguredLevel(t *testing.T) {
	logger := L("lltap")

	var buf bytes.Buffer
	Init("warn", "console", &buf)
	t.Cleanup(func() { Init("info", "console", nil) })

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")

	SetLevel("debug")
	logger.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestRotatingWriterRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "hook.log")
	rw, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	defer rw.Close()

	chunk := bytes.Repeat([]byte("x"), 600*1024)
	_, err = rw.Write(chunk)
	require.NoError(t, err)
	_, err = rw.Write(chunk)
	require.NoError(t, err)

	_, err = os.Stat(path + ".1")
	assert.NoError(t, err, "first file should have been rotated")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(chunk)), info.Size())
}
