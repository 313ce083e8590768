package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevelRecognizesNames(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, logrus.WarnLevel, parseLogLevel("warning"))
	assert.Equal(t, logrus.ErrorLevel, parseLogLevel("ERROR"))
	assert.Equal(t, logrus.InfoLevel, parseLogLevel("bogus"))
}

func TestInitLoggerWritesToConfiguredFiles(t *testing.T) {
	dir := t.TempDir()
	infoPath := filepath.Join(dir, "info.log")
	errPath := filepath.Join(dir, "error.log")

	require.NoError(t, InitLogger(LogConfig{LogLevel: "info", InfoLogPath: infoPath, ErrorLogPath: errPath}))
	require.NotNil(t, Logger)

	Infof("hello %s", "world")
	Errorf("boom %d", 1)

	infoData, err := os.ReadFile(infoPath)
	require.NoError(t, err)
	assert.Contains(t, string(infoData), "hello world")

	errData, err := os.ReadFile(errPath)
	require.NoError(t, err)
	assert.Contains(t, string(errData), "boom 1")
}

func TestInitLoggerFallsBackToStdoutWithoutPaths(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{LogLevel: "debug"}))
	assert.NotPanics(t, func() { Debug("no file configured") })
}
