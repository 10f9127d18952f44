package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/capsule/clog"
	"github.com/ceyewan/capsule/config"
	"github.com/ceyewan/capsule/testkit"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		require.NoError(t, err)
	}
	return string(data)
}

func TestWatchLogLevel_FollowsConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("log:\n  level: warn\n"), 0o644))

	loader, err := config.New(&config.Config{Paths: []string{dir}, EnvPrefix: "CAPSULE_WATCH_TEST"})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	logPath := filepath.Join(dir, "capsule.log")
	logger, err := clog.New(&clog.Config{Level: "warn", Format: "json", Output: logPath})
	require.NoError(t, err)

	ctx, cancel := testkit.NewContext(t, 10*time.Second)
	defer cancel()
	stop, err := watchLogLevel(ctx, loader, logger)
	require.NoError(t, err)
	defer stop()

	logger.Debug("before reload")
	logger.Flush()
	require.NoError(t, os.WriteFile(cfgPath, []byte("log:\n  level: debug\n"), 0o644))

	assert.Eventually(t, func() bool {
		logger.Debug("after reload")
		logger.Flush()
		return strings.Contains(readLog(t, logPath), "after reload")
	}, 5*time.Second, 50*time.Millisecond)
	assert.NotContains(t, readLog(t, logPath), "before reload")
}

func TestWatchLogLevel_InvalidLevelKeepsCurrent(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("log:\n  level: error\n"), 0o644))

	loader, err := config.New(&config.Config{Paths: []string{dir}, EnvPrefix: "CAPSULE_WATCH_TEST"})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	logPath := filepath.Join(dir, "capsule.log")
	logger, err := clog.New(&clog.Config{Level: "warn", Format: "json", Output: logPath})
	require.NoError(t, err)

	ctx, cancel := testkit.NewContext(t, 10*time.Second)
	defer cancel()
	stop, err := watchLogLevel(ctx, loader, logger)
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(cfgPath, []byte("log:\n  level: chatty\n"), 0o644))
	assert.Eventually(t, func() bool {
		logger.Flush()
		return strings.Contains(readLog(t, logPath), "ignoring invalid log level")
	}, 5*time.Second, 50*time.Millisecond)

	logger.Info("still filtered")
	logger.Flush()
	assert.NotContains(t, readLog(t, logPath), "still filtered")
}

func TestLogger_CarriesInvocationID(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "capsule.log")
	logger, err := clog.New(&clog.Config{Level: "info", Format: "json", Output: logPath},
		clog.WithContextField(invocationKey{}, "invocation_id"))
	require.NoError(t, err)

	ctx := context.WithValue(context.Background(), invocationKey{}, "inv-7")
	logger.InfoContext(ctx, "request sent")
	logger.Flush()
	assert.Contains(t, readLog(t, logPath), `"invocation_id":"inv-7"`)
}
