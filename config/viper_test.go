package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clientSection struct {
	BaseURL  string        `mapstructure:"base_url"`
	Platform string        `mapstructure:"platform"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_LoadFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
client:
  base_url: https://api.example.com
  platform: linux
  timeout: 5s
`)
	loader, err := New(&Config{Paths: []string{dir}, EnvPrefix: "CAPSULE_T1"})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	var c clientSection
	require.NoError(t, loader.UnmarshalKey("client", &c))
	assert.Equal(t, "https://api.example.com", c.BaseURL)
	assert.Equal(t, "linux", c.Platform)
	assert.Equal(t, 5*time.Second, c.Timeout)
	assert.Equal(t, "linux", loader.Get("client.platform"))
}

func TestLoader_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "client:\n  platform: linux\n")
	t.Setenv("CAPSULE_T2_CLIENT_PLATFORM", "darwin")

	loader, err := New(&Config{Paths: []string{dir}, EnvPrefix: "capsule_t2"})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))
	assert.Equal(t, "darwin", loader.Get("client.platform"))
}

func TestLoader_EnvironmentFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "client:\n  platform: linux\n  base_url: http://a\n")
	writeFile(t, dir, "config.staging.yaml", "client:\n  base_url: http://staging\n")
	t.Setenv("CAPSULE_T3_ENV", "staging")

	loader, err := New(&Config{Paths: []string{dir}, EnvPrefix: "CAPSULE_T3"})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))
	assert.Equal(t, "http://staging", loader.Get("client.base_url"))
	assert.Equal(t, "linux", loader.Get("client.platform"))
}

func TestLoader_Defaults(t *testing.T) {
	loader, err := New(&Config{
		Paths:     []string{t.TempDir()},
		EnvPrefix: "CAPSULE_T4",
		Defaults:  map[string]any{"client.platform": "go"},
	})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))
	assert.Equal(t, "go", loader.Get("client.platform"))
}

func TestLoader_EmptyFails(t *testing.T) {
	loader, err := New(&Config{Paths: []string{t.TempDir()}, EnvPrefix: "CAPSULE_T5"})
	require.NoError(t, err)
	err = loader.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.True(t, IsInvalidInput(err))
}

func TestLoader_Watch(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "client:\n  platform: linux\n")

	loader, err := New(&Config{Paths: []string{dir}, EnvPrefix: "CAPSULE_T6"})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := loader.Watch(ctx, "client.platform")
	require.NoError(t, err)

	_, err = loader.Watch(ctx, "")
	assert.Error(t, err)

	// 给 fsnotify 留出注册时间
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("client:\n  platform: windows\n"), 0o644))

	select {
	case ev := <-ch:
		assert.Equal(t, "client.platform", ev.Key)
		assert.Equal(t, "windows", ev.Value)
		assert.Equal(t, "linux", ev.OldValue)
		assert.Equal(t, "file", ev.Source)
	case <-time.After(3 * time.Second):
		t.Fatal("no change event")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, time.Second, 10*time.Millisecond)
}
