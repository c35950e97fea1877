package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.Sync.SettleDelay)
	assert.Equal(t, 100*time.Millisecond, cfg.Sync.MarkerRefreshDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Timeline.ZoomDebounce)
	assert.Equal(t, 40, cfg.Timeline.TickCount)
	assert.Equal(t, 12, cfg.Timeline.NarrowTickCount)
	assert.Equal(t, 10000.0, cfg.Timeline.FallbackK)
	assert.Equal(t, 3*time.Second, cfg.Selection.SettleFallback)
	assert.Equal(t, 0.75, cfg.Selection.ZoneThreshold)
	assert.Equal(t, 250*time.Millisecond, cfg.URL.Debounce)
	assert.Equal(t, time.Minute, cfg.Content.PollInterval)
	assert.Equal(t, 12, cfg.Tiles.MaxZoom)
}

func TestLoadYAMLOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chronomaps.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sync:
  settleDelay: 2s
url:
  debounce: 100ms
selection:
  zoneThreshold: 0.5
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Sync.SettleDelay)
	assert.Equal(t, 100*time.Millisecond, cfg.URL.Debounce)
	assert.Equal(t, 0.5, cfg.Selection.ZoneThreshold)
	assert.Equal(t, 500*time.Millisecond, cfg.Timeline.ZoomDebounce, "untouched keys keep defaults")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CHRONOMAPS_URL_DEBOUNCE", "75ms")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 75*time.Millisecond, cfg.URL.Debounce)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/chronomaps.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestViewOptions(t *testing.T) {
	cfg := Default()

	desk := cfg.ViewOptions("demo", true, nil)
	assert.Equal(t, "demo", desk.Slug)
	assert.Equal(t, 40, desk.Timeline.TickCount)
	assert.Equal(t, time.Second, desk.Sync.SettleDelay)
	assert.Equal(t, 2.0, desk.Selection.FlySpeed)
	assert.Equal(t, 50.0, desk.Selection.DetailPadding.Top)

	narrow := cfg.ViewOptions("demo", false, nil)
	assert.Equal(t, 12, narrow.Timeline.TickCount)
}
