// Package config reads the tunables of the synchronization core. Every
// value has a default, so the file is optional.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/joeblew999/chronomaps/internal/chronomap"
	"github.com/joeblew999/chronomaps/internal/geoview"
	"github.com/joeblew999/chronomaps/internal/mapsync"
	"github.com/joeblew999/chronomaps/internal/selection"
	"github.com/joeblew999/chronomaps/internal/timeline"
	"github.com/joeblew999/chronomaps/internal/urlstate"
)

// EnvPrefix prefixes environment overrides, e.g. CHRONOMAPS_URL_DEBOUNCE.
const EnvPrefix = "CHRONOMAPS"

type SyncConfig struct {
	SettleDelay        time.Duration `mapstructure:"settleDelay"`
	MarkerRefreshDelay time.Duration `mapstructure:"markerRefreshDelay"`
	FitPadding         float64       `mapstructure:"fitPadding"`
}

type TimelineConfig struct {
	ZoomDebounce      time.Duration `mapstructure:"zoomDebounce"`
	ControlledRelease time.Duration `mapstructure:"controlledRelease"`
	TickCount         int           `mapstructure:"tickCount"`
	NarrowTickCount   int           `mapstructure:"narrowTickCount"`
	Radius            float64       `mapstructure:"radius"`
	FallbackK         float64       `mapstructure:"fallbackK"`
	MinK              float64       `mapstructure:"minK"`
	MaxK              float64       `mapstructure:"maxK"`
}

type SelectionConfig struct {
	ActivationDebounce time.Duration `mapstructure:"activationDebounce"`
	ModeDebounce       time.Duration `mapstructure:"modeDebounce"`
	LayoutFallback     time.Duration `mapstructure:"layoutFallback"`
	SettleFallback     time.Duration `mapstructure:"settleFallback"`
	ChangingRelease    time.Duration `mapstructure:"changingRelease"`
	DeselectDelay      time.Duration `mapstructure:"deselectDelay"`
	ZoneThreshold      float64       `mapstructure:"zoneThreshold"`
	FlySpeed           float64       `mapstructure:"flySpeed"`
}

type URLConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

type ContentConfig struct {
	Endpoint     string        `mapstructure:"endpoint"`
	PollInterval time.Duration `mapstructure:"pollInterval"`
}

type TilesConfig struct {
	MinZoom int `mapstructure:"minZoom"`
	MaxZoom int `mapstructure:"maxZoom"`
}

// Config is the full set of tunables.
type Config struct {
	Sync      SyncConfig      `mapstructure:"sync"`
	Timeline  TimelineConfig  `mapstructure:"timeline"`
	Selection SelectionConfig `mapstructure:"selection"`
	URL       URLConfig       `mapstructure:"url"`
	Content   ContentConfig   `mapstructure:"content"`
	Tiles     TilesConfig     `mapstructure:"tiles"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sync.settleDelay", "1000ms")
	v.SetDefault("sync.markerRefreshDelay", "100ms")
	v.SetDefault("sync.fitPadding", 50)

	v.SetDefault("timeline.zoomDebounce", "500ms")
	v.SetDefault("timeline.controlledRelease", "500ms")
	v.SetDefault("timeline.tickCount", 40)
	v.SetDefault("timeline.narrowTickCount", 12)
	v.SetDefault("timeline.radius", timeline.Radius)
	v.SetDefault("timeline.fallbackK", 10000)
	v.SetDefault("timeline.minK", 1)
	v.SetDefault("timeline.maxK", 100000)

	v.SetDefault("selection.activationDebounce", "1000ms")
	v.SetDefault("selection.modeDebounce", "1000ms")
	v.SetDefault("selection.layoutFallback", "1000ms")
	v.SetDefault("selection.settleFallback", "3000ms")
	v.SetDefault("selection.changingRelease", "1000ms")
	v.SetDefault("selection.deselectDelay", "1000ms")
	v.SetDefault("selection.zoneThreshold", 0.75)
	v.SetDefault("selection.flySpeed", 2)

	v.SetDefault("url.debounce", "250ms")

	v.SetDefault("content.endpoint", "https://api.baserow.io")
	v.SetDefault("content.pollInterval", "60s")

	v.SetDefault("tiles.minZoom", 0)
	v.SetDefault("tiles.maxZoom", 12)
}

// Load reads path (YAML, TOML or JSON by extension) over the defaults.
// An empty path loads defaults and environment overrides only.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error decoding config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in tunables.
func Default() Config {
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

// ViewOptions returns the options for one view. Narrow viewports get fewer
// ticks.
func (c Config) ViewOptions(slug string, desktop bool, logger *slog.Logger) chronomap.Options {
	ticks := c.Timeline.TickCount
	if !desktop {
		ticks = c.Timeline.NarrowTickCount
	}
	return chronomap.Options{
		Slug:       slug,
		Desktop:    desktop,
		FitPadding: c.Sync.FitPadding,
		Logger:     logger,
		Sync: mapsync.Options{
			SettleDelay:        c.Sync.SettleDelay,
			MarkerRefreshDelay: c.Sync.MarkerRefreshDelay,
		},
		Timeline: timeline.Options{
			TickCount:         ticks,
			Radius:            c.Timeline.Radius,
			FallbackK:         c.Timeline.FallbackK,
			MinK:              c.Timeline.MinK,
			MaxK:              c.Timeline.MaxK,
			ZoomDebounce:      c.Timeline.ZoomDebounce,
			ControlledRelease: c.Timeline.ControlledRelease,
		},
		Selection: selection.Options{
			ActivationDebounce: c.Selection.ActivationDebounce,
			ModeDebounce:       c.Selection.ModeDebounce,
			LayoutFallback:     c.Selection.LayoutFallback,
			SettleFallback:     c.Selection.SettleFallback,
			ChangingRelease:    c.Selection.ChangingRelease,
			DeselectDelay:      c.Selection.DeselectDelay,
			ZoneThreshold:      c.Selection.ZoneThreshold,
			FlySpeed:           c.Selection.FlySpeed,
			DetailPadding:      geoview.Uniform(c.Sync.FitPadding),
		},
		URL: urlstate.Options{Debounce: c.URL.Debounce},
	}
}
