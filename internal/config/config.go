package config

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"strings"
	"time"

	"github.com/gogpu/gg"
	"gopkg.in/yaml.v3"
)

// Button identifies a pointer button. The values match the DOM/fyne convention
// where the primary button is 1 and the secondary button is 2.
type Button int

const (
	ButtonPrimary   Button = 1
	ButtonSecondary Button = 2
	ButtonTertiary  Button = 4
)

// DisplayOptions controls the optional layers of the render pipeline.
type DisplayOptions struct {
	ShowGrid               bool    `yaml:"show_grid"`
	ShowTileOutlines       bool    `yaml:"show_tile_outlines"`
	ShowOwnership          bool    `yaml:"show_ownership"`
	ShowEmptyTiles         bool    `yaml:"show_empty_tiles"`
	EmptyTileZoomThreshold float64 `yaml:"empty_tile_zoom_threshold"`
	BackgroundColor        string  `yaml:"background_color"`
	CanvasColor            string  `yaml:"canvas_color"`
	GridColor              string  `yaml:"grid_color"`
}

// Config is the engine configuration, loaded from tileboard.yml.
type Config struct {
	Version string `yaml:"version"`

	TileSize   int `yaml:"tile_size"`
	GridWidth  int `yaml:"grid_width"`  // in world pixels
	GridHeight int `yaml:"grid_height"` // in world pixels

	MinZoom     float64 `yaml:"min_zoom"`
	MaxZoom     float64 `yaml:"max_zoom"`
	OriginBound float64 `yaml:"origin_bound"`

	RenderThrottle   time.Duration `yaml:"render_throttle"`
	ViewportThrottle time.Duration `yaml:"viewport_throttle"`
	MaxTilesPerFrame int           `yaml:"max_tiles_per_frame"`

	DragButton        Button        `yaml:"drag_button"`
	ClickThreshold    float64       `yaml:"click_threshold"`
	TapMaxDuration    time.Duration `yaml:"tap_max_duration"`
	DoubleTapDelay    time.Duration `yaml:"double_tap_delay"`
	DoubleTapDistance float64       `yaml:"double_tap_distance"`

	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	LockTTL           time.Duration `yaml:"lock_ttl"`
	LockRenewAfter    time.Duration `yaml:"lock_renew_after"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// Realtime reconnection backs off exponentially between these bounds.
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	ReconnectMaxDelay time.Duration `yaml:"reconnect_max_delay"`

	Display DisplayOptions `yaml:"display"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Version:           "1.0",
		TileSize:          32,
		GridWidth:         640,
		GridHeight:        640,
		MinZoom:           0.1,
		MaxZoom:           10,
		OriginBound:       100000,
		RenderThrottle:    16 * time.Millisecond,
		ViewportThrottle:  16 * time.Millisecond,
		MaxTilesPerFrame:  500,
		DragButton:        ButtonSecondary,
		ClickThreshold:    15,
		TapMaxDuration:    300 * time.Millisecond,
		DoubleTapDelay:    300 * time.Millisecond,
		DoubleTapDistance: 50,
		IdleTimeout:       5 * time.Minute,
		LockTTL:           30 * time.Minute,
		LockRenewAfter:    25 * time.Minute,
		HeartbeatInterval: 30 * time.Second,
		ReconnectDelay:    500 * time.Millisecond,
		ReconnectMaxDelay: 30 * time.Second,
		Display: DisplayOptions{
			ShowGrid:               true,
			ShowTileOutlines:       false,
			ShowOwnership:          false,
			ShowEmptyTiles:         true,
			EmptyTileZoomThreshold: 0.5,
			BackgroundColor:        "#e6e7ea",
			CanvasColor:            "#f5f6f8",
			GridColor:              "#dcdcdc",
		},
	}
}

// Validate performs strict validation on the configuration
func (c *Config) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}
	if c.TileSize <= 0 {
		return fmt.Errorf("tile_size must be > 0, got %d", c.TileSize)
	}
	if c.GridWidth <= 0 || c.GridHeight <= 0 {
		return fmt.Errorf("grid size must be > 0, got %dx%d", c.GridWidth, c.GridHeight)
	}
	if c.MinZoom <= 0 || c.MaxZoom <= 0 {
		return fmt.Errorf("zoom bounds must be > 0, got [%g, %g]", c.MinZoom, c.MaxZoom)
	}
	if c.MinZoom >= c.MaxZoom {
		return fmt.Errorf("min_zoom (%g) must be less than max_zoom (%g)", c.MinZoom, c.MaxZoom)
	}
	if c.OriginBound <= 0 {
		return fmt.Errorf("origin_bound must be > 0, got %g", c.OriginBound)
	}
	if c.MaxTilesPerFrame <= 0 {
		return fmt.Errorf("max_tiles_per_frame must be > 0, got %d", c.MaxTilesPerFrame)
	}
	switch c.DragButton {
	case ButtonSecondary, ButtonTertiary:
	default:
		return fmt.Errorf("drag_button must be 2 (secondary) or 4 (auxiliary), got %d", c.DragButton)
	}
	if c.ClickThreshold < 0 || c.DoubleTapDistance < 0 {
		return fmt.Errorf("click_threshold and double_tap_distance must not be negative")
	}
	if c.RenderThrottle < 0 || c.ViewportThrottle < 0 {
		return fmt.Errorf("throttle intervals must not be negative")
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("lock_ttl must be > 0")
	}
	if c.LockRenewAfter <= 0 || c.LockRenewAfter >= c.LockTTL {
		return fmt.Errorf("lock_renew_after (%s) must be within (0, lock_ttl=%s)", c.LockRenewAfter, c.LockTTL)
	}
	if c.HeartbeatInterval <= 0 || c.IdleTimeout <= 0 {
		return fmt.Errorf("heartbeat_interval and idle_timeout must be > 0")
	}
	if c.ReconnectDelay <= 0 || c.ReconnectMaxDelay < c.ReconnectDelay {
		return fmt.Errorf("reconnect_delay (%s) must be > 0 and at most reconnect_max_delay (%s)", c.ReconnectDelay, c.ReconnectMaxDelay)
	}
	for name, value := range map[string]string{
		"background_color": c.Display.BackgroundColor,
		"canvas_color":     c.Display.CanvasColor,
		"grid_color":       c.Display.GridColor,
	} {
		if _, err := ParseHexColor(value); err != nil {
			return fmt.Errorf("display.%s: %w", name, err)
		}
	}
	return nil
}

// TilesAcross returns the number of tile columns in the grid.
func (c *Config) TilesAcross() int { return c.GridWidth / c.TileSize }

// TilesDown returns the number of tile rows in the grid.
func (c *Config) TilesDown() int { return c.GridHeight / c.TileSize }

// Load reads a YAML file on top of the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ParseHexColor parses "#rgb" or "#rrggbb" into an opaque color.
func ParseHexColor(s string) (color.NRGBA, error) {
	hex, ok := strings.CutPrefix(s, "#")
	if !ok {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: must start with #", s)
	}
	if len(hex) != 3 && len(hex) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: expected #rgb or #rrggbb", s)
	}
	if strings.TrimLeft(hex, "0123456789abcdefABCDEF") != "" {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: not a hex value", s)
	}
	c := gg.Hex(hex)
	to8 := func(v float64) uint8 { return uint8(math.Round(v * 255)) }
	return color.NRGBA{R: to8(c.R), G: to8(c.G), B: to8(c.B), A: 255}, nil
}
