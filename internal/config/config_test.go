package config

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 20, cfg.TilesAcross())
	assert.Equal(t, 20, cfg.TilesDown())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"wrong version", func(c *Config) { c.Version = "2.0" }, "unsupported version"},
		{"zero tile size", func(c *Config) { c.TileSize = 0 }, "tile_size"},
		{"negative grid", func(c *Config) { c.GridWidth = -1 }, "grid size"},
		{"zoom order", func(c *Config) { c.MinZoom = 5; c.MaxZoom = 5 }, "min_zoom"},
		{"zero zoom", func(c *Config) { c.MinZoom = 0 }, "zoom bounds"},
		{"primary drag button", func(c *Config) { c.DragButton = ButtonPrimary }, "drag_button"},
		{"renew after ttl", func(c *Config) { c.LockRenewAfter = c.LockTTL }, "lock_renew_after"},
		{"no draw cap", func(c *Config) { c.MaxTilesPerFrame = 0 }, "max_tiles_per_frame"},
		{"bad color", func(c *Config) { c.Display.GridColor = "grey" }, "display.grid_color"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestParse(t *testing.T) {
	t.Run("overrides defaults", func(t *testing.T) {
		cfg, err := Parse([]byte(`
version: "1.0"
tile_size: 16
grid_width: 320
grid_height: 160
max_zoom: 4
render_throttle: 8ms
lock_ttl: 10m
lock_renew_after: 8m
display:
  show_grid: false
  canvas_color: "#fff"
`))
		require.NoError(t, err)
		assert.Equal(t, 16, cfg.TileSize)
		assert.Equal(t, 20, cfg.TilesAcross())
		assert.Equal(t, 10, cfg.TilesDown())
		assert.Equal(t, 4.0, cfg.MaxZoom)
		assert.Equal(t, 0.1, cfg.MinZoom)
		assert.Equal(t, 8*time.Millisecond, cfg.RenderThrottle)
		assert.Equal(t, 10*time.Minute, cfg.LockTTL)
		assert.False(t, cfg.Display.ShowGrid)
		assert.Equal(t, "#fff", cfg.Display.CanvasColor)
	})

	t.Run("rejects invalid result", func(t *testing.T) {
		_, err := Parse([]byte("tile_size: 0\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid config")
	})

	t.Run("rejects malformed yaml", func(t *testing.T) {
		_, err := Parse([]byte("tile_size: [\n"))
		require.Error(t, err)
	})
}

func TestParseHexColor(t *testing.T) {
	c, err := ParseHexColor("#ff8000")
	require.NoError(t, err)
	assert.Equal(t, uint8(255), c.R)
	assert.Equal(t, uint8(128), c.G)
	assert.Equal(t, uint8(0), c.B)
	assert.Equal(t, uint8(255), c.A)

	c, err = ParseHexColor("#0f0")
	require.NoError(t, err)
	assert.Equal(t, uint8(255), c.G)

	c, err = ParseHexColor("#E6E7EA")
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 0xe6, G: 0xe7, B: 0xea, A: 255}, c)

	for _, bad := range []string{"ff8000", "#ff80", "#ggg", "#12345z", "", "#"} {
		_, err = ParseHexColor(bad)
		assert.Error(t, err, bad)
	}
}

func TestValidateReconnectDelays(t *testing.T) {
	cfg := Default()
	cfg.ReconnectDelay = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.ReconnectMaxDelay = cfg.ReconnectDelay / 2
	assert.Error(t, cfg.Validate())

	cfg, err := Parse([]byte("version: \"1.0\"\nreconnect_delay: 1s\nreconnect_max_delay: 1m\n"))
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.ReconnectDelay)
	assert.Equal(t, time.Minute, cfg.ReconnectMaxDelay)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tileboard.yml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"1.0\"\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) {
			select {
			case changes <- c:
			default:
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("version: \"1.0\"\ntile_size: 8\n"), 0o644))

	// A single write can surface as several events, some observing a
	// truncated file, so wait for the final content.
	deadline := time.After(3 * time.Second)
	for seen := false; !seen; {
		select {
		case cfg := <-changes:
			seen = cfg.TileSize == 8
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}

	cancel()
	assert.NoError(t, <-done)
}
