package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"image/color"
	"math"
	"strings"

	"github.com/gogpu/gg"
)

var namedColors = map[string]color.NRGBA{
	"black":  {A: 255},
	"white":  {R: 255, G: 255, B: 255, A: 255},
	"red":    {R: 255, A: 255},
	"green":  {G: 255, A: 255},
	"blue":   {B: 255, A: 255},
	"yellow": {R: 255, G: 255, A: 255},
	"cyan":   {G: 255, B: 255, A: 255},
	"orange": {R: 255, G: 165, A: 255},
	"purple": {R: 128, B: 128, A: 255},
	"gray":   {R: 128, G: 128, B: 128, A: 255},
	"grey":   {R: 128, G: 128, B: 128, A: 255},
}

// ResolvePixel turns one raw pixel entry into a paint color. paint is false
// for entries that mean "leave this pixel unpainted": null, false, 0, "",
// "transparent" and any color whose alpha is zero. Painted colors are opaque.
// An error means the entry is malformed.
func ResolvePixel(raw json.RawMessage) (c color.NRGBA, paint bool, err error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return color.NRGBA{}, false, nil
	}

	switch raw[0] {
	case 'n':
		if string(raw) == "null" {
			return color.NRGBA{}, false, nil
		}
	case 'f':
		if string(raw) == "false" {
			return color.NRGBA{}, false, nil
		}
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return color.NRGBA{}, false, fmt.Errorf("bad color string: %w", err)
		}
		return resolveString(s)
	case '[':
		var parts []float64
		if err := json.Unmarshal(raw, &parts); err != nil {
			return color.NRGBA{}, false, fmt.Errorf("bad color tuple: %w", err)
		}
		return resolveTuple(parts)
	case '{':
		var obj struct {
			R, G, B *float64
			A       *float64
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return color.NRGBA{}, false, fmt.Errorf("bad color object: %w", err)
		}
		if obj.R == nil || obj.G == nil || obj.B == nil {
			return color.NRGBA{}, false, fmt.Errorf("color object needs r, g and b")
		}
		parts := []float64{*obj.R, *obj.G, *obj.B}
		if obj.A != nil {
			parts = append(parts, *obj.A)
		}
		return resolveTuple(parts)
	default:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return color.NRGBA{}, false, fmt.Errorf("unsupported pixel value %s", raw)
		}
		if n == 0 {
			return color.NRGBA{}, false, nil
		}
		if n < 0 || n > 0xFFFFFF || n != math.Trunc(n) {
			return color.NRGBA{}, false, fmt.Errorf("color number %v out of range", n)
		}
		v := uint32(n)
		return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, true, nil
	}
	return color.NRGBA{}, false, fmt.Errorf("unsupported pixel value %s", raw)
}

func resolveString(s string) (color.NRGBA, bool, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "" || s == "transparent" || s == "none":
		return color.NRGBA{}, false, nil
	case strings.HasPrefix(s, "#"):
		hex := s[1:]
		switch len(hex) {
		case 3, 4, 6, 8:
		default:
			return color.NRGBA{}, false, fmt.Errorf("bad hex color %q", s)
		}
		for _, r := range hex {
			if !strings.ContainsRune("0123456789abcdef", r) {
				return color.NRGBA{}, false, fmt.Errorf("bad hex color %q", s)
			}
		}
		c := gg.Hex(hex)
		if c.A == 0 {
			return color.NRGBA{}, false, nil
		}
		return opaque(c), true, nil
	case strings.HasPrefix(s, "rgba("):
		var r, g, b, a float64
		if _, err := fmt.Sscanf(s, "rgba(%g,%g,%g,%g)", &r, &g, &b, &a); err != nil {
			if _, err := fmt.Sscanf(s, "rgba(%g, %g, %g, %g)", &r, &g, &b, &a); err != nil {
				return color.NRGBA{}, false, fmt.Errorf("bad rgba color %q", s)
			}
		}
		return resolveTuple([]float64{r, g, b, a})
	case strings.HasPrefix(s, "rgb("):
		var r, g, b float64
		if _, err := fmt.Sscanf(s, "rgb(%g,%g,%g)", &r, &g, &b); err != nil {
			if _, err := fmt.Sscanf(s, "rgb(%g, %g, %g)", &r, &g, &b); err != nil {
				return color.NRGBA{}, false, fmt.Errorf("bad rgb color %q", s)
			}
		}
		return resolveTuple([]float64{r, g, b})
	}
	if c, ok := namedColors[s]; ok {
		return c, true, nil
	}
	return color.NRGBA{}, false, fmt.Errorf("unknown color %q", s)
}

// resolveTuple accepts [r,g,b] or [r,g,b,a] with channels in 0..255. Alpha up
// to 1 is read as a fraction, larger values as 0..255.
func resolveTuple(parts []float64) (color.NRGBA, bool, error) {
	if len(parts) != 3 && len(parts) != 4 {
		return color.NRGBA{}, false, fmt.Errorf("color tuple needs 3 or 4 values, got %d", len(parts))
	}
	for _, p := range parts[:3] {
		if p < 0 || p > 255 || math.IsNaN(p) {
			return color.NRGBA{}, false, fmt.Errorf("color channel %v out of range", p)
		}
	}
	if len(parts) == 4 {
		a := parts[3]
		if a < 0 || a > 255 || math.IsNaN(a) {
			return color.NRGBA{}, false, fmt.Errorf("alpha %v out of range", a)
		}
		if a == 0 {
			return color.NRGBA{}, false, nil
		}
	}
	return color.NRGBA{
		R: uint8(math.Round(parts[0])),
		G: uint8(math.Round(parts[1])),
		B: uint8(math.Round(parts[2])),
		A: 255,
	}, true, nil
}

// OwnerColor returns a stable, distinguishable color for a user id.
func OwnerColor(userID string) color.NRGBA {
	h := fnv.New32a()
	h.Write([]byte(userID))
	hue := float64(h.Sum32() % 360)
	return opaque(gg.HSL(hue, 0.65, 0.5))
}

func opaque(c gg.RGBA) color.NRGBA {
	to8 := func(v float64) uint8 { return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255)) }
	return color.NRGBA{R: to8(c.R), G: to8(c.G), B: to8(c.B), A: 255}
}
