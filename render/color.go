package render

import (
	"fmt"
	"image/color"
	"strings"
)

// ParseColor converts "#rgb", "#rrggbb" or "#rrggbbaa" into a color.
// Invalid tokens fall back to opaque black.
func ParseColor(hex string) color.NRGBA {
	hex = strings.TrimPrefix(hex, "#")

	switch len(hex) {
	case 3:
		r := parseHexDigit(hex[0])
		g := parseHexDigit(hex[1])
		b := parseHexDigit(hex[2])
		return color.NRGBA{R: r * 17, G: g * 17, B: b * 17, A: 0xff}
	case 6:
		return color.NRGBA{R: parseHexByte(hex[0:2]), G: parseHexByte(hex[2:4]), B: parseHexByte(hex[4:6]), A: 0xff}
	case 8:
		return color.NRGBA{R: parseHexByte(hex[0:2]), G: parseHexByte(hex[2:4]), B: parseHexByte(hex[4:6]), A: parseHexByte(hex[6:8])}
	}

	return color.NRGBA{A: 0xff}
}

// withAlpha returns c with its alpha replaced by a (0..1)
func withAlpha(c color.NRGBA, a float64) color.NRGBA {
	if a < 0 {
		a = 0
	}
	if a > 1 {
		a = 1
	}
	c.A = uint8(a*255 + 0.5)
	return c
}

// cssColor formats c for SVG output
func cssColor(c color.NRGBA) string {
	if c.A == 0xff {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("rgba(%d,%d,%d,%.3f)", c.R, c.G, c.B, float64(c.A)/255)
}

func parseHexDigit(c byte) uint8 {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

func parseHexByte(s string) uint8 {
	var result uint8
	for i := 0; i < len(s); i++ {
		result = result*16 + parseHexDigit(s[i])
	}
	return result
}
