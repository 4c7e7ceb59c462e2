package theme

import (
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// FallbackColor is used for colour values that cannot be parsed.
const FallbackColor = "#000000"

var namedColors = map[string]string{
	"black":     "#000000",
	"darkgray":  "#444444",
	"gray":      "#888888",
	"lightgray": "#cccccc",
	"white":     "#ffffff",
	"red":       "#ff0000",
	"green":     "#00ff00",
	"blue":      "#0000ff",
	"yellow":    "#ffff00",
	"cyan":      "#00ffff",
	"magenta":   "#ff00ff",
	"aqua":      "#00ffff",
	"fuchsia":   "#ff00ff",
	"darkgrey":  "#444444",
	"grey":      "#888888",
	"lightgrey": "#cccccc",
	"lime":      "#00ff00",
	"maroon":    "#800000",
	"navy":      "#000080",
	"olive":     "#808000",
	"purple":    "#800080",
	"silver":    "#c0c0c0",
	"teal":      "#008080",
}

// ParseColor converts a CSS-like colour value into "#rrggbb". It accepts
// "#rgb", "#rrggbb", "#aarrggbb", "rgb(r, g, b)", "rgba(r, g, b, a)" and a
// small table of colour names. Anything else yields FallbackColor.
func ParseColor(css string) string {
	c, ok := lookupColor(css)
	if !ok {
		return FallbackColor
	}
	return c.Hex()
}

func lookupColor(css string) (colorful.Color, bool) {
	css = strings.ToLower(strings.TrimSpace(css))
	if named, ok := namedColors[css]; ok {
		css = named
	}

	if strings.HasPrefix(css, "#") {
		if len(css) == 9 {
			// Alpha is not carried by colour spans.
			css = "#" + css[3:]
		}
		c, err := colorful.Hex(css)
		if err != nil {
			return colorful.Color{}, false
		}
		return c, true
	}

	var args string
	switch {
	case strings.HasPrefix(css, "rgba(") && strings.HasSuffix(css, ")"):
		args = css[len("rgba(") : len(css)-1]
	case strings.HasPrefix(css, "rgb(") && strings.HasSuffix(css, ")"):
		args = css[len("rgb(") : len(css)-1]
	default:
		return colorful.Color{}, false
	}

	parts := strings.Split(args, ",")
	if len(parts) < 3 {
		return colorful.Color{}, false
	}
	var rgb [3]float64
	for i := 0; i < 3; i++ {
		v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil || v < 0 || v > 255 {
			return colorful.Color{}, false
		}
		rgb[i] = float64(v) / 255.0
	}
	return colorful.Color{R: rgb[0], G: rgb[1], B: rgb[2]}, true
}
