package backend

import (
	"errors"
	"fmt"
	"hash/fnv"
	"maps"

	"github.com/gdamore/tcell/v2"
	"github.com/lucasb-eyer/go-colorful"
)

// ErrInvalidColor indicates a theme color could not be parsed.
var ErrInvalidColor = errors.New("invalid theme color")

// Theme maps section color classes and block kinds to colors.
type Theme struct {
	// Highlights maps a color class to its background color.
	Highlights map[string]colorful.Color

	// Heading is the foreground color of headings.
	Heading colorful.Color

	// Quote is the foreground color of block quotes.
	Quote colorful.Color

	// Paper is the blend target for degraded highlights.
	Paper colorful.Color
}

// DefaultTheme returns the built-in theme.
func DefaultTheme() Theme {
	return Theme{
		Highlights: map[string]colorful.Color{
			"blue":   mustHex("#9ec5fe"),
			"green":  mustHex("#a3cfbb"),
			"yellow": mustHex("#ffe69c"),
			"pink":   mustHex("#f1aeb5"),
			"purple": mustHex("#c5b3e6"),
		},
		Heading: mustHex("#e8a33d"),
		Quote:   mustHex("#8a8f98"),
		Paper:   mustHex("#1e1e1e"),
	}
}

// ParseTheme overlays hex colors onto the default theme. Keys are color
// classes.
func ParseTheme(classes map[string]string) (Theme, error) {
	th := DefaultTheme()
	th.Highlights = maps.Clone(th.Highlights)
	for class, hex := range classes {
		c, err := colorful.Hex(hex)
		if err != nil {
			return Theme{}, fmt.Errorf("%w: %s=%q: %w", ErrInvalidColor, class, hex, err)
		}
		th.Highlights[class] = c
	}
	return th, nil
}

// HighlightColor returns the background of a color class. Unknown
// classes get a stable pastel derived from the class name.
func (th Theme) HighlightColor(class string) colorful.Color {
	if c, ok := th.Highlights[class]; ok {
		return c
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(class))
	hue := float64(h.Sum32() % 360)
	return colorful.Hcl(hue, 0.35, 0.85).Clamped()
}

// HighlightStyle applies a highlight's colors to style. Degraded
// highlights are washed out toward the paper color.
func (th Theme) HighlightStyle(style tcell.Style, class string, degraded bool) tcell.Style {
	bg := th.HighlightColor(class)
	if degraded {
		bg = bg.BlendLab(th.Paper, 0.5).Clamped()
	}
	return style.Background(toTcell(bg)).Foreground(toTcell(contrast(bg)))
}

var (
	ink  = colorful.Color{}
	snow = colorful.Color{R: 1, G: 1, B: 1}
)

// contrast picks dark or light text for a background.
func contrast(bg colorful.Color) colorful.Color {
	l, _, _ := bg.Lab()
	if l > 0.6 {
		return ink
	}
	return snow
}

func toTcell(c colorful.Color) tcell.Color {
	r, g, b := c.RGB255()
	return tcell.NewRGBColor(int32(r), int32(g), int32(b))
}

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}
