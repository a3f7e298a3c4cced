package backend

import (
	"slices"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/uniseg"

	"github.com/dshills/storyline/internal/format"
	"github.com/dshills/storyline/internal/renderer"
	"github.com/dshills/storyline/internal/tree"
)

// EmbedGlyph stands in for a host embed.
const EmbedGlyph = '▣'

// Layout summarizes a paint.
type Layout struct {
	// Rows is the number of screen rows used.
	Rows int

	// Truncated is set when the text did not fit on the screen.
	Truncated bool

	// Comments is the number of comment markers passed.
	Comments int

	// CursorX and CursorY locate the caret when CursorVisible is set.
	CursorX, CursorY int
	CursorVisible    bool
}

// Option configures a Painter.
type Option func(*Painter)

// WithTheme sets the color theme.
func WithTheme(th Theme) Option {
	return func(p *Painter) {
		p.theme = th
	}
}

// WithBaseStyle sets the style of unformatted text.
func WithBaseStyle(s tcell.Style) Option {
	return func(p *Painter) {
		p.base = s
	}
}

// Painter draws a rendered tree.
type Painter struct {
	term  *Terminal
	theme Theme
	base  tcell.Style
}

// NewPainter creates a painter drawing on term.
func NewPainter(term *Terminal, opts ...Option) *Painter {
	p := &Painter{
		term:  term,
		theme: DefaultTheme(),
		base:  tcell.StyleDefault,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetTheme replaces the color theme used by later paints.
func (p *Painter) SetTheme(th Theme) {
	p.theme = th
}

// Paint clears the screen and draws t, wrapping at the screen width.
func (p *Painter) Paint(t *tree.Tree) Layout {
	width, height := p.term.Size()
	p.term.Clear()

	var lay Layout
	x, y := 0, 0
	caret := t.CaretOffset()
	offset := 0

	place := func(w int) bool {
		if x+w > width && x > 0 {
			x, y = 0, y+1
		}
		if y >= height {
			lay.Truncated = true
			return false
		}
		return true
	}
	mark := func() {
		if caret == offset && !lay.CursorVisible {
			lay.CursorX, lay.CursorY, lay.CursorVisible = x, y, true
		}
	}

leaves:
	for leaf := range tree.Leaves(t.Root()) {
		n := leaf.Node
		switch n.Type {
		case tree.NodeMarker:
			if renderer.IsMarker(n) {
				lay.Comments++
			}
			continue
		case tree.NodeEmbed:
			if !place(1) {
				break leaves
			}
			p.term.SetCell(x, y, []rune{EmbedGlyph}, p.styleFor(n).Dim(true))
			x++
			continue
		}

		style := p.styleFor(n)
		g := uniseg.NewGraphemes(n.Text())
		for g.Next() {
			cluster := g.Runes()
			mark()
			offset += len(cluster)

			if cluster[0] == '\n' || cluster[0] == '\r' {
				x, y = 0, y+1
				continue
			}
			w := g.Width()
			if w == 0 {
				continue
			}
			if !place(w) {
				break leaves
			}
			p.term.SetCell(x, y, cluster, style)
			x += w
		}
	}
	if !lay.Truncated {
		mark()
	}

	if y < height {
		lay.Rows = y + 1
	} else {
		lay.Rows = height
	}
	if t.Len() == 0 {
		lay.Rows = 0
	}

	if lay.CursorVisible {
		p.term.ShowCursor(lay.CursorX, lay.CursorY)
	} else {
		p.term.HideCursor()
	}
	p.term.Show()
	return lay
}

// styleFor folds the overlay wrappers above n into a style, outermost
// first so inner wrappers win.
func (p *Painter) styleFor(n *tree.Node) tcell.Style {
	style := p.base
	chain := n.Ancestors()
	slices.Reverse(chain)

	for _, a := range chain {
		if !renderer.IsOverlay(a) {
			continue
		}
		if a.Attr(renderer.AttrOverlay) == renderer.OverlayMark {
			degraded := a.Attr(renderer.AttrDegraded) == "true"
			style = p.theme.HighlightStyle(style, a.Attr(renderer.AttrColor), degraded)
			continue
		}
		kind, ok := renderer.OverlayKind(a)
		if !ok {
			continue
		}
		switch kind {
		case format.KindBold:
			style = style.Bold(true)
		case format.KindItalic:
			style = style.Italic(true)
		case format.KindUnderline:
			style = style.Underline(true)
		case format.KindHeading:
			style = style.Bold(true).Foreground(toTcell(p.theme.Heading))
		case format.KindQuote:
			style = style.Italic(true).Foreground(toTcell(p.theme.Quote))
		}
	}
	return style
}
