package anchor

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dshills/storyline/internal/engine/text"
)

// ErrAnchorRecoveryFailed indicates no strategy found a unique match and
// the highlight was kept at clamped last-known offsets. It is a soft
// warning: the returned placement is still usable.
var ErrAnchorRecoveryFailed = errors.New("anchor recovery failed")

// DefaultContextWindow is the number of characters captured on each side
// of a highlight.
const DefaultContextWindow = 32

// Source is the read side of a text store.
type Source interface {
	String() string
	Len() int
	Slice(r text.Range) (string, error)
}

// Option configures a Translator.
type Option func(*Translator)

// WithContextWindow sets how many characters of context are captured.
func WithContextWindow(n int) Option {
	return func(t *Translator) {
		if n > 0 {
			t.window = n
		}
	}
}

// WithLogger sets the logger used for recovery diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(t *Translator) {
		if l != nil {
			t.log = l
		}
	}
}

// Translator maps highlight anchors across edits and recovers them by
// content.
type Translator struct {
	window int
	log    *slog.Logger
}

// NewTranslator creates a translator.
func NewTranslator(opts ...Option) *Translator {
	t := &Translator{
		window: DefaultContextWindow,
		log:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Window returns the configured context window.
func (t *Translator) Window() int {
	return t.window
}

// CaptureContext builds the anchor context for [start, end) of doc.
func CaptureContext(doc Source, start, end, window int) Context {
	span := text.NewRange(start, end).Clamp(doc.Len())
	before, _ := doc.Slice(text.NewRange(max(span.Start-window, 0), span.Start))
	after, _ := doc.Slice(text.NewRange(span.End, min(span.End+window, doc.Len())))
	return Context{Before: before, After: after, Length: span.Len()}
}

// Capture builds a Highlight for a section created over [start, end).
// The highlighted text is read from doc.
func (t *Translator) Capture(doc Source, id, colorClass string, start, end int) Highlight {
	span := text.NewRange(start, end).Clamp(doc.Len())
	covered, _ := doc.Slice(span)
	return Highlight{
		ID:             id,
		ColorClass:     colorClass,
		Text:           covered,
		Anchor:         CaptureContext(doc, span.Start, span.End, t.window),
		LastKnownStart: span.Start,
		LastKnownEnd:   span.End,
	}
}

// Shift moves a placement across one edit. The start anchor follows
// text inserted at it; the end anchor does not, so a highlight never
// grows by typing at its edge.
func (t *Translator) Shift(p Placement, e text.Edit) Placement {
	start := e.MapOffset(p.Start, text.BiasAfter)
	end := e.MapOffset(p.End, text.BiasBefore)
	if start > end {
		start = end
	}
	p.Start, p.End = start, end
	return p
}

// Verify reports whether the placement still covers the highlight's text.
func (t *Translator) Verify(doc Source, h Highlight, p Placement) bool {
	if p.Start >= p.End || h.Text == "" {
		return false
	}
	got, err := doc.Slice(p.Span())
	return err == nil && got == h.Text
}

// Resolve keeps the last known offsets when they still cover the
// highlighted text and otherwise falls back to Recover.
func (t *Translator) Resolve(doc Source, h Highlight) (Placement, error) {
	p := Placement{ID: h.ID, ColorClass: h.ColorClass, Start: h.LastKnownStart, End: h.LastKnownEnd}
	if t.Verify(doc, h, p) {
		p.Strategy = StrategyOffsets
		return p, nil
	}
	return t.Recover(doc, h)
}

// Recover relocates a highlight by content. The first strategy that finds
// a unique match wins:
//
//  1. the before+text+after pattern captured at creation,
//  2. the highlighted text on its own,
//  3. the last known offsets clamped into the text, marked degraded.
//
// The third outcome also returns ErrAnchorRecoveryFailed.
func (t *Translator) Recover(doc Source, h Highlight) (Placement, error) {
	p := Placement{ID: h.ID, ColorClass: h.ColorClass}
	full := doc.String()
	length := runeLen(h.Text)

	if h.Text != "" && (h.Anchor.Before != "" || h.Anchor.After != "") {
		pattern := h.Anchor.Before + h.Text + h.Anchor.After
		if hits := text.Index(full, pattern); len(hits) == 1 {
			p.Start = hits[0] + runeLen(h.Anchor.Before)
			p.End = p.Start + length
			p.Strategy = StrategyContext
			return p, nil
		}
	}

	if h.Text != "" {
		hits := text.Index(full, h.Text)
		if len(hits) == 1 {
			p.Start = hits[0]
			p.End = p.Start + length
			p.Strategy = StrategyText
			return p, nil
		}
		t.log.Debug("anchor text search inconclusive",
			slog.String("highlight", h.ID),
			slog.Int("matches", len(hits)))
	}

	span := h.Span().Clamp(doc.Len())
	p.Start, p.End = span.Start, span.End
	p.Strategy = StrategyClamped
	p.Degraded = true
	return p, fmt.Errorf("highlight %s: %w", h.ID, ErrAnchorRecoveryFailed)
}

// Reanchor recovers every highlight of a registry snapshot. Placements
// are returned in snapshot order. The error joins every soft recovery
// failure and is nil when all highlights were matched by content.
func (t *Translator) Reanchor(doc Source, snapshot []Highlight) ([]Placement, error) {
	out := make([]Placement, 0, len(snapshot))
	var errs []error
	for _, h := range snapshot {
		p, err := t.Recover(doc, h)
		if err != nil {
			errs = append(errs, err)
		}
		out = append(out, p)
	}
	return out, errors.Join(errs...)
}
