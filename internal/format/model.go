package format

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/storyline/internal/engine/text"
)

// Option configures a Model.
type Option func(*Model)

// WithIDGenerator sets the function used to mint range and comment IDs.
func WithIDGenerator(fn func() string) Option {
	return func(m *Model) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// WithClock sets the clock used to timestamp comments.
func WithClock(fn func() time.Time) Option {
	return func(m *Model) {
		if fn != nil {
			m.now = fn
		}
	}
}

// Model holds the formatting ranges and comments of one document.
//
// The model knows the length of the text it decorates but never the text
// itself. It is owned by a single session and is not safe for concurrent
// use.
type Model struct {
	ranges   []Range
	comments []Comment
	length   int

	newID func() string
	now   func() time.Time
}

// NewModel creates an empty model over a text of the given length.
func NewModel(length int, opts ...Option) *Model {
	m := &Model{
		length: max(length, 0),
		newID:  func() string { return uuid.NewString() },
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Len returns the text length the model is validated against.
func (m *Model) Len() int {
	return m.length
}

// Reset drops every range and comment and adopts a new text length.
// It is used when a new document replaces the text.
func (m *Model) Reset(length int) {
	m.ranges = nil
	m.comments = nil
	m.length = max(length, 0)
}

// Ranges returns a copy of all ranges ordered by start, then rank.
func (m *Model) Ranges() []Range {
	out := make([]Range, len(m.ranges))
	for i, r := range m.ranges {
		out[i] = r.Clone()
	}
	return out
}

// Range returns the range with the given ID.
func (m *Model) Range(id string) (Range, bool) {
	for _, r := range m.ranges {
		if r.ID == id {
			return r.Clone(), true
		}
	}
	return Range{}, false
}

// AddRange applies kind over [start, end).
//
// It returns the ID of the range that now carries the formatting, or an
// empty ID when the call removed formatting instead (a toggle off). An
// empty span is a no-op that also returns an empty ID. Malformed input
// returns ErrInvalidRange and leaves the model untouched.
func (m *Model) AddRange(start, end int, kind Kind, level int) (string, error) {
	if err := m.validate(start, end, kind, level); err != nil {
		return "", err
	}
	if start == end {
		return "", nil
	}
	if kind != KindHeading {
		level = 0
	}

	span := text.NewRange(start, end)
	var id string
	switch kind.Toggle() {
	case ToggleReplace:
		id = m.applyBlock(span, kind, level)
	case ToggleUnion:
		id = m.applyCharacter(span, kind)
	}
	m.sort()
	return id, nil
}

// SetStyleData attaches opaque style data to a range.
func (m *Model) SetStyleData(id string, data map[string]string) bool {
	for i := range m.ranges {
		if m.ranges[i].ID == id {
			m.ranges[i].StyleData = maps.Clone(data)
			return true
		}
	}
	return false
}

func (m *Model) validate(start, end int, kind Kind, level int) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %w: %d", ErrInvalidRange, ErrUnknownKind, uint8(kind))
	}
	if kind == KindHeading && (level < MinHeadingLevel || level > MaxHeadingLevel) {
		return fmt.Errorf("%w: %w: %d", ErrInvalidRange, ErrInvalidLevel, level)
	}
	if start < 0 || end > m.length || start > end {
		return fmt.Errorf("%w: [%d:%d) over text of %d", ErrInvalidRange, start, end, m.length)
	}
	return nil
}

// applyBlock replaces block formatting over span. An identical block
// range toggles off.
func (m *Model) applyBlock(span text.Range, kind Kind, level int) string {
	for i, r := range m.ranges {
		if r.Kind == kind && r.Level == level && r.Span() == span {
			m.ranges = slices.Delete(m.ranges, i, i+1)
			return ""
		}
	}

	m.subtract(span, func(r Range) bool { return r.Kind.IsBlock() })
	nr := Range{ID: m.newID(), Start: span.Start, End: span.End, Kind: kind, Level: level}
	m.ranges = append(m.ranges, nr)
	return nr.ID
}

// applyCharacter toggles a character kind: a fully covered span is
// removed, anything else is unioned with the ranges it touches.
func (m *Model) applyCharacter(span text.Range, kind Kind) string {
	sameKind := func(r Range) bool { return r.Kind == kind }

	if m.covered(span, sameKind) {
		m.subtract(span, sameKind)
		return ""
	}

	merged := span
	var style map[string]string
	keep := m.ranges[:0:0]
	for _, r := range m.ranges {
		if r.Kind == kind && r.Span().Touches(span) {
			merged = merged.Union(r.Span())
			if len(r.StyleData) > 0 {
				if style == nil {
					style = make(map[string]string)
				}
				maps.Copy(style, r.StyleData)
			}
			continue
		}
		keep = append(keep, r)
	}

	nr := Range{ID: m.newID(), Start: merged.Start, End: merged.End, Kind: kind, StyleData: style}
	m.ranges = append(keep, nr)
	return nr.ID
}

// covered reports whether the union of ranges matching pred spans all of span.
func (m *Model) covered(span text.Range, pred func(Range) bool) bool {
	var hits []text.Range
	for _, r := range m.ranges {
		if pred(r) && r.Span().Overlaps(span) {
			hits = append(hits, r.Span())
		}
	}
	slices.SortFunc(hits, func(a, b text.Range) int { return a.Start - b.Start })

	pos := span.Start
	for _, h := range hits {
		if h.Start > pos {
			return false
		}
		pos = max(pos, h.End)
		if pos >= span.End {
			return true
		}
	}
	return pos >= span.End
}

// subtract removes span from every range matching pred. A range split in
// two keeps its ID on the left part; the right part gets a new ID.
func (m *Model) subtract(span text.Range, pred func(Range) bool) {
	out := make([]Range, 0, len(m.ranges)+1)
	for _, r := range m.ranges {
		if !pred(r) || !r.Span().Overlaps(span) {
			out = append(out, r)
			continue
		}
		leftKept := false
		if r.Start < span.Start {
			left := r.Clone()
			left.End = span.Start
			out = append(out, left)
			leftKept = true
		}
		if span.End < r.End {
			right := r.Clone()
			right.Start = span.End
			if leftKept {
				right.ID = m.newID()
			}
			out = append(out, right)
		}
	}
	m.ranges = out
}

// Present reports whether kind already covers all of [start, end). For
// block kinds the range must exist exactly.
func (m *Model) Present(start, end int, kind Kind, level int) bool {
	span := text.NewRange(start, end)
	if span.IsEmpty() || !kind.Valid() {
		return false
	}
	if kind.IsBlock() {
		if kind != KindHeading {
			level = 0
		}
		return slices.ContainsFunc(m.ranges, func(r Range) bool {
			return r.Kind == kind && r.Level == level && r.Span() == span
		})
	}
	return m.covered(span, func(r Range) bool { return r.Kind == kind })
}

// RemoveRange deletes the range with the given ID. Removing an unknown ID
// is not an error.
func (m *Model) RemoveRange(id string) {
	m.ranges = slices.DeleteFunc(m.ranges, func(r Range) bool { return r.ID == id })
}

// QueryAt returns every range covering pos, block ranges first.
func (m *Model) QueryAt(pos int) []Range {
	var out []Range
	for _, r := range m.ranges {
		if r.Covers(pos) {
			out = append(out, r.Clone())
		}
	}
	slices.SortStableFunc(out, func(a, b Range) int {
		if a.Rank() != b.Rank() {
			return a.Rank() - b.Rank()
		}
		return compareRanges(a, b)
	})
	return out
}

// Has reports whether pos carries kind.
func (m *Model) Has(pos int, kind Kind) bool {
	for _, r := range m.ranges {
		if r.Kind == kind && r.Covers(pos) {
			return true
		}
	}
	return false
}

// ShiftPositions moves every anchor across a splice at offset that
// removed deleted characters and inserted inserted characters.
//
// Anchors inside the deleted span collapse to offset. Ranges that
// collapse to nothing are dropped. Nothing here fails: malformed
// results are clamped or dropped so editing never blocks.
func (m *Model) ShiftPositions(offset, inserted, deleted int) {
	if inserted < 0 {
		inserted = 0
	}
	if deleted < 0 {
		deleted = 0
	}
	offset = min(max(offset, 0), m.length)
	deleted = min(deleted, m.length-offset)
	m.length = max(m.length+inserted-deleted, 0)

	out := m.ranges[:0]
	for _, r := range m.ranges {
		start := text.Shift(r.Start, offset, inserted, deleted, text.BiasAfter)
		end := text.Shift(r.End, offset, inserted, deleted, text.BiasAfter)
		span := text.NewRange(start, end).Clamp(m.length)
		if span.IsEmpty() {
			continue
		}
		r.Start, r.End = span.Start, span.End
		out = append(out, r)
	}
	m.ranges = out

	for i := range m.comments {
		pos := text.Shift(m.comments[i].Position, offset, inserted, deleted, text.BiasAfter)
		m.comments[i].Position = min(max(pos, 0), m.length)
	}
}

// Replace swaps in a whole new set of ranges and comments, typically
// from a persisted payload. Entries that cannot be made valid against
// the current text length are dropped; the number dropped is returned.
func (m *Model) Replace(ranges []Range, comments []Comment) int {
	dropped := 0
	seen := make(map[string]bool)

	m.ranges = m.ranges[:0:0]
	for _, r := range ranges {
		if !r.Kind.Valid() {
			dropped++
			continue
		}
		if r.Kind == KindHeading {
			r.Level = min(max(r.Level, MinHeadingLevel), MaxHeadingLevel)
		} else {
			r.Level = 0
		}
		span := r.Span().Clamp(m.length)
		if span.IsEmpty() {
			dropped++
			continue
		}
		r.Start, r.End = span.Start, span.End
		if r.ID == "" || seen[r.ID] {
			r.ID = m.newID()
		}
		seen[r.ID] = true

		if r.Kind.IsBlock() {
			// Earlier block ranges win; later ones keep only what is free.
			m.insertBlockTrimmed(r)
			continue
		}
		m.ranges = append(m.ranges, r.Clone())
	}

	m.comments = m.comments[:0:0]
	for _, c := range comments {
		if c.ID == "" || seen[c.ID] {
			c.ID = m.newID()
		}
		seen[c.ID] = true
		c.Position = min(max(c.Position, 0), m.length)
		m.comments = append(m.comments, c)
	}

	m.sort()
	return dropped
}

func (m *Model) insertBlockTrimmed(r Range) {
	pieces := []text.Range{r.Span()}
	for _, existing := range m.ranges {
		if !existing.Kind.IsBlock() {
			continue
		}
		var next []text.Range
		for _, p := range pieces {
			if !p.Overlaps(existing.Span()) {
				next = append(next, p)
				continue
			}
			if p.Start < existing.Start {
				next = append(next, text.NewRange(p.Start, existing.Start))
			}
			if existing.End < p.End {
				next = append(next, text.NewRange(existing.End, p.End))
			}
		}
		pieces = next
	}
	for i, p := range pieces {
		piece := r.Clone()
		piece.Start, piece.End = p.Start, p.End
		if i > 0 {
			piece.ID = m.newID()
		}
		m.ranges = append(m.ranges, piece)
	}
}

func (m *Model) sort() {
	slices.SortStableFunc(m.ranges, compareRanges)
}

func compareRanges(a, b Range) int {
	if a.Start != b.Start {
		return a.Start - b.Start
	}
	if a.Rank() != b.Rank() {
		return a.Rank() - b.Rank()
	}
	if a.End != b.End {
		return a.End - b.End
	}
	return int(a.Kind) - int(b.Kind)
}
