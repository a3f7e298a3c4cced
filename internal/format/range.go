package format

import (
	"fmt"
	"maps"
	"time"

	"github.com/dshills/storyline/internal/engine/text"
)

// Range is a formatting interval [Start, End) over the text.
type Range struct {
	ID        string            `json:"id"`
	Start     int               `json:"start"`
	End       int               `json:"end"`
	Kind      Kind              `json:"kind"`
	Level     int               `json:"level,omitempty"`
	StyleData map[string]string `json:"styleData,omitempty"`
}

// Span returns the range as a text.Range.
func (r Range) Span() text.Range {
	return text.Range{Start: r.Start, End: r.End}
}

// Covers reports whether pos lies inside the range.
func (r Range) Covers(pos int) bool {
	return pos >= r.Start && pos < r.End
}

// Rank orders wrappers from outermost to innermost. Block kinds sit
// outside character kinds.
func (r Range) Rank() int {
	if r.Kind.IsBlock() {
		return 1
	}
	return 2
}

// Tag returns the renderer wrapper tag.
func (r Range) Tag() string {
	return r.Kind.Tag(r.Level)
}

// String returns a debug representation.
func (r Range) String() string {
	if r.Kind == KindHeading {
		return fmt.Sprintf("%s%d%v", r.Kind, r.Level, r.Span())
	}
	return fmt.Sprintf("%s%v", r.Kind, r.Span())
}

// Clone returns a deep copy.
func (r Range) Clone() Range {
	r.StyleData = maps.Clone(r.StyleData)
	return r
}

// Comment is a point annotation at a single offset.
type Comment struct {
	ID        string    `json:"id"`
	Position  int       `json:"position"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	Resolved  bool      `json:"resolved"`
}
