package anchor

import (
	"fmt"
	"unicode/utf8"

	"github.com/dshills/storyline/internal/engine/text"
)

// Context is the text captured around a highlight when it was created.
type Context struct {
	Before string `json:"before"`
	After  string `json:"after"`
	Length int    `json:"length"`
}

// Highlight is a section highlight as the Sections collaborator
// describes it.
type Highlight struct {
	ID             string  `json:"id"`
	ColorClass     string  `json:"colorClass"`
	Text           string  `json:"text"`
	Anchor         Context `json:"anchorText"`
	LastKnownStart int     `json:"lastKnownStart"`
	LastKnownEnd   int     `json:"lastKnownEnd"`
}

// Span returns the last known offsets.
func (h Highlight) Span() text.Range {
	return text.NewRange(h.LastKnownStart, h.LastKnownEnd)
}

// Strategy records how a placement was obtained.
type Strategy uint8

const (
	// StrategyOffsets means the last known offsets were still valid.
	StrategyOffsets Strategy = iota

	// StrategyContext means the before+text+after pattern matched uniquely.
	StrategyContext

	// StrategyText means the highlighted text alone matched uniquely.
	StrategyText

	// StrategyClamped means nothing matched and the last known offsets
	// were clamped into the text.
	StrategyClamped
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyOffsets:
		return "offsets"
	case StrategyContext:
		return "context"
	case StrategyText:
		return "text"
	case StrategyClamped:
		return "clamped"
	default:
		return "unknown"
	}
}

// Placement is where the engine currently renders a highlight.
type Placement struct {
	ID         string
	ColorClass string
	Start      int
	End        int
	Degraded   bool
	Strategy   Strategy
}

// Span returns the placement as a text.Range.
func (p Placement) Span() text.Range {
	return text.NewRange(p.Start, p.End)
}

// String returns a debug representation.
func (p Placement) String() string {
	s := fmt.Sprintf("%s%v(%s)", p.ID, p.Span(), p.Strategy)
	if p.Degraded {
		s += "!"
	}
	return s
}

// Apply writes the placement back as the highlight's last known offsets.
func (p Placement) Apply(h Highlight) Highlight {
	h.LastKnownStart = p.Start
	h.LastKnownEnd = p.End
	return h
}

// SectionEventType is the kind of notification the Sections collaborator
// sends.
type SectionEventType uint8

const (
	// SectionCreated announces a new highlight.
	SectionCreated SectionEventType = iota

	// SectionRemoved announces a highlight was deleted.
	SectionRemoved

	// SectionRecolored announces a new color class.
	SectionRecolored
)

// String returns the event type name.
func (t SectionEventType) String() string {
	switch t {
	case SectionCreated:
		return "created"
	case SectionRemoved:
		return "removed"
	case SectionRecolored:
		return "recolored"
	default:
		return "unknown"
	}
}

// SectionEvent is a create/remove/recolor message from the Sections
// collaborator.
type SectionEvent struct {
	Type             SectionEventType
	ID               string
	ColorClass       string
	Text             string
	ApproximateStart int
	ApproximateEnd   int
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
