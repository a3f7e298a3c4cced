// Package guard enforces edit protection over text that backs a section
// highlight.
//
// Each tracked highlight is either Unprotected or Protected. It is
// Protected while the highlight is tracked and the session is editable.
// Edits that would delete protected text, insert strictly inside it, or
// put the caret strictly inside it are refused with
// ErrProtectionViolation. Refusals publish a guidance event on the
// notify hub, at most once per cooldown.
package guard

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dshills/storyline/internal/anchor"
	"github.com/dshills/storyline/internal/engine/text"
	"github.com/dshills/storyline/internal/notify"
)

// ErrProtectionViolation indicates an edit touched protected text. The
// edit must be treated as a no-op.
var ErrProtectionViolation = errors.New("protected section text")

// DefaultCooldown is the minimum spacing between guidance events.
const DefaultCooldown = 3 * time.Second

// DefaultMessage is the guidance shown when an edit is refused.
const DefaultMessage = "Delete the section to edit this text."

// State is the protection state of one highlight.
type State uint8

const (
	// Unprotected text may be edited freely.
	Unprotected State = iota

	// Protected text refuses edits.
	Protected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Unprotected:
		return "unprotected"
	case Protected:
		return "protected"
	default:
		return "unknown"
	}
}

// Option configures a Guard.
type Option func(*Guard)

// WithHub sets the hub guidance events are published on.
func WithHub(h *notify.Hub) Option {
	return func(g *Guard) {
		g.hub = h
	}
}

// WithCooldown sets the minimum spacing between guidance events.
func WithCooldown(d time.Duration) Option {
	return func(g *Guard) {
		if d >= 0 {
			g.cooldown = d
		}
	}
}

// WithClock sets the clock used for the cooldown.
func WithClock(fn func() time.Time) Option {
	return func(g *Guard) {
		if fn != nil {
			g.now = fn
		}
	}
}

// WithMessage sets the guidance message.
func WithMessage(msg string) Option {
	return func(g *Guard) {
		if msg != "" {
			g.message = msg
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.log = l
		}
	}
}

// Guard tracks highlight spans and decides whether edits may proceed.
// It is owned by one session and is not safe for concurrent use.
type Guard struct {
	editable bool
	spans    []anchor.Placement

	hub        *notify.Hub
	cooldown   time.Duration
	message    string
	now        func() time.Time
	lastSignal time.Time
	suppressed int
	log        *slog.Logger
}

// New creates a guard. A new guard is not editable.
func New(opts ...Option) *Guard {
	g := &Guard{
		cooldown: DefaultCooldown,
		message:  DefaultMessage,
		now:      time.Now,
		log:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetEditable enters or leaves the editable session. Leaving it moves
// every highlight to Unprotected.
func (g *Guard) SetEditable(editable bool) {
	g.editable = editable
}

// Editable reports whether the session is editable.
func (g *Guard) Editable() bool {
	return g.editable
}

// Message returns the guidance message.
func (g *Guard) Message() string {
	return g.message
}

// Track starts protecting a highlight, replacing any earlier span with
// the same ID.
func (g *Guard) Track(p anchor.Placement) {
	if i := g.index(p.ID); i >= 0 {
		g.spans[i] = p
	} else {
		g.spans = append(g.spans, p)
	}
	g.sort()
}

// Release stops protecting a highlight. Releasing an unknown ID is a no-op.
func (g *Guard) Release(id string) {
	g.spans = slices.DeleteFunc(g.spans, func(p anchor.Placement) bool { return p.ID == id })
}

// Sync replaces every tracked span with placements.
func (g *Guard) Sync(placements []anchor.Placement) {
	g.spans = slices.Clone(placements)
	g.sort()
}

// State returns the protection state of a highlight.
func (g *Guard) State(id string) State {
	if g.editable && g.index(id) >= 0 {
		return Protected
	}
	return Unprotected
}

// IsProtected reports whether the highlight is Protected.
func (g *Guard) IsProtected(id string) bool {
	return g.State(id) == Protected
}

// Blocking returns the first protected span that e would modify.
func (g *Guard) Blocking(e text.Edit) (anchor.Placement, bool) {
	if !g.editable || e.IsNoop() {
		return anchor.Placement{}, false
	}
	del := e.DeletedRange()
	for _, p := range g.spans {
		span := p.Span()
		if span.IsEmpty() {
			continue
		}
		if e.Deleted > 0 && del.Overlaps(span) {
			return p, true
		}
		if e.Offset > span.Start && e.Offset < span.End {
			return p, true
		}
	}
	return anchor.Placement{}, false
}

// CheckEdit returns ErrProtectionViolation if e would modify protected
// text. Insertions at either edge of a protected span are allowed.
func (g *Guard) CheckEdit(e text.Edit) error {
	p, blocked := g.Blocking(e)
	if !blocked {
		return nil
	}
	err := fmt.Errorf("%w: %v overlaps section %s", ErrProtectionViolation, e, p.ID)
	g.signal(p.ID, e.Offset, err)
	return err
}

// CheckCaret returns ErrProtectionViolation if offset falls strictly
// inside a protected span.
func (g *Guard) CheckCaret(offset int) error {
	if !g.editable {
		return nil
	}
	for _, p := range g.spans {
		if offset > p.Start && offset < p.End {
			err := fmt.Errorf("%w: caret %d inside section %s", ErrProtectionViolation, offset, p.ID)
			g.signal(p.ID, offset, err)
			return err
		}
	}
	return nil
}

// Suppressed returns how many guidance events the cooldown swallowed.
func (g *Guard) Suppressed() int {
	return g.suppressed
}

// signal publishes a guidance event unless one was sent within the
// cooldown.
func (g *Guard) signal(id string, offset int, err error) {
	now := g.now()
	if !g.lastSignal.IsZero() && now.Sub(g.lastSignal) < g.cooldown {
		g.suppressed++
		g.log.Debug("protection guidance suppressed", slog.String("section", id))
		return
	}
	g.lastSignal = now

	g.log.Info("edit blocked by protected section",
		slog.String("section", id),
		slog.Int("offset", offset))

	if g.hub != nil {
		g.hub.Publish(notify.Event{
			Topic:       notify.TopicProtectionBlocked,
			HighlightID: id,
			Offset:      offset,
			Message:     g.message,
			Err:         err,
		})
	}
}

func (g *Guard) index(id string) int {
	return slices.IndexFunc(g.spans, func(p anchor.Placement) bool { return p.ID == id })
}

func (g *Guard) sort() {
	slices.SortStableFunc(g.spans, func(a, b anchor.Placement) int {
		if a.Start != b.Start {
			return a.Start - b.Start
		}
		return a.End - b.End
	})
}
