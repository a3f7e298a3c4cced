package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dshills/storyline/internal/anchor"
	"github.com/dshills/storyline/internal/engine/text"
	"github.com/dshills/storyline/internal/format"
)

// HandleSectionEvent applies a create, remove or recolor message from
// the Sections collaborator and re-renders.
//
// A created highlight is placed at its approximate offsets when they
// still cover its text and is otherwise found by searching for the
// text. Creating an existing ID replaces it.
func (s *Session) HandleSectionEvent(ctx context.Context, ev anchor.SectionEvent) error {
	switch ev.Type {
	case anchor.SectionCreated:
		if err := s.createSection(ev); err != nil {
			return err
		}
	case anchor.SectionRemoved:
		i := s.sectionIndex(ev.ID)
		if i < 0 {
			return nil
		}
		s.sections = append(s.sections[:i], s.sections[i+1:]...)
		s.guard.Release(ev.ID)
	case anchor.SectionRecolored:
		i := s.sectionIndex(ev.ID)
		if i < 0 {
			return nil
		}
		s.sections[i].h.ColorClass = ev.ColorClass
		s.sections[i].p.ColorClass = ev.ColorClass
	default:
		return fmt.Errorf("section event %d: unknown type", ev.Type)
	}

	s.log.Debug("section event", slog.String("type", ev.Type.String()), slog.String("section", ev.ID))
	_, err := s.Render(ctx)
	return err
}

func (s *Session) createSection(ev anchor.SectionEvent) error {
	if ev.ID == "" {
		return fmt.Errorf("%w: section without id", format.ErrInvalidRange)
	}

	approx := text.NewRange(ev.ApproximateStart, ev.ApproximateEnd).Clamp(s.store.Len())
	body := ev.Text
	if body == "" {
		if approx.IsEmpty() {
			return fmt.Errorf("%w: section %s is empty", format.ErrInvalidRange, ev.ID)
		}
		body, _ = s.store.Slice(approx)
	}

	candidate := anchor.Highlight{
		ID:             ev.ID,
		ColorClass:     ev.ColorClass,
		Text:           body,
		LastKnownStart: approx.Start,
		LastKnownEnd:   approx.End,
	}
	p, err := s.tr.Resolve(s.store, candidate)
	if err != nil && !errors.Is(err, anchor.ErrAnchorRecoveryFailed) {
		return err
	}
	if p.Span().IsEmpty() {
		return fmt.Errorf("%w: section %s has no text to cover", format.ErrInvalidRange, ev.ID)
	}

	h := s.tr.Capture(s.store, ev.ID, ev.ColorClass, p.Start, p.End)
	if err != nil {
		// The text was not found; keep what the collaborator sent so a
		// later recovery can still match it.
		h.Text = body
	}
	sec := section{h: h, p: p}

	if i := s.sectionIndex(ev.ID); i >= 0 {
		s.sections[i] = sec
	} else {
		s.sections = append(s.sections, sec)
	}
	if err != nil {
		s.place(&s.sections[s.sectionIndex(ev.ID)], p, err, true)
	}
	s.guard.Track(p)
	return nil
}

// Highlights returns the current registry view: every highlight with its
// last known offsets updated to the current placement.
func (s *Session) Highlights() []anchor.Highlight {
	out := make([]anchor.Highlight, len(s.sections))
	for i, sec := range s.sections {
		out[i] = sec.h
	}
	return out
}

// Placements returns where every highlight currently renders.
func (s *Session) Placements() []anchor.Placement {
	out := make([]anchor.Placement, len(s.sections))
	for i, sec := range s.sections {
		out[i] = sec.p
	}
	return out
}

// Placement returns the placement of one highlight.
func (s *Session) Placement(id string) (anchor.Placement, bool) {
	i := s.sectionIndex(id)
	if i < 0 {
		return anchor.Placement{}, false
	}
	return s.sections[i].p, true
}

// ReanchorHighlights adopts a registry snapshot from the Sections
// collaborator, relocates every highlight by content and re-renders.
//
// Placements are returned in snapshot order. Highlights that could not
// be matched are placed at their clamped offsets, marked degraded and
// reported through OnDegraded; they are not an error. The error is
// only set when the render pass fails.
func (s *Session) ReanchorHighlights(ctx context.Context, snapshot []anchor.Highlight) ([]anchor.Placement, error) {
	s.sections = s.sections[:0]
	for _, h := range snapshot {
		if i := s.sectionIndex(h.ID); i >= 0 {
			s.sections[i] = section{h: h}
			continue
		}
		s.sections = append(s.sections, section{h: h})
	}

	var placements []anchor.Placement
	err := s.batched(func() error {
		if err := s.recoverAll(); err != nil {
			s.log.Warn("reanchor finished with degraded highlights", slog.Any("error", err))
		}
		placements = s.Placements()
		_, err := s.Render(ctx)
		return err
	})
	return placements, err
}
