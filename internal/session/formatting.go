package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dshills/storyline/internal/format"
)

// ToggleFormat applies kind over [start, end) and re-renders.
//
// It returns the ID of the range now carrying the formatting, or "" when
// the call toggled formatting off. Invalid input returns
// format.ErrInvalidRange and changes nothing.
func (s *Session) ToggleFormat(ctx context.Context, start, end int, kind format.Kind, level int) (string, error) {
	id, err := s.model.AddRange(start, end, kind, level)
	if err != nil || start == end {
		return "", err
	}
	s.formatChanged(fmt.Sprintf("toggle %s", kind), start)
	if _, err := s.Render(ctx); err != nil {
		return id, err
	}
	return id, nil
}

// RemoveFormat deletes a formatting range. Unknown IDs are ignored.
func (s *Session) RemoveFormat(ctx context.Context, id string) error {
	r, ok := s.model.Range(id)
	if !ok {
		return nil
	}
	s.model.RemoveRange(id)
	s.formatChanged(fmt.Sprintf("remove %s", r.Kind), r.Start)
	_, err := s.Render(ctx)
	return err
}

// FormatsAt returns the ranges covering pos, block ranges first.
func (s *Session) FormatsAt(pos int) []format.Range {
	return s.model.QueryAt(pos)
}

// Ranges returns every formatting range.
func (s *Session) Ranges() []format.Range {
	return s.model.Ranges()
}

// SetStyleData attaches opaque style data to a range.
func (s *Session) SetStyleData(id string, data map[string]string) bool {
	return s.model.SetStyleData(id, data)
}

// AddComment anchors a comment at pos and re-renders.
func (s *Session) AddComment(ctx context.Context, pos int, body, author string) (string, error) {
	id, err := s.model.AddComment(pos, body, author)
	if err != nil {
		return "", err
	}
	s.formatChanged("add comment", pos)
	if _, err := s.Render(ctx); err != nil {
		return id, err
	}
	return id, nil
}

// ResolveComment sets a comment's resolved flag. It reports whether the
// comment exists.
func (s *Session) ResolveComment(ctx context.Context, id string, resolved bool) (bool, error) {
	c, ok := s.model.Comment(id)
	if !ok {
		return false, nil
	}
	s.model.ResolveComment(id, resolved)
	s.formatChanged("resolve comment", c.Position)
	_, err := s.Render(ctx)
	return true, err
}

// RemoveComment deletes a comment. Unknown IDs are ignored.
func (s *Session) RemoveComment(ctx context.Context, id string) error {
	c, ok := s.model.Comment(id)
	if !ok {
		return nil
	}
	s.model.RemoveComment(id)
	s.formatChanged("remove comment", c.Position)
	_, err := s.Render(ctx)
	return err
}

// Comments returns every comment ordered by position.
func (s *Session) Comments() []format.Comment {
	return s.model.Comments()
}

// ImportReport summarizes an ImportRecords call.
type ImportReport struct {
	Applied int
	Skipped int
}

// ImportRecords merges formatting records from a bulk import through the
// same path as ToggleFormat, except that formatting already present is
// left alone. Invalid records are skipped and counted.
// Highlights are then relocated by content, since an import is a point
// where offsets are not trusted.
func (s *Session) ImportRecords(ctx context.Context, records []format.Range) (ImportReport, error) {
	var rep ImportReport
	for _, rec := range records {
		if rec.Start == rec.End {
			rep.Skipped++
			continue
		}
		if s.model.Present(rec.Start, rec.End, rec.Kind, rec.Level) {
			// Merging must never toggle existing formatting off.
			rep.Applied++
			continue
		}
		id, err := s.model.AddRange(rec.Start, rec.End, rec.Kind, rec.Level)
		if err != nil {
			rep.Skipped++
			s.log.Debug("import record skipped", slog.String("record", rec.String()), slog.Any("error", err))
			continue
		}
		if id != "" && len(rec.StyleData) > 0 {
			s.model.SetStyleData(id, rec.StyleData)
		}
		rep.Applied++
	}

	err := s.batched(func() error {
		_ = s.recoverAll()
		s.log.Info("import merged",
			slog.Int("applied", rep.Applied),
			slog.Int("skipped", rep.Skipped))
		s.formatChanged("import", 0)
		_, err := s.Render(ctx)
		return err
	})
	return rep, err
}
