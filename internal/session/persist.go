package session

import (
	"context"
	"log/slog"
)

// Serialize returns the formatting payload for the Storage
// collaborator. Section highlights are not part of it; the Sections
// collaborator persists those.
func (s *Session) Serialize() ([]byte, error) {
	return EncodePayload(s.model.Ranges(), s.model.Comments())
}

// Restore replaces the formatting model with a persisted payload,
// relocates every highlight by content and re-renders.
//
// Entries that do not fit the current text are dropped or clamped, not
// reported as errors. An unreadable payload returns
// ErrUnsupportedPayload and leaves the session unchanged.
func (s *Session) Restore(ctx context.Context, data []byte) error {
	p, skipped, err := DecodePayload(data)
	if err != nil {
		return err
	}

	dropped := s.model.Replace(p.Ranges, p.Comments) + skipped
	if dropped > 0 {
		s.log.Warn("payload entries dropped on restore",
			slog.String("version", p.Version),
			slog.Int("dropped", dropped))
	}

	return s.batched(func() error {
		_ = s.recoverAll()
		s.formatChanged("restore", 0)
		_, err := s.Render(ctx)
		return err
	})
}
