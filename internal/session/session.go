// Package session owns everything that decorates one open document:
// the text store, the formatting model, section highlight placements,
// the edit guard and the renderer that projects them onto the
// editable surface.
//
// A Session is the unit of isolation. Two documents open side by side
// get two sessions that share nothing.
//
// # Edit Flow
//
// Every text edit goes through the same steps:
//
//  1. the guard refuses edits that would change protected section text
//  2. the text store applies the edit
//  3. formatting ranges, comments and highlight placements shift
//  4. the renderer splices its leaves and bumps its generation
//  5. highlights whose placement no longer covers their text recover
//  6. a render pass brings the surface back in line
//
// Sessions are single-threaded. Callers serialize access.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dshills/storyline/internal/anchor"
	"github.com/dshills/storyline/internal/config"
	"github.com/dshills/storyline/internal/engine/text"
	"github.com/dshills/storyline/internal/format"
	"github.com/dshills/storyline/internal/guard"
	"github.com/dshills/storyline/internal/notify"
	"github.com/dshills/storyline/internal/renderer"
	"github.com/dshills/storyline/internal/tree"
)

// Option configures a Session.
type Option func(*settings)

type settings struct {
	batchSize int
	window    int
	cooldown  time.Duration
	message   string
	log       *slog.Logger
	hub       *notify.Hub
	clock     func() time.Time
	newID     func() string
	yield     renderer.YieldFunc
}

// WithConfig applies the render and guard sections of cfg.
func WithConfig(cfg config.Config) Option {
	return func(s *settings) {
		s.batchSize = cfg.Render.BatchSize
		s.window = cfg.Render.ContextWindow
		s.cooldown = cfg.Cooldown()
		s.message = cfg.Guard.Message
	}
}

// WithLogger sets the logger shared by the session's components.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}

// WithHub publishes session events on h instead of a private hub.
func WithHub(h *notify.Hub) Option {
	return func(s *settings) {
		s.hub = h
	}
}

// WithClock sets the clock used for comment timestamps and the guidance
// cooldown.
func WithClock(fn func() time.Time) Option {
	return func(s *settings) {
		s.clock = fn
	}
}

// WithIDGenerator sets the generator for range and comment IDs.
func WithIDGenerator(fn func() string) Option {
	return func(s *settings) {
		s.newID = fn
	}
}

// WithYield sets the function called between highlight batches.
func WithYield(fn renderer.YieldFunc) Option {
	return func(s *settings) {
		s.yield = fn
	}
}

// section is one highlight and where it currently renders.
type section struct {
	h anchor.Highlight
	p anchor.Placement
}

// Session is the per-document owner of the overlay engine.
type Session struct {
	store  *text.Store
	model  *format.Model
	tr     *anchor.Translator
	guard  *guard.Guard
	render *renderer.Renderer

	sections []section

	hub    *notify.Hub
	ownHub bool
	log    *slog.Logger

	// batch queues events during bulk operations. See batched.
	batch *notify.Batch
}

// New creates a session over txt. The session starts outside an
// editable session, so nothing is protected until SetEditable(true).
func New(txt string, opts ...Option) *Session {
	st := settings{
		batchSize: renderer.DefaultBatchSize,
		window:    anchor.DefaultContextWindow,
		cooldown:  guard.DefaultCooldown,
		message:   guard.DefaultMessage,
		log:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&st)
	}

	s := &Session{
		store: text.NewStore(txt),
		hub:   st.hub,
		log:   st.log,
	}
	if s.hub == nil {
		s.hub = notify.New()
		s.ownHub = true
	}

	var modelOpts []format.Option
	if st.newID != nil {
		modelOpts = append(modelOpts, format.WithIDGenerator(st.newID))
	}
	if st.clock != nil {
		modelOpts = append(modelOpts, format.WithClock(st.clock))
	}
	s.model = format.NewModel(s.store.Len(), modelOpts...)

	s.tr = anchor.NewTranslator(
		anchor.WithContextWindow(st.window),
		anchor.WithLogger(st.log),
	)

	guardOpts := []guard.Option{
		guard.WithHub(s.hub),
		guard.WithCooldown(st.cooldown),
		guard.WithMessage(st.message),
		guard.WithLogger(st.log),
	}
	if st.clock != nil {
		guardOpts = append(guardOpts, guard.WithClock(st.clock))
	}
	s.guard = guard.New(guardOpts...)

	renderOpts := []renderer.Option{
		renderer.WithBatchSize(st.batchSize),
		renderer.WithLogger(st.log),
	}
	if st.yield != nil {
		renderOpts = append(renderOpts, renderer.WithYield(st.yield))
	}
	s.render = renderer.New(tree.New(txt), renderOpts...)

	return s
}

// Close releases the session's private hub. A hub passed with WithHub
// is left open.
func (s *Session) Close() {
	if s.ownHub {
		s.hub.Close()
	}
}

// Hub returns the hub session events are published on.
func (s *Session) Hub() *notify.Hub {
	return s.hub
}

// Text returns the document text.
func (s *Session) Text() string {
	return s.store.String()
}

// Len returns the document length in characters.
func (s *Session) Len() int {
	return s.store.Len()
}

// Surface returns the editable tree. Only the session's renderer may
// mutate it.
func (s *Session) Surface() *tree.Tree {
	return s.render.Tree()
}

// Load replaces the document. Formatting and comments are dropped;
// highlights are kept and relocated by content, since their offsets
// belong to the previous text.
func (s *Session) Load(ctx context.Context, txt string) (res renderer.Result, err error) {
	err = s.batched(func() error {
		s.store.Set(txt)
		s.model.Reset(s.store.Len())
		s.render.Rebuild(txt)
		_ = s.recoverAll()
		res, err = s.Render(ctx)
		return err
	})
	return res, err
}

// Insert inserts str at offset.
func (s *Session) Insert(ctx context.Context, offset int, str string) error {
	return s.ApplyEdit(ctx, text.NewInsert(offset, str))
}

// Delete removes n characters at offset.
func (s *Session) Delete(ctx context.Context, offset, n int) error {
	return s.ApplyEdit(ctx, text.NewDelete(offset, n))
}

// Replace replaces n characters at offset with str.
func (s *Session) Replace(ctx context.Context, offset, n int, str string) error {
	return s.ApplyEdit(ctx, text.NewReplace(offset, n, str))
}

// ApplyEdit applies one text edit.
//
// An edit that would modify protected section text is refused with
// guard.ErrProtectionViolation and changes nothing. Callers treat that
// as a no-op; the guidance message has already been published.
func (s *Session) ApplyEdit(ctx context.Context, e text.Edit) error {
	if e.IsNoop() {
		return nil
	}
	if err := s.guard.CheckEdit(e); err != nil {
		return err
	}
	if err := s.store.Apply(e); err != nil {
		return fmt.Errorf("apply %v: %w", e, err)
	}

	s.model.ShiftPositions(e.Offset, e.InsertedLen(), e.Deleted)
	for i := range s.sections {
		sec := &s.sections[i]
		sec.p = s.tr.Shift(sec.p, e)
		sec.h = sec.p.Apply(sec.h)
	}

	if err := s.render.ApplyEdit(e); err != nil {
		s.log.Warn("surface splice failed, rebuilding", slog.Any("error", err))
		s.render.Rebuild(s.store.String())
	}

	s.reconcile()
	_, err := s.Render(ctx)
	return err
}

// SetCaret moves the caret to offset. A caret strictly inside a
// protected section is refused with guard.ErrProtectionViolation.
func (s *Session) SetCaret(offset int) error {
	if err := s.guard.CheckCaret(offset); err != nil {
		return err
	}
	if offset < 0 || offset > s.store.Len() {
		return fmt.Errorf("caret %d: %w", offset, text.ErrOffsetOutOfRange)
	}
	s.Surface().PlaceCaret(offset)
	return nil
}

// Caret returns the caret offset, or -1 when there is none.
func (s *Session) Caret() int {
	return s.Surface().CaretOffset()
}

// SetEditable enters or leaves the editable session and re-renders so
// protected sections lock or unlock.
func (s *Session) SetEditable(ctx context.Context, editable bool) (renderer.Result, error) {
	s.guard.SetEditable(editable)
	return s.Render(ctx)
}

// Editable reports whether the session is editable.
func (s *Session) Editable() bool {
	return s.guard.Editable()
}

// IsProtected reports whether a highlight is currently protected.
func (s *Session) IsProtected(id string) bool {
	return s.guard.IsProtected(id)
}

// Render projects the text, formatting, highlights and comments onto
// the surface. It is idempotent.
func (s *Session) Render(ctx context.Context) (renderer.Result, error) {
	res, err := s.render.Render(ctx, s.frame())
	if res.Rebuilt {
		s.publish(notify.Event{
			Topic:   notify.TopicRenderRebuilt,
			Offset:  -1,
			Message: "surface rebuilt from text",
			Err:     renderer.ErrRenderDesync,
		})
	}
	if err != nil {
		return res, fmt.Errorf("render: %w", err)
	}
	return res, nil
}

func (s *Session) frame() renderer.Frame {
	placements := make([]anchor.Placement, len(s.sections))
	for i, sec := range s.sections {
		placements[i] = sec.p
	}
	return renderer.Frame{
		Text:       s.store.String(),
		Ranges:     s.model.Ranges(),
		Highlights: placements,
		Comments:   s.model.Comments(),
		Protected:  s.guard.IsProtected,
	}
}

// OnProtectionBlocked registers cb for refused edits and caret moves.
func (s *Session) OnProtectionBlocked(cb notify.Observer) *notify.Subscription {
	return s.hub.SubscribeTopic(notify.TopicProtectionBlocked, cb)
}

// OnDegraded registers cb for degraded anchors and desync rebuilds.
func (s *Session) OnDegraded(cb notify.Observer) *notify.Subscription {
	return s.hub.Subscribe(func(ev notify.Event) {
		if ev.Topic == notify.TopicAnchorDegraded || ev.Topic == notify.TopicRenderRebuilt {
			cb(ev)
		}
	})
}

// OnFormatChanged registers cb for formatting and comment changes.
func (s *Session) OnFormatChanged(cb notify.Observer) *notify.Subscription {
	return s.hub.SubscribeTopic(notify.TopicFormatChanged, cb)
}

// reconcile recovers every highlight whose placement no longer covers
// its text. Placements that are already degraded are left alone until
// their text reappears.
func (s *Session) reconcile() {
	for i := range s.sections {
		sec := &s.sections[i]
		if s.tr.Verify(s.store, sec.h, sec.p) {
			sec.p.Degraded = false
			continue
		}
		wasDegraded := sec.p.Degraded
		p, err := s.tr.Recover(s.store, sec.h)
		s.place(sec, p, err, !wasDegraded)
	}
	s.syncGuard()
}

// recoverAll relocates every highlight by content. Offsets are not
// trusted. The error joins every degraded highlight.
func (s *Session) recoverAll() error {
	placements, err := s.tr.Reanchor(s.store, s.Highlights())
	for i, p := range placements {
		var perr error
		if p.Degraded {
			perr = anchor.ErrAnchorRecoveryFailed
		}
		s.place(&s.sections[i], p, perr, true)
	}
	s.syncGuard()
	return err
}

// place stores a recovered placement and reports degradation.
func (s *Session) place(sec *section, p anchor.Placement, err error, announce bool) {
	sec.p = p
	sec.h = p.Apply(sec.h)
	if err == nil {
		return
	}
	if !errors.Is(err, anchor.ErrAnchorRecoveryFailed) {
		s.log.Error("highlight recovery", slog.String("section", sec.h.ID), slog.Any("error", err))
		return
	}
	if !announce {
		return
	}
	s.log.Warn("section highlight degraded",
		slog.String("section", sec.h.ID),
		slog.Int("start", p.Start),
		slog.Int("end", p.End))
	s.publish(notify.Event{
		Topic:       notify.TopicAnchorDegraded,
		HighlightID: sec.h.ID,
		Offset:      p.Start,
		Message:     "section highlight could not be relocated",
		Err:         err,
	})
}

func (s *Session) syncGuard() {
	placements := make([]anchor.Placement, 0, len(s.sections))
	for _, sec := range s.sections {
		placements = append(placements, sec.p)
	}
	s.guard.Sync(placements)
}

// publish delivers ev now, or queues it while a bulk operation runs.
func (s *Session) publish(ev notify.Event) {
	if s.batch != nil {
		s.batch.Add(ev)
		return
	}
	s.hub.Publish(ev)
}

// batched runs fn with events queued and publishes them in order once
// fn returns, so observers see the surface fn rendered. Nested calls
// share the outer batch.
func (s *Session) batched(fn func() error) error {
	if s.batch != nil {
		return fn()
	}
	s.batch = s.hub.NewBatch()
	defer func() {
		b := s.batch
		s.batch = nil
		b.Commit()
	}()
	return fn()
}

func (s *Session) formatChanged(msg string, offset int) {
	s.publish(notify.Event{
		Topic:   notify.TopicFormatChanged,
		Offset:  offset,
		Message: msg,
	})
}

func (s *Session) sectionIndex(id string) int {
	return slices.IndexFunc(s.sections, func(sec section) bool { return sec.h.ID == id })
}
