package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
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

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newSession(t *testing.T, txt string, opts ...Option) *Session {
	t.Helper()
	n := 0
	base := []Option{
		WithIDGenerator(func() string {
			n++
			return "id" + strconv.Itoa(n)
		}),
		WithClock(func() time.Time { return epoch }),
	}
	s := New(txt, append(base, opts...)...)
	t.Cleanup(s.Close)
	return s
}

// shape renders the surface compactly: text leaves quoted, wrappers as
// tag#id[...], locked wrappers marked with !, comment markers as ^id.
func shape(n *tree.Node) string {
	switch n.Type {
	case tree.NodeText:
		return strconv.Quote(n.Text())
	case tree.NodeMarker:
		return "^" + n.Attr(renderer.AttrID)
	case tree.NodeEmbed:
		return "<" + n.Tag + "/>"
	}
	parts := make([]string, 0, n.ChildCount())
	for _, c := range n.Children() {
		parts = append(parts, shape(c))
	}
	inner := strings.Join(parts, " ")
	if n.Type == tree.NodeRoot {
		return inner
	}
	head := n.Tag
	if id := n.Attr(renderer.AttrID); id != "" {
		head += "#" + id
	}
	if n.Locked {
		head += "!"
	}
	return head + "[" + inner + "]"
}

func assertSurface(t *testing.T, s *Session, want string) {
	t.Helper()
	if got := shape(s.Surface().Root()); got != want {
		t.Errorf("surface =\n  %s\nwant\n  %s", got, want)
	}
	if got := s.Surface().Text(); got != s.Text() {
		t.Errorf("surface text = %q, store = %q", got, s.Text())
	}
}

func createSection(t *testing.T, s *Session, id, color, body string, start, end int) {
	t.Helper()
	err := s.HandleSectionEvent(context.Background(), anchor.SectionEvent{
		Type:             anchor.SectionCreated,
		ID:               id,
		ColorClass:       color,
		Text:             body,
		ApproximateStart: start,
		ApproximateEnd:   end,
	})
	if err != nil {
		t.Fatalf("create section %s: %v", id, err)
	}
}

func collect(s *Session, topic notify.Topic) *[]notify.Event {
	var events []notify.Event
	s.Hub().SubscribeTopic(topic, func(ev notify.Event) {
		events = append(events, ev)
	})
	return &events
}

func TestBoldThenInsertScenario(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, "Hello world.")

	id, err := s.ToggleFormat(ctx, 0, 5, format.KindBold, 0)
	if err != nil {
		t.Fatalf("ToggleFormat: %v", err)
	}
	assertSurface(t, s, `strong#`+id+`["Hello"] " world."`)

	if err := s.Insert(ctx, 0, "Oh, "); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if s.Text() != "Oh, Hello world." {
		t.Errorf("Text = %q", s.Text())
	}
	r, ok := s.model.Range(id)
	if !ok || r.Start != 4 || r.End != 9 {
		t.Errorf("bold range = %v, want [4:9)", r)
	}
	assertSurface(t, s, `"Oh, " strong#`+id+`["Hello"] " world."`)
}

func TestReloadRelocatesByContext(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, "Hello world.")
	createSection(t, s, "s1", "blue", "world", 6, 11)

	h := s.Highlights()[0]
	if h.Anchor.Before != "Hello " || h.Anchor.After != "." {
		t.Fatalf("captured context = %+v", h.Anchor)
	}

	if _, err := s.Load(ctx, "Intro. Hello world."); err != nil {
		t.Fatalf("Load: %v", err)
	}
	p, _ := s.Placement("s1")
	if p.Start != 13 || p.End != 18 || p.Strategy != anchor.StrategyContext || p.Degraded {
		t.Errorf("placement = %v, want s1[13:18)(context)", p)
	}
	assertSurface(t, s, `"Intro. Hello " mark#s1["world"] "."`)
}

func TestAmbiguousReloadDegrades(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, "world and world.")
	createSection(t, s, "s1", "red", "world", 0, 5)

	var degraded []notify.Event
	s.OnDegraded(func(ev notify.Event) { degraded = append(degraded, ev) })

	if _, err := s.Load(ctx, "world, world"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	p, _ := s.Placement("s1")
	if !p.Degraded || p.Strategy != anchor.StrategyClamped || p.Start != 0 || p.End != 5 {
		t.Errorf("placement = %v, want degraded clamp [0:5)", p)
	}
	if len(degraded) != 1 || degraded[0].Topic != notify.TopicAnchorDegraded || degraded[0].HighlightID != "s1" {
		t.Fatalf("degraded events = %+v", degraded)
	}
	if !errors.Is(degraded[0].Err, anchor.ErrAnchorRecoveryFailed) {
		t.Errorf("event error = %v", degraded[0].Err)
	}

	marks := tree.Find(s.Surface().Root(), func(n *tree.Node) bool { return n.Tag == renderer.HighlightTag })
	if len(marks) != 1 || marks[0].Attr(renderer.AttrDegraded) != "true" {
		t.Errorf("degraded highlight not rendered")
	}
}

func TestProtectionInvariant(t *testing.T) {
	const doc = "Hello world. Goodbye."

	tests := []struct {
		name    string
		edit    text.Edit
		blocked bool
		want    string
	}{
		{"delete across start", text.NewDelete(5, 3), true, doc},
		{"delete inside", text.NewDelete(7, 2), true, doc},
		{"delete whole", text.NewDelete(6, 5), true, doc},
		{"insert inside", text.NewInsert(8, "X"), true, doc},
		{"replace inside", text.NewReplace(7, 1, "O"), true, doc},
		{"insert at start edge", text.NewInsert(6, "big "), false, "Hello big world. Goodbye."},
		{"insert at end edge", text.NewInsert(11, "!"), false, "Hello world!. Goodbye."},
		{"delete before", text.NewDelete(0, 6), false, "world. Goodbye."},
		{"delete after", text.NewDelete(11, 2), false, "Hello worldGoodbye."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := newSession(t, doc)
			createSection(t, s, "s1", "blue", "world", 6, 11)
			if _, err := s.SetEditable(ctx, true); err != nil {
				t.Fatal(err)
			}

			err := s.ApplyEdit(ctx, tt.edit)
			if tt.blocked != errors.Is(err, guard.ErrProtectionViolation) {
				t.Fatalf("ApplyEdit(%v) = %v, blocked want %v", tt.edit, err, tt.blocked)
			}
			if !tt.blocked && err != nil {
				t.Fatalf("ApplyEdit(%v) = %v", tt.edit, err)
			}
			if s.Text() != tt.want {
				t.Errorf("Text = %q, want %q", s.Text(), tt.want)
			}

			p, _ := s.Placement("s1")
			got, err := s.store.Slice(p.Span())
			if err != nil || got != "world" {
				t.Errorf("protected text = %q (%v), want %q", got, err, "world")
			}
			if !s.IsProtected("s1") {
				t.Error("s1 should stay protected")
			}
			assertSurfaceText(t, s)
		})
	}
}

func assertSurfaceText(t *testing.T, s *Session) {
	t.Helper()
	if got := s.Surface().Text(); got != s.Text() {
		t.Errorf("surface text = %q, store = %q", got, s.Text())
	}
}

func TestProtectedSurfaceIsLocked(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, "Hello world. Goodbye.")
	createSection(t, s, "s1", "blue", "world", 6, 11)

	assertSurface(t, s, `"Hello " mark#s1["world"] ". Goodbye."`)
	if s.IsProtected("s1") {
		t.Error("protected outside an editable session")
	}

	if _, err := s.SetEditable(ctx, true); err != nil {
		t.Fatal(err)
	}
	assertSurface(t, s, `"Hello " mark#s1!["world"] ". Goodbye."`)

	if _, err := s.SetEditable(ctx, false); err != nil {
		t.Fatal(err)
	}
	assertSurface(t, s, `"Hello " mark#s1["world"] ". Goodbye."`)
}

func TestGuidanceIsRateLimited(t *testing.T) {
	ctx := context.Background()
	now := epoch
	s := newSession(t, "Hello world.", WithClock(func() time.Time { return now }))
	createSection(t, s, "s1", "blue", "world", 6, 11)
	if _, err := s.SetEditable(ctx, true); err != nil {
		t.Fatal(err)
	}

	var blocked []notify.Event
	s.OnProtectionBlocked(func(ev notify.Event) { blocked = append(blocked, ev) })

	_ = s.Insert(ctx, 8, "x")
	_ = s.Delete(ctx, 7, 1)
	_ = s.SetCaret(9)
	if len(blocked) != 1 {
		t.Fatalf("events = %d, want 1", len(blocked))
	}
	if blocked[0].Message != guard.DefaultMessage || blocked[0].HighlightID != "s1" {
		t.Errorf("event = %+v", blocked[0])
	}

	now = now.Add(guard.DefaultCooldown)
	_ = s.Insert(ctx, 8, "x")
	if len(blocked) != 2 {
		t.Errorf("events after cooldown = %d, want 2", len(blocked))
	}
}

func TestUnprotectedEditDegradesOnce(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, "Hello world.")
	createSection(t, s, "s1", "blue", "world", 6, 11)

	var degraded []notify.Event
	s.OnDegraded(func(ev notify.Event) { degraded = append(degraded, ev) })

	if err := s.Insert(ctx, 8, "X"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Insert(ctx, 9, "Y"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if s.Text() != "Hello woXYrld." {
		t.Fatalf("Text = %q", s.Text())
	}
	p, _ := s.Placement("s1")
	if !p.Degraded {
		t.Errorf("placement = %v, want degraded", p)
	}
	if len(degraded) != 1 {
		t.Errorf("degraded events = %d, want 1", len(degraded))
	}

	// Restoring the text heals the placement.
	if err := s.Delete(ctx, 8, 2); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	p, _ = s.Placement("s1")
	if p.Degraded || p.Start != 6 || p.End != 11 {
		t.Errorf("placement after repair = %v", p)
	}
}

func TestSetCaret(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, "Hello world.")
	createSection(t, s, "s1", "blue", "world", 6, 11)
	if _, err := s.SetEditable(ctx, true); err != nil {
		t.Fatal(err)
	}

	if err := s.SetCaret(8); !errors.Is(err, guard.ErrProtectionViolation) {
		t.Errorf("SetCaret(8) = %v", err)
	}
	if err := s.SetCaret(6); err != nil {
		t.Fatalf("SetCaret(6) = %v", err)
	}
	if s.Caret() != 6 {
		t.Errorf("Caret = %d, want 6", s.Caret())
	}
	if err := s.SetCaret(99); !errors.Is(err, text.ErrOffsetOutOfRange) {
		t.Errorf("SetCaret(99) = %v", err)
	}

	if err := s.Insert(ctx, 0, ">> "); err != nil {
		t.Fatal(err)
	}
	if s.Caret() != 9 {
		t.Errorf("Caret after insert = %d, want 9", s.Caret())
	}
}

func TestToggleFormat(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, "Hello world.")
	changed := collect(s, notify.TopicFormatChanged)

	if _, err := s.ToggleFormat(ctx, 0, 5, format.KindBold, 0); err != nil {
		t.Fatal(err)
	}
	id, err := s.ToggleFormat(ctx, 0, 5, format.KindBold, 0)
	if err != nil || id != "" {
		t.Fatalf("second toggle = %q, %v; want toggle off", id, err)
	}
	if len(s.Ranges()) != 0 {
		t.Errorf("ranges after double toggle = %v", s.Ranges())
	}
	assertSurface(t, s, `"Hello world."`)

	if id, err := s.ToggleFormat(ctx, 3, 3, format.KindBold, 0); err != nil || id != "" {
		t.Errorf("collapsed toggle = %q, %v; want no-op", id, err)
	}
	if _, err := s.ToggleFormat(ctx, 4, 3, format.KindBold, 0); !errors.Is(err, format.ErrInvalidRange) {
		t.Errorf("reversed toggle = %v", err)
	}
	if _, err := s.ToggleFormat(ctx, 0, 5, format.KindHeading, 7); !errors.Is(err, format.ErrInvalidRange) {
		t.Errorf("bad level = %v", err)
	}
	if len(*changed) != 2 {
		t.Errorf("format events = %d, want 2", len(*changed))
	}
}

func TestFormatsAtAndRemove(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, "Title\nBody text")

	h, _ := s.ToggleFormat(ctx, 0, 5, format.KindHeading, 1)
	b, _ := s.ToggleFormat(ctx, 2, 4, format.KindItalic, 0)
	assertSurface(t, s, `h1#`+h+`["Ti" em#`+b+`["tl"] "e"] "\nBody text"`)

	got := s.FormatsAt(3)
	if len(got) != 2 || got[0].ID != h || got[1].ID != b {
		t.Errorf("FormatsAt(3) = %v", got)
	}

	if err := s.RemoveFormat(ctx, h); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveFormat(ctx, "missing"); err != nil {
		t.Fatal(err)
	}
	assertSurface(t, s, `"Ti" em#`+b+`["tl"] "e\nBody text"`)
}

func TestComments(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, "Hello world.")

	id, err := s.AddComment(ctx, 5, "pause here", "ana")
	if err != nil {
		t.Fatal(err)
	}
	assertSurface(t, s, `"Hello" ^`+id+` " world."`)

	if _, err := s.AddComment(ctx, 50, "x", "y"); !errors.Is(err, format.ErrInvalidRange) {
		t.Errorf("out of range comment = %v", err)
	}

	ok, err := s.ResolveComment(ctx, id, true)
	if err != nil || !ok {
		t.Fatalf("ResolveComment = %v, %v", ok, err)
	}
	c := s.Comments()[0]
	if !c.Resolved || !c.Timestamp.Equal(epoch) || c.Author != "ana" {
		t.Errorf("comment = %+v", c)
	}

	if err := s.Insert(ctx, 0, "Oh. "); err != nil {
		t.Fatal(err)
	}
	if got := s.Comments()[0].Position; got != 9 {
		t.Errorf("comment position = %d, want 9", got)
	}

	if err := s.RemoveComment(ctx, id); err != nil {
		t.Fatal(err)
	}
	assertSurface(t, s, `"Oh. Hello world."`)
}

func TestImportRecords(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, "Chapter\nSome bold text.")
	createSection(t, s, "s1", "blue", "bold", 13, 17)
	existing, _ := s.ToggleFormat(ctx, 13, 17, format.KindBold, 0)

	rep, err := s.ImportRecords(ctx, []format.Range{
		{Start: 0, End: 7, Kind: format.KindHeading, Level: 1},
		{Start: 13, End: 17, Kind: format.KindBold},
		{Start: 5, End: 3, Kind: format.KindItalic},
		{Start: 0, End: 99, Kind: format.KindUnderline},
		{Start: 0, End: 2, Kind: format.KindHeading, Level: 9},
		{Start: 4, End: 4, Kind: format.KindBold},
	})
	if err != nil {
		t.Fatalf("ImportRecords: %v", err)
	}
	if rep.Applied != 2 || rep.Skipped != 4 {
		t.Errorf("report = %+v, want 2 applied 4 skipped", rep)
	}
	if _, ok := s.model.Range(existing); !ok {
		t.Error("import toggled existing bold off")
	}
	if len(s.Ranges()) != 2 {
		t.Errorf("ranges = %v", s.Ranges())
	}

	p, _ := s.Placement("s1")
	if p.Strategy != anchor.StrategyContext || p.Start != 13 {
		t.Errorf("placement after import = %v", p)
	}
}

func TestBulkEventsFollowRender(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, "Hello world.")

	var seen []string
	s.OnFormatChanged(func(ev notify.Event) {
		seen = append(seen, shape(s.Surface().Root()))
	})

	if _, err := s.ImportRecords(ctx, []format.Range{{Start: 0, End: 5, Kind: format.KindBold}}); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 || !strings.Contains(seen[0], `strong#id1["Hello"]`) {
		t.Errorf("observer saw %v, want the rendered bold wrapper", seen)
	}
}

func TestAsyncHubReceivesBulkEvents(t *testing.T) {
	hub := notify.New(notify.WithAsync(8))
	s := newSession(t, "Hello world.", WithHub(hub))

	var mu sync.Mutex
	var msgs []string
	hub.SubscribeTopic(notify.TopicFormatChanged, func(ev notify.Event) {
		mu.Lock()
		msgs = append(msgs, ev.Message)
		mu.Unlock()
	})

	if _, err := s.ImportRecords(context.Background(), []format.Range{{Start: 6, End: 11, Kind: format.KindItalic}}); err != nil {
		t.Fatal(err)
	}
	hub.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(msgs) != 1 || msgs[0] != "import" {
		t.Errorf("messages = %v, want [import]", msgs)
	}
}

func TestSectionEvents(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, "one two three")

	// Stale approximate offsets fall back to a text search.
	createSection(t, s, "s1", "blue", "two", 0, 3)
	p, _ := s.Placement("s1")
	if p.Start != 4 || p.End != 7 {
		t.Errorf("placement = %v, want [4:7)", p)
	}

	// Without text the approximate span is used verbatim.
	createSection(t, s, "s2", "red", "", 8, 13)
	if h := s.Highlights()[1]; h.Text != "three" {
		t.Errorf("s2 text = %q", h.Text)
	}
	assertSurface(t, s, `"one " mark#s1["two"] " " mark#s2["three"]`)

	err := s.HandleSectionEvent(ctx, anchor.SectionEvent{Type: anchor.SectionRecolored, ID: "s1", ColorClass: "green"})
	if err != nil {
		t.Fatal(err)
	}
	marks := tree.Find(s.Surface().Root(), func(n *tree.Node) bool { return n.Attr(renderer.AttrID) == "s1" })
	if len(marks) != 1 || marks[0].Attr(renderer.AttrColor) != "green" {
		t.Errorf("recolor not rendered")
	}

	if _, err := s.SetEditable(ctx, true); err != nil {
		t.Fatal(err)
	}
	if err := s.HandleSectionEvent(ctx, anchor.SectionEvent{Type: anchor.SectionRemoved, ID: "s1"}); err != nil {
		t.Fatal(err)
	}
	if s.IsProtected("s1") {
		t.Error("removed section still protected")
	}
	if err := s.Insert(ctx, 5, "W"); err != nil {
		t.Errorf("edit after removal = %v", err)
	}

	err = s.HandleSectionEvent(ctx, anchor.SectionEvent{Type: anchor.SectionCreated, ID: "s3"})
	if !errors.Is(err, format.ErrInvalidRange) {
		t.Errorf("empty section = %v", err)
	}
}

func TestReanchorHighlights(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, "Intro. Hello world. The end.")

	var degraded []notify.Event
	s.OnDegraded(func(ev notify.Event) { degraded = append(degraded, ev) })

	snapshot := []anchor.Highlight{
		{
			ID: "a", ColorClass: "blue", Text: "world",
			Anchor:         anchor.Context{Before: "Hello ", After: ".", Length: 5},
			LastKnownStart: 6, LastKnownEnd: 11,
		},
		{
			ID: "b", ColorClass: "red", Text: "missing",
			LastKnownStart: 20, LastKnownEnd: 40,
		},
	}
	got, err := s.ReanchorHighlights(ctx, snapshot)
	if err != nil {
		t.Fatalf("ReanchorHighlights: %v", err)
	}
	want := []string{"a[13:18)(context)", "b[20:28)(clamped)!"}
	if len(got) != len(want) {
		t.Fatalf("placements = %v", got)
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Errorf("placement %d = %s, want %s", i, got[i], want[i])
		}
	}
	if len(degraded) != 1 || degraded[0].HighlightID != "b" {
		t.Errorf("degraded = %+v", degraded)
	}
	if hs := s.Highlights(); hs[0].LastKnownStart != 13 {
		t.Errorf("registry view not updated: %+v", hs[0])
	}
}

func TestSerializeRestore(t *testing.T) {
	ctx := context.Background()
	a := newSession(t, "Title\nHello world.")
	_, _ = a.ToggleFormat(ctx, 0, 5, format.KindHeading, 2)
	b, _ := a.ToggleFormat(ctx, 6, 11, format.KindBold, 0)
	a.SetStyleData(b, map[string]string{"voice": "loud"})
	_, _ = a.AddComment(ctx, 11, "breathe", "ana")

	data, err := a.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	c := newSession(t, "Title\nHello world.")
	createSection(t, c, "s1", "blue", "world", 12, 17)
	if err := c.Restore(ctx, data); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if fmt.Sprint(c.Ranges()) != fmt.Sprint(a.Ranges()) {
		t.Errorf("ranges = %v, want %v", c.Ranges(), a.Ranges())
	}
	r, _ := c.model.Range(b)
	if r.StyleData["voice"] != "loud" {
		t.Errorf("style data lost: %+v", r)
	}
	if cs := c.Comments(); len(cs) != 1 || cs[0].Text != "breathe" || !cs[0].Timestamp.Equal(epoch) {
		t.Errorf("comments = %+v", cs)
	}
	if p, _ := c.Placement("s1"); p.Start != 12 || p.Degraded {
		t.Errorf("placement after restore = %v", p)
	}
	assertSurface(t, c, `h2#id1["Title"] "\n" strong#`+b+`["Hello" ^id3] " " mark#s1["world"] "."`)
}

func TestRestoreErrors(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, "abc")
	_, _ = s.ToggleFormat(ctx, 0, 2, format.KindBold, 0)

	tests := []struct {
		name string
		data string
	}{
		{"not json", `{"version":`},
		{"future major", `{"version":"2.0","ranges":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Restore(ctx, []byte(tt.data))
			if !errors.Is(err, ErrUnsupportedPayload) {
				t.Fatalf("Restore = %v, want ErrUnsupportedPayload", err)
			}
			if len(s.Ranges()) != 1 {
				t.Error("failed restore changed the model")
			}
		})
	}
}

func TestConfigAndBatches(t *testing.T) {
	cfg := config.Default()
	cfg.Render.BatchSize = 1
	cfg.Guard.Message = "Remove the section first."

	yields := 0
	s := newSession(t, "aa bb cc", WithConfig(cfg), WithYield(func(context.Context) error {
		yields++
		return nil
	}))
	createSection(t, s, "s1", "blue", "aa", 0, 2)
	createSection(t, s, "s2", "blue", "bb", 3, 5)
	createSection(t, s, "s3", "blue", "cc", 6, 8)

	yields = 0
	res, err := s.Render(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Batches != 3 || yields != 2 || res.Highlights != 3 {
		t.Errorf("result = %+v, yields = %d", res, yields)
	}

	if _, err := s.SetEditable(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	var msg string
	s.OnProtectionBlocked(func(ev notify.Event) { msg = ev.Message })
	_ = s.Delete(context.Background(), 0, 1)
	if msg != cfg.Guard.Message {
		t.Errorf("guidance = %q", msg)
	}
}

func TestEditDuringYieldKeepsCaret(t *testing.T) {
	cfg := config.Default()
	cfg.Render.BatchSize = 1

	var s *Session
	armed := false
	s = newSession(t, "aa bb cc", WithConfig(cfg), WithYield(func(ctx context.Context) error {
		if !armed {
			return nil
		}
		armed = false
		return s.Insert(ctx, 0, "abc")
	}))
	createSection(t, s, "s1", "blue", "aa", 0, 2)
	createSection(t, s, "s2", "blue", "bb", 3, 5)
	createSection(t, s, "s3", "blue", "cc", 6, 8)

	if err := s.SetCaret(8); err != nil {
		t.Fatal(err)
	}

	armed = true
	res, err := s.Render(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Aborted {
		t.Fatalf("outer pass should abort after the edit, got %+v", res)
	}
	if got := s.Text(); got != "abcaa bb cc" {
		t.Fatalf("text = %q", got)
	}
	if s.Caret() != 11 || res.Caret != 11 {
		t.Errorf("caret = %d (result %d), want 11 at the end of the text", s.Caret(), res.Caret)
	}
	if got := len(s.Surface().Root().Children()); got == 0 {
		t.Error("surface is empty after the nested render")
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	hub := notify.New()
	defer hub.Close()

	a := newSession(t, "same text", WithHub(hub))
	b := newSession(t, "same text", WithHub(hub))
	_, _ = a.ToggleFormat(ctx, 0, 4, format.KindBold, 0)

	if len(b.Ranges()) != 0 {
		t.Errorf("formatting leaked between sessions: %v", b.Ranges())
	}
	if a.Hub() != b.Hub() {
		t.Error("shared hub not used")
	}
}

func TestRenderIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, "Hello brave new world.")
	_, _ = s.ToggleFormat(ctx, 0, 11, format.KindQuote, 0)
	_, _ = s.ToggleFormat(ctx, 6, 15, format.KindItalic, 0)
	createSection(t, s, "s1", "blue", "new", 12, 15)

	first := shape(s.Surface().Root())
	if _, err := s.Render(ctx); err != nil {
		t.Fatal(err)
	}
	if second := shape(s.Surface().Root()); second != first {
		t.Errorf("render not idempotent:\n  %s\n  %s", first, second)
	}
	assertSurfaceText(t, s)
}
