package format

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

// sequentialIDs returns a deterministic ID generator for tests.
func sequentialIDs() Option {
	n := 0
	return WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("r%d", n)
	})
}

func spans(rs []Range) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.String()
	}
	return out
}

func assertSpans(t *testing.T, m *Model, want ...string) {
	t.Helper()
	got := spans(m.Ranges())
	if len(got) != len(want) {
		t.Fatalf("ranges = %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("ranges = %v, want %v", got, want)
		}
	}
}

func TestKindTableComplete(t *testing.T) {
	for _, k := range Kinds() {
		ks := kindSpecs[k]
		if ks.name == "" || ks.tag == nil {
			t.Errorf("kind %d has no dispatch entry", k)
		}
		parsed, err := ParseKind(k.String())
		if err != nil || parsed != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), parsed, err)
		}
	}
	if Kind(0).Valid() || kindEnd.Valid() {
		t.Error("sentinel kinds must be invalid")
	}
}

func TestKindTags(t *testing.T) {
	tests := []struct {
		kind  Kind
		level int
		want  string
	}{
		{KindBold, 0, "strong"},
		{KindItalic, 0, "em"},
		{KindUnderline, 0, "u"},
		{KindHeading, 2, "h2"},
		{KindQuote, 0, "blockquote"},
	}
	for _, tt := range tests {
		if got := tt.kind.Tag(tt.level); got != tt.want {
			t.Errorf("%v.Tag(%d) = %q, want %q", tt.kind, tt.level, got, tt.want)
		}
	}
}

func TestAddRangeValidation(t *testing.T) {
	m := NewModel(12, sequentialIDs())

	tests := []struct {
		name       string
		start, end int
		kind       Kind
		level      int
		wantErr    error
	}{
		{"start after end", 5, 2, KindBold, 0, ErrInvalidRange},
		{"negative", -1, 3, KindBold, 0, ErrInvalidRange},
		{"past end", 0, 13, KindItalic, 0, ErrInvalidRange},
		{"unknown kind", 0, 3, Kind(42), 0, ErrUnknownKind},
		{"heading level 0", 0, 3, KindHeading, 0, ErrInvalidLevel},
		{"heading level 5", 0, 3, KindHeading, 5, ErrInvalidLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := m.AddRange(tt.start, tt.end, tt.kind, tt.level)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if !errors.Is(err, ErrInvalidRange) {
				t.Errorf("every rejection should be an ErrInvalidRange, got %v", err)
			}
			if id != "" {
				t.Errorf("expected empty id, got %q", id)
			}
		})
	}
	if len(m.Ranges()) != 0 {
		t.Errorf("rejected calls wrote state: %v", m.Ranges())
	}
}

func TestAddRangeEmptySpanIsNoop(t *testing.T) {
	m := NewModel(12, sequentialIDs())
	bold, _ := m.AddRange(2, 6, KindBold, 0)

	tests := []struct {
		name       string
		start, end int
		kind       Kind
		level      int
	}{
		{"inside existing bold", 3, 3, KindBold, 0},
		{"at text end", 12, 12, KindItalic, 0},
		{"heading", 0, 0, KindHeading, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := m.AddRange(tt.start, tt.end, tt.kind, tt.level)
			if err != nil || id != "" {
				t.Errorf("AddRange(%d, %d) = %q, %v; want no-op", tt.start, tt.end, id, err)
			}
			assertSpans(t, m, "bold[2:6)")
		})
	}
	if _, ok := m.Range(bold); !ok {
		t.Error("empty span toggled existing bold off")
	}

	// Bounds and kind are still checked for empty spans.
	if _, err := m.AddRange(13, 13, KindBold, 0); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("empty span past end: err = %v", err)
	}
	if _, err := m.AddRange(1, 1, KindHeading, 9); !errors.Is(err, ErrInvalidLevel) {
		t.Errorf("empty span with bad level: err = %v", err)
	}
}

func TestToggleIdempotence(t *testing.T) {
	m := NewModel(20, sequentialIDs())
	if _, err := m.AddRange(10, 15, KindItalic, 0); err != nil {
		t.Fatal(err)
	}
	before := spans(m.Ranges())

	id, err := m.AddRange(2, 8, KindBold, 0)
	if err != nil || id == "" {
		t.Fatalf("first toggle: id=%q err=%v", id, err)
	}
	id, err = m.AddRange(2, 8, KindBold, 0)
	if err != nil {
		t.Fatal(err)
	}
	if id != "" {
		t.Errorf("second toggle should remove, got id %q", id)
	}

	after := spans(m.Ranges())
	if fmt.Sprint(before) != fmt.Sprint(after) {
		t.Errorf("toggle twice: got %v, want %v", after, before)
	}
}

// A toggle that swallows an existing range of the same kind merges it, so
// toggling the same span again clears the swallowed range as well.
func TestToggleTwiceOverSwallowedRange(t *testing.T) {
	m := NewModel(12, sequentialIDs())
	if _, err := m.AddRange(3, 7, KindBold, 0); err != nil {
		t.Fatal(err)
	}

	id, err := m.AddRange(0, 10, KindBold, 0)
	if err != nil || id == "" {
		t.Fatalf("first toggle: id=%q err=%v", id, err)
	}
	assertSpans(t, m, "bold[0:10)")

	id, err = m.AddRange(0, 10, KindBold, 0)
	if err != nil || id != "" {
		t.Fatalf("second toggle: id=%q err=%v; want toggle off", id, err)
	}
	assertSpans(t, m)
}

func TestCharacterToggleSplitsCoveredSpan(t *testing.T) {
	m := NewModel(20, sequentialIDs())
	first, _ := m.AddRange(0, 10, KindBold, 0)

	id, err := m.AddRange(3, 6, KindBold, 0)
	if err != nil {
		t.Fatal(err)
	}
	if id != "" {
		t.Errorf("covered span should toggle off, got %q", id)
	}
	assertSpans(t, m, "bold[0:3)", "bold[6:10)")

	if r, ok := m.Range(first); !ok || r.End != 3 {
		t.Errorf("left fragment should keep the original id, got %v %v", r, ok)
	}

	// Re-applying restores the union.
	if _, err := m.AddRange(3, 6, KindBold, 0); err != nil {
		t.Fatal(err)
	}
	assertSpans(t, m, "bold[0:10)")
}

func TestCharacterUnionOnPartialCoverage(t *testing.T) {
	tests := []struct {
		name     string
		existing [][2]int
		apply    [2]int
		want     []string
	}{
		{"extend right", [][2]int{{0, 5}}, [2]int{3, 9}, []string{"bold[0:9)"}},
		{"extend left", [][2]int{{5, 9}}, [2]int{2, 6}, []string{"bold[2:9)"}},
		{"bridge gap", [][2]int{{0, 3}, {6, 9}}, [2]int{2, 7}, []string{"bold[0:9)"}},
		{"adjacent merge", [][2]int{{0, 3}}, [2]int{3, 5}, []string{"bold[0:5)"}},
		{"gap not covered", [][2]int{{0, 3}, {4, 9}}, [2]int{0, 9}, []string{"bold[0:9)"}},
		{"disjoint", [][2]int{{0, 2}}, [2]int{5, 7}, []string{"bold[0:2)", "bold[5:7)"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewModel(20, sequentialIDs())
			for _, e := range tt.existing {
				if _, err := m.AddRange(e[0], e[1], KindBold, 0); err != nil {
					t.Fatal(err)
				}
			}
			id, err := m.AddRange(tt.apply[0], tt.apply[1], KindBold, 0)
			if err != nil {
				t.Fatal(err)
			}
			if id == "" {
				t.Error("union should return the new range id")
			}
			assertSpans(t, m, tt.want...)
		})
	}
}

func TestCharacterKindsOverlapFreely(t *testing.T) {
	m := NewModel(20, sequentialIDs())
	_, _ = m.AddRange(0, 10, KindBold, 0)
	_, _ = m.AddRange(5, 15, KindItalic, 0)
	_, _ = m.AddRange(0, 20, KindHeading, 1)
	assertSpans(t, m, "heading1[0:20)", "bold[0:10)", "italic[5:15)")
}

func TestBlockKindsReplace(t *testing.T) {
	m := NewModel(30, sequentialIDs())
	if _, err := m.AddRange(0, 10, KindQuote, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddRange(20, 30, KindHeading, 1); err != nil {
		t.Fatal(err)
	}

	// Overlaps the tail of the quote and the head of the heading.
	id, err := m.AddRange(5, 25, KindHeading, 2)
	if err != nil || id == "" {
		t.Fatalf("id=%q err=%v", id, err)
	}
	assertSpans(t, m, "quote[0:5)", "heading2[5:25)", "heading1[25:30)")

	// Same kind, level and span toggles off.
	id, err = m.AddRange(5, 25, KindHeading, 2)
	if err != nil {
		t.Fatal(err)
	}
	if id != "" {
		t.Errorf("expected toggle off, got %q", id)
	}
	assertSpans(t, m, "quote[0:5)", "heading1[25:30)")
}

func TestBlockReplaceFullyCovered(t *testing.T) {
	m := NewModel(30, sequentialIDs())
	_, _ = m.AddRange(5, 10, KindHeading, 3)
	_, _ = m.AddRange(0, 20, KindQuote, 0)
	assertSpans(t, m, "quote[0:20)")
}

func TestBlockLevelIgnoredForOtherKinds(t *testing.T) {
	m := NewModel(10, sequentialIDs())
	id, err := m.AddRange(0, 5, KindQuote, 3)
	if err != nil {
		t.Fatal(err)
	}
	r, _ := m.Range(id)
	if r.Level != 0 {
		t.Errorf("quote level = %d, want 0", r.Level)
	}
}

func TestRemoveRangeIdempotent(t *testing.T) {
	m := NewModel(10, sequentialIDs())
	id, _ := m.AddRange(0, 5, KindBold, 0)
	m.RemoveRange(id)
	m.RemoveRange(id)
	m.RemoveRange("missing")
	if len(m.Ranges()) != 0 {
		t.Errorf("expected no ranges, got %v", m.Ranges())
	}
}

func TestQueryAt(t *testing.T) {
	m := NewModel(20, sequentialIDs())
	_, _ = m.AddRange(0, 5, KindBold, 0)
	_, _ = m.AddRange(3, 8, KindItalic, 0)
	_, _ = m.AddRange(0, 20, KindQuote, 0)

	got := spans(m.QueryAt(4))
	want := []string{"quote[0:20)", "bold[0:5)", "italic[3:8)"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("QueryAt(4) = %v, want %v", got, want)
	}
	if got := m.QueryAt(5); len(got) != 2 {
		t.Errorf("end is exclusive; QueryAt(5) = %v", spans(got))
	}
	if !m.Has(0, KindBold) || m.Has(5, KindBold) {
		t.Error("Has mismatch")
	}
}

func TestShiftLaw(t *testing.T) {
	t.Run("insert shifts anchors at or after offset", func(t *testing.T) {
		m := NewModel(12, sequentialIDs())
		_, _ = m.AddRange(0, 5, KindBold, 0)
		_, _ = m.AddRange(6, 11, KindItalic, 0)

		// "Hello world." -> "Oh, Hello world."
		m.ShiftPositions(0, 4, 0)
		assertSpans(t, m, "bold[4:9)", "italic[10:15)")
		if m.Len() != 16 {
			t.Errorf("Len = %d, want 16", m.Len())
		}
	})

	t.Run("insert inside range grows it", func(t *testing.T) {
		m := NewModel(10, sequentialIDs())
		_, _ = m.AddRange(2, 6, KindBold, 0)
		m.ShiftPositions(4, 3, 0)
		assertSpans(t, m, "bold[2:9)")
	})

	t.Run("delete after range leaves it", func(t *testing.T) {
		m := NewModel(20, sequentialIDs())
		_, _ = m.AddRange(2, 6, KindBold, 0)
		m.ShiftPositions(10, 0, 5)
		assertSpans(t, m, "bold[2:6)")
	})

	t.Run("delete before range shifts it back", func(t *testing.T) {
		m := NewModel(20, sequentialIDs())
		_, _ = m.AddRange(10, 14, KindBold, 0)
		m.ShiftPositions(2, 0, 5)
		assertSpans(t, m, "bold[5:9)")
	})

	t.Run("anchors inside deletion collapse", func(t *testing.T) {
		m := NewModel(20, sequentialIDs())
		_, _ = m.AddRange(2, 8, KindBold, 0)
		m.ShiftPositions(5, 0, 10)
		assertSpans(t, m, "bold[2:5)")
	})

	t.Run("replace collapses deleted anchors to offset", func(t *testing.T) {
		m := NewModel(8, sequentialIDs())
		_, _ = m.AddRange(2, 5, KindBold, 0)
		// Four characters at 0 become two: start 2 was deleted, end 5
		// moves by 2-4.
		m.ShiftPositions(0, 2, 4)
		assertSpans(t, m, "bold[0:3)")
		if m.Len() != 6 {
			t.Errorf("Len = %d, want 6", m.Len())
		}
	})

	t.Run("replace at range start keeps replacement inside", func(t *testing.T) {
		m := NewModel(10, sequentialIDs())
		_, _ = m.AddRange(5, 9, KindBold, 0)
		m.ShiftPositions(5, 2, 2)
		assertSpans(t, m, "bold[5:9)")
	})

	t.Run("comment inside replaced span collapses to offset", func(t *testing.T) {
		m := NewModel(10, sequentialIDs())
		id, _ := m.AddComment(6, "c", "x")
		m.ShiftPositions(5, 2, 3)
		if got, _ := m.Comment(id); got.Position != 5 {
			t.Errorf("comment at %d, want 5", got.Position)
		}
	})

	t.Run("fully deleted range is dropped", func(t *testing.T) {
		m := NewModel(20, sequentialIDs())
		_, _ = m.AddRange(6, 9, KindUnderline, 0)
		m.ShiftPositions(5, 0, 10)
		if len(m.Ranges()) != 0 {
			t.Errorf("expected range dropped, got %v", spans(m.Ranges()))
		}
	})

	t.Run("comments follow", func(t *testing.T) {
		m := NewModel(20, sequentialIDs())
		a, _ := m.AddComment(3, "a", "x")
		b, _ := m.AddComment(12, "b", "x")
		c, _ := m.AddComment(7, "c", "x")
		m.ShiftPositions(5, 0, 4)

		want := map[string]int{a: 3, b: 8, c: 5}
		for id, pos := range want {
			got, _ := m.Comment(id)
			if got.Position != pos {
				t.Errorf("comment %s at %d, want %d", id, got.Position, pos)
			}
		}
	})

	t.Run("clamped to text", func(t *testing.T) {
		m := NewModel(10, sequentialIDs())
		_, _ = m.AddRange(5, 10, KindBold, 0)
		// A delete that claims more than the text has.
		m.ShiftPositions(8, 0, 50)
		assertSpans(t, m, "bold[5:8)")
		if m.Len() != 8 {
			t.Errorf("Len = %d, want 8", m.Len())
		}
	})
}

func TestComments(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewModel(10, sequentialIDs(), WithClock(func() time.Time { return now }))

	if _, err := m.AddComment(11, "late", "a"); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}

	id, err := m.AddComment(10, "at end", "ann")
	if err != nil {
		t.Fatal(err)
	}
	c, ok := m.Comment(id)
	if !ok || c.Author != "ann" || !c.Timestamp.Equal(now) || c.Resolved {
		t.Errorf("unexpected comment %+v", c)
	}

	if !m.ResolveComment(id, true) {
		t.Fatal("ResolveComment returned false")
	}
	if c, _ := m.Comment(id); !c.Resolved {
		t.Error("comment not resolved")
	}
	if m.ResolveComment("missing", true) {
		t.Error("resolving unknown comment should report false")
	}

	m.RemoveComment(id)
	if len(m.Comments()) != 0 {
		t.Error("comment not removed")
	}
}

func TestReplace(t *testing.T) {
	m := NewModel(20, sequentialIDs())
	dropped := m.Replace([]Range{
		{ID: "a", Start: 0, End: 5, Kind: KindBold},
		{ID: "a", Start: 6, End: 9, Kind: KindItalic},    // duplicate id
		{ID: "b", Start: 15, End: 40, Kind: KindItalic},  // clamped
		{ID: "c", Start: 25, End: 30, Kind: KindBold},    // outside text
		{ID: "d", Start: 0, End: 10, Kind: KindQuote},    // block
		{ID: "e", Start: 5, End: 15, Kind: KindHeading},  // overlaps quote, level clamped
		{ID: "f", Start: 1, End: 2, Kind: Kind(99)},      // unknown kind
	}, []Comment{{ID: "c1", Position: 50}})

	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	assertSpans(t, m, "quote[0:10)", "bold[0:5)", "italic[6:9)", "heading1[10:15)", "italic[15:20)")

	comments := m.Comments()
	if len(comments) != 1 || comments[0].Position != 20 {
		t.Errorf("comments = %+v", comments)
	}

	ids := make(map[string]bool)
	for _, r := range m.Ranges() {
		if ids[r.ID] {
			t.Errorf("duplicate id %q after Replace", r.ID)
		}
		ids[r.ID] = true
	}
}

func TestReset(t *testing.T) {
	m := NewModel(10, sequentialIDs())
	_, _ = m.AddRange(0, 5, KindBold, 0)
	_, _ = m.AddComment(2, "x", "y")
	m.Reset(3)
	if len(m.Ranges()) != 0 || len(m.Comments()) != 0 || m.Len() != 3 {
		t.Errorf("Reset left state behind")
	}
}

func TestPresent(t *testing.T) {
	m := NewModel(20, sequentialIDs())
	_, _ = m.AddRange(0, 4, KindBold, 0)
	_, _ = m.AddRange(4, 8, KindBold, 0)
	_, _ = m.AddRange(10, 15, KindHeading, 2)

	tests := []struct {
		name       string
		start, end int
		kind       Kind
		level      int
		want       bool
	}{
		{"merged character cover", 2, 8, KindBold, 0, true},
		{"gap", 6, 12, KindBold, 0, false},
		{"other kind", 0, 4, KindItalic, 0, false},
		{"exact block", 10, 15, KindHeading, 2, true},
		{"block level differs", 10, 15, KindHeading, 3, false},
		{"block inside", 11, 14, KindHeading, 2, false},
		{"collapsed", 3, 3, KindBold, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Present(tt.start, tt.end, tt.kind, tt.level); got != tt.want {
				t.Errorf("Present(%d, %d, %v, %d) = %v, want %v", tt.start, tt.end, tt.kind, tt.level, got, tt.want)
			}
		})
	}
}
