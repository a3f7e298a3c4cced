package renderer

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dshills/storyline/internal/anchor"
	"github.com/dshills/storyline/internal/format"
	"github.com/dshills/storyline/internal/tree"
)

// ErrRenderDesync indicates the leaf text of the tree no longer matches
// the document text.
var ErrRenderDesync = errors.New("render desync")

// DefaultBatchSize is the number of highlights applied between yields.
const DefaultBatchSize = 64

// Frame is everything one render pass projects onto the tree.
type Frame struct {
	// Text is the document text the tree must reproduce.
	Text string

	// Ranges are the formatting ranges to wrap.
	Ranges []format.Range

	// Highlights are section highlight placements to wrap.
	Highlights []anchor.Placement

	// Comments are rendered as zero-width markers.
	Comments []format.Comment

	// Protected reports whether a highlight must be locked.
	// A nil func locks nothing.
	Protected func(id string) bool
}

// Result describes a finished render pass.
type Result struct {
	// Generation is the generation the pass rendered.
	Generation uint64

	// Wrappers is the number of overlay wrappers created.
	Wrappers int

	// Highlights is the number of highlights applied.
	Highlights int

	// Skipped counts ranges and highlights that were empty or out of
	// bounds.
	Skipped int

	// Batches is the number of highlight batches applied.
	Batches int

	// Rebuilt is set when a desync forced a rebuild from the text.
	Rebuilt bool

	// Aborted is set when a newer edit or cancellation stopped the
	// highlight batches. The tree is consistent but incomplete.
	Aborted bool

	// Caret is the restored caret offset, or -1.
	Caret int
}

// YieldFunc is called between highlight batches. It is where the host
// processes pending input; an edit arriving here bumps the generation
// and the pass aborts.
type YieldFunc func(ctx context.Context) error

// Option configures a Renderer.
type Option func(*Renderer)

// WithBatchSize sets how many highlights are applied between yields.
func WithBatchSize(n int) Option {
	return func(r *Renderer) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithYield sets the function called between highlight batches.
func WithYield(fn YieldFunc) Option {
	return func(r *Renderer) {
		r.yield = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.log = l
		}
	}
}

// Renderer owns and mutates an editable tree.
type Renderer struct {
	tree      *tree.Tree
	gen       uint64
	batchSize int
	yield     YieldFunc
	log       *slog.Logger
}

// New creates a renderer for t.
func New(t *tree.Tree, opts ...Option) *Renderer {
	r := &Renderer{
		tree:      t,
		batchSize: DefaultBatchSize,
		log:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Tree returns the rendered tree.
func (r *Renderer) Tree() *tree.Tree {
	return r.tree
}

// Generation returns the current generation.
func (r *Renderer) Generation() uint64 {
	return r.gen
}

// Invalidate bumps the generation so an in-flight pass aborts at its
// next batch.
func (r *Renderer) Invalidate() {
	r.gen++
}

// Rebuild discards the tree and starts over from s.
func (r *Renderer) Rebuild(s string) {
	r.tree.Reset(s)
	r.gen++
}

// Check returns ErrRenderDesync if the leaf text differs from s.
func (r *Renderer) Check(s string) error {
	got := r.tree.Text()
	if got == s {
		return nil
	}
	return fmt.Errorf("%w: tree has %d characters, text has %d",
		ErrRenderDesync, r.tree.Len(), len([]rune(s)))
}

// Render runs one pass. A desync triggers one rebuild from f.Text and a
// second pass; ErrRenderDesync is returned only if that fails too.
func (r *Renderer) Render(ctx context.Context, f Frame) (Result, error) {
	res, err := r.render(ctx, f)
	if !errors.Is(err, ErrRenderDesync) {
		return res, err
	}

	r.log.Warn("render desync, rebuilding surface", slog.Any("error", err))
	caret := r.tree.CaretOffset()
	r.Rebuild(f.Text)
	if caret >= 0 {
		r.tree.PlaceCaret(min(caret, r.tree.Len()))
	}
	res, err = r.render(ctx, f)
	res.Rebuilt = true
	return res, err
}

func (r *Renderer) render(ctx context.Context, f Frame) (Result, error) {
	res := Result{Generation: r.gen, Caret: -1}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	caret := r.tree.CaretOffset()
	root := r.tree.Root()
	teardown(root)
	if err := r.Check(f.Text); err != nil {
		return res, err
	}
	length := root.Len()

	for _, fr := range sortRanges(f.Ranges) {
		if fr.Start < 0 || fr.End > length || fr.Start >= fr.End {
			res.Skipped++
			continue
		}
		res.Wrappers += wrapRange(root, fr.Start, fr.End, fr.Rank(), func() *tree.Node {
			return formatWrapper(fr)
		})
	}

	if !r.applyHighlights(ctx, f, length, &res) {
		res.Aborted = true
		if r.gen == res.Generation {
			res.Caret = r.restoreCaret(caret)
		} else {
			// A newer pass owns the caret; the saved offset is stale.
			res.Caret = r.tree.CaretOffset()
		}
		r.log.Debug("highlight restore aborted",
			slog.Uint64("generation", res.Generation),
			slog.Uint64("current", r.gen))
		return res, nil
	}

	for _, c := range sortComments(f.Comments) {
		insertMarker(root, c)
	}

	if err := r.Check(f.Text); err != nil {
		return res, err
	}
	res.Caret = r.restoreCaret(caret)
	return res, nil
}

// applyHighlights wraps highlights in batches. It returns false when the
// pass went stale between batches.
func (r *Renderer) applyHighlights(ctx context.Context, f Frame, length int, res *Result) bool {
	hs := make([]anchor.Placement, 0, len(f.Highlights))
	for _, p := range f.Highlights {
		if p.Start < 0 || p.End > length || p.Start >= p.End {
			res.Skipped++
			continue
		}
		hs = append(hs, p)
	}
	slices.SortStableFunc(hs, func(a, b anchor.Placement) int {
		if a.Start != b.Start {
			return b.Start - a.Start
		}
		return cmp.Compare(a.ID, b.ID)
	})

	root := r.tree.Root()
	for i := 0; i < len(hs); i += r.batchSize {
		if i > 0 && r.yield != nil {
			if err := r.yield(ctx); err != nil {
				return false
			}
		}
		if ctx.Err() != nil || r.gen != res.Generation {
			return false
		}
		for _, p := range hs[i:min(i+r.batchSize, len(hs))] {
			locked := f.Protected != nil && f.Protected(p.ID)
			res.Wrappers += wrapRange(root, p.Start, p.End, RankHighlight, func() *tree.Node {
				return highlightWrapper(p, locked)
			})
			res.Highlights++
		}
		res.Batches++
	}
	return true
}

func (r *Renderer) restoreCaret(offset int) int {
	if offset < 0 {
		return -1
	}
	offset = min(offset, r.tree.Len())
	if !r.tree.PlaceCaret(offset) {
		return -1
	}
	return offset
}

// sortRanges orders ranges by start descending. Ranges sharing a start
// put the inner rank first.
func sortRanges(in []format.Range) []format.Range {
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(a, b format.Range) int {
		if a.Start != b.Start {
			return b.Start - a.Start
		}
		if a.Rank() != b.Rank() {
			return b.Rank() - a.Rank()
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func sortComments(in []format.Comment) []format.Comment {
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(a, b format.Comment) int {
		if a.Position != b.Position {
			return b.Position - a.Position
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}
