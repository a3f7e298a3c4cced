package renderer

import (
	"strconv"

	"github.com/dshills/storyline/internal/anchor"
	"github.com/dshills/storyline/internal/format"
	"github.com/dshills/storyline/internal/tree"
)

// Attributes the renderer sets on the nodes it owns.
const (
	AttrOverlay   = "data-overlay"
	AttrID        = "data-id"
	AttrKind      = "data-kind"
	AttrLevel     = "data-level"
	AttrColor     = "data-color"
	AttrDegraded  = "data-degraded"
	AttrResolved  = "data-resolved"
	AttrEditable  = "contenteditable"
	HighlightTag  = "mark"
	CommentTag    = "comment"
	OverlayFormat = "format"
	OverlayMark   = "highlight"
	OverlayNote   = "comment"
)

// Wrapper ranks. A wrapper never has a higher rank than a wrapper it is
// nested in.
const (
	RankHighlight = 0
	RankBlock     = 1
	RankCharacter = 2
)

// IsOverlay reports whether n is a wrapper element created by the
// renderer.
func IsOverlay(n *tree.Node) bool {
	if n.Type != tree.NodeElement {
		return false
	}
	switch n.Attr(AttrOverlay) {
	case OverlayFormat, OverlayMark:
		return true
	}
	return false
}

// IsMarker reports whether n is a comment marker.
func IsMarker(n *tree.Node) bool {
	return n.Type == tree.NodeMarker && n.Attr(AttrOverlay) == OverlayNote
}

// OverlayKind returns the formatting kind of a format wrapper.
func OverlayKind(n *tree.Node) (format.Kind, bool) {
	if n.Attr(AttrOverlay) != OverlayFormat {
		return 0, false
	}
	k, err := format.ParseKind(n.Attr(AttrKind))
	if err != nil {
		return 0, false
	}
	return k, true
}

// Rank returns the nesting rank of an overlay wrapper.
func Rank(n *tree.Node) int {
	if n.Attr(AttrOverlay) == OverlayMark {
		return RankHighlight
	}
	if k, ok := OverlayKind(n); ok && k.IsBlock() {
		return RankBlock
	}
	return RankCharacter
}

func formatWrapper(r format.Range) *tree.Node {
	w := tree.NewElement(r.Tag())
	w.SetAttr(AttrOverlay, OverlayFormat)
	w.SetAttr(AttrID, r.ID)
	w.SetAttr(AttrKind, r.Kind.String())
	if r.Kind == format.KindHeading {
		w.SetAttr(AttrLevel, strconv.Itoa(r.Level))
	}
	return w
}

func highlightWrapper(p anchor.Placement, locked bool) *tree.Node {
	w := tree.NewElement(HighlightTag)
	w.SetAttr(AttrOverlay, OverlayMark)
	w.SetAttr(AttrID, p.ID)
	w.SetAttr(AttrColor, p.ColorClass)
	if p.Degraded {
		w.SetAttr(AttrDegraded, "true")
	}
	if locked {
		w.Locked = true
		w.SetAttr(AttrEditable, "false")
	}
	return w
}

func commentMarker(c format.Comment) *tree.Node {
	m := tree.NewMarker(CommentTag)
	m.SetAttr(AttrOverlay, OverlayNote)
	m.SetAttr(AttrID, c.ID)
	if c.Resolved {
		m.SetAttr(AttrResolved, "true")
	}
	return m
}

// teardown removes every overlay wrapper and comment marker under root
// and merges the text leaves they separated.
func teardown(root *tree.Node) {
	for _, n := range tree.Find(root, func(n *tree.Node) bool { return IsOverlay(n) || IsMarker(n) }) {
		if n.IsLeaf() {
			n.Detach()
			continue
		}
		n.Unwrap()
	}
	tree.Normalize(root)
}

// wrapRange wraps the content of [start, end) in wrappers built by mk
// and returns how many were created. Content in locked subtrees is left
// alone, so one range may need several wrappers.
func wrapRange(root *tree.Node, start, end, rank int, mk func() *tree.Node) int {
	splitAt(root, end, rank)
	splitAt(root, start, rank)

	groups := coveredGroups(root, start, end, rank)
	for _, g := range groups {
		w := mk()
		parent := g[0].Parent()
		parent.InsertChild(g[0].Index(), w)
		for _, n := range g {
			w.AppendChild(n)
		}
	}
	return len(groups)
}

// splitAt makes offset a child boundary. The text leaf holding offset is
// split, then every enclosing overlay with a rank greater than rank is
// split too, so a wrapper of that rank can enclose either side. Host
// elements and locked subtrees are never split.
func splitAt(root *tree.Node, offset, rank int) {
	leaf, in := tree.Locate(root, offset, tree.Forward)
	if leaf == nil || leaf.InLocked() {
		return
	}

	parent, idx := leaf.Parent(), leaf.Index()
	switch right := leaf.SplitText(in); {
	case right != nil:
		idx = right.Index()
	case in > 0:
		idx++
	}

	for parent != nil && IsOverlay(parent) && Rank(parent) > rank {
		switch {
		case idx == 0:
			idx = parent.Index()
		case idx >= parent.ChildCount():
			idx = parent.Index() + 1
		default:
			parent.SplitChildren(idx)
			idx = parent.Index() + 1
		}
		parent = parent.Parent()
	}
}

// coveredGroups returns the top-most nodes lying entirely inside
// [start, end), grouped into runs of adjacent siblings. Overlays of an
// outer rank and host elements are descended into instead of taken
// whole. Zero-width nodes count only strictly inside the range.
func coveredGroups(root *tree.Node, start, end, rank int) [][]*tree.Node {
	spans := tree.Spans(root)

	var groups [][]*tree.Node
	var cur []*tree.Node
	add := func(n *tree.Node) {
		if len(cur) > 0 {
			last := cur[len(cur)-1]
			if last.Parent() != n.Parent() || last.Index()+1 != n.Index() {
				groups = append(groups, cur)
				cur = nil
			}
		}
		cur = append(cur, n)
	}

	var visit func(n *tree.Node)
	visit = func(n *tree.Node) {
		if n.Locked {
			return
		}
		sp := spans[n]
		if sp.End < start || sp.Start > end {
			return
		}
		inside := sp.Start >= start && sp.End <= end &&
			(sp.Start < sp.End || sp.Start > start && sp.Start < end)

		switch {
		case n.IsLeaf():
			if inside {
				add(n)
			}
			return
		case inside && n.Type == tree.NodeElement && IsOverlay(n) && Rank(n) >= rank:
			add(n)
			return
		}
		for _, c := range n.Children() {
			visit(c)
		}
	}
	visit(root)

	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

// insertMarker inserts a comment marker at the comment's position.
// A marker at the edge of a locked subtree goes outside it.
func insertMarker(root *tree.Node, c format.Comment) {
	m := commentMarker(c)

	leaf, in := tree.Locate(root, c.Position, tree.Backward)
	if leaf == nil {
		root.AppendChild(m)
		return
	}

	if outer := lockedRoot(leaf); outer != nil {
		sp := tree.Spans(root)[outer]
		switch c.Position {
		case sp.Start:
			outer.Parent().InsertChild(outer.Index(), m)
			return
		case sp.End:
			outer.Parent().InsertChild(outer.Index()+1, m)
			return
		}
	}

	switch right := leaf.SplitText(in); {
	case right != nil:
		leaf.Parent().InsertChild(right.Index(), m)
	case in == 0:
		leaf.Parent().InsertChild(leaf.Index(), m)
	default:
		leaf.Parent().InsertChild(leaf.Index()+1, m)
	}
}

// lockedRoot returns the outermost locked ancestor of n.
func lockedRoot(n *tree.Node) *tree.Node {
	var top *tree.Node
	for p := n; p != nil; p = p.Parent() {
		if p.Locked {
			top = p
		}
	}
	return top
}
