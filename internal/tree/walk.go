package tree

import (
	"fmt"
	"iter"
	"sort"
	"strings"
)

// Leaf is a leaf visited by the ordered walk together with the absolute
// offset of its first character.
type Leaf struct {
	Node  *Node
	Start int
}

// End returns the absolute offset just past the leaf.
func (l Leaf) End() int {
	return l.Start + l.Node.Len()
}

// Leaves walks the leaves under root in document order, accumulating
// text offsets.
func Leaves(root *Node) iter.Seq[Leaf] {
	return func(yield func(Leaf) bool) {
		offset := 0
		var walk func(n *Node) bool
		walk = func(n *Node) bool {
			if n.IsLeaf() {
				if !yield(Leaf{Node: n, Start: offset}) {
					return false
				}
				offset += n.Len()
				return true
			}
			for _, c := range n.children {
				if !walk(c) {
					return false
				}
			}
			return true
		}
		walk(root)
	}
}

// TextLeaves is Leaves restricted to text leaves.
func TextLeaves(root *Node) iter.Seq[Leaf] {
	return func(yield func(Leaf) bool) {
		for l := range Leaves(root) {
			if l.Node.Type != NodeText {
				continue
			}
			if !yield(l) {
				return
			}
		}
	}
}

// Text concatenates the text leaves under root.
func Text(root *Node) string {
	var b strings.Builder
	for l := range TextLeaves(root) {
		b.WriteString(l.Node.Text())
	}
	return b.String()
}

// Span is the absolute character interval a node covers.
type Span struct {
	Start, End int
}

// Spans computes the span of every node under root in one pass.
func Spans(root *Node) map[*Node]Span {
	out := make(map[*Node]Span)
	var walk func(n *Node, offset int) int
	walk = func(n *Node, offset int) int {
		start := offset
		if n.Type == NodeText {
			offset += n.Len()
		}
		for _, c := range n.children {
			offset = walk(c, offset)
		}
		out[n] = Span{Start: start, End: offset}
		return offset
	}
	walk(root, 0)
	return out
}

// Affinity picks a leaf when an offset falls on a boundary between two
// text leaves.
type Affinity uint8

const (
	// Forward prefers the leaf starting at the offset.
	Forward Affinity = iota

	// Backward prefers the leaf ending at the offset.
	Backward
)

// Locate finds the text leaf holding offset and the offset inside it.
// It returns nil when the tree has no text leaf reaching offset.
func Locate(root *Node, offset int, aff Affinity) (*Node, int) {
	var last *Leaf
	for l := range TextLeaves(root) {
		switch {
		case offset > l.Start && offset < l.End():
			return l.Node, offset - l.Start
		case offset == l.Start && l.Node.Len() > 0:
			// Backward only gets here when no earlier leaf ended at offset.
			return l.Node, 0
		case offset == l.End() && aff == Backward:
			return l.Node, offset - l.Start
		case offset == l.End():
			leaf := l
			last = &leaf
		}
		if l.Start > offset {
			break
		}
	}
	if last != nil {
		return last.Node, offset - last.Start
	}
	return nil, 0
}

// OffsetOf returns the absolute offset of a position inside a leaf, or -1
// if the leaf is not under root.
func OffsetOf(root *Node, leaf *Node, inLeaf int) int {
	for l := range Leaves(root) {
		if l.Node == leaf {
			return l.Start + min(max(inLeaf, 0), leaf.Len())
		}
	}
	return -1
}

// Normalize merges adjacent text siblings and drops empty text leaves
// throughout the subtree.
func Normalize(n *Node) {
	if n.IsLeaf() {
		return
	}
	out := n.children[:0]
	for _, c := range n.children {
		if c.Type == NodeText && c.Len() == 0 {
			c.parent = nil
			continue
		}
		if c.Type == NodeText && len(out) > 0 && out[len(out)-1].Type == NodeText {
			prev := out[len(out)-1]
			prev.SetText(prev.Text() + c.Text())
			c.parent = nil
			continue
		}
		out = append(out, c)
	}
	for i := len(out); i < len(n.children); i++ {
		n.children[i] = nil
	}
	n.children = out
	for _, c := range n.children {
		Normalize(c)
	}
}

// Find returns every node under root for which match returns true, in
// document order.
func Find(root *Node, match func(*Node) bool) []*Node {
	var out []*Node
	var walk func(n *Node)
	walk = func(n *Node) {
		if match(n) {
			out = append(out, n)
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(root)
	return out
}

// Dump renders the subtree as a compact, deterministic string. Two trees
// with equal dumps have the same structure, tags, attributes and text.
func Dump(n *Node) string {
	var b strings.Builder
	dump(&b, n)
	return b.String()
}

func dump(b *strings.Builder, n *Node) {
	switch n.Type {
	case NodeText:
		fmt.Fprintf(b, "%q", n.Text())
		return
	case NodeEmbed, NodeMarker:
		b.WriteString("<" + n.Tag + attrString(n) + "/>")
		return
	}
	b.WriteString("<" + n.Tag + attrString(n) + ">")
	for _, c := range n.children {
		dump(b, c)
	}
	b.WriteString("</" + n.Tag + ">")
}

func attrString(n *Node) string {
	if len(n.attrs) == 0 && !n.Locked {
		return ""
	}
	keys := make([]string, 0, len(n.attrs))
	for k := range n.attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%q", k, n.attrs[k])
	}
	if n.Locked {
		b.WriteString(" locked")
	}
	return b.String()
}
