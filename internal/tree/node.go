package tree

import (
	"maps"
	"slices"
	"unicode/utf8"
)

// NodeType identifies the kind of a node.
type NodeType uint8

const (
	// NodeRoot is the single root of a tree.
	NodeRoot NodeType = iota

	// NodeElement is a container. Overlay wrappers and host structure
	// are both elements.
	NodeElement

	// NodeText is a leaf carrying characters.
	NodeText

	// NodeEmbed is a non-text leaf owned by the host (image, audio badge).
	NodeEmbed

	// NodeMarker is a zero-width leaf owned by the renderer.
	NodeMarker
)

// String returns the node type name.
func (t NodeType) String() string {
	switch t {
	case NodeRoot:
		return "root"
	case NodeElement:
		return "element"
	case NodeText:
		return "text"
	case NodeEmbed:
		return "embed"
	case NodeMarker:
		return "marker"
	default:
		return "unknown"
	}
}

// Node is a node of the editable surface.
type Node struct {
	Type NodeType
	Tag  string

	// Locked marks a subtree that must not be edited or re-wrapped.
	Locked bool

	text     string
	textLen  int
	attrs    map[string]string
	parent   *Node
	children []*Node
}

// NewRoot creates an empty root node.
func NewRoot() *Node {
	return &Node{Type: NodeRoot, Tag: "root"}
}

// NewElement creates an element node.
func NewElement(tag string) *Node {
	return &Node{Type: NodeElement, Tag: tag}
}

// NewText creates a text leaf.
func NewText(s string) *Node {
	n := &Node{Type: NodeText}
	n.SetText(s)
	return n
}

// NewEmbed creates a zero-width host leaf.
func NewEmbed(tag string) *Node {
	return &Node{Type: NodeEmbed, Tag: tag}
}

// NewMarker creates a zero-width renderer leaf.
func NewMarker(tag string) *Node {
	return &Node{Type: NodeMarker, Tag: tag}
}

// IsLeaf reports whether the node is a leaf.
func (n *Node) IsLeaf() bool {
	return n.Type == NodeText || n.Type == NodeEmbed || n.Type == NodeMarker
}

// Text returns the characters of a text leaf.
func (n *Node) Text() string {
	return n.text
}

// SetText replaces the characters of a text leaf.
func (n *Node) SetText(s string) {
	n.text = s
	n.textLen = utf8.RuneCountInString(s)
}

// Len returns the number of characters under the node.
func (n *Node) Len() int {
	if n.Type == NodeText {
		return n.textLen
	}
	total := 0
	for _, c := range n.children {
		total += c.Len()
	}
	return total
}

// Attr returns an attribute value.
func (n *Node) Attr(key string) string {
	return n.attrs[key]
}

// SetAttr sets an attribute.
func (n *Node) SetAttr(key, value string) {
	if n.attrs == nil {
		n.attrs = make(map[string]string)
	}
	n.attrs[key] = value
}

// Attrs returns a copy of the attributes.
func (n *Node) Attrs() map[string]string {
	return maps.Clone(n.attrs)
}

// Parent returns the parent node, or nil for a detached node or the root.
func (n *Node) Parent() *Node {
	return n.parent
}

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	return slices.Clone(n.children)
}

// ChildCount returns the number of children.
func (n *Node) ChildCount() int {
	return len(n.children)
}

// Child returns the i-th child.
func (n *Node) Child(i int) *Node {
	return n.children[i]
}

// Index returns the position of n within its parent, or -1.
func (n *Node) Index() int {
	if n.parent == nil {
		return -1
	}
	return slices.Index(n.parent.children, n)
}

// AppendChild adds c as the last child, detaching it first.
func (n *Node) AppendChild(c *Node) {
	n.InsertChild(len(n.children), c)
}

// InsertChild inserts c at index i, detaching it first.
func (n *Node) InsertChild(i int, c *Node) {
	c.Detach()
	i = min(max(i, 0), len(n.children))
	n.children = slices.Insert(n.children, i, c)
	c.parent = n
}

// Detach removes n from its parent.
func (n *Node) Detach() {
	if n.parent == nil {
		return
	}
	p := n.parent
	if i := slices.Index(p.children, n); i >= 0 {
		p.children = slices.Delete(p.children, i, i+1)
	}
	n.parent = nil
}

// CloneShallow copies the node without children or parent.
func (n *Node) CloneShallow() *Node {
	return &Node{
		Type:    n.Type,
		Tag:     n.Tag,
		Locked:  n.Locked,
		text:    n.text,
		textLen: n.textLen,
		attrs:   maps.Clone(n.attrs),
	}
}

// Unwrap replaces the element with its children.
func (n *Node) Unwrap() {
	p := n.parent
	if p == nil {
		return
	}
	at := n.Index()
	kids := n.children
	n.children = nil
	n.Detach()
	for i, c := range kids {
		c.parent = nil
		p.InsertChild(at+i, c)
	}
}

// SplitChildren moves children [i:] into a shallow clone inserted right
// after n and returns the clone.
func (n *Node) SplitChildren(i int) *Node {
	clone := n.CloneShallow()
	moved := slices.Clone(n.children[i:])
	for _, c := range moved {
		clone.AppendChild(c)
	}
	if n.parent != nil {
		n.parent.InsertChild(n.Index()+1, clone)
	}
	return clone
}

// SplitText splits a text leaf at a character offset and returns the new
// right-hand leaf, inserted after n. Splitting at either edge is a no-op
// and returns nil.
func (n *Node) SplitText(at int) *Node {
	if n.Type != NodeText || at <= 0 || at >= n.textLen {
		return nil
	}
	runes := []rune(n.text)
	right := NewText(string(runes[at:]))
	n.SetText(string(runes[:at]))
	if n.parent != nil {
		n.parent.InsertChild(n.Index()+1, right)
	}
	return right
}

// Ancestors returns the chain of parents from nearest to the root.
func (n *Node) Ancestors() []*Node {
	var out []*Node
	for p := n.parent; p != nil; p = p.parent {
		out = append(out, p)
	}
	return out
}

// InLocked reports whether n or any ancestor is locked.
func (n *Node) InLocked() bool {
	for p := n; p != nil; p = p.parent {
		if p.Locked {
			return true
		}
	}
	return false
}
