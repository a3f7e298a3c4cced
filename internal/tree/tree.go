package tree

// Selection is a caret position: a text leaf and an offset inside it.
type Selection struct {
	Node   *Node
	Offset int
}

// IsZero reports whether the selection is unset.
func (s Selection) IsZero() bool {
	return s.Node == nil
}

// Tree is an editable surface with a caret.
type Tree struct {
	root  *Node
	caret Selection
}

// New creates a tree holding s as a single text leaf.
func New(s string) *Tree {
	t := &Tree{root: NewRoot()}
	t.root.AppendChild(NewText(s))
	return t
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	return t.root
}

// Reset discards the whole tree and starts over from s.
func (t *Tree) Reset(s string) {
	t.root = NewRoot()
	t.root.AppendChild(NewText(s))
	t.caret = Selection{}
}

// Text returns the concatenated leaf text.
func (t *Tree) Text() string {
	return Text(t.root)
}

// Len returns the text length of the tree.
func (t *Tree) Len() int {
	return t.root.Len()
}

// Caret returns the current selection.
func (t *Tree) Caret() Selection {
	return t.caret
}

// SetCaret sets the selection directly.
func (t *Tree) SetCaret(sel Selection) {
	t.caret = sel
}

// CaretOffset returns the caret as an absolute offset, or -1 when there
// is no caret or it points at a node no longer in the tree.
func (t *Tree) CaretOffset() int {
	if t.caret.IsZero() {
		return -1
	}
	return OffsetOf(t.root, t.caret.Node, t.caret.Offset)
}

// PlaceCaret moves the caret to an absolute offset. It reports false if
// the offset does not resolve to a text leaf.
func (t *Tree) PlaceCaret(offset int) bool {
	leaf, in := Locate(t.root, offset, Backward)
	if leaf == nil {
		t.caret = Selection{}
		return false
	}
	t.caret = Selection{Node: leaf, Offset: in}
	return true
}
