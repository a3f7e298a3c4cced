package renderer

import (
	"fmt"

	"github.com/dshills/storyline/internal/engine/text"
	"github.com/dshills/storyline/internal/tree"
)

// ApplyEdit splices an edit into the leaf text so the tree keeps
// tracking the text store between passes. It bumps the generation, so
// any in-flight highlight batch goes stale. The caret follows the edit.
//
// Inserted text joins the leaf before the offset unless that leaf is
// locked. An edit that reaches past the tree returns ErrRenderDesync and
// leaves the tree untouched; the next Render rebuilds it.
func (r *Renderer) ApplyEdit(e text.Edit) error {
	r.gen++
	if e.IsNoop() {
		return nil
	}

	root := r.tree.Root()
	length := root.Len()
	if e.Offset < 0 || e.Deleted < 0 || e.Offset+e.Deleted > length {
		return fmt.Errorf("%w: %v over surface of %d", ErrRenderDesync, e, length)
	}

	caret := r.tree.CaretOffset()

	if e.Deleted > 0 {
		deleteText(root, e.DeletedRange())
	}
	if e.Inserted != "" {
		insertText(root, e.Offset, e.Inserted)
	}
	tree.Normalize(root)

	if caret >= 0 {
		r.tree.PlaceCaret(min(e.MapOffset(caret, text.BiasAfter), root.Len()))
	}
	return nil
}

func deleteText(root *tree.Node, del text.Range) {
	var hit []tree.Leaf
	for l := range tree.TextLeaves(root) {
		if l.Start >= del.End {
			break
		}
		if l.End() > del.Start {
			hit = append(hit, l)
		}
	}

	for _, l := range hit {
		runes := []rune(l.Node.Text())
		from := max(del.Start-l.Start, 0)
		to := min(del.End-l.Start, len(runes))
		l.Node.SetText(string(runes[:from]) + string(runes[to:]))
	}
}

func insertText(root *tree.Node, offset int, s string) {
	leaf, in := tree.Locate(root, offset, tree.Backward)
	if leaf != nil && leaf.InLocked() {
		if next, nin := tree.Locate(root, offset, tree.Forward); next != nil && !next.InLocked() {
			leaf, in = next, nin
		}
	}
	if leaf == nil {
		root.AppendChild(tree.NewText(s))
		return
	}

	runes := []rune(leaf.Text())
	leaf.SetText(string(runes[:in]) + s + string(runes[in:]))
}
