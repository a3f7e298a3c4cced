// Package renderer projects a document's text, formatting ranges,
// section highlights and comments onto an editable tree.
//
// The renderer is the only component that mutates the tree. Every pass
// follows the same steps:
//
//  1. Snapshot the caret as an absolute offset.
//  2. Tear down overlay wrappers and comment markers, leaving host
//     structure and embeds in place.
//  3. Wrap formatting ranges, right to left.
//  4. Wrap section highlights from their placements, in batches.
//  5. Insert comment markers.
//  6. Restore the caret.
//
// Wrappers nest by rank: highlights outside block formatting, block
// formatting outside character formatting. A wrapper is split wherever a
// wrapper of an outer rank has to enclose part of it.
//
// After a pass the concatenated leaf text must equal the document text.
// When it does not, the tree is rebuilt from the text and rendered once
// more.
//
// Usage:
//
//	t := tree.New(doc)
//	r := renderer.New(t, renderer.WithBatchSize(50))
//	res, err := r.Render(ctx, renderer.Frame{Text: doc, Ranges: ranges})
package renderer
