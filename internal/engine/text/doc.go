// Package text provides the plain-text ground truth of a document.
//
// A [Store] holds the document content as a rune-indexed string. Every
// offset handed out by this package, and by the overlay packages built on
// top of it, counts characters (runes), not bytes.
//
// Mutations are described by an [Edit]: a single splice at an offset that
// removes Deleted characters and inserts Inserted text. Edits are what the
// formatting model and the anchor translator consume to keep their
// offsets in step with the text.
//
//	store := text.NewStore("Hello world.")
//	edit := text.NewInsert(0, "Oh, ")
//	if err := store.Apply(edit); err != nil {
//	    return err
//	}
//	// store.String() == "Oh, Hello world."
package text
