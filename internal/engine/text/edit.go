package text

import (
	"fmt"
	"unicode/utf8"
)

// EditType categorizes an edit.
type EditType uint8

const (
	// EditInsert indicates text was inserted (Deleted is zero).
	EditInsert EditType = iota

	// EditDelete indicates text was deleted (Inserted is empty).
	EditDelete

	// EditReplace indicates text was replaced (both present).
	EditReplace
)

// String returns a human-readable representation of the edit type.
func (et EditType) String() string {
	switch et {
	case EditInsert:
		return "insert"
	case EditDelete:
		return "delete"
	case EditReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Bias decides where an anchor sitting exactly at an insertion point goes.
type Bias uint8

const (
	// BiasAfter moves the anchor past inserted text. This is the default
	// for every formatting anchor.
	BiasAfter Bias = iota

	// BiasBefore keeps the anchor in front of inserted text.
	BiasBefore
)

// Edit is a single splice of the text: Deleted characters are removed at
// Offset and Inserted is put in their place.
type Edit struct {
	Offset   int
	Deleted  int
	Inserted string
}

// NewInsert creates an edit inserting s at offset.
func NewInsert(offset int, s string) Edit {
	return Edit{Offset: offset, Inserted: s}
}

// NewDelete creates an edit deleting n characters at offset.
func NewDelete(offset, n int) Edit {
	return Edit{Offset: offset, Deleted: n}
}

// NewReplace creates an edit replacing n characters at offset with s.
func NewReplace(offset, n int, s string) Edit {
	return Edit{Offset: offset, Deleted: n, Inserted: s}
}

// Type returns the kind of edit.
func (e Edit) Type() EditType {
	switch {
	case e.Deleted == 0:
		return EditInsert
	case e.Inserted == "":
		return EditDelete
	default:
		return EditReplace
	}
}

// InsertedLen returns the number of characters inserted.
func (e Edit) InsertedLen() int {
	return utf8.RuneCountInString(e.Inserted)
}

// Delta returns the length change of this edit.
// Positive means the text grew, negative means it shrank.
func (e Edit) Delta() int {
	return e.InsertedLen() - e.Deleted
}

// DeletedRange returns the removed span in the old text.
func (e Edit) DeletedRange() Range {
	return Range{Start: e.Offset, End: e.Offset + e.Deleted}
}

// IsNoop returns true if the edit changes nothing.
func (e Edit) IsNoop() bool {
	return e.Deleted == 0 && e.Inserted == ""
}

// MapOffset translates an anchor in the old text to the new text.
func (e Edit) MapOffset(a int, bias Bias) int {
	return Shift(a, e.Offset, e.InsertedLen(), e.Deleted, bias)
}

// Shift translates anchor a across a splice at offset that removes
// deleted characters and inserts inserted characters.
//
// Anchors at or after the end of the deleted span move by
// inserted-deleted. Anchors inside the deleted span collapse to offset
// whatever the bias. Bias only decides a pure insertion at the anchor:
// BiasAfter moves past the inserted text, BiasBefore stays.
func Shift(a, offset, inserted, deleted int, bias Bias) int {
	end := offset + deleted
	switch {
	case a < offset:
		return a
	case deleted > 0 && a >= end:
		return a + inserted - deleted
	case deleted > 0:
		return offset
	case a == offset && bias == BiasBefore:
		return a
	default:
		return a + inserted
	}
}

// String returns a human-readable representation of the edit.
func (e Edit) String() string {
	ins := e.Inserted
	if len(ins) > 20 {
		ins = ins[:17] + "..."
	}
	switch e.Type() {
	case EditInsert:
		return fmt.Sprintf("Insert %q at %d", ins, e.Offset)
	case EditDelete:
		return fmt.Sprintf("Delete %v", e.DeletedRange())
	default:
		return fmt.Sprintf("Replace %v with %q", e.DeletedRange(), ins)
	}
}
