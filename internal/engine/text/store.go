package text

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Errors returned by store operations.
var (
	// ErrOffsetOutOfRange indicates an offset is outside the text.
	ErrOffsetOutOfRange = errors.New("offset out of range")

	// ErrRangeInvalid indicates an invalid range (e.g., end < start).
	ErrRangeInvalid = errors.New("invalid range")
)

// Store is the single mutable string a document is made of.
// It is not safe for concurrent use; the overlay engine runs every
// mutation to completion on one event before handling the next.
type Store struct {
	runes    []rune
	revision uint64
}

// NewStore creates a store holding s.
func NewStore(s string) *Store {
	return &Store{runes: []rune(s)}
}

// Len returns the length of the text in characters.
func (s *Store) Len() int {
	return len(s.runes)
}

// Revision returns a counter bumped on every successful mutation.
func (s *Store) Revision() uint64 {
	return s.revision
}

// String returns the full text.
func (s *Store) String() string {
	return string(s.runes)
}

// Runes returns a copy of the text as runes.
func (s *Store) Runes() []rune {
	out := make([]rune, len(s.runes))
	copy(out, s.runes)
	return out
}

// Slice returns the text in r.
func (s *Store) Slice(r Range) (string, error) {
	if !r.Within(len(s.runes)) {
		return "", fmt.Errorf("slice %v of %d: %w", r, len(s.runes), ErrRangeInvalid)
	}
	return string(s.runes[r.Start:r.End]), nil
}

// Set replaces the whole text.
func (s *Store) Set(text string) {
	s.runes = []rune(text)
	s.revision++
}

// Apply performs the edit.
func (s *Store) Apply(e Edit) error {
	if e.Offset < 0 || e.Offset > len(s.runes) {
		return fmt.Errorf("edit at %d of %d: %w", e.Offset, len(s.runes), ErrOffsetOutOfRange)
	}
	if e.Deleted < 0 || e.Offset+e.Deleted > len(s.runes) {
		return fmt.Errorf("delete %v of %d: %w", e.DeletedRange(), len(s.runes), ErrRangeInvalid)
	}
	if e.IsNoop() {
		return nil
	}

	ins := []rune(e.Inserted)
	out := make([]rune, 0, len(s.runes)+len(ins)-e.Deleted)
	out = append(out, s.runes[:e.Offset]...)
	out = append(out, ins...)
	out = append(out, s.runes[e.Offset+e.Deleted:]...)
	s.runes = out
	s.revision++
	return nil
}

// Index returns the character offsets of every occurrence of sub,
// overlapping occurrences included.
func Index(text, sub string) []int {
	if sub == "" {
		return nil
	}
	var offsets []int
	byteOff := 0
	runeOff := 0
	for {
		i := strings.Index(text[byteOff:], sub)
		if i < 0 {
			return offsets
		}
		runeOff += utf8.RuneCountInString(text[byteOff : byteOff+i])
		offsets = append(offsets, runeOff)

		// Step one rune past the match start so overlapping hits are found.
		_, size := utf8.DecodeRuneInString(text[byteOff+i:])
		byteOff += i + size
		runeOff++
	}
}
