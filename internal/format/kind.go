package format

import (
	"fmt"
	"strings"
)

// Kind identifies a formatting kind.
type Kind uint8

const (
	// KindBold is bold text.
	KindBold Kind = iota + 1

	// KindItalic is italic text.
	KindItalic

	// KindUnderline is underlined text.
	KindUnderline

	// KindHeading is a heading of level 1-4.
	KindHeading

	// KindQuote is a block quote.
	KindQuote

	kindEnd
)

// Class separates character-level kinds from block-level kinds.
type Class uint8

const (
	// ClassCharacter kinds may overlap freely.
	ClassCharacter Class = iota

	// ClassBlock kinds are mutually exclusive over a span.
	ClassBlock
)

// Heading levels.
const (
	MinHeadingLevel = 1
	MaxHeadingLevel = 4
)

// ToggleRule selects how AddRange treats existing ranges of the same kind.
type ToggleRule uint8

const (
	// ToggleUnion removes a fully covered span and otherwise unions.
	ToggleUnion ToggleRule = iota

	// ToggleReplace replaces overlapping block ranges.
	ToggleReplace
)

// kindSpec is the per-kind dispatch entry.
type kindSpec struct {
	name   string
	class  Class
	toggle ToggleRule
	tag    func(level int) string
}

func fixedTag(tag string) func(int) string {
	return func(int) string { return tag }
}

// kindSpecs is indexed by Kind. A kind without an entry fails
// TestKindTableComplete.
var kindSpecs = [kindEnd]kindSpec{
	KindBold:      {name: "bold", class: ClassCharacter, toggle: ToggleUnion, tag: fixedTag("strong")},
	KindItalic:    {name: "italic", class: ClassCharacter, toggle: ToggleUnion, tag: fixedTag("em")},
	KindUnderline: {name: "underline", class: ClassCharacter, toggle: ToggleUnion, tag: fixedTag("u")},
	KindHeading: {name: "heading", class: ClassBlock, toggle: ToggleReplace, tag: func(level int) string {
		return fmt.Sprintf("h%d", level)
	}},
	KindQuote: {name: "quote", class: ClassBlock, toggle: ToggleReplace, tag: fixedTag("blockquote")},
}

// Kinds returns every valid kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, int(kindEnd)-1)
	for k := KindBold; k < kindEnd; k++ {
		out = append(out, k)
	}
	return out
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k > 0 && k < kindEnd
}

// String returns the serialized name of the kind.
func (k Kind) String() string {
	if !k.Valid() {
		return "unknown"
	}
	return kindSpecs[k].name
}

// Class returns the class of the kind.
func (k Kind) Class() Class {
	return kindSpecs[k].class
}

// IsBlock reports whether k is a block-level kind.
func (k Kind) IsBlock() bool {
	return k.Valid() && kindSpecs[k].class == ClassBlock
}

// Toggle returns the toggle rule of the kind.
func (k Kind) Toggle() ToggleRule {
	return kindSpecs[k].toggle
}

// Tag returns the wrapper tag the renderer uses for the kind.
func (k Kind) Tag(level int) string {
	if !k.Valid() {
		return "span"
	}
	return kindSpecs[k].tag(level)
}

// ParseKind parses a serialized kind name.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k := KindBold; k < kindEnd; k++ {
		if kindSpecs[k].name == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown formatting kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown formatting kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
