package format

import "errors"

// Errors returned by model operations.
var (
	// ErrInvalidRange indicates a range or position that is malformed or
	// outside the text. The rejected call writes no state.
	ErrInvalidRange = errors.New("invalid range")

	// ErrUnknownKind indicates a kind outside the closed set.
	ErrUnknownKind = errors.New("unknown formatting kind")

	// ErrInvalidLevel indicates a heading level outside 1-4.
	ErrInvalidLevel = errors.New("invalid heading level")
)
