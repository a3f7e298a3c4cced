package config

import (
	"errors"
	"fmt"
)

// ErrValidationFailed matches every ValidationError.
var ErrValidationFailed = errors.New("validation failed")

// ParseError reports TOML that could not be decoded into Config.
type ParseError struct {
	// Path is the file read, or "<reader>" for LoadReader.
	Path string
	// Line and Column locate syntax errors. Both are zero for unknown
	// keys and type mismatches reported without a position.
	Line   int
	Column int

	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("config %s:%d:%d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("config %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError names one setting that is out of range.
type ValidationError struct {
	// Path is the dotted TOML key, such as "render.batch_size".
	Path    string
	Message string
	Value   any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s, got %v", e.Path, e.Message, e.Value)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
