// Package apperrors defines sentinel errors shared across the engine.
package apperrors

import "errors"

var (
	// ErrSchemaUnavailable indicates the schema source failed and no cached
	// snapshot exists to fall back on.
	ErrSchemaUnavailable = errors.New("schema unavailable")

	// ErrValidationExhausted indicates the generation retry budget was spent
	// without producing SQL that passes validation.
	ErrValidationExhausted = errors.New("validation retry budget exhausted")
)
