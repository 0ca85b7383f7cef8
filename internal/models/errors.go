package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation.
var (
	ErrMissingName     = errors.New("name is required")
	ErrMissingDSN      = errors.New("dsn is required")
	ErrInvalidKind     = errors.New("kind must be relational, document, vector, or message-store")
	ErrMissingTerm     = errors.New("term is required")
	ErrMissingEntity   = errors.New("entity is required")
	ErrMissingQuestion = errors.New("question is required")
)

// Sentinel errors for entity lookups.
var (
	ErrSourceNotFound  = errors.New("data source not found")
	ErrVersionNotFound = errors.New("schema version not found")
	ErrMappingNotFound = errors.New("ontology mapping not found")
)

// ErrVersionConflict indicates two writers raced on the same source's
// current version with divergent fingerprints (maps to HTTP 409).
var ErrVersionConflict = errors.New("concurrent schema version write conflict")

// ErrDuplicateKey indicates a unique constraint violation (maps to HTTP 409).
var ErrDuplicateKey = errors.New("duplicate key")

// ErrPlanInvalid indicates a query plan with a cyclic or dangling
// dependency graph. Plans failing validation are never silently fixed.
var ErrPlanInvalid = errors.New("query plan failed dependency validation")

// ErrIntrospection indicates a whole-backend introspection failure
// (unreachable backend or total read failure). Per-entity failures
// degrade to SchemaDocument warnings instead.
var ErrIntrospection = errors.New("introspection failed")

// ErrFieldTooLong returns an error indicating a field exceeds its maximum length.
func ErrFieldTooLong(field string, maxLen int) error {
	return fmt.Errorf("%s exceeds maximum length of %d", field, maxLen)
}
