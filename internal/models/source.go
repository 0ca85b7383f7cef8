// Package models defines data types for the querymesh core: data
// sources, schema versions, ontology mappings, classification results,
// and query plans.
package models

import (
	"time"

	"github.com/google/uuid"
)

// SourceKind identifies the backend family of a data source.
type SourceKind string

// Supported backend kinds. The core never branches on kind outside the
// introspect and watch packages.
const (
	KindRelational   SourceKind = "relational"
	KindDocument     SourceKind = "document"
	KindVector       SourceKind = "vector"
	KindMessageStore SourceKind = "message-store"
)

// Valid reports whether k is a known backend kind.
func (k SourceKind) Valid() bool {
	switch k {
	case KindRelational, KindDocument, KindVector, KindMessageStore:
		return true
	}
	return false
}

// DataSource is a registered backend tracked by the schema store.
// The DSN is opaque to the core; only the backend driver interprets it.
type DataSource struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Kind             SourceKind `json:"kind"`
	DSN              string     `json:"-"`
	CurrentVersionID *string    `json:"current_version_id,omitempty"`
	CurrentSeq       int64      `json:"current_seq"`
	LastCheckedAt    *time.Time `json:"last_checked_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// RegisterSourceRequest is the payload for registering a backend.
type RegisterSourceRequest struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Kind SourceKind `json:"kind"`
	DSN  string     `json:"dsn"`
}

// Validate checks required fields on RegisterSourceRequest.
// If ID is empty, a UUID is auto-generated.
func (r *RegisterSourceRequest) Validate() error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}

	if len(r.ID) > 255 {
		return ErrFieldTooLong("id", 255)
	}

	if r.Name == "" {
		return ErrMissingName
	}

	if len(r.Name) > 255 {
		return ErrFieldTooLong("name", 255)
	}

	if !r.Kind.Valid() {
		return ErrInvalidKind
	}

	if r.DSN == "" {
		return ErrMissingDSN
	}

	return nil
}

// SourceFilter narrows ListSources results.
type SourceFilter struct {
	Kind SourceKind
}
