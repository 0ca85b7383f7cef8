package models

import "time"

// SchemaVersion is an immutable snapshot of a source's structure.
// Versions are append-only; only the source's current pointer moves.
type SchemaVersion struct {
	ID          string         `json:"id"`
	SourceID    string         `json:"source_id"`
	Seq         int64          `json:"seq"`
	Fingerprint string         `json:"fingerprint"`
	Document    SchemaDocument `json:"document"`
	CreatedAt   time.Time      `json:"created_at"`
}

// SchemaDocument is the normalized structure read from a live backend.
// Entities are kept in introspection order; the fingerprint engine
// sorts its own copy, so ordering here never affects change detection.
type SchemaDocument struct {
	Entities []Entity `json:"entities"`
	// Warnings lists entities that could not be read (permission or
	// transient failures). A non-empty list marks the document partial;
	// watchers must not treat a partial read as "unchanged" silently.
	Warnings []string `json:"warnings,omitempty"`
}

// Partial reports whether any entity was omitted during introspection.
func (d *SchemaDocument) Partial() bool {
	return len(d.Warnings) > 0
}

// EntityNames returns the names of all entities in the document.
func (d *SchemaDocument) EntityNames() []string {
	names := make([]string, 0, len(d.Entities))
	for _, e := range d.Entities {
		names = append(names, e.Name)
	}

	return names
}

// Entity is a table, collection, index, or stream within a source.
type Entity struct {
	Name          string  `json:"name"`
	Fields        []Field `json:"fields"`
	CountEstimate int64   `json:"count_estimate"`
	// Vector capability, set only for vector entities.
	VectorDims   int    `json:"vector_dims,omitempty"`
	VectorMetric string `json:"vector_metric,omitempty"`
}

// Field describes a single column, document field, or stream attribute.
type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Indexed  bool   `json:"indexed"`
	// Per-field vector capability (e.g. a dense_vector mapping).
	VectorDims   int    `json:"vector_dims,omitempty"`
	VectorMetric string `json:"vector_metric,omitempty"`
}
