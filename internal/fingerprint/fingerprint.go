// Package fingerprint computes stable structural hashes of schema
// documents. The hash is the change-detection primitive: watchers
// compare it against the stored current version, and the schema store
// uses it as the version key for deduplication.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/querymesh/querymesh/internal/models"
)

// canonicalField mirrors models.Field with only hash-relevant members.
type canonicalField struct {
	Name         string `json:"n"`
	Type         string `json:"t"`
	Nullable     bool   `json:"null"`
	Indexed      bool   `json:"idx"`
	VectorDims   int    `json:"vd,omitempty"`
	VectorMetric string `json:"vm,omitempty"`
}

// canonicalEntity excludes volatile members (count estimates) so that
// row-count drift never triggers a new schema version.
type canonicalEntity struct {
	Name         string           `json:"n"`
	Fields       []canonicalField `json:"f"`
	VectorDims   int              `json:"vd,omitempty"`
	VectorMetric string           `json:"vm,omitempty"`
}

// Compute returns the hex-encoded SHA-256 of the document's canonical
// form. Pure function: entity and field collections are sorted by name
// before hashing, so introspection order never affects the result. Any
// structural difference (field added, removed, or retyped; entity added
// or removed; vector dimension or metric changed) changes the hash.
func Compute(doc *models.SchemaDocument) string {
	entities := make([]canonicalEntity, 0, len(doc.Entities))

	for _, e := range doc.Entities {
		fields := make([]canonicalField, 0, len(e.Fields))
		for _, f := range e.Fields {
			fields = append(fields, canonicalField{
				Name:         f.Name,
				Type:         f.Type,
				Nullable:     f.Nullable,
				Indexed:      f.Indexed,
				VectorDims:   f.VectorDims,
				VectorMetric: f.VectorMetric,
			})
		}

		sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })

		entities = append(entities, canonicalEntity{
			Name:         e.Name,
			Fields:       fields,
			VectorDims:   e.VectorDims,
			VectorMetric: e.VectorMetric,
		})
	}

	sort.Slice(entities, func(i, j int) bool { return entities[i].Name < entities[j].Name })

	// json.Marshal of a struct slice is deterministic: struct fields
	// encode in declaration order and the slices are sorted above.
	data, err := json.Marshal(entities)
	if err != nil {
		// Canonical structs contain only strings, bools, and ints;
		// marshalling cannot fail. Keep the hash total anyway.
		data = fmt.Appendf(nil, "unmarshalable:%d", len(entities))
	}

	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])
}
