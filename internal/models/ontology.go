package models

import (
	"time"

	"github.com/google/uuid"
)

// OntologyMapping associates a business term (e.g. "customer") with a
// concrete entity in a registered source. Operator-curated; read-only
// to the classifier.
type OntologyMapping struct {
	ID         string    `json:"id"`
	Term       string    `json:"term"`
	SourceID   string    `json:"source_id"`
	EntityName string    `json:"entity_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// PutOntologyMappingRequest is the payload for creating a mapping.
type PutOntologyMappingRequest struct {
	ID         string `json:"id"`
	Term       string `json:"term"`
	SourceID   string `json:"source_id"`
	EntityName string `json:"entity_name"`
}

// Validate checks required fields on PutOntologyMappingRequest.
func (r *PutOntologyMappingRequest) Validate() error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}

	if r.Term == "" {
		return ErrMissingTerm
	}

	if len(r.Term) > 255 {
		return ErrFieldTooLong("term", 255)
	}

	if r.SourceID == "" {
		return ErrSourceNotFound
	}

	if r.EntityName == "" {
		return ErrMissingEntity
	}

	return nil
}
