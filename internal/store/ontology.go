package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/querymesh/querymesh/internal/models"
)

// OntologyStore manages operator-curated term-to-entity mappings.
type OntologyStore struct {
	Base
}

// PutMapping creates an ontology mapping.
func (s *OntologyStore) PutMapping(ctx context.Context, req models.PutOntologyMappingRequest) (*models.OntologyMapping, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var m models.OntologyMapping

	err := s.Pool.QueryRow(ctx, `
		INSERT INTO ontology_mappings (id, term, source_id, entity_name)
		VALUES ($1, lower($2), $3, $4)
		RETURNING id, term, source_id, entity_name, created_at`,
		req.ID, req.Term, req.SourceID, req.EntityName).
		Scan(&m.ID, &m.Term, &m.SourceID, &m.EntityName, &m.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return nil, models.ErrDuplicateKey
			case "23503":
				return nil, models.ErrSourceNotFound
			}
		}

		return nil, fmt.Errorf("creating ontology mapping: %w", err)
	}

	return &m, nil
}

// Lookup returns all mappings whose term matches (case-insensitive).
func (s *OntologyStore) Lookup(ctx context.Context, term string) ([]models.OntologyMapping, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx, `
		SELECT id, term, source_id, entity_name, created_at
		FROM ontology_mappings
		WHERE term = lower($1)
		ORDER BY created_at`, term)
	if err != nil {
		return nil, fmt.Errorf("looking up ontology term: %w", err)
	}
	defer rows.Close()

	return collectMappings(rows)
}

// ListMappings returns all ontology mappings ordered by term.
func (s *OntologyStore) ListMappings(ctx context.Context) ([]models.OntologyMapping, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx, `
		SELECT id, term, source_id, entity_name, created_at
		FROM ontology_mappings
		ORDER BY term, created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing ontology mappings: %w", err)
	}
	defer rows.Close()

	return collectMappings(rows)
}

// DeleteMapping removes a mapping by id.
func (s *OntologyStore) DeleteMapping(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.Pool.Exec(ctx, `DELETE FROM ontology_mappings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting ontology mapping: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return models.ErrMappingNotFound
	}

	return nil
}

func collectMappings(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]models.OntologyMapping, error) {
	var mappings []models.OntologyMapping

	for rows.Next() {
		var m models.OntologyMapping
		if err := rows.Scan(&m.ID, &m.Term, &m.SourceID, &m.EntityName, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning ontology mapping: %w", err)
		}
		mappings = append(mappings, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ontology mappings: %w", err)
	}

	return mappings, nil
}
