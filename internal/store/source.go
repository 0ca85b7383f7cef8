package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/querymesh/querymesh/internal/models"
)

// SourceStore manages registered data sources.
type SourceStore struct {
	Base
}

const sourceColumns = `id, name, kind, dsn, current_version_id, current_seq, last_checked_at, created_at, updated_at`

func scanSource(row pgx.Row) (*models.DataSource, error) {
	var s models.DataSource

	err := row.Scan(&s.ID, &s.Name, &s.Kind, &s.DSN, &s.CurrentVersionID,
		&s.CurrentSeq, &s.LastCheckedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrSourceNotFound
		}

		return nil, fmt.Errorf("scanning data source: %w", err)
	}

	return &s, nil
}

// RegisterSource creates a new data source record.
func (s *SourceStore) RegisterSource(ctx context.Context, req models.RegisterSourceRequest) (*models.DataSource, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := s.Pool.QueryRow(ctx, `
		INSERT INTO data_sources (id, name, kind, dsn)
		VALUES ($1, $2, $3, $4)
		RETURNING `+sourceColumns,
		req.ID, req.Name, req.Kind, req.DSN)

	src, err := scanSource(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, models.ErrDuplicateKey
		}

		return nil, fmt.Errorf("registering source: %w", err)
	}

	s.publish("source.registered", map[string]any{"source_id": src.ID, "name": src.Name, "kind": src.Kind})

	return src, nil
}

// GetSource returns a single data source by ID.
func (s *SourceStore) GetSource(ctx context.Context, sourceID string) (*models.DataSource, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := s.Pool.QueryRow(ctx, `SELECT `+sourceColumns+` FROM data_sources WHERE id = $1`, sourceID)

	return scanSource(row)
}

// ListSources returns all registered sources, optionally filtered by kind.
func (s *SourceStore) ListSources(ctx context.Context, filter models.SourceFilter) ([]models.DataSource, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + sourceColumns + ` FROM data_sources`

	var args []any
	if filter.Kind != "" {
		query += ` WHERE kind = $1`
		args = append(args, filter.Kind)
	}

	query += ` ORDER BY name`

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	defer rows.Close()

	var sources []models.DataSource

	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sources: %w", err)
	}

	return sources, nil
}

// DeregisterSource removes a source and (via cascade) its version
// history and ontology mappings.
func (s *SourceStore) DeregisterSource(ctx context.Context, sourceID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.Pool.Exec(ctx, `DELETE FROM data_sources WHERE id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("deregistering source: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return models.ErrSourceNotFound
	}

	s.publish("source.deregistered", map[string]any{"source_id": sourceID})

	return nil
}

// TouchLastChecked records that a watcher completed a check for the
// source, whether or not a new version was written.
func (s *SourceStore) TouchLastChecked(ctx context.Context, sourceID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.Pool.Exec(ctx,
		`UPDATE data_sources SET last_checked_at = now(), updated_at = now() WHERE id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("updating last_checked_at: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return models.ErrSourceNotFound
	}

	return nil
}
