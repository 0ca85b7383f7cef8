package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/querymesh/querymesh/internal/metrics"
	"github.com/querymesh/querymesh/internal/models"
)

// VersionStore owns schema version history. History is append-only:
// rows in schema_versions are never updated or deleted, only the
// current pointer on data_sources advances.
type VersionStore struct {
	Base
}

const versionColumns = `id, source_id, seq, fingerprint, document, created_at`

func scanVersion(row pgx.Row) (*models.SchemaVersion, error) {
	var (
		v   models.SchemaVersion
		doc []byte
	)

	err := row.Scan(&v.ID, &v.SourceID, &v.Seq, &v.Fingerprint, &doc, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrVersionNotFound
		}

		return nil, fmt.Errorf("scanning schema version: %w", err)
	}

	if err := json.Unmarshal(doc, &v.Document); err != nil {
		return nil, fmt.Errorf("decoding schema document: %w", err)
	}

	return &v, nil
}

// GetCurrentSchema returns the current schema version for a source.
// Reads never block on an in-flight write; they observe the last
// committed version. Returns ErrVersionNotFound for a registered
// source that has never been introspected.
func (s *VersionStore) GetCurrentSchema(ctx context.Context, sourceID string) (*models.SchemaVersion, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var versionID *string

	err := s.Pool.QueryRow(ctx,
		`SELECT current_version_id FROM data_sources WHERE id = $1`, sourceID).Scan(&versionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrSourceNotFound
		}

		return nil, fmt.Errorf("reading current version pointer: %w", err)
	}

	if versionID == nil {
		return nil, models.ErrVersionNotFound
	}

	row := s.Pool.QueryRow(ctx, `SELECT `+versionColumns+` FROM schema_versions WHERE id = $1`, *versionID)

	return scanVersion(row)
}

// ListVersions returns a source's version history, newest first.
func (s *VersionStore) ListVersions(ctx context.Context, sourceID string, limit int) ([]models.SchemaVersion, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := s.Pool.Query(ctx,
		`SELECT `+versionColumns+` FROM schema_versions WHERE source_id = $1 ORDER BY seq DESC LIMIT $2`,
		sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	defer rows.Close()

	var versions []models.SchemaVersion

	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating versions: %w", err)
	}

	return versions, nil
}

// RecordSchemaVersion appends a new schema version for a source if its
// fingerprint differs from the current version's, and advances the
// current pointer. Returns created=false without writing when the
// fingerprint matches (idempotence); callers use this to suppress
// reindexing. force bypasses the fingerprint comparison and always
// appends (operator-invoked reindex).
//
// Writes for the same source are serialized by a row lock on the
// data_sources row; writes for different sources proceed in parallel.
// expectedSeq is the source's current_seq observed when the caller read
// the schema it fingerprinted against; if another writer advanced the
// sequence in the meantime with a divergent fingerprint, the write
// fails with ErrVersionConflict. Pass expectedSeq < 0 to skip the
// optimistic check (force mode does this implicitly).
func (s *VersionStore) RecordSchemaVersion(
	ctx context.Context, sourceID string, doc *models.SchemaDocument, fp string, expectedSeq int64, force bool,
) (*models.SchemaVersion, bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("beginning version transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit.

	// Lock the source row: single-writer-per-source. The live backend
	// read happened before this call, so the lock is held only around
	// the compare-and-record step.
	var (
		curSeq int64
		curFP  *string
	)

	err = tx.QueryRow(ctx, `
		SELECT s.current_seq, v.fingerprint
		FROM data_sources s
		LEFT JOIN schema_versions v ON v.id = s.current_version_id
		WHERE s.id = $1
		FOR UPDATE OF s`, sourceID).Scan(&curSeq, &curFP)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, models.ErrSourceNotFound
		}

		return nil, false, fmt.Errorf("locking source row: %w", err)
	}

	if !force {
		// Idempotence: identical fingerprint means no structural change.
		if curFP != nil && *curFP == fp {
			return nil, false, nil
		}

		// Another writer advanced the version since our caller read the
		// backend, and its fingerprint diverges from ours. Surface the
		// conflict; the caller re-reads and retries once.
		if expectedSeq >= 0 && curSeq != expectedSeq {
			return nil, false, models.ErrVersionConflict
		}
	}

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, false, fmt.Errorf("encoding schema document: %w", err)
	}

	versionID := uuid.New().String()

	row := tx.QueryRow(ctx, `
		INSERT INTO schema_versions (id, source_id, seq, fingerprint, document)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+versionColumns,
		versionID, sourceID, curSeq+1, fp, docJSON)

	version, err := scanVersion(row)
	if err != nil {
		return nil, false, fmt.Errorf("inserting schema version: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE data_sources
		SET current_version_id = $1, current_seq = $2, last_checked_at = now(), updated_at = now()
		WHERE id = $3`,
		versionID, version.Seq, sourceID)
	if err != nil {
		return nil, false, fmt.Errorf("advancing current version pointer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("committing version write: %w", err)
	}

	metrics.SchemaVersionsRecorded.WithLabelValues(sourceID).Inc()

	s.publish("schema.updated", map[string]any{
		"source_id":   sourceID,
		"version_id":  version.ID,
		"seq":         version.Seq,
		"fingerprint": version.Fingerprint,
		"partial":     doc.Partial(),
	})

	return version, true, nil
}
