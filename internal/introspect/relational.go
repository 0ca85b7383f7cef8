package introspect

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/querymesh/querymesh/internal/metrics"
	"github.com/querymesh/querymesh/internal/models"
)

// ddlChannel is the NOTIFY channel a DDL event trigger on the target
// database publishes structural changes to. Setting up the trigger is
// the operator's responsibility; without it the worker reports no push
// capability failures and the fallback poll still detects drift.
const ddlChannel = "querymesh_ddl"

// relationalWorker introspects PostgreSQL-compatible backends via
// information_schema and the pg_catalog statistics tables.
type relationalWorker struct {
	source        *models.DataSource
	log           *logrus.Logger
	entityTimeout time.Duration

	mu   sync.Mutex
	pool *pgxpool.Pool
}

func newRelationalWorker(source *models.DataSource, log *logrus.Logger, entityTimeout time.Duration) *relationalWorker {
	return &relationalWorker{source: source, log: log, entityTimeout: entityTimeout}
}

func (w *relationalWorker) Kind() models.SourceKind { return models.KindRelational }

// connect lazily opens the backend pool on first use.
func (w *relationalWorker) connect(ctx context.Context) (*pgxpool.Pool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pool != nil {
		return w.pool, nil
	}

	cfg, err := pgxpool.ParseConfig(w.source.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing relational DSN: %w", err)
	}

	cfg.MaxConns = 3 // 2 for reads + 1 for LISTEN

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to relational backend: %w", err)
	}

	w.pool = pool

	return pool, nil
}

// Introspect reads table and column structure. A scoped pass reads a
// single table; otherwise all tables in the public schema are read.
func (w *relationalWorker) Introspect(ctx context.Context, scope Scope) (*models.SchemaDocument, error) {
	timer := prometheus.NewTimer(metrics.IntrospectionDuration.WithLabelValues(string(w.Kind())))
	defer timer.ObserveDuration()

	pool, err := w.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrIntrospection, err)
	}

	tables, err := w.listTables(ctx, pool, scope)
	if err != nil {
		return nil, fmt.Errorf("%w: listing tables: %s", models.ErrIntrospection, err)
	}

	doc := &models.SchemaDocument{}

	for _, table := range tables {
		entity, err := w.readTable(ctx, pool, table)
		if err != nil {
			// One unreadable table degrades to a warning, not an abort.
			w.log.WithError(err).WithFields(logrus.Fields{
				"source_id": w.source.ID,
				"table":     table,
			}).Warn("skipping unreadable table")
			doc.Warnings = append(doc.Warnings, fmt.Sprintf("%s: %v", table, err))

			continue
		}

		doc.Entities = append(doc.Entities, *entity)
	}

	return doc, nil
}

func (w *relationalWorker) listTables(ctx context.Context, pool *pgxpool.Pool, scope Scope) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.entityTimeout)
	defer cancel()

	query := `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'`

	var args []any
	if scope.Entity != "" {
		query += ` AND table_name = $1`
		args = append(args, scope.Entity)
	}

	query += ` ORDER BY table_name`

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}

	return tables, rows.Err()
}

// readTable reads one table's columns, index coverage, and row estimate
// under the per-entity timeout.
func (w *relationalWorker) readTable(ctx context.Context, pool *pgxpool.Pool, table string) (*models.Entity, error) {
	ctx, cancel := context.WithTimeout(ctx, w.entityTimeout)
	defer cancel()

	rows, err := pool.Query(ctx, `
		SELECT column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}
	defer rows.Close()

	entity := &models.Entity{Name: table}

	for rows.Next() {
		var f models.Field
		if err := rows.Scan(&f.Name, &f.Type, &f.Nullable); err != nil {
			return nil, fmt.Errorf("scanning column: %w", err)
		}
		entity.Fields = append(entity.Fields, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating columns: %w", err)
	}

	indexed, err := w.indexedColumns(ctx, pool, table)
	if err != nil {
		return nil, fmt.Errorf("reading indexes: %w", err)
	}

	for i := range entity.Fields {
		if indexed[entity.Fields[i].Name] {
			entity.Fields[i].Indexed = true
		}
	}

	// reltuples is an estimate maintained by autovacuum; good enough
	// for classification hints and excluded from the fingerprint.
	err = pool.QueryRow(ctx,
		`SELECT GREATEST(reltuples::bigint, 0) FROM pg_class WHERE relname = $1 AND relkind = 'r'`,
		table).Scan(&entity.CountEstimate)
	if err != nil {
		w.log.WithError(err).WithField("table", table).Debug("row estimate unavailable")
	}

	return entity, nil
}

func (w *relationalWorker) indexedColumns(ctx context.Context, pool *pgxpool.Pool, table string) (map[string]bool, error) {
	rows, err := pool.Query(ctx, `
		SELECT DISTINCT a.attname
		FROM pg_index i
		JOIN pg_class c ON c.oid = i.indrelid
		JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum = ANY(i.indkey)
		WHERE c.relname = $1`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	indexed := make(map[string]bool)

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		indexed[name] = true
	}

	return indexed, rows.Err()
}

// Subscribe implements ChangeFeed via LISTEN/NOTIFY on the DDL event
// channel. It blocks until the context is cancelled or the connection
// fails; the watcher owns reconnection policy.
func (w *relationalWorker) Subscribe(ctx context.Context, onChange func(entity string)) error {
	pool, err := w.connect(ctx)
	if err != nil {
		return err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+ddlChannel); err != nil {
		return fmt.Errorf("executing LISTEN: %w", err)
	}

	w.log.WithFields(logrus.Fields{
		"source_id": w.source.ID,
		"channel":   ddlChannel,
	}).Info("subscribed to DDL notifications")

	for {
		// Bounded wait so context cancellation is observed periodically.
		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		notification, err := conn.Conn().WaitForNotification(waitCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if waitCtx.Err() != nil {
				continue
			}

			return fmt.Errorf("waiting for DDL notification: %w", err)
		}

		// The event trigger publishes the affected object name as the
		// raw payload; empty payloads trigger a full re-introspection.
		onChange(notification.Payload)
	}
}

// Close releases the backend pool.
func (w *relationalWorker) Close(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pool != nil {
		w.pool.Close()
		w.pool = nil
	}

	return nil
}
