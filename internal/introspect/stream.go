package introspect

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/querymesh/querymesh/internal/metrics"
	"github.com/querymesh/querymesh/internal/models"
)

// streamWorker introspects Redis message-store backends: each stream
// key becomes an entity, with field names inferred from recent entries.
// Redis streams are schemaless and offer no structural change feed, so
// this worker is poll-only.
type streamWorker struct {
	source        *models.DataSource
	log           *logrus.Logger
	entityTimeout time.Duration
	rdb           *redis.Client
}

// streamSampleSize bounds how many entries are read per stream when
// inferring field names.
const streamSampleSize = 8

func newStreamWorker(source *models.DataSource, log *logrus.Logger, entityTimeout time.Duration) (*streamWorker, error) {
	opts, err := redis.ParseURL(source.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing message-store DSN: %w", err)
	}

	return &streamWorker{
		source:        source,
		log:           log,
		entityTimeout: entityTimeout,
		rdb:           redis.NewClient(opts),
	}, nil
}

func (w *streamWorker) Kind() models.SourceKind { return models.KindMessageStore }

// Introspect scans for stream keys and samples each.
func (w *streamWorker) Introspect(ctx context.Context, scope Scope) (*models.SchemaDocument, error) {
	timer := prometheus.NewTimer(metrics.IntrospectionDuration.WithLabelValues(string(w.Kind())))
	defer timer.ObserveDuration()

	keys, err := w.streamKeys(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("%w: scanning stream keys: %s", models.ErrIntrospection, err)
	}

	doc := &models.SchemaDocument{}

	for _, key := range keys {
		entity, err := w.readStream(ctx, key)
		if err != nil {
			w.log.WithError(err).WithFields(logrus.Fields{
				"source_id": w.source.ID,
				"stream":    key,
			}).Warn("skipping unreadable stream")
			doc.Warnings = append(doc.Warnings, fmt.Sprintf("%s: %v", key, err))

			continue
		}

		doc.Entities = append(doc.Entities, *entity)
	}

	return doc, nil
}

func (w *streamWorker) streamKeys(ctx context.Context, scope Scope) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.entityTimeout)
	defer cancel()

	if scope.Entity != "" {
		kind, err := w.rdb.Type(ctx, scope.Entity).Result()
		if err != nil {
			return nil, err
		}
		if kind != "stream" {
			return nil, nil
		}

		return []string{scope.Entity}, nil
	}

	var (
		keys   []string
		cursor uint64
	)

	for {
		batch, next, err := w.rdb.ScanType(ctx, cursor, "*", 100, "stream").Result()
		if err != nil {
			return nil, err
		}

		keys = append(keys, batch...)

		if next == 0 {
			break
		}
		cursor = next
	}

	return keys, nil
}

// readStream reads stream length and infers field names from the most
// recent entries. Entry values are untyped strings on the wire.
func (w *streamWorker) readStream(ctx context.Context, key string) (*models.Entity, error) {
	ctx, cancel := context.WithTimeout(ctx, w.entityTimeout)
	defer cancel()

	length, err := w.rdb.XLen(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("reading stream length: %w", err)
	}

	entries, err := w.rdb.XRevRangeN(ctx, key, "+", "-", streamSampleSize).Result()
	if err != nil {
		return nil, fmt.Errorf("sampling stream entries: %w", err)
	}

	var (
		order  []string
		seenIn = make(map[string]int)
	)

	for _, entry := range entries {
		for field := range entry.Values {
			if _, ok := seenIn[field]; !ok {
				order = append(order, field)
			}
			seenIn[field]++
		}
	}

	entity := &models.Entity{Name: key, CountEstimate: length}

	for _, field := range order {
		entity.Fields = append(entity.Fields, models.Field{
			Name:     field,
			Type:     "string",
			Nullable: seenIn[field] < len(entries),
		})
	}

	return entity, nil
}

// Close releases the redis client.
func (w *streamWorker) Close(context.Context) error {
	return w.rdb.Close()
}
