package introspect

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/querymesh/querymesh/internal/metrics"
	"github.com/querymesh/querymesh/internal/models"
)

// vectorWorker introspects Elasticsearch-compatible vector backends via
// the index mapping API. dense_vector fields carry the dimensionality
// and similarity metric that classification and planning care about.
type vectorWorker struct {
	source        *models.DataSource
	log           *logrus.Logger
	entityTimeout time.Duration
	es            *elasticsearch.Client
}

func newVectorWorker(source *models.DataSource, log *logrus.Logger, entityTimeout time.Duration) (*vectorWorker, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: strings.Split(source.DSN, ","),
	})
	if err != nil {
		return nil, fmt.Errorf("creating vector backend client: %w", err)
	}

	return &vectorWorker{source: source, log: log, entityTimeout: entityTimeout, es: es}, nil
}

func (w *vectorWorker) Kind() models.SourceKind { return models.KindVector }

type esProperty struct {
	Type       string `json:"type"`
	Dims       int    `json:"dims"`
	Similarity string `json:"similarity"`
	Index      *bool  `json:"index"`
}

type esMapping struct {
	Mappings struct {
		Properties map[string]esProperty `json:"properties"`
	} `json:"mappings"`
}

// Introspect reads index mappings and document counts.
func (w *vectorWorker) Introspect(ctx context.Context, scope Scope) (*models.SchemaDocument, error) {
	timer := prometheus.NewTimer(metrics.IntrospectionDuration.WithLabelValues(string(w.Kind())))
	defer timer.ObserveDuration()

	target := "*"
	if scope.Entity != "" {
		target = scope.Entity
	}

	mapCtx, cancel := context.WithTimeout(ctx, w.entityTimeout)
	defer cancel()

	res, err := w.es.Indices.GetMapping(
		w.es.Indices.GetMapping.WithContext(mapCtx),
		w.es.Indices.GetMapping.WithIndex(target),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: reading index mappings: %s", models.ErrIntrospection, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: mapping API returned %s", models.ErrIntrospection, res.Status())
	}

	var mappings map[string]esMapping
	if err := json.NewDecoder(res.Body).Decode(&mappings); err != nil {
		return nil, fmt.Errorf("%w: decoding mappings: %s", models.ErrIntrospection, err)
	}

	// Map iteration order is random; sort for a stable document.
	indices := make([]string, 0, len(mappings))
	for name := range mappings {
		if strings.HasPrefix(name, ".") {
			continue // system indices
		}
		indices = append(indices, name)
	}
	sort.Strings(indices)

	doc := &models.SchemaDocument{}

	for _, name := range indices {
		entity := w.buildEntity(name, mappings[name])

		count, err := w.countDocs(ctx, name)
		if err != nil {
			w.log.WithError(err).WithFields(logrus.Fields{
				"source_id": w.source.ID,
				"index":     name,
			}).Warn("document count unavailable")
			doc.Warnings = append(doc.Warnings, fmt.Sprintf("%s: count unavailable: %v", name, err))
		} else {
			entity.CountEstimate = count
		}

		doc.Entities = append(doc.Entities, entity)
	}

	return doc, nil
}

func (w *vectorWorker) buildEntity(name string, mapping esMapping) models.Entity {
	entity := models.Entity{Name: name}

	fieldNames := make([]string, 0, len(mapping.Mappings.Properties))
	for fname := range mapping.Mappings.Properties {
		fieldNames = append(fieldNames, fname)
	}
	sort.Strings(fieldNames)

	for _, fname := range fieldNames {
		prop := mapping.Mappings.Properties[fname]

		field := models.Field{
			Name:     fname,
			Type:     prop.Type,
			Nullable: true, // documents may omit any mapped field
			Indexed:  prop.Index == nil || *prop.Index,
		}

		if prop.Type == "dense_vector" {
			field.VectorDims = prop.Dims
			field.VectorMetric = prop.Similarity
			if field.VectorMetric == "" {
				field.VectorMetric = "cosine"
			}

			// Surface the first vector field's capability at entity level.
			if entity.VectorDims == 0 {
				entity.VectorDims = field.VectorDims
				entity.VectorMetric = field.VectorMetric
			}
		}

		entity.Fields = append(entity.Fields, field)
	}

	return entity
}

func (w *vectorWorker) countDocs(ctx context.Context, index string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, w.entityTimeout)
	defer cancel()

	res, err := w.es.Count(
		w.es.Count.WithContext(ctx),
		w.es.Count.WithIndex(index),
	)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("count API returned %s", res.Status())
	}

	var out struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, err
	}

	return out.Count, nil
}

// Close is a no-op: the elasticsearch client holds no persistent
// connections beyond its HTTP transport.
func (w *vectorWorker) Close(context.Context) error { return nil }
