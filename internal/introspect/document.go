package introspect

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/querymesh/querymesh/internal/metrics"
	"github.com/querymesh/querymesh/internal/models"
)

// sampleSize bounds how many documents are read per collection when
// inferring field types. Document stores have no declared schema; the
// sample is the best available approximation.
const sampleSize = 8

// documentWorker introspects MongoDB backends by sampling documents
// per collection to infer field names and types.
type documentWorker struct {
	source        *models.DataSource
	log           *logrus.Logger
	entityTimeout time.Duration

	mu     sync.Mutex
	client *mongo.Client
	dbName string
}

func newDocumentWorker(source *models.DataSource, log *logrus.Logger, entityTimeout time.Duration) *documentWorker {
	return &documentWorker{source: source, log: log, entityTimeout: entityTimeout}
}

func (w *documentWorker) Kind() models.SourceKind { return models.KindDocument }

func (w *documentWorker) connect(ctx context.Context) (*mongo.Database, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.client != nil {
		return w.client.Database(w.dbName), nil
	}

	u, err := url.Parse(w.source.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing document DSN: %w", err)
	}

	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return nil, errors.New("document DSN must include a database name")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(w.source.DSN))
	if err != nil {
		return nil, fmt.Errorf("connecting to document backend: %w", err)
	}

	w.client = client
	w.dbName = dbName

	return client.Database(dbName), nil
}

// Introspect lists collections and samples documents from each.
func (w *documentWorker) Introspect(ctx context.Context, scope Scope) (*models.SchemaDocument, error) {
	timer := prometheus.NewTimer(metrics.IntrospectionDuration.WithLabelValues(string(w.Kind())))
	defer timer.ObserveDuration()

	db, err := w.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrIntrospection, err)
	}

	listCtx, cancel := context.WithTimeout(ctx, w.entityTimeout)
	names, err := db.ListCollectionNames(listCtx, bson.D{})
	cancel()

	if err != nil {
		return nil, fmt.Errorf("%w: listing collections: %s", models.ErrIntrospection, err)
	}

	doc := &models.SchemaDocument{}

	for _, name := range names {
		if scope.Entity != "" && name != scope.Entity {
			continue
		}
		if strings.HasPrefix(name, "system.") {
			continue
		}

		entity, err := w.readCollection(ctx, db, name)
		if err != nil {
			w.log.WithError(err).WithFields(logrus.Fields{
				"source_id":  w.source.ID,
				"collection": name,
			}).Warn("skipping unreadable collection")
			doc.Warnings = append(doc.Warnings, fmt.Sprintf("%s: %v", name, err))

			continue
		}

		doc.Entities = append(doc.Entities, *entity)
	}

	return doc, nil
}

// readCollection samples documents to infer fields: a field's type is
// taken from its first occurrence, and a field missing from any sampled
// document is marked nullable.
func (w *documentWorker) readCollection(ctx context.Context, db *mongo.Database, name string) (*models.Entity, error) {
	ctx, cancel := context.WithTimeout(ctx, w.entityTimeout)
	defer cancel()

	coll := db.Collection(name)

	count, err := coll.EstimatedDocumentCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("estimating count: %w", err)
	}

	cur, err := coll.Find(ctx, bson.D{}, options.Find().SetLimit(sampleSize))
	if err != nil {
		return nil, fmt.Errorf("sampling documents: %w", err)
	}
	defer cur.Close(ctx)

	var (
		order    []string
		types    = make(map[string]string)
		seenIn   = make(map[string]int)
		nSampled int
	)

	for cur.Next(ctx) {
		nSampled++

		elems, err := cur.Current.Elements()
		if err != nil {
			return nil, fmt.Errorf("decoding sample: %w", err)
		}

		for _, e := range elems {
			key := e.Key()
			if _, ok := types[key]; !ok {
				order = append(order, key)
				types[key] = bsonTypeName(e.Value().Type)
			}
			seenIn[key]++
		}
	}

	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterating samples: %w", err)
	}

	indexed, err := w.indexedFields(ctx, coll)
	if err != nil {
		return nil, fmt.Errorf("listing indexes: %w", err)
	}

	entity := &models.Entity{Name: name, CountEstimate: count}

	for _, key := range order {
		entity.Fields = append(entity.Fields, models.Field{
			Name:     key,
			Type:     types[key],
			Nullable: seenIn[key] < nSampled,
			Indexed:  indexed[key],
		})
	}

	return entity, nil
}

func (w *documentWorker) indexedFields(ctx context.Context, coll *mongo.Collection) (map[string]bool, error) {
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	indexed := make(map[string]bool)

	for cur.Next(ctx) {
		var idx struct {
			Key bson.D `bson:"key"`
		}
		if err := cur.Decode(&idx); err != nil {
			return nil, err
		}
		for _, e := range idx.Key {
			indexed[e.Key] = true
		}
	}

	return indexed, cur.Err()
}

// bsonTypeName maps BSON element types to the normalized type names
// used across schema documents.
func bsonTypeName(t bsontype.Type) string {
	switch t {
	case bson.TypeString:
		return "string"
	case bson.TypeInt32, bson.TypeInt64:
		return "integer"
	case bson.TypeDouble, bson.TypeDecimal128:
		return "number"
	case bson.TypeBoolean:
		return "boolean"
	case bson.TypeDateTime, bson.TypeTimestamp:
		return "timestamp"
	case bson.TypeObjectID:
		return "objectid"
	case bson.TypeArray:
		return "array"
	case bson.TypeEmbeddedDocument:
		return "object"
	case bson.TypeNull:
		return "null"
	case bson.TypeBinary:
		return "binary"
	default:
		return t.String()
	}
}

// Subscribe implements ChangeFeed via a database-level change stream
// filtered to structural events. It requires a replica set; on a
// standalone deployment the initial Watch fails and the watcher falls
// back to polling.
func (w *documentWorker) Subscribe(ctx context.Context, onChange func(entity string)) error {
	db, err := w.connect(ctx)
	if err != nil {
		return err
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{
			"create", "drop", "rename", "modify", "createIndexes", "dropIndexes", "invalidate",
		}}}}}}},
	}

	stream, err := db.Watch(ctx, pipeline, options.ChangeStream().SetShowExpandedEvents(true))
	if err != nil {
		return fmt.Errorf("opening change stream: %w", err)
	}
	defer stream.Close(ctx)

	w.log.WithField("source_id", w.source.ID).Info("subscribed to change stream")

	for stream.Next(ctx) {
		var event struct {
			OperationType string `bson:"operationType"`
			NS            struct {
				Coll string `bson:"coll"`
			} `bson:"ns"`
		}
		if err := stream.Decode(&event); err != nil {
			w.log.WithError(err).Warn("dropping undecodable change event")

			continue
		}

		if event.OperationType == "invalidate" {
			return errors.New("change stream invalidated")
		}

		onChange(event.NS.Coll)
	}

	if ctx.Err() != nil {
		return nil
	}

	return fmt.Errorf("change stream closed: %w", stream.Err())
}

// Close disconnects from the backend.
func (w *documentWorker) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.client == nil {
		return nil
	}

	err := w.client.Disconnect(ctx)
	w.client = nil

	return err
}
