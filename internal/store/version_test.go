package store_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/querymesh/querymesh/internal/db"
	"github.com/querymesh/querymesh/internal/db/migrations"
	"github.com/querymesh/querymesh/internal/dbpool"
	"github.com/querymesh/querymesh/internal/fingerprint"
	"github.com/querymesh/querymesh/internal/models"
	"github.com/querymesh/querymesh/internal/store"
)

// testEnv holds shared test infrastructure (single pool across all tests).
type testEnv struct {
	pool *dbpool.Pool
	log  *logrus.Logger
}

var sharedEnv *testEnv

func getTestEnv(t *testing.T) *testEnv {
	t.Helper()

	if sharedEnv != nil {
		return sharedEnv
	}

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()

	pool, err := dbpool.NewPool(ctx, dbURL)
	if err != nil {
		t.Fatalf("connecting to test DB: %v", err)
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	if err := db.RunMigrations(ctx, pool, log, migrations.FS); err != nil {
		t.Fatalf("migrating test DB: %v", err)
	}

	sharedEnv = &testEnv{pool: pool, log: log}

	return sharedEnv
}

// setupStores registers a throwaway source and returns stores bound to
// it. The cascade on deregistration cleans up recorded versions.
func setupStores(t *testing.T) (*store.VersionStore, string) {
	t.Helper()

	env := getTestEnv(t)
	base := store.Base{Pool: env.pool, Log: env.log}

	sources := &store.SourceStore{Base: base}
	versions := &store.VersionStore{Base: base}

	ctx := context.Background()
	id := uuid.New().String()

	_, err := sources.RegisterSource(ctx, models.RegisterSourceRequest{
		ID:   id,
		Name: "test-" + id,
		Kind: models.KindRelational,
		DSN:  "postgres://localhost/test",
	})
	if err != nil {
		t.Fatalf("registering test source: %v", err)
	}

	t.Cleanup(func() {
		if err := sources.DeregisterSource(context.Background(), id); err != nil {
			t.Errorf("cleaning up test source: %v", err)
		}
	})

	return versions, id
}

func docWithField(field string) *models.SchemaDocument {
	return &models.SchemaDocument{
		Entities: []models.Entity{
			{Name: "orders", Fields: []models.Field{{Name: field, Type: "bigint"}}},
		},
	}
}

func TestRecordSchemaVersion_AppendAndIdempotence(t *testing.T) {
	versions, id := setupStores(t)
	ctx := context.Background()

	doc := docWithField("id")
	fp := fingerprint.Compute(doc)

	v1, created, err := versions.RecordSchemaVersion(ctx, id, doc, fp, 0, false)
	if err != nil || !created {
		t.Fatalf("first record: created=%v err=%v", created, err)
	}
	if v1.Seq != 1 {
		t.Errorf("got seq %d, want 1", v1.Seq)
	}

	// Identical fingerprint: no write.
	_, created, err = versions.RecordSchemaVersion(ctx, id, doc, fp, 1, false)
	if err != nil || created {
		t.Fatalf("unchanged record: created=%v err=%v", created, err)
	}

	changed := docWithField("total")
	v2, created, err := versions.RecordSchemaVersion(ctx, id, changed, fingerprint.Compute(changed), 1, false)
	if err != nil || !created {
		t.Fatalf("changed record: created=%v err=%v", created, err)
	}
	if v2.Seq != 2 {
		t.Errorf("got seq %d, want 2", v2.Seq)
	}

	current, err := versions.GetCurrentSchema(ctx, id)
	if err != nil {
		t.Fatalf("reading current: %v", err)
	}
	if current.ID != v2.ID {
		t.Errorf("current pointer did not advance: %s vs %s", current.ID, v2.ID)
	}

	history, err := versions.ListVersions(ctx, id, 10)
	if err != nil {
		t.Fatalf("listing versions: %v", err)
	}
	if len(history) != 2 || history[0].Seq != 2 || history[1].Seq != 1 {
		t.Errorf("history should be newest first, got %+v", history)
	}
}

func TestRecordSchemaVersion_StaleSeqConflicts(t *testing.T) {
	versions, id := setupStores(t)
	ctx := context.Background()

	doc := docWithField("id")
	if _, _, err := versions.RecordSchemaVersion(ctx, id, doc, fingerprint.Compute(doc), 0, false); err != nil {
		t.Fatalf("seeding version: %v", err)
	}

	// A writer that read the source before the seed (expectedSeq 0)
	// and fingerprinted a divergent structure must conflict.
	stale := docWithField("total")
	_, _, err := versions.RecordSchemaVersion(ctx, id, stale, fingerprint.Compute(stale), 0, false)
	if !errors.Is(err, models.ErrVersionConflict) {
		t.Errorf("got %v, want ErrVersionConflict", err)
	}
}

func TestRecordSchemaVersion_ForceAlwaysAppends(t *testing.T) {
	versions, id := setupStores(t)
	ctx := context.Background()

	doc := docWithField("id")
	fp := fingerprint.Compute(doc)

	if _, _, err := versions.RecordSchemaVersion(ctx, id, doc, fp, 0, false); err != nil {
		t.Fatalf("seeding version: %v", err)
	}

	// Same fingerprint and a stale expected seq: force bypasses both.
	v, created, err := versions.RecordSchemaVersion(ctx, id, doc, fp, 0, true)
	if err != nil || !created {
		t.Fatalf("forced record: created=%v err=%v", created, err)
	}
	if v.Seq != 2 {
		t.Errorf("got seq %d, want 2", v.Seq)
	}
}

func TestRecordSchemaVersion_GetCurrentBeforeAnyVersion(t *testing.T) {
	versions, id := setupStores(t)

	if _, err := versions.GetCurrentSchema(context.Background(), id); !errors.Is(err, models.ErrVersionNotFound) {
		t.Errorf("got %v, want ErrVersionNotFound", err)
	}
	if _, err := versions.GetCurrentSchema(context.Background(), "no-such-source"); !errors.Is(err, models.ErrSourceNotFound) {
		t.Errorf("got %v, want ErrSourceNotFound", err)
	}
}

// Concurrent writers for the same source must serialize on the source
// row lock: every distinct structure lands with its own seq, and the
// UNIQUE (source_id, seq) constraint would reject any interleaving.
func TestRecordSchemaVersion_ConcurrentWritersSerialize(t *testing.T) {
	versions, id := setupStores(t)
	ctx := context.Background()

	const writers = 8

	var wg sync.WaitGroup
	errs := make([]error, writers)

	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			doc := docWithField(fmt.Sprintf("field_%d", i))
			_, _, errs[i] = versions.RecordSchemaVersion(ctx, id, doc, fingerprint.Compute(doc), -1, false)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("writer %d: %v", i, err)
		}
	}

	history, err := versions.ListVersions(ctx, id, writers+1)
	if err != nil {
		t.Fatalf("listing versions: %v", err)
	}
	if len(history) != writers {
		t.Fatalf("got %d versions, want %d", len(history), writers)
	}
	for i, v := range history {
		if want := int64(writers - i); v.Seq != want {
			t.Errorf("position %d: got seq %d, want %d", i, v.Seq, want)
		}
	}
}
