package watch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/querymesh/querymesh/internal/fingerprint"
	"github.com/querymesh/querymesh/internal/introspect"
	"github.com/querymesh/querymesh/internal/models"
)

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func testSource() *models.DataSource {
	return &models.DataSource{ID: "src1", Name: "orders-db", Kind: models.KindRelational, DSN: "postgres://test"}
}

func ordersDoc() *models.SchemaDocument {
	return &models.SchemaDocument{
		Entities: []models.Entity{
			{Name: "customers", Fields: []models.Field{
				{Name: "id", Type: "bigint", Indexed: true},
				{Name: "name", Type: "text"},
				{Name: "email", Type: "text"},
			}},
			{Name: "orders", Fields: []models.Field{
				{Name: "id", Type: "bigint", Indexed: true},
				{Name: "customer_id", Type: "bigint", Indexed: true},
				{Name: "amount", Type: "numeric"},
			}},
		},
	}
}

func TestWatcher_FirstCheckRecordsVersion(t *testing.T) {
	store := newMockStore()
	worker := &mockWorker{doc: ordersDoc()}
	w := NewWatcher(testSource(), worker, store, quietLog(), time.Hour, time.Minute)

	if err := w.check(context.Background(), false, introspect.Scope{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v := store.current["src1"]
	if v == nil {
		t.Fatal("expected a recorded version")
	}
	if v.Seq != 1 {
		t.Errorf("got seq %d, want 1", v.Seq)
	}
	if v.Fingerprint != fingerprint.Compute(ordersDoc()) {
		t.Error("recorded fingerprint does not match the introspected document")
	}
}

func TestWatcher_UnchangedCycleNeverRecords(t *testing.T) {
	store := newMockStore()
	worker := &mockWorker{doc: ordersDoc()}
	w := NewWatcher(testSource(), worker, store, quietLog(), time.Hour, time.Minute)

	ctx := context.Background()
	if err := w.check(ctx, false, introspect.Scope{}); err != nil {
		t.Fatalf("first check: %v", err)
	}
	if err := w.check(ctx, false, introspect.Scope{}); err != nil {
		t.Fatalf("second check: %v", err)
	}

	// One RecordSchemaVersion from the first cycle only; the second
	// cycle is suppressed by the fingerprint comparison before the
	// store is asked to write.
	records := 0
	for _, call := range store.getCalls() {
		if call == "RecordSchemaVersion" {
			records++
		}
	}
	if records != 1 {
		t.Errorf("got %d RecordSchemaVersion calls, want 1", records)
	}
	if store.touched["src1"] != 1 {
		t.Errorf("expected unchanged cycle to touch last_checked once, got %d", store.touched["src1"])
	}
	if store.current["src1"].Seq != 1 {
		t.Errorf("seq advanced on unchanged cycle: %d", store.current["src1"].Seq)
	}
}

func TestWatcher_StructuralChangeAdvancesSeq(t *testing.T) {
	store := newMockStore()
	worker := &mockWorker{doc: &models.SchemaDocument{
		Entities: []models.Entity{{Name: "docs", VectorDims: 768, VectorMetric: "cosine"}},
	}}
	src := &models.DataSource{ID: "vec1", Name: "embeddings", Kind: models.KindVector, DSN: "http://localhost:9200"}
	w := NewWatcher(src, worker, store, quietLog(), time.Hour, time.Minute)

	ctx := context.Background()
	if err := w.check(ctx, false, introspect.Scope{}); err != nil {
		t.Fatalf("first check: %v", err)
	}

	// Change the distance metric; the fingerprint must differ and a
	// new version with seq+1 must be recorded.
	worker.setDoc(&models.SchemaDocument{
		Entities: []models.Entity{{Name: "docs", VectorDims: 768, VectorMetric: "dot_product"}},
	})
	if err := w.check(ctx, false, introspect.Scope{}); err != nil {
		t.Fatalf("second check: %v", err)
	}

	if store.current["vec1"].Seq != 2 {
		t.Errorf("got seq %d, want 2", store.current["vec1"].Seq)
	}
}

func TestWatcher_ForceAlwaysRecords(t *testing.T) {
	store := newMockStore()
	worker := &mockWorker{doc: ordersDoc()}
	w := NewWatcher(testSource(), worker, store, quietLog(), time.Hour, time.Minute)

	ctx := context.Background()
	if err := w.check(ctx, false, introspect.Scope{}); err != nil {
		t.Fatalf("first check: %v", err)
	}
	if err := w.ForceCheck(ctx); err != nil {
		t.Fatalf("forced check: %v", err)
	}

	if store.current["src1"].Seq != 2 {
		t.Errorf("forced check with identical structure should still append, got seq %d", store.current["src1"].Seq)
	}
}

func TestWatcher_IntrospectionFailureAbortsCycleOnly(t *testing.T) {
	store := newMockStore()
	worker := &mockWorker{err: errors.New("backend unreachable")}
	w := NewWatcher(testSource(), worker, store, quietLog(), time.Hour, time.Minute)

	err := w.check(context.Background(), false, introspect.Scope{})
	if err == nil {
		t.Fatal("expected error from failed introspection")
	}
	if len(store.current) != 0 {
		t.Error("failed introspection must not record a version")
	}
	if w.State() != StateIdle {
		t.Errorf("watcher should return to idle after failure, got %s", w.State())
	}
}

func TestWatcher_ConflictRetriesOnceThenSurfaces(t *testing.T) {
	store := newMockStore()
	worker := &mockWorker{doc: ordersDoc()}
	w := NewWatcher(testSource(), worker, store, quietLog(), time.Hour, time.Minute)

	// Both the initial write and the retry hit a conflict.
	store.recordErrs = []error{models.ErrVersionConflict, models.ErrVersionConflict}

	err := w.check(context.Background(), false, introspect.Scope{})
	if !errors.Is(err, models.ErrVersionConflict) {
		t.Fatalf("second conflict should surface, got %v", err)
	}

	records := 0
	for _, call := range store.getCalls() {
		if call == "RecordSchemaVersion" {
			records++
		}
	}
	if records != 2 {
		t.Errorf("got %d write attempts, want exactly 2 (original + one retry)", records)
	}
}

func TestWatcher_ConflictResolvedByConcurrentIdenticalWrite(t *testing.T) {
	store := newMockStore()
	worker := &mockWorker{doc: ordersDoc()}
	w := NewWatcher(testSource(), worker, store, quietLog(), time.Hour, time.Minute)

	// First write conflicts; meanwhile "another writer" has recorded
	// the identical structure, so the retry path discovers a matching
	// fingerprint and does not write again.
	store.recordErrs = []error{models.ErrVersionConflict}
	fp := fingerprint.Compute(ordersDoc())
	store.current["src1"] = &models.SchemaVersion{SourceID: "src1", Seq: 3, Fingerprint: fp}

	if err := w.check(context.Background(), false, introspect.Scope{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.current["src1"].Seq != 3 {
		t.Errorf("retry should not have written, got seq %d", store.current["src1"].Seq)
	}
}

func TestWatcher_ScopedCheckMergesIntoPreviousDocument(t *testing.T) {
	store := newMockStore()
	full := ordersDoc()
	worker := &mockWorker{doc: full}
	w := NewWatcher(testSource(), worker, store, quietLog(), time.Hour, time.Minute)

	ctx := context.Background()
	if err := w.check(ctx, false, introspect.Scope{}); err != nil {
		t.Fatalf("first check: %v", err)
	}

	// A push notification triggers a scoped re-read of just "orders",
	// which gained a column. The merged document must keep "customers".
	worker.setDoc(&models.SchemaDocument{
		Entities: []models.Entity{{Name: "orders", Fields: []models.Field{
			{Name: "id", Type: "bigint", Indexed: true},
			{Name: "customer_id", Type: "bigint", Indexed: true},
			{Name: "amount", Type: "numeric"},
			{Name: "currency", Type: "text"},
		}}},
	})
	if err := w.check(ctx, false, introspect.Scope{Entity: "orders"}); err != nil {
		t.Fatalf("scoped check: %v", err)
	}

	doc := store.current["src1"].Document
	if len(doc.Entities) != 2 {
		t.Fatalf("merged document lost entities: got %d, want 2", len(doc.Entities))
	}

	var orders *models.Entity
	for i := range doc.Entities {
		if doc.Entities[i].Name == "orders" {
			orders = &doc.Entities[i]
		}
	}
	if orders == nil || len(orders.Fields) != 4 {
		t.Error("scoped re-read did not replace the changed entity")
	}
}

func TestWatcher_ScopedCheckWithoutBaselineRunsFullPass(t *testing.T) {
	store := newMockStore()
	worker := &mockWorker{doc: ordersDoc()}
	w := NewWatcher(testSource(), worker, store, quietLog(), time.Hour, time.Minute)

	// A push kick can arrive before any version exists, e.g. when the
	// startup check failed transiently. With no baseline to merge into,
	// the scoped request must widen so the first recorded version
	// covers the whole source, not just the kicked entity.
	if err := w.check(context.Background(), false, introspect.Scope{Entity: "orders"}); err != nil {
		t.Fatalf("scoped check: %v", err)
	}

	worker.mu.Lock()
	scope := worker.lastScope
	worker.mu.Unlock()
	if scope.Entity != "" {
		t.Errorf("check should have widened to a full pass, introspected entity %q", scope.Entity)
	}

	doc := store.current["src1"].Document
	if len(doc.Entities) != 2 {
		t.Errorf("first version must cover the whole source, got %d entities", len(doc.Entities))
	}
}

func TestMergeScoped_DroppedEntityRemoved(t *testing.T) {
	previous := ordersDoc()
	merged := mergeScoped(previous, &models.SchemaDocument{}, "orders")

	if len(merged.Entities) != 1 || merged.Entities[0].Name != "customers" {
		t.Errorf("dropped entity should be removed from the merged document: %+v", merged.Entities)
	}
}

func TestManager_Lifecycle(t *testing.T) {
	store := newMockStore()
	worker := &mockWorker{doc: ordersDoc()}
	factory := &mockFactory{workers: map[string]*mockWorker{"src1": worker}}
	lister := &mockLister{sources: []models.DataSource{*testSource()}}

	m := NewManager(store, lister, factory, quietLog(), time.Hour, time.Minute)

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("starting manager: %v", err)
	}

	// The startup check runs asynchronously; wait for it.
	deadline := time.Now().Add(2 * time.Second)
	for worker.introspectCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if worker.introspectCount() == 0 {
		t.Fatal("watcher never ran its startup check")
	}

	statuses := m.Status()
	if len(statuses) != 1 || statuses[0].SourceID != "src1" {
		t.Fatalf("unexpected statuses: %+v", statuses)
	}

	if err := m.ForceCheck(ctx, "src1"); err != nil {
		t.Fatalf("force check: %v", err)
	}
	if err := m.ForceCheck(ctx, "missing"); !errors.Is(err, models.ErrSourceNotFound) {
		t.Errorf("force check on unknown source: got %v, want ErrSourceNotFound", err)
	}

	m.Stop(ctx)

	worker.mu.Lock()
	closed := worker.closed
	worker.mu.Unlock()
	if !closed {
		t.Error("stop should close introspection workers")
	}
}

func TestManager_ForceCheckAllIsolatesFailures(t *testing.T) {
	store := newMockStore()
	failing := &mockWorker{err: errors.New("backend unreachable")}
	slow := &mockWorker{doc: ordersDoc(), delay: 50 * time.Millisecond}
	factory := &mockFactory{workers: map[string]*mockWorker{"bad": failing, "good": slow}}
	lister := &mockLister{sources: []models.DataSource{
		{ID: "bad", Name: "bad-db", Kind: models.KindRelational, DSN: "postgres://bad"},
		{ID: "good", Name: "good-db", Kind: models.KindRelational, DSN: "postgres://good"},
	}}

	m := NewManager(store, lister, factory, quietLog(), time.Hour, time.Minute)

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("starting manager: %v", err)
	}
	defer m.Stop(ctx)

	// Let the startup checks settle so the forced pass is what we measure.
	deadline := time.Now().Add(2 * time.Second)
	for store.getCurrent("good") == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if store.getCurrent("good") == nil {
		t.Fatal("healthy source never recorded its startup version")
	}

	err := m.ForceCheckAll(ctx)
	if err == nil {
		t.Fatal("the failing source's error should surface after all checks finish")
	}

	// The slow healthy source must complete its forced write even
	// though a sibling failed immediately.
	if got := store.getCurrent("good").Seq; got != 2 {
		t.Errorf("healthy source's forced check should have appended seq 2, got %d", got)
	}
}
