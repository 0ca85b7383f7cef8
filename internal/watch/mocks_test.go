package watch

import (
	"context"
	"sync"
	"time"

	"github.com/querymesh/querymesh/internal/introspect"
	"github.com/querymesh/querymesh/internal/models"
)

// mockStore is an in-memory SchemaStore recording calls.
type mockStore struct {
	mu      sync.Mutex
	calls   []string
	current map[string]*models.SchemaVersion
	touched map[string]int

	// recordErrs is consumed front-to-back: each RecordSchemaVersion
	// call pops one error (nil allowed) before normal processing.
	recordErrs []error
}

func newMockStore() *mockStore {
	return &mockStore{
		current: make(map[string]*models.SchemaVersion),
		touched: make(map[string]int),
	}
}

func (m *mockStore) record(name string) {
	m.calls = append(m.calls, name)
}

func (m *mockStore) getCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]string, len(m.calls))
	copy(cp, m.calls)
	return cp
}

func (m *mockStore) getCurrent(sourceID string) *models.SchemaVersion {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current[sourceID]
}

func (m *mockStore) GetCurrentSchema(_ context.Context, sourceID string) (*models.SchemaVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetCurrentSchema")

	v, ok := m.current[sourceID]
	if !ok {
		return nil, models.ErrVersionNotFound
	}
	return v, nil
}

func (m *mockStore) RecordSchemaVersion(_ context.Context, sourceID string, doc *models.SchemaDocument, fp string, expectedSeq int64, force bool) (*models.SchemaVersion, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("RecordSchemaVersion")

	if len(m.recordErrs) > 0 {
		err := m.recordErrs[0]
		m.recordErrs = m.recordErrs[1:]
		if err != nil {
			return nil, false, err
		}
	}

	cur := m.current[sourceID]

	if !force {
		if cur != nil && cur.Fingerprint == fp {
			return nil, false, nil
		}
		var curSeq int64
		if cur != nil {
			curSeq = cur.Seq
		}
		if expectedSeq >= 0 && curSeq != expectedSeq {
			return nil, false, models.ErrVersionConflict
		}
	}

	var seq int64 = 1
	if cur != nil {
		seq = cur.Seq + 1
	}

	v := &models.SchemaVersion{SourceID: sourceID, Seq: seq, Fingerprint: fp, Document: *doc}
	m.current[sourceID] = v

	return v, true, nil
}

func (m *mockStore) TouchLastChecked(_ context.Context, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("TouchLastChecked")
	m.touched[sourceID]++
	return nil
}

// mockWorker returns a configurable document, optionally after a
// context-aware delay.
type mockWorker struct {
	mu         sync.Mutex
	kind       models.SourceKind
	doc        *models.SchemaDocument
	err        error
	delay      time.Duration
	introspect int
	lastScope  introspect.Scope
	closed     bool
}

func (m *mockWorker) Kind() models.SourceKind {
	if m.kind == "" {
		return models.KindRelational
	}
	return m.kind
}

func (m *mockWorker) Introspect(ctx context.Context, scope introspect.Scope) (*models.SchemaDocument, error) {
	m.mu.Lock()
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.introspect++
	m.lastScope = scope
	if m.err != nil {
		return nil, m.err
	}
	return m.doc, nil
}

func (m *mockWorker) setDoc(doc *models.SchemaDocument) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = doc
}

func (m *mockWorker) introspectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.introspect
}

func (m *mockWorker) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// mockFactory hands out pre-built workers by source id.
type mockFactory struct {
	workers map[string]*mockWorker
}

func (f *mockFactory) New(source *models.DataSource) (introspect.Worker, error) {
	if w, ok := f.workers[source.ID]; ok {
		return w, nil
	}
	return &mockWorker{doc: &models.SchemaDocument{}}, nil
}

// mockLister returns a fixed source list.
type mockLister struct {
	sources []models.DataSource
}

func (m *mockLister) ListSources(context.Context, models.SourceFilter) ([]models.DataSource, error) {
	return m.sources, nil
}
