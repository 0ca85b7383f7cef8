package api

import (
	"context"

	"github.com/querymesh/querymesh/internal/models"
	"github.com/querymesh/querymesh/internal/watch"
)

type mockSources struct {
	sources   map[string]*models.DataSource
	listErr   error
	registerF func(req models.RegisterSourceRequest) (*models.DataSource, error)
}

func newMockSources() *mockSources {
	return &mockSources{sources: make(map[string]*models.DataSource)}
}

func (m *mockSources) RegisterSource(_ context.Context, req models.RegisterSourceRequest) (*models.DataSource, error) {
	if m.registerF != nil {
		return m.registerF(req)
	}

	src := &models.DataSource{ID: req.ID, Name: req.Name, Kind: req.Kind, DSN: req.DSN}
	m.sources[src.ID] = src

	return src, nil
}

func (m *mockSources) GetSource(_ context.Context, sourceID string) (*models.DataSource, error) {
	src, ok := m.sources[sourceID]
	if !ok {
		return nil, models.ErrSourceNotFound
	}

	return src, nil
}

func (m *mockSources) ListSources(context.Context, models.SourceFilter) ([]models.DataSource, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}

	out := make([]models.DataSource, 0, len(m.sources))
	for _, src := range m.sources {
		out = append(out, *src)
	}

	return out, nil
}

func (m *mockSources) DeregisterSource(_ context.Context, sourceID string) error {
	if _, ok := m.sources[sourceID]; !ok {
		return models.ErrSourceNotFound
	}
	delete(m.sources, sourceID)

	return nil
}

type mockSchemas struct {
	current  map[string]*models.SchemaVersion
	versions map[string][]models.SchemaVersion
}

func newMockSchemas() *mockSchemas {
	return &mockSchemas{
		current:  make(map[string]*models.SchemaVersion),
		versions: make(map[string][]models.SchemaVersion),
	}
}

func (m *mockSchemas) GetCurrentSchema(_ context.Context, sourceID string) (*models.SchemaVersion, error) {
	v, ok := m.current[sourceID]
	if !ok {
		return nil, models.ErrVersionNotFound
	}

	return v, nil
}

func (m *mockSchemas) ListVersions(_ context.Context, sourceID string, _ int) ([]models.SchemaVersion, error) {
	return m.versions[sourceID], nil
}

type mockWatch struct {
	added    []string
	removed  []string
	checked  []string
	checkErr error
	statuses []watch.WatcherStatus
}

func (m *mockWatch) AddSource(source *models.DataSource) error {
	m.added = append(m.added, source.ID)

	return nil
}

func (m *mockWatch) RemoveSource(_ context.Context, sourceID string) {
	m.removed = append(m.removed, sourceID)
}

func (m *mockWatch) ForceCheck(_ context.Context, sourceID string) error {
	if m.checkErr != nil {
		return m.checkErr
	}
	m.checked = append(m.checked, sourceID)

	return nil
}

func (m *mockWatch) ForceCheckAll(context.Context) error {
	m.checked = append(m.checked, "*")

	return m.checkErr
}

func (m *mockWatch) Status() []watch.WatcherStatus {
	return m.statuses
}

type mockClassifier struct {
	result *models.ClassificationResult
	err    error
}

func (m *mockClassifier) Classify(_ context.Context, question string) (*models.ClassificationResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}

	return &models.ClassificationResult{Question: question}, nil
}

type mockBuilder struct {
	plan *models.QueryPlan
	err  error
}

func (m *mockBuilder) Build(*models.ClassificationResult, string) (*models.QueryPlan, error) {
	return m.plan, m.err
}

type mockOntology struct {
	mappings map[string]*models.OntologyMapping
	putErr   error
}

func newMockOntology() *mockOntology {
	return &mockOntology{mappings: make(map[string]*models.OntologyMapping)}
}

func (m *mockOntology) PutMapping(_ context.Context, req models.PutOntologyMappingRequest) (*models.OntologyMapping, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}

	mapping := &models.OntologyMapping{ID: "m1", Term: req.Term, SourceID: req.SourceID, EntityName: req.EntityName}
	m.mappings[mapping.ID] = mapping

	return mapping, nil
}

func (m *mockOntology) ListMappings(context.Context) ([]models.OntologyMapping, error) {
	out := make([]models.OntologyMapping, 0, len(m.mappings))
	for _, mapping := range m.mappings {
		out = append(out, *mapping)
	}

	return out, nil
}

func (m *mockOntology) DeleteMapping(_ context.Context, id string) error {
	if _, ok := m.mappings[id]; !ok {
		return models.ErrMappingNotFound
	}
	delete(m.mappings, id)

	return nil
}
