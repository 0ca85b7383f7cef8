package api

import (
	"context"

	"github.com/querymesh/querymesh/internal/models"
	"github.com/querymesh/querymesh/internal/watch"
)

// SourceRepository defines data source operations used by SourceHandler.
type SourceRepository interface {
	RegisterSource(ctx context.Context, req models.RegisterSourceRequest) (*models.DataSource, error)
	GetSource(ctx context.Context, sourceID string) (*models.DataSource, error)
	ListSources(ctx context.Context, filter models.SourceFilter) ([]models.DataSource, error)
	DeregisterSource(ctx context.Context, sourceID string) error
}

// SchemaRepository defines schema version reads used by SourceHandler.
type SchemaRepository interface {
	GetCurrentSchema(ctx context.Context, sourceID string) (*models.SchemaVersion, error)
	ListVersions(ctx context.Context, sourceID string, limit int) ([]models.SchemaVersion, error)
}

// OntologyRepository defines ontology mapping operations used by OntologyHandler.
type OntologyRepository interface {
	PutMapping(ctx context.Context, req models.PutOntologyMappingRequest) (*models.OntologyMapping, error)
	ListMappings(ctx context.Context) ([]models.OntologyMapping, error)
	DeleteMapping(ctx context.Context, id string) error
}

// WatchController is the watch manager surface the handlers drive.
type WatchController interface {
	AddSource(source *models.DataSource) error
	RemoveSource(ctx context.Context, sourceID string)
	ForceCheck(ctx context.Context, sourceID string) error
	ForceCheckAll(ctx context.Context) error
	Status() []watch.WatcherStatus
}

// QuestionClassifier routes questions to sources.
type QuestionClassifier interface {
	Classify(ctx context.Context, question string) (*models.ClassificationResult, error)
}

// PlanBuilder constructs plans from classification results.
type PlanBuilder interface {
	Build(result *models.ClassificationResult, question string) (*models.QueryPlan, error)
}
