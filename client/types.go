package client

import (
	"encoding/json"
	"time"
)

// DataSource is a registered backend tracked by the schema store. The
// DSN is write-only: it is sent on registration and never echoed back.
type DataSource struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Kind             string     `json:"kind"`
	CurrentVersionID *string    `json:"current_version_id,omitempty"`
	CurrentSeq       int64      `json:"current_seq"`
	LastCheckedAt    *time.Time `json:"last_checked_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// RegisterSourceRequest is the payload for registering a backend.
type RegisterSourceRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Kind string `json:"kind"`
	DSN  string `json:"dsn"`
}

// SchemaVersion is an immutable snapshot of a source's structure.
type SchemaVersion struct {
	ID          string         `json:"id"`
	SourceID    string         `json:"source_id"`
	Seq         int64          `json:"seq"`
	Fingerprint string         `json:"fingerprint"`
	Document    SchemaDocument `json:"document"`
	CreatedAt   time.Time      `json:"created_at"`
}

// SchemaDocument is the normalized structure read from a live backend.
type SchemaDocument struct {
	Entities []Entity `json:"entities"`
	Warnings []string `json:"warnings,omitempty"`
}

// Entity is a table, collection, index, or stream within a source.
type Entity struct {
	Name          string  `json:"name"`
	Fields        []Field `json:"fields"`
	CountEstimate int64   `json:"count_estimate"`
	VectorDims    int     `json:"vector_dims,omitempty"`
	VectorMetric  string  `json:"vector_metric,omitempty"`
}

// Field describes a single column, document field, or stream attribute.
type Field struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Nullable     bool   `json:"nullable"`
	Indexed      bool   `json:"indexed"`
	VectorDims   int    `json:"vector_dims,omitempty"`
	VectorMetric string `json:"vector_metric,omitempty"`
}

// WatcherStatus is a point-in-time view of one change watcher.
type WatcherStatus struct {
	SourceID   string `json:"source_id"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	State      string `json:"state"`
	PushActive bool   `json:"push_active"`
}

// SourceMatch is one selected source in a classification result.
type SourceMatch struct {
	SourceID string  `json:"source_id"`
	Name     string  `json:"name"`
	Kind     string  `json:"kind"`
	Score    float64 `json:"score"`
	Ontology bool    `json:"ontology"`
	Summary  string  `json:"summary"`
}

// ClassificationResult routes a question to a ranked subset of sources.
type ClassificationResult struct {
	Question  string        `json:"question"`
	Selected  []SourceMatch `json:"selected"`
	Reasoning string        `json:"reasoning"`
}

// Operation is one backend-native step in a query plan.
type Operation struct {
	ID          string          `json:"id"`
	SourceID    string          `json:"source_id"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	DependsOn   []string        `json:"depends_on,omitempty"`
	OutputShape []string        `json:"output_shape,omitempty"`
	Stage       int             `json:"stage,omitempty"`
}

// QueryPlan is a dependency-ordered set of operations answering one
// classified question.
type QueryPlan struct {
	ID          string      `json:"id"`
	Question    string      `json:"question"`
	Description string      `json:"description"`
	SourceIDs   []string    `json:"source_ids"`
	Operations  []Operation `json:"operations"`
	Notes       []string    `json:"notes,omitempty"`
}

// PlanResponse pairs the classification with the plan built from it.
// Plan is nil when no source cleared the relevance floor.
type PlanResponse struct {
	Classification *ClassificationResult `json:"classification"`
	Plan           *QueryPlan            `json:"plan"`
}

// OntologyMapping associates a business term with a concrete entity in
// a registered source.
type OntologyMapping struct {
	ID         string    `json:"id"`
	Term       string    `json:"term"`
	SourceID   string    `json:"source_id"`
	EntityName string    `json:"entity_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// PutOntologyMappingRequest is the payload for creating a mapping.
type PutOntologyMappingRequest struct {
	ID         string `json:"id,omitempty"`
	Term       string `json:"term"`
	SourceID   string `json:"source_id"`
	EntityName string `json:"entity_name"`
}

// HealthResponse is the liveness check payload.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	WSClients int64  `json:"ws_clients"`
}

// CheckResponse reports the outcome of a forced schema check.
type CheckResponse struct {
	Status  string         `json:"status"`
	Version *SchemaVersion `json:"version,omitempty"`
	Error   string         `json:"error,omitempty"`
}

type sourceListResponse struct {
	Sources []DataSource `json:"sources"`
}

type versionListResponse struct {
	Versions []SchemaVersion `json:"versions"`
}

type watcherListResponse struct {
	Watchers []WatcherStatus `json:"watchers"`
}

type mappingListResponse struct {
	Mappings []OntologyMapping `json:"mappings"`
}
