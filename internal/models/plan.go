package models

import "encoding/json"

// OpKind describes the role of an operation within a plan.
type OpKind string

// Operation kinds produced by the plan builder.
const (
	OpFilter    OpKind = "filter"
	OpAggregate OpKind = "aggregate"
	OpLookup    OpKind = "lookup"
	OpSearch    OpKind = "search"
)

// Operation is one backend-native step in a query plan. The Payload is
// opaque to the core; only the backend driver interprets it. The
// declared OutputShape is the stable contract handed to the executor.
type Operation struct {
	ID       string          `json:"id"`
	SourceID string          `json:"source_id"`
	Kind     OpKind          `json:"kind"`
	Payload  json.RawMessage `json:"payload"`
	// DependsOn lists operation ids whose output feeds this operation.
	// Every id must reference an operation in the same plan; the graph
	// must be acyclic.
	DependsOn   []string `json:"depends_on,omitempty"`
	OutputShape []string `json:"output_shape,omitempty"`
	// Stage is assigned by the optimizer: operations sharing a stage
	// have no mutual dependencies and may execute in parallel.
	Stage int `json:"stage,omitempty"`
}

// QueryPlan is a dependency-ordered set of operations answering one
// classified question. Owned by the request that created it.
type QueryPlan struct {
	ID          string      `json:"id"`
	Question    string      `json:"question"`
	Description string      `json:"description"`
	SourceIDs   []string    `json:"source_ids"`
	Operations  []Operation `json:"operations"`
	Notes       []string    `json:"notes,omitempty"`
}

// Clone returns a deep copy of the plan. Optimizers rewrite the copy so
// a failed rewrite can fall back to the untouched original.
func (p *QueryPlan) Clone() *QueryPlan {
	cp := *p
	cp.SourceIDs = append([]string(nil), p.SourceIDs...)
	cp.Notes = append([]string(nil), p.Notes...)
	cp.Operations = make([]Operation, len(p.Operations))

	for i, op := range p.Operations {
		c := op
		c.DependsOn = append([]string(nil), op.DependsOn...)
		c.OutputShape = append([]string(nil), op.OutputShape...)
		c.Payload = append(json.RawMessage(nil), op.Payload...)
		cp.Operations[i] = c
	}

	return &cp
}

// Operation returns the operation with the given id, or nil.
func (p *QueryPlan) Operation(id string) *Operation {
	for i := range p.Operations {
		if p.Operations[i].ID == id {
			return &p.Operations[i]
		}
	}

	return nil
}
