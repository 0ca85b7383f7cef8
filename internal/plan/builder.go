// Package plan builds and optimizes cross-backend query plans. A plan
// is a DAG of backend-native operations; the builder threads the
// primary source's output into secondary sources' filters, and an
// Optimizer strategy rewrites the plan without changing its meaning.
package plan

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/querymesh/querymesh/internal/classify"
	"github.com/querymesh/querymesh/internal/metrics"
	"github.com/querymesh/querymesh/internal/models"
)

// aggregateHints are question words that call for an aggregation step
// on the primary backend.
var aggregateHints = []string{
	"sum", "total", "count", "average", "avg", "most", "top",
	"max", "min", "spent", "highest", "lowest",
}

// Builder constructs query plans from classification results.
// Stateless; safe for concurrent use.
type Builder struct {
	log *logrus.Logger
}

// NewBuilder creates a plan builder.
func NewBuilder(log *logrus.Logger) *Builder {
	return &Builder{log: log}
}

// seedPayload is the backend-native instruction for the primary
// source's first operation. Opaque to the core; the backend driver
// interprets it.
type seedPayload struct {
	Question string   `json:"question"`
	Terms    []string `json:"terms"`
	Summary  string   `json:"summary,omitempty"`
}

type lookupPayload struct {
	Question    string `json:"question"`
	FilterIDsOp string `json:"filter_ids_from"`
	Summary     string `json:"summary,omitempty"`
}

type aggregatePayload struct {
	Question string `json:"question"`
	InputOp  string `json:"input_from"`
}

// Build constructs a plan from a classification result. The primary
// (top-ranked) source gets the seed operation; every secondary source
// gets a lookup operation that consumes the seed's id output. The
// resulting graph is validated before it is returned.
func (b *Builder) Build(result *models.ClassificationResult, question string) (*models.QueryPlan, error) {
	if result.Empty() {
		metrics.PlansBuilt.WithLabelValues("invalid").Inc()

		return nil, fmt.Errorf("%w: no sources selected for question", models.ErrPlanInvalid)
	}

	terms := classify.Tokenize(question)
	primary := result.Selected[0]

	p := &models.QueryPlan{
		ID:        uuid.NewString(),
		Question:  question,
		SourceIDs: result.SourceIDs(),
	}

	nextID := func() string { return fmt.Sprintf("op%d", len(p.Operations)+1) }

	seedID := nextID()
	p.Operations = append(p.Operations, models.Operation{
		ID:          seedID,
		SourceID:    primary.SourceID,
		Kind:        seedKind(primary.Kind),
		Payload:     mustJSON(seedPayload{Question: question, Terms: terms, Summary: primary.Summary}),
		OutputShape: []string{"id"},
	})

	if primary.Kind == models.KindRelational && wantsAggregate(terms) {
		p.Operations = append(p.Operations, models.Operation{
			ID:          nextID(),
			SourceID:    primary.SourceID,
			Kind:        models.OpAggregate,
			Payload:     mustJSON(aggregatePayload{Question: question, InputOp: seedID}),
			DependsOn:   []string{seedID},
			OutputShape: []string{"group", "value"},
		})
	}

	for _, match := range result.Selected[1:] {
		p.Operations = append(p.Operations, models.Operation{
			ID:          nextID(),
			SourceID:    match.SourceID,
			Kind:        models.OpLookup,
			Payload:     mustJSON(lookupPayload{Question: question, FilterIDsOp: seedID, Summary: match.Summary}),
			DependsOn:   []string{seedID},
			OutputShape: []string{"id", "record"},
		})
	}

	p.Description = describe(p, primary)

	if err := Validate(p); err != nil {
		metrics.PlansBuilt.WithLabelValues("invalid").Inc()

		return nil, err
	}

	metrics.PlansBuilt.WithLabelValues("ok").Inc()

	b.log.WithFields(logrus.Fields{
		"plan_id":    p.ID,
		"sources":    len(p.SourceIDs),
		"operations": len(p.Operations),
	}).Debug("plan built")

	return p, nil
}

// seedKind picks the first operation's kind for the primary backend:
// similarity-oriented backends search, structured backends filter.
func seedKind(kind models.SourceKind) models.OpKind {
	switch kind {
	case models.KindVector, models.KindMessageStore:
		return models.OpSearch
	default:
		return models.OpFilter
	}
}

func wantsAggregate(terms []string) bool {
	for _, t := range terms {
		for _, hint := range aggregateHints {
			if t == hint {
				return true
			}
		}
	}

	return false
}

func describe(p *models.QueryPlan, primary models.SourceMatch) string {
	if len(p.SourceIDs) == 1 {
		return fmt.Sprintf("%d operation(s) on %s", len(p.Operations), primary.Name)
	}

	return fmt.Sprintf("%d operation(s) across %d backends, seeded by %s",
		len(p.Operations), len(p.SourceIDs), primary.Name)
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		// Payload structs contain only marshalable fields.
		panic(fmt.Sprintf("marshaling operation payload: %v", err))
	}

	return data
}

// sameSourceSet reports whether two plans use the same set of sources,
// ignoring order.
func sameSourceSet(a, b *models.QueryPlan) bool {
	if len(a.SourceIDs) != len(b.SourceIDs) {
		return false
	}

	set := make(map[string]bool, len(a.SourceIDs))
	for _, id := range a.SourceIDs {
		set[id] = true
	}

	for _, id := range b.SourceIDs {
		if !set[id] {
			return false
		}
	}

	// Operations must also stay on the declared sources.
	for _, op := range b.Operations {
		if !set[op.SourceID] {
			return false
		}
	}

	return true
}

// idsPreserved reports whether every operation id of the original plan
// survives in the rewritten plan, so callers can correlate the two.
func idsPreserved(original, rewritten *models.QueryPlan) bool {
	for _, op := range original.Operations {
		if rewritten.Operation(op.ID) == nil {
			return false
		}
	}

	return true
}

// annotate appends a note, avoiding duplicates.
func annotate(p *models.QueryPlan, note string) {
	for _, n := range p.Notes {
		if strings.EqualFold(n, note) {
			return
		}
	}

	p.Notes = append(p.Notes, note)
}
