package models

// SourceMatch is one selected source in a classification result,
// ranked by relevance to the question.
type SourceMatch struct {
	SourceID string     `json:"source_id"`
	Name     string     `json:"name"`
	Kind     SourceKind `json:"kind"`
	Score    float64    `json:"score"`
	// Ontology reports whether the match came from an ontology term
	// rather than keyword overlap. Ontology matches rank first.
	Ontology bool `json:"ontology"`
	// Summary is a truncated textual schema summary (entity and field
	// names) handed downstream to the plan builder.
	Summary string `json:"summary"`
}

// ClassificationResult routes a question to a ranked subset of sources.
// Ephemeral: produced per request, never persisted.
type ClassificationResult struct {
	Question  string        `json:"question"`
	Selected  []SourceMatch `json:"selected"`
	Reasoning string        `json:"reasoning"`
}

// Empty reports whether no source scored above the relevance floor.
// An empty selection is not an error; the caller decides whether to
// ask a clarifying question or fall back to a default source.
func (r *ClassificationResult) Empty() bool {
	return len(r.Selected) == 0
}

// SourceIDs returns the ids of the selected sources in rank order.
func (r *ClassificationResult) SourceIDs() []string {
	ids := make([]string, 0, len(r.Selected))
	for _, m := range r.Selected {
		ids = append(ids, m.SourceID)
	}

	return ids
}

// ClassifyRequest is the payload for classification and planning.
type ClassifyRequest struct {
	Question string `json:"question"`
}

// Validate checks that a question is present and bounded.
func (r *ClassifyRequest) Validate() error {
	if r.Question == "" {
		return ErrMissingQuestion
	}

	if len(r.Question) > 10000 {
		return ErrFieldTooLong("question", 10000)
	}

	return nil
}
