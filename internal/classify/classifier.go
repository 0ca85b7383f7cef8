// Package classify routes natural-language questions to a ranked
// subset of registered data sources. Scoring is keyword overlap
// against the latest schema of each source, biased by operator-curated
// ontology mappings; no model call is involved.
package classify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/querymesh/querymesh/internal/metrics"
	"github.com/querymesh/querymesh/internal/models"
)

// Scoring weights. Ontology matches dominate keyword overlap so an
// operator-curated term always outranks a lucky name collision.
const (
	weightOntology   = 10.0
	weightEntity     = 3.0
	weightEntityWord = 1.5
	weightField      = 1.0
	weightFieldWord  = 0.5

	// relevanceFloor is the minimum keyword score a source must reach
	// to be selected without an ontology match.
	relevanceFloor = 1.0

	defaultMaxFanout = 3
	maxSummaryLen    = 480
)

// SchemaReader is the store surface the classifier reads.
type SchemaReader interface {
	ListSources(ctx context.Context, filter models.SourceFilter) ([]models.DataSource, error)
	GetCurrentSchema(ctx context.Context, sourceID string) (*models.SchemaVersion, error)
}

// OntologyReader resolves business terms to (source, entity) pairs.
type OntologyReader interface {
	ListMappings(ctx context.Context) ([]models.OntologyMapping, error)
}

// Classifier maps a question to the sources that can answer it.
// Stateless beyond read access to the store; concurrent requests need
// no coordination.
type Classifier struct {
	sources   SchemaReader
	ontology  OntologyReader
	log       *logrus.Logger
	maxFanout int
}

// New creates a classifier. maxFanout <= 0 selects the default.
func New(sources SchemaReader, ontology OntologyReader, log *logrus.Logger, maxFanout int) *Classifier {
	if maxFanout <= 0 {
		maxFanout = defaultMaxFanout
	}

	return &Classifier{
		sources:   sources,
		ontology:  ontology,
		log:       log,
		maxFanout: maxFanout,
	}
}

// candidate accumulates scoring evidence for one source.
type candidate struct {
	source   models.DataSource
	score    float64
	ontology bool
	reasons  []string
	summary  string
}

// Classify ranks registered sources against the question and selects
// at most maxFanout of them. A question with no overlap against any
// schema and no ontology match yields an empty selection, not an
// error.
func (c *Classifier) Classify(ctx context.Context, question string) (*models.ClassificationResult, error) {
	tokens := Tokenize(question)

	sources, err := c.sources.ListSources(ctx, models.SourceFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing sources for classification: %w", err)
	}

	mappings, err := c.ontology.ListMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading ontology mappings: %w", err)
	}

	ontologyHits := matchOntology(tokens, mappings)

	candidates := make([]*candidate, 0, len(sources))

	for i := range sources {
		src := &sources[i]

		version, err := c.sources.GetCurrentSchema(ctx, src.ID)
		if errors.Is(err, models.ErrVersionNotFound) {
			// Never introspected; nothing to score against.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading schema for %s: %w", src.ID, err)
		}

		cand := &candidate{source: *src, summary: summarize(&version.Document)}
		cand.score, cand.reasons = scoreSchema(tokens, &version.Document)

		if terms := ontologyHits[src.ID]; len(terms) > 0 {
			cand.ontology = true
			cand.score += weightOntology * float64(len(terms))
			cand.reasons = append(cand.reasons,
				fmt.Sprintf("ontology term(s) %s map here", strings.Join(terms, ", ")))
		}

		if cand.ontology || cand.score >= relevanceFloor {
			candidates = append(candidates, cand)
		}
	}

	// Ontology-backed candidates rank above pure keyword matches
	// regardless of raw score; within each band, score descending with
	// name as the stable tiebreak.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].ontology != candidates[j].ontology {
			return candidates[i].ontology
		}
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}

		return candidates[i].source.Name < candidates[j].source.Name
	})

	if len(candidates) > c.maxFanout {
		candidates = candidates[:c.maxFanout]
	}

	result := &models.ClassificationResult{Question: question}

	var reasons []string

	for _, cand := range candidates {
		result.Selected = append(result.Selected, models.SourceMatch{
			SourceID: cand.source.ID,
			Name:     cand.source.Name,
			Kind:     cand.source.Kind,
			Score:    cand.score,
			Ontology: cand.ontology,
			Summary:  cand.summary,
		})
		reasons = append(reasons, fmt.Sprintf("%s: %s", cand.source.Name, strings.Join(cand.reasons, "; ")))
	}

	if result.Empty() {
		result.Reasoning = "no source matched the question above the relevance floor"
		metrics.ClassificationsTotal.WithLabelValues("empty").Inc()
	} else {
		result.Reasoning = strings.Join(reasons, " | ")
		metrics.ClassificationsTotal.WithLabelValues("selected").Inc()
	}

	c.log.WithFields(logrus.Fields{
		"tokens":   len(tokens),
		"selected": len(result.Selected),
	}).Debug("question classified")

	return result, nil
}

// matchOntology collects, per source id, the ontology terms the
// question hits. A term matches literally or by prefix in either
// direction, so "customer" hits a "customers" mapping.
func matchOntology(tokens []string, mappings []models.OntologyMapping) map[string][]string {
	hits := make(map[string][]string)

	for _, m := range mappings {
		term := strings.ToLower(m.Term)

		for _, token := range tokens {
			if token == term || prefixMatch(token, term) {
				if !containsString(hits[m.SourceID], m.Term) {
					hits[m.SourceID] = append(hits[m.SourceID], m.Term)
				}

				break
			}
		}
	}

	return hits
}

// scoreSchema computes the keyword-overlap score of a question against
// one schema document. Entity-name matches outweigh field matches;
// identifier words (customer_id -> customer, id) catch snake_case.
func scoreSchema(tokens []string, doc *models.SchemaDocument) (float64, []string) {
	var (
		score   float64
		matched []string
	)

	for i := range doc.Entities {
		entity := &doc.Entities[i]
		name := strings.ToLower(entity.Name)

		entityScore := 0.0

		for _, token := range tokens {
			switch {
			case token == name || prefixMatch(token, name):
				entityScore += weightEntity
			case wordMatch(token, identifierWords(entity.Name)):
				entityScore += weightEntityWord
			}

			for _, field := range entity.Fields {
				fieldName := strings.ToLower(field.Name)

				switch {
				case token == fieldName || prefixMatch(token, fieldName):
					entityScore += weightField
				case wordMatch(token, identifierWords(field.Name)):
					entityScore += weightFieldWord
				}
			}
		}

		if entityScore > 0 {
			score += entityScore
			matched = append(matched, entity.Name)
		}
	}

	if len(matched) == 0 {
		return 0, nil
	}

	return score, []string{fmt.Sprintf("keyword overlap with %s", strings.Join(matched, ", "))}
}

func wordMatch(token string, words []string) bool {
	for _, w := range words {
		if token == w || prefixMatch(token, w) {
			return true
		}
	}

	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}

	return false
}

// summarize renders a schema document as "entity(field, ...)" text for
// the plan builder, truncated to a bounded length.
func summarize(doc *models.SchemaDocument) string {
	var b strings.Builder

	for i := range doc.Entities {
		entity := &doc.Entities[i]

		if b.Len() > 0 {
			b.WriteString("; ")
		}

		b.WriteString(entity.Name)
		b.WriteString("(")

		for j, field := range entity.Fields {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(field.Name)
		}

		b.WriteString(")")

		if b.Len() >= maxSummaryLen {
			break
		}
	}

	summary := b.String()
	if len(summary) > maxSummaryLen {
		summary = summary[:maxSummaryLen] + "..."
	}

	return summary
}
