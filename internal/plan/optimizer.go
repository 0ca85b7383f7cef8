package plan

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/querymesh/querymesh/internal/models"
)

// Stats carries optional performance hints for the optimizer. All
// fields may be nil; the optimizer degrades gracefully without them.
type Stats struct {
	// RowEstimates maps source id to the latest row/document count
	// estimate for its largest entity.
	RowEstimates map[string]int64
}

// Optimizer is a pluggable plan-rewrite strategy. Implementations must
// keep the plan semantically equivalent: same backend set, acyclic,
// operation ids preserved where unchanged. A rewrite that cannot be
// validated as equivalent returns the original plan with a note rather
// than guessing.
type Optimizer interface {
	Optimize(ctx context.Context, p *models.QueryPlan, stats *Stats) (*models.QueryPlan, error)
}

// RuleOptimizer is the deterministic strategy: schedule filters before
// dependent work on each backend, compute parallel stages for
// independent branches, and annotate the rationale.
type RuleOptimizer struct {
	log *logrus.Logger
}

// NewRuleOptimizer creates the rule-based optimizer.
func NewRuleOptimizer(log *logrus.Logger) *RuleOptimizer {
	return &RuleOptimizer{log: log}
}

// kindPriority orders operations within a stage: filters run earliest
// on their owning backend so downstream work sees reduced inputs.
func kindPriority(k models.OpKind) int {
	switch k {
	case models.OpFilter:
		return 0
	case models.OpSearch:
		return 1
	case models.OpLookup:
		return 2
	case models.OpAggregate:
		return 3
	default:
		return 4
	}
}

// Optimize rewrites a copy of the plan and falls back to the original
// when the rewrite fails its equivalence checks.
func (o *RuleOptimizer) Optimize(_ context.Context, p *models.QueryPlan, stats *Stats) (*models.QueryPlan, error) {
	rewritten := p.Clone()

	stageOf := stages(rewritten)
	maxStage := 0

	for i := range rewritten.Operations {
		op := &rewritten.Operations[i]
		op.Stage = stageOf[op.ID]

		if op.Stage > maxStage {
			maxStage = op.Stage
		}
	}

	// Execution order: stage ascending, filters first within a stage,
	// smaller backends first when estimates are available. Reordering
	// the slice never changes the dependency graph.
	sort.SliceStable(rewritten.Operations, func(i, j int) bool {
		a, b := &rewritten.Operations[i], &rewritten.Operations[j]

		if a.Stage != b.Stage {
			return a.Stage < b.Stage
		}
		if pa, pb := kindPriority(a.Kind), kindPriority(b.Kind); pa != pb {
			return pa < pb
		}
		if stats != nil && stats.RowEstimates != nil {
			if ra, rb := stats.RowEstimates[a.SourceID], stats.RowEstimates[b.SourceID]; ra != rb {
				return ra < rb
			}
		}

		return false
	})

	stageWidth := make(map[int]int)
	for _, op := range rewritten.Operations {
		stageWidth[op.Stage]++
	}

	annotate(rewritten, rationale(maxStage, stageWidth))

	if err := Validate(rewritten); err != nil ||
		!sameSourceSet(p, rewritten) || !idsPreserved(p, rewritten) {
		o.log.WithError(err).WithField("plan_id", p.ID).Warn("rule rewrite failed validation, keeping original plan")

		original := p.Clone()
		annotate(original, "optimization skipped: rewrite failed validation")

		return original, nil
	}

	return rewritten, nil
}

func rationale(maxStage int, width map[int]int) string {
	parallel := 0
	for _, w := range width {
		if w > parallel {
			parallel = w
		}
	}

	switch {
	case maxStage <= 1 && parallel <= 1:
		return "single operation, nothing to reorder"
	case maxStage <= 1:
		return "all operations independent, one parallel stage"
	default:
		return "filters scheduled first per backend; independent branches grouped into parallel stages"
	}
}
