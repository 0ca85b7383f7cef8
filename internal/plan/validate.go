package plan

import (
	"fmt"

	"github.com/querymesh/querymesh/internal/models"
)

// Validate checks a plan's dependency graph: unique operation ids, no
// dangling dependency references, no cycles. A structurally invalid
// plan is always rejected, never silently repaired.
func Validate(p *models.QueryPlan) error {
	if len(p.Operations) == 0 {
		return fmt.Errorf("%w: plan has no operations", models.ErrPlanInvalid)
	}

	byID := make(map[string]*models.Operation, len(p.Operations))

	for i := range p.Operations {
		op := &p.Operations[i]

		if op.ID == "" {
			return fmt.Errorf("%w: operation %d has no id", models.ErrPlanInvalid, i)
		}
		if _, dup := byID[op.ID]; dup {
			return fmt.Errorf("%w: duplicate operation id %q", models.ErrPlanInvalid, op.ID)
		}

		byID[op.ID] = op
	}

	for _, op := range p.Operations {
		for _, dep := range op.DependsOn {
			if _, ok := byID[dep]; !ok {
				return fmt.Errorf("%w: operation %q depends on unknown operation %q",
					models.ErrPlanInvalid, op.ID, dep)
			}
			if dep == op.ID {
				return fmt.Errorf("%w: operation %q depends on itself", models.ErrPlanInvalid, op.ID)
			}
		}
	}

	if cycle := findCycle(p.Operations, byID); cycle != "" {
		return fmt.Errorf("%w: dependency cycle through operation %q", models.ErrPlanInvalid, cycle)
	}

	return nil
}

// findCycle runs a three-color depth-first search over the dependency
// edges and returns an operation id on a cycle, or "".
func findCycle(ops []models.Operation, byID map[string]*models.Operation) string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int, len(ops))

	var visit func(id string) string

	visit = func(id string) string {
		color[id] = gray

		for _, dep := range byID[id].DependsOn {
			switch color[dep] {
			case gray:
				return dep
			case white:
				if hit := visit(dep); hit != "" {
					return hit
				}
			}
		}

		color[id] = black

		return ""
	}

	for _, op := range ops {
		if color[op.ID] == white {
			if hit := visit(op.ID); hit != "" {
				return hit
			}
		}
	}

	return ""
}

// stages assigns each operation a stage number: 1 + the maximum stage
// of its dependencies. Operations sharing a stage have no dependency
// path between them and may run in parallel. The plan must already be
// validated as acyclic.
func stages(p *models.QueryPlan) map[string]int {
	byID := make(map[string]*models.Operation, len(p.Operations))
	for i := range p.Operations {
		byID[p.Operations[i].ID] = &p.Operations[i]
	}

	memo := make(map[string]int, len(p.Operations))

	var depth func(id string) int

	depth = func(id string) int {
		if s, ok := memo[id]; ok {
			return s
		}

		stage := 1
		for _, dep := range byID[id].DependsOn {
			if d := depth(dep) + 1; d > stage {
				stage = d
			}
		}

		memo[id] = stage

		return stage
	}

	for _, op := range p.Operations {
		depth(op.ID)
	}

	return memo
}
