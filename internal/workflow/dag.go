// Package workflow implements the workflow DAG engine (C8): DAG validation,
// ready-step scheduling, completion/failure/retry/abort/cancel handling.
package workflow

import (
	"fmt"

	"github.com/agenthub/hub/internal/types"
)

// ErrUnknownDependency names a depends_on reference to a step id that does
// not exist in the definition.
type ErrUnknownDependency struct {
	StepID string
	DepID  string
}

func (e ErrUnknownDependency) Error() string {
	return fmt.Sprintf("workflow: step %q depends on unknown step %q", e.StepID, e.DepID)
}

// ErrCycle is returned when the dependency graph is not a DAG.
type ErrCycle struct{ Remaining []string }

func (e ErrCycle) Error() string {
	return fmt.Sprintf("workflow: cycle detected among steps %v", e.Remaining)
}

// ErrDuplicateStepID is returned when two steps share an id.
type ErrDuplicateStepID struct{ StepID string }

func (e ErrDuplicateStepID) Error() string {
	return fmt.Sprintf("workflow: duplicate step id %q", e.StepID)
}

// ValidateDAG checks step id uniqueness, that depends_on references only
// known ids, and that the dependency graph is acyclic (Kahn's algorithm).
func ValidateDAG(def types.WorkflowDef) error {
	ids := make(map[string]struct{}, len(def.Steps))
	for _, s := range def.Steps {
		if _, dup := ids[s.ID]; dup {
			return ErrDuplicateStepID{StepID: s.ID}
		}
		ids[s.ID] = struct{}{}
	}
	for _, s := range def.Steps {
		for _, dep := range s.DependsOn {
			if _, ok := ids[dep]; !ok {
				return ErrUnknownDependency{StepID: s.ID, DepID: dep}
			}
		}
	}

	indegree := make(map[string]int, len(def.Steps))
	dependents := make(map[string][]string)
	for _, s := range def.Steps {
		indegree[s.ID] = len(s.DependsOn)
		for _, dep := range s.DependsOn {
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}

	var queue []string
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range dependents[cur] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited != len(def.Steps) {
		var remaining []string
		for id, deg := range indegree {
			if deg > 0 {
				remaining = append(remaining, id)
			}
		}
		return ErrCycle{Remaining: remaining}
	}
	return nil
}
