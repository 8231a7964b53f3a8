package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agenthub/hub/internal/types"
)

func step(id string, deps ...string) types.StepDef {
	return types.StepDef{ID: id, DependsOn: deps}
}

func TestValidateDAGAcceptsValidGraph(t *testing.T) {
	def := types.WorkflowDef{Steps: []types.StepDef{
		step("A"), step("B", "A"), step("C", "A"),
	}}
	require.NoError(t, ValidateDAG(def))
}

func TestValidateDAGRejectsUnknownDependency(t *testing.T) {
	def := types.WorkflowDef{Steps: []types.StepDef{step("A", "ghost")}}
	err := ValidateDAG(def)
	require.Error(t, err)
	require.IsType(t, ErrUnknownDependency{}, err)
}

func TestValidateDAGRejectsCycle(t *testing.T) {
	def := types.WorkflowDef{Steps: []types.StepDef{step("A", "B"), step("B", "A")}}
	err := ValidateDAG(def)
	require.Error(t, err)
	require.IsType(t, ErrCycle{}, err)
}

func TestValidateDAGRejectsDuplicateIDs(t *testing.T) {
	def := types.WorkflowDef{Steps: []types.StepDef{step("A"), step("A")}}
	err := ValidateDAG(def)
	require.Error(t, err)
	require.IsType(t, ErrDuplicateStepID{}, err)
}
