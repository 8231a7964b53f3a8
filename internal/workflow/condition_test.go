package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvalEquality(t *testing.T) {
	ctx := EvalContext{Steps: map[string]StepContext{"a": {Result: "accepted"}}}
	ok, err := Eval(`step.a.result == "accepted"`, ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvalInequality(t *testing.T) {
	ctx := EvalContext{Steps: map[string]StepContext{"a": {Result: "failed"}}}
	ok, err := Eval(`step.a.result != "accepted"`, ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvalLogicalAnd(t *testing.T) {
	ctx := EvalContext{Steps: map[string]StepContext{
		"a": {Result: "accepted"},
		"b": {Result: "accepted"},
	}}
	ok, err := Eval(`step.a.result == "accepted" && step.b.result == "accepted"`, ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvalLogicalOr(t *testing.T) {
	ctx := EvalContext{Steps: map[string]StepContext{"a": {Result: "failed"}}}
	ok, err := Eval(`step.a.result == "accepted" || step.a.result == "failed"`, ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvalTriggerContext(t *testing.T) {
	ctx := EvalContext{Trigger: map[string]interface{}{"env": "prod"}}
	ok, err := Eval(`trigger.context.env == "prod"`, ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvalUnknownStepResolvesEmpty(t *testing.T) {
	ctx := EvalContext{}
	ok, err := Eval(`step.missing.result == "accepted"`, ctx)
	require.NoError(t, err)
	require.False(t, ok)
}
