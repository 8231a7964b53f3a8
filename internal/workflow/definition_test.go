package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const yamlDoc = `
name: ship-feature
version: "1"
on_failure: retry
max_retries: 2
steps:
  - id: implement
    title: Implement the feature
    assign: auto
    skills: [go]
    handoff:
      goal: write the code
      run_commands: ["go test ./..."]
  - id: review
    title: Review the change
    assign: alice
    depends_on: [implement]
    handoff:
      goal: review the diff
`

const tomlDoc = `
name = "ship-feature"
version = "1"
on_failure = "retry"
max_retries = 2

[[steps]]
id = "implement"
title = "Implement the feature"
assign = "auto"
skills = ["go"]
[steps.handoff]
goal = "write the code"
run_commands = ["go test ./..."]

[[steps]]
id = "review"
title = "Review the change"
assign = "alice"
depends_on = ["implement"]
[steps.handoff]
goal = "review the diff"
`

func TestLoadDefinitionParsesYAML(t *testing.T) {
	def, err := LoadDefinition("workflow.yaml", []byte(yamlDoc))
	require.NoError(t, err)
	require.Equal(t, "ship-feature", def.Name)
	require.Len(t, def.Steps, 2)
	require.Equal(t, "write the code", def.Steps[0].Handoff.Goal)
	require.Equal(t, []string{"implement"}, def.Steps[1].DependsOn)
}

func TestLoadDefinitionParsesTOML(t *testing.T) {
	def, err := LoadDefinition("workflow.toml", []byte(tomlDoc))
	require.NoError(t, err)
	require.Equal(t, "ship-feature", def.Name)
	require.Len(t, def.Steps, 2)
	require.Equal(t, "review the diff", def.Steps[1].Handoff.Goal)
}

func TestLoadDefinitionRejectsUnknownExtension(t *testing.T) {
	_, err := LoadDefinition("workflow.json", []byte("{}"))
	require.Error(t, err)
	require.IsType(t, ErrUnsupportedFormat{}, err)
}

func TestLoadDefinitionValidatesDAG(t *testing.T) {
	_, err := LoadDefinition("bad.yaml", []byte("name: x\nsteps:\n  - id: a\n    depends_on: [a]\n    handoff:\n      goal: g\n"))
	require.Error(t, err)
	require.IsType(t, ErrCycle{}, err)
}
