package workflow

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/agenthub/hub/internal/types"
)

// ErrUnsupportedFormat is returned by LoadDefinition for an unrecognized
// file extension.
type ErrUnsupportedFormat struct{ Ext string }

func (e ErrUnsupportedFormat) Error() string {
	return fmt.Sprintf("workflow: unsupported definition format %q (want .yaml, .yml, or .toml)", e.Ext)
}

// LoadDefinition parses a workflow definition document into the model of
// spec.md §3, choosing a codec by the file's extension, then validates the
// resulting DAG.
func LoadDefinition(path string, data []byte) (types.WorkflowDef, error) {
	var def types.WorkflowDef

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return types.WorkflowDef{}, fmt.Errorf("workflow: parse yaml definition: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &def); err != nil {
			return types.WorkflowDef{}, fmt.Errorf("workflow: parse toml definition: %w", err)
		}
	default:
		return types.WorkflowDef{}, ErrUnsupportedFormat{Ext: ext}
	}

	if err := ValidateDAG(def); err != nil {
		return types.WorkflowDef{}, err
	}
	return def, nil
}
