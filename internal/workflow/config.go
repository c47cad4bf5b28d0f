package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// definitionsFile is the on-disk shape of the workflow definitions file,
// mirroring the ratecontrol package's tolerant "missing file -> defaults"
// YAML loading idiom.
type definitionsFile struct {
	Workflows []WorkflowDefinition `yaml:"workflows"`
}

// LoadDefinitionsFile reads a YAML file of named WorkflowDefinitions for
// Load. A missing file is not an error: it simply yields no definitions,
// so a worker with no workflows.yaml still starts (it just can't serve
// Execute for any WorkflowName until one is configured).
func LoadDefinitionsFile(path string) ([]WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("workflow: read definitions file %s: %w", path, err)
	}
	var f definitionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("workflow: parse definitions file %s: %w", path, err)
	}
	return f.Workflows, nil
}
