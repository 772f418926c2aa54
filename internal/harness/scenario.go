package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines one conformance scenario: a sequence of engine
// operations plus assertions on the resulting state and history.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs lists CUE type spec files to compile into the registry.
	// Paths are resolved relative to the scenario file location.
	Specs []string `yaml:"specs"`

	// Steps is the operation sequence. Each step holds exactly one
	// operation.
	Steps []Step `yaml:"steps"`

	// Assertions validate final stage state and version history after the
	// steps ran.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one engine operation. Exactly one of the fields is set.
type Step struct {
	Write   *WriteStep   `yaml:"write,omitempty"`
	Publish *PublishStep `yaml:"publish,omitempty"`
	Read    *ReadStep    `yaml:"read,omitempty"`
	Delete  *DeleteStep  `yaml:"delete,omitempty"`
}

// WriteStep writes a version of a record into a stage.
type WriteStep struct {
	// Class is the record's concrete class.
	Class string `yaml:"class"`

	// Record is the record id; 0 allocates a fresh one.
	Record int64 `yaml:"record,omitempty"`

	Stage string `yaml:"stage"`

	// Fields holds values keyed by logical table name, then column.
	Fields map[string]map[string]any `yaml:"fields"`

	Author string `yaml:"author,omitempty"`
}

// PublishStep copies a record between stages.
type PublishStep struct {
	Type   string `yaml:"type,omitempty"` // base type; defaults when unambiguous
	Record int64  `yaml:"record"`
	From   string `yaml:"from"`
	To     string `yaml:"to"`
}

// ReadStep reads a record from a stage, or from the archive when Version
// is set. The assembled fields go into the trace.
type ReadStep struct {
	Type    string `yaml:"type,omitempty"`
	Record  int64  `yaml:"record"`
	Stage   string `yaml:"stage,omitempty"`
	Version int64  `yaml:"version,omitempty"`
}

// DeleteStep removes a record from one stage.
type DeleteStep struct {
	Type   string `yaml:"type,omitempty"`
	Record int64  `yaml:"record"`
	Stage  string `yaml:"stage"`
}

// Assertion validates final state after the steps ran.
type Assertion struct {
	// Type is one of last_version, stage_state, not_in_stage,
	// history_count.
	Type string `yaml:"type"`

	BaseType string `yaml:"base_type,omitempty"`
	Record   int64  `yaml:"record"`
	Stage    string `yaml:"stage,omitempty"`

	// Version is the expected value for last_version.
	Version int64 `yaml:"version,omitempty"`

	// Count is the expected history length for history_count.
	Count int `yaml:"count,omitempty"`

	// Expect holds expected field values for stage_state. Subset match:
	// only listed fields are compared.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertLastVersion  = "last_version"
	AssertStageState   = "stage_state"
	AssertNotInStage   = "not_in_stage"
	AssertHistoryCount = "history_count"
)

// LoadScenario reads and parses a scenario YAML file. Spec paths are
// resolved relative to the scenario file. Unknown YAML fields are rejected
// so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) {
			scenario.Specs[i] = filepath.Join(base, specPath)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Specs) == 0 {
		return fmt.Errorf("specs list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for _, specPath := range s.Specs {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return fmt.Errorf("spec file not found: %s", specPath)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *Step) error {
	set := 0
	if step.Write != nil {
		set++
		if step.Write.Class == "" {
			return fmt.Errorf("steps[%d].write: class is required", index)
		}
		if step.Write.Stage == "" {
			return fmt.Errorf("steps[%d].write: stage is required", index)
		}
	}
	if step.Publish != nil {
		set++
		if step.Publish.From == "" || step.Publish.To == "" {
			return fmt.Errorf("steps[%d].publish: from and to are required", index)
		}
	}
	if step.Read != nil {
		set++
		if step.Read.Stage == "" && step.Read.Version == 0 {
			return fmt.Errorf("steps[%d].read: stage or version is required", index)
		}
	}
	if step.Delete != nil {
		set++
		if step.Delete.Stage == "" {
			return fmt.Errorf("steps[%d].delete: stage is required", index)
		}
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one operation is required, got %d", index, set)
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertLastVersion:
		if a.Version <= 0 {
			return fmt.Errorf("assertions[%d]: version is required for last_version", index)
		}
	case AssertStageState:
		if a.Stage == "" {
			return fmt.Errorf("assertions[%d]: stage is required for stage_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for stage_state", index)
		}
	case AssertNotInStage:
		if a.Stage == "" {
			return fmt.Errorf("assertions[%d]: stage is required for not_in_stage", index)
		}
	case AssertHistoryCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for history_count", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
