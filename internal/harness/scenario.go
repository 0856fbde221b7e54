package harness

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Scenario defines a conformance test scenario: branches of commits,
// the merges to attempt, and the expected outcome.
type Scenario struct {
	// Name uniquely identifies this scenario; it is also the golden
	// file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Reducer selects the reference reducer: "kv" (default, no
	// automatic resolution) or "kv-lww" (larger event ID wins).
	Reducer string `yaml:"reducer,omitempty"`

	// Branches are processed in order. Naming an existing branch
	// appends commits to it, which is how a scenario interleaves work
	// on both sides of a fork.
	Branches []BranchStep `yaml:"branches"`

	// Merges run after all branch commits.
	Merges []MergeStep `yaml:"merges,omitempty"`

	// Expect optionally pins the final state of one branch.
	Expect *Expect `yaml:"expect,omitempty"`
}

// BranchStep creates or extends a branch and commits onto it.
type BranchStep struct {
	Name string `yaml:"name"`

	// From forks a new branch off another branch's current head.
	// Empty means the branch starts at the root (or already exists).
	From string `yaml:"from,omitempty"`

	Commits []CommitStep `yaml:"commits"`
}

// CommitStep is one key-value mutation.
type CommitStep struct {
	Op    string `yaml:"op"`
	Key   string `yaml:"key"`
	Value string `yaml:"value,omitempty"`
}

// MergeStep merges the heads of From into the branch Into.
type MergeStep struct {
	Into string   `yaml:"into"`
	From []string `yaml:"from"`

	// ExpectConflict marks merges that must fail with a conflict; the
	// conflict becomes part of the trace instead of aborting the run.
	ExpectConflict bool `yaml:"expect_conflict,omitempty"`
}

// Expect pins the final materialized state of a branch.
type Expect struct {
	// Branch defaults to "main".
	Branch string `yaml:"branch,omitempty"`

	State map[string]string `yaml:"state"`
}

// LoadScenario reads, schema-validates and parses a scenario YAML file.
// Returns an error if the file is malformed, violates the CUE schema,
// or contains unknown fields (typos).
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario validates and decodes scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	if err := validateAgainstSchema(data); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// validateAgainstSchema unifies the decoded YAML document with the
// embedded #Scenario definition. The CUE pass catches structural
// problems (wrong types, bad enum values, empty required fields) with
// far better messages than post-hoc field checks.
func validateAgainstSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile scenario schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Scenario"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("lookup scenario schema: %w", err)
	}

	unified := def.Unify(ctx.Encode(doc))
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return err
	}
	return nil
}
