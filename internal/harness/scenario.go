package harness

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/udflow/internal/feature"
)

//go:embed schema.cue
var schemaCUE string

// DefaultAwaitTimeout bounds an await step without an explicit timeout.
const DefaultAwaitTimeout = 5 * time.Second

// Scenario drives a download feature through a list of steps and checks
// the recorded outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// FeatureID is the fixed instance id. Defaults to "test-feature-default"
	// so that golden traces are stable.
	FeatureID string `yaml:"feature_id,omitempty"`

	// Interval is the download tick interval, as a Go duration.
	// Defaults to 1ms.
	Interval string `yaml:"interval,omitempty"`

	// Intake is the event intake policy: "queue" (default) or "latest".
	Intake string `yaml:"intake,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one of click, await or sleep.
type Step struct {
	// Click presses the download button.
	Click *ClickStep `yaml:"click,omitempty"`

	// Await waits until the feature reaches a condition.
	Await *AwaitStep `yaml:"await,omitempty"`

	// Sleep pauses for a Go duration.
	Sleep string `yaml:"sleep,omitempty"`
}

// ClickStep presses the button. State is the state the click is made from;
// empty means the feature's current state.
type ClickStep struct {
	State string `yaml:"state,omitempty"`
}

// AwaitStep waits for a state, an effect, or both.
type AwaitStep struct {
	// State is the state kind to wait for.
	State string `yaml:"state,omitempty"`

	// Percent, with State "downloading", waits for at least this percentage.
	Percent int `yaml:"percent,omitempty"`

	// Effect waits until Count effects of this kind have been seen in total.
	Effect string `yaml:"effect,omitempty"`
	Count  int    `yaml:"count,omitempty"`

	// Timeout overrides DefaultAwaitTimeout.
	Timeout string `yaml:"timeout,omitempty"`
}

// Assertion checks the outcome of a run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// State and Percent are used by final_state.
	State   string `yaml:"state,omitempty"`
	Percent *int   `yaml:"percent,omitempty"`

	// States is used by state_sequence.
	States []string `yaml:"states,omitempty"`

	// Effect is used by effect_count, Result by result_count.
	Effect string `yaml:"effect,omitempty"`
	Result string `yaml:"result,omitempty"`

	// Count is used by effect_count, result_count and job_launches.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState    = "final_state"
	AssertStateSequence = "state_sequence"
	AssertEffectCount   = "effect_count"
	AssertResultCount   = "result_count"
	AssertJobLaunches   = "job_launches"
)

// LoadScenario reads, validates and parses a scenario YAML file.
//
// The document is checked twice: against the CUE schema, which catches
// wrong types and values, and by the strict YAML decoder, which rejects
// unknown fields (typos like "assertion:" for "assertions:").
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateSchema(doc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml and *.yml file in dir, sorted by file
// name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	scenarios := make([]*Scenario, 0, len(names))
	for _, name := range names {
		s, err := LoadScenario(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateSchema unifies doc with #Scenario and requires a concrete result.
func validateSchema(doc any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	value := ctx.Encode(doc)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode scenario: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Scenario")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema: %s", strings.TrimSpace(cueerrors.Details(err, nil)))
	}
	return nil
}

// validateScenario checks what the schema cannot express.
func validateScenario(s *Scenario) error {
	if _, err := s.interval(); err != nil {
		return err
	}
	if _, err := feature.ParseIntakePolicy(s.Intake); err != nil {
		return err
	}

	for i, step := range s.Steps {
		set := 0
		if step.Click != nil {
			set++
		}
		if step.Await != nil {
			set++
			if step.Await.State == "" && step.Await.Effect == "" {
				return fmt.Errorf("steps[%d]: await needs a state or an effect", i)
			}
			if step.Await.Percent > 0 && step.Await.State != "downloading" {
				return fmt.Errorf("steps[%d]: await percent requires state downloading", i)
			}
			if _, err := step.Await.timeout(); err != nil {
				return fmt.Errorf("steps[%d]: %w", i, err)
			}
		}
		if step.Sleep != "" {
			set++
			if _, err := time.ParseDuration(step.Sleep); err != nil {
				return fmt.Errorf("steps[%d]: sleep: %w", i, err)
			}
		}
		if set != 1 {
			return fmt.Errorf("steps[%d]: exactly one of click, await or sleep is required", i)
		}
	}

	for i, a := range s.Assertions {
		if a.Percent != nil && a.State != "downloading" {
			return fmt.Errorf("assertions[%d]: percent requires state downloading", i)
		}
	}
	return nil
}

func (s *Scenario) interval() (time.Duration, error) {
	if s.Interval == "" {
		return time.Millisecond, nil
	}
	d, err := time.ParseDuration(s.Interval)
	if err != nil {
		return 0, fmt.Errorf("interval: %w", err)
	}
	return d, nil
}

func (a *AwaitStep) timeout() (time.Duration, error) {
	if a.Timeout == "" {
		return DefaultAwaitTimeout, nil
	}
	d, err := time.ParseDuration(a.Timeout)
	if err != nil {
		return 0, fmt.Errorf("await timeout: %w", err)
	}
	return d, nil
}
