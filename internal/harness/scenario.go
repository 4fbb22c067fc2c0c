package harness

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pmorrell/splitboard/internal/trigger"
)

// Scenario defines one end-to-end test case.
type Scenario struct {
	// Name identifies the scenario (used for golden files).
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Circuits seeds the breaker store before any event is published.
	Circuits []CircuitSeed `yaml:"circuits,omitempty"`

	// Responses maps provider name to the canned reply the echo factory
	// returns. The built-in tier map names every provider "echo".
	Responses map[string]string `yaml:"responses,omitempty"`

	// ProviderErrors forces named providers to fail, for failover paths.
	ProviderErrors map[string]string `yaml:"provider_errors,omitempty"`

	// Triggers configures the state-change trigger matcher.
	Triggers []trigger.Config `yaml:"triggers,omitempty"`

	// Picks is the normal-tier pick sequence, cycled. Defaults to [0].
	Picks []int `yaml:"picks,omitempty"`

	// Events is the sequence published to the bus, in order.
	Events []Event `yaml:"events"`

	// Expect holds the assertions checked after the last event.
	Expect Expectation `yaml:"expect"`
}

// CircuitSeed is one pre-seeded circuit row.
type CircuitSeed struct {
	CircuitID string `yaml:"circuit_id"`
	State     string `yaml:"state"`
}

// Event is one published bus event.
type Event struct {
	Type    string         `yaml:"type"`
	Payload map[string]any `yaml:"payload"`
}

// Expectation holds the scenario's assertions.
type Expectation struct {
	// BoardCount, when set, is the exact number of boards rendered.
	BoardCount *int `yaml:"board_count,omitempty"`

	// Boards are substring checks against rendered boards, in order.
	Boards []BoardExpect `yaml:"boards,omitempty"`

	// Circuits are final-state checks against the breaker store.
	Circuits []CircuitExpect `yaml:"circuits,omitempty"`
}

// BoardExpect checks one rendered board.
type BoardExpect struct {
	// Index selects the board to check; defaults to position in the list.
	Index *int `yaml:"index,omitempty"`

	// Contains must appear somewhere in the board grid.
	Contains string `yaml:"contains"`
}

// CircuitExpect checks one circuit's final stored state.
type CircuitExpect struct {
	CircuitID string `yaml:"circuit_id"`
	State     string `yaml:"state"`
}

// LoadScenario reads and validates a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var s Scenario
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &s, nil
}

// Validate checks the scenario for structural problems.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("missing name")
	}
	if len(s.Events) == 0 {
		return fmt.Errorf("no events to publish")
	}
	for i, e := range s.Events {
		if e.Type == "" {
			return fmt.Errorf("event %d: missing type", i)
		}
	}
	for i, c := range s.Circuits {
		if c.CircuitID == "" || c.State == "" {
			return fmt.Errorf("circuit seed %d: missing circuit_id or state", i)
		}
	}
	return nil
}
