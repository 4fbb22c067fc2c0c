// Package config loads the splitboard runtime configuration from YAML
// and validates it against an embedded CUE schema before anything is
// wired up.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/pmorrell/splitboard/internal/bus"
	"github.com/pmorrell/splitboard/internal/failover"
	"github.com/pmorrell/splitboard/internal/router"
	"github.com/pmorrell/splitboard/internal/trigger"
)

//go:embed schema.cue
var schemaSource string

// Config is the full runtime configuration.
type Config struct {
	MQTT      bus.MQTTConfig           `yaml:"mqtt"`
	Store     StoreConfig              `yaml:"store"`
	Providers ProvidersConfig          `yaml:"providers"`
	Triggers  []trigger.Config         `yaml:"triggers"`
	Circuits  map[string]CircuitConfig `yaml:"circuits"`
}

// StoreConfig locates the circuit-breaker database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ModelConfig names one provider/model pair.
type ModelConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// TierConfig holds the primary selection for a tier and its optional
// failover alternate.
type TierConfig struct {
	Primary   ModelConfig  `yaml:"primary"`
	Alternate *ModelConfig `yaml:"alternate"`
}

// ProvidersConfig maps tier names to provider selections. It implements
// failover.ModelMapper directly.
type ProvidersConfig struct {
	Tiers map[string]TierConfig `yaml:"tiers"`
}

// Primary implements failover.ModelMapper.
func (p ProvidersConfig) Primary(tier string) (failover.ModelSelection, bool) {
	tc, ok := p.Tiers[tier]
	if !ok {
		return failover.ModelSelection{}, false
	}
	return failover.ModelSelection{
		Provider: tc.Primary.Provider,
		Model:    tc.Primary.Model,
		Tier:     tier,
	}, true
}

// Alternate implements failover.ModelMapper.
func (p ProvidersConfig) Alternate(tier string) (failover.ModelSelection, bool) {
	tc, ok := p.Tiers[tier]
	if !ok || tc.Alternate == nil {
		return failover.ModelSelection{}, false
	}
	return failover.ModelSelection{
		Provider: tc.Alternate.Provider,
		Model:    tc.Alternate.Model,
		Tier:     tier,
	}, true
}

// CircuitConfig is the YAML shape of one circuit rule.
type CircuitConfig struct {
	Semantics       string `yaml:"semantics"`
	BlockArtifact   string `yaml:"block_artifact"`
	UnblockArtifact string `yaml:"unblock_artifact"`
}

// CircuitRules converts the configured circuits into the router's rule
// table. Load has already schema-checked the semantics values.
func (c *Config) CircuitRules() map[string]router.CircuitRule {
	rules := make(map[string]router.CircuitRule, len(c.Circuits))
	for id, cc := range c.Circuits {
		sem := router.SemanticsDirect
		if cc.Semantics == "inverted" {
			sem = router.SemanticsInverted
		}
		rules[id] = router.CircuitRule{
			Semantics:       sem,
			BlockArtifact:   cc.BlockArtifact,
			UnblockArtifact: cc.UnblockArtifact,
		}
	}
	return rules
}

// Load reads, schema-validates, and decodes the configuration at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse validates raw YAML against the embedded schema and decodes it.
func Parse(raw []byte) (*Config, error) {
	var generic map[string]any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := validateSchema(generic); err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// validateSchema unifies the decoded document with the embedded CUE
// schema. Missing required fields and out-of-range values surface here,
// before any component sees the config.
func validateSchema(doc map[string]any) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	data := ctx.Encode(doc)
	if err := data.Err(); err != nil {
		return fmt.Errorf("encode config for validation: %w", err)
	}

	unified := schema.Unify(data)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
