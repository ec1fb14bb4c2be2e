package conf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chatzot/facilitator/internal/biz/domain"
	"github.com/chatzot/facilitator/internal/biz/usecase"
)

// PromptsConfig contains all prompt configurations loaded from YAML
type PromptsConfig struct {
	Facilitator   FacilitatorPrompts  `yaml:"facilitator"`
	Interventions map[string]string   `yaml:"interventions"`
	RuleOrders    map[string][]string `yaml:"rule_orders"`
}

// FacilitatorPrompts contains the facilitator's own prompts.
// Placeholders use {{name}} syntax.
type FacilitatorPrompts struct {
	Behavior               string `yaml:"behavior"`
	Classification         string `yaml:"classification"`
	Participation          string `yaml:"participation"`
	Conclusion             string `yaml:"conclusion"`
	Inactivity             string `yaml:"inactivity"`
	InactivityParticipants string `yaml:"inactivity_participants"`
	Shorten                string `yaml:"shorten"`
}

// LoadPromptsConfig loads prompts configuration from a YAML file. With an
// empty path the usual locations are searched and the built-in defaults are
// used when none exists. It returns the path that was loaded.
func LoadPromptsConfig(configPath string) (*PromptsConfig, string, error) {
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/prompts.yaml",
			"/etc/chatzot/prompts.yaml",
		}
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "prompts.yaml"))
		}
	}

	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if errors.Is(err, fs.ErrNotExist) && configPath == "" {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("read prompts %s: %w", p, err)
		}
		config, err := ParsePrompts(raw)
		if err != nil {
			return nil, "", fmt.Errorf("parse prompts %s: %w", p, err)
		}
		return config, p, nil
	}

	return DefaultPromptsConfig(), "", nil
}

// ParsePrompts decodes a prompts document and fills in defaults
func ParsePrompts(raw []byte) (*PromptsConfig, error) {
	var config PromptsConfig
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return nil, err
	}
	config.fillDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// fillDefaults fills in default values for empty fields
func (c *PromptsConfig) fillDefaults() {
	defaults := DefaultPromptsConfig()

	fields := []struct {
		dst *string
		def string
	}{
		{&c.Facilitator.Behavior, defaults.Facilitator.Behavior},
		{&c.Facilitator.Classification, defaults.Facilitator.Classification},
		{&c.Facilitator.Participation, defaults.Facilitator.Participation},
		{&c.Facilitator.Conclusion, defaults.Facilitator.Conclusion},
		{&c.Facilitator.Inactivity, defaults.Facilitator.Inactivity},
		{&c.Facilitator.InactivityParticipants, defaults.Facilitator.InactivityParticipants},
		{&c.Facilitator.Shorten, defaults.Facilitator.Shorten},
	}
	for _, f := range fields {
		if strings.TrimSpace(*f.dst) == "" {
			*f.dst = f.def
		}
	}

	if c.Interventions == nil {
		c.Interventions = make(map[string]string)
	}
	for action, text := range defaults.Interventions {
		if strings.TrimSpace(c.Interventions[action]) == "" {
			c.Interventions[action] = text
		}
	}

	if c.RuleOrders == nil {
		c.RuleOrders = make(map[string][]string)
	}
	for botType, order := range defaults.RuleOrders {
		if _, ok := c.RuleOrders[botType]; !ok {
			c.RuleOrders[botType] = order
		}
	}
}

var knownRules = map[string]bool{
	domain.RuleCognitive:     true,
	domain.RuleCollaborative: true,
	domain.RuleProductivity:  true,
	domain.RuleParticipation: true,
}

func (c *PromptsConfig) validate() error {
	for botType, order := range c.RuleOrders {
		for _, rule := range order {
			if !knownRules[rule] {
				return fmt.Errorf("rule_orders.%s: unknown rule %q", botType, rule)
			}
		}
	}
	return nil
}

// ToPromptSet converts to the facilitator prompt set
func (c *PromptsConfig) ToPromptSet() usecase.PromptSet {
	interventions := make(map[string]string, len(c.Interventions))
	for k, v := range c.Interventions {
		interventions[k] = v
	}
	orders := make(map[string][]string, len(c.RuleOrders))
	for k, v := range c.RuleOrders {
		orders[strings.ToLower(k)] = append([]string(nil), v...)
	}
	return usecase.PromptSet{
		Behavior:               c.Facilitator.Behavior,
		Classification:         c.Facilitator.Classification,
		Participation:          c.Facilitator.Participation,
		Conclusion:             c.Facilitator.Conclusion,
		Inactivity:             c.Facilitator.Inactivity,
		InactivityParticipants: c.Facilitator.InactivityParticipants,
		Shorten:                c.Facilitator.Shorten,
		Interventions:          interventions,
		RuleOrders:             orders,
	}
}

// DefaultPromptsConfig returns the built-in prompts
func DefaultPromptsConfig() *PromptsConfig {
	d := usecase.DefaultPromptSet
	interventions := make(map[string]string, len(d.Interventions))
	for k, v := range d.Interventions {
		interventions[k] = v
	}
	orders := make(map[string][]string, len(d.RuleOrders))
	for k, v := range d.RuleOrders {
		orders[k] = append([]string(nil), v...)
	}
	return &PromptsConfig{
		Facilitator: FacilitatorPrompts{
			Behavior:               d.Behavior,
			Classification:         d.Classification,
			Participation:          d.Participation,
			Conclusion:             d.Conclusion,
			Inactivity:             d.Inactivity,
			InactivityParticipants: d.InactivityParticipants,
			Shorten:                d.Shorten,
		},
		Interventions: interventions,
		RuleOrders:    orders,
	}
}
