package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Approval and installation rule names understood by the quorum evaluator.
const (
	RuleSimpleMajority   = "simple_majority"
	RuleAbsoluteMajority = "absolute_majority"
	RuleTwoThirds        = "two_thirds"
	RuleThreeFifths      = "three_fifths"
	RuleOneThird         = "one_third"
	RuleFixed            = "fixed"
)

// Config models plenario.yml.
type Config struct {
	Chamber struct {
		Name  string `yaml:"name"`
		Seats int    `yaml:"seats"`
	} `yaml:"chamber"`
	Quorum struct {
		Installation InstallationRule `yaml:"installation"`
		Approval     ApprovalRules    `yaml:"approval"`
	} `yaml:"quorum"`
	Turnos struct {
		Types             []string `yaml:"types"`
		InterstitialHours int      `yaml:"interstitial_hours"`
	} `yaml:"turnos"`
	Vista struct {
		LeadDays int `yaml:"lead_days"`
	} `yaml:"vista"`
	Agenda struct {
		PublicationLeadHours int            `yaml:"publication_lead_hours"`
		BySessionType        map[string]int `yaml:"by_session_type"`
	} `yaml:"agenda"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type InstallationRule struct {
	Rule    string `yaml:"rule"`
	Minimum int    `yaml:"minimum"`
}

// ApprovalRules picks the approval rule for a matter. Precedence is
// veto override, then matter type, then urgency, then default.
type ApprovalRules struct {
	Default      string            `yaml:"default"`
	Urgent       string            `yaml:"urgent"`
	VetoOverride string            `yaml:"veto_override"`
	Types        map[string]string `yaml:"types"`
}

type WebhookConfig struct {
	ID             string   `yaml:"id"`
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

func (w WebhookConfig) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

var approvalRules = map[string]bool{
	RuleSimpleMajority:   true,
	RuleAbsoluteMajority: true,
	RuleTwoThirds:        true,
	RuleThreeFifths:      true,
}

var installationRules = map[string]bool{
	RuleAbsoluteMajority: true,
	RuleOneThird:         true,
	RuleFixed:            true,
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Chamber.Seats < 0 {
		return fmt.Errorf("config.chamber.seats must not be negative")
	}
	inst := c.Quorum.Installation
	if !installationRules[inst.Rule] {
		return fmt.Errorf("config.quorum.installation.rule %q is not supported", inst.Rule)
	}
	if inst.Rule == RuleFixed && inst.Minimum <= 0 {
		return fmt.Errorf("config.quorum.installation.minimum is required for rule fixed")
	}
	if c.Quorum.Approval.Default == "" {
		return fmt.Errorf("config.quorum.approval.default is required")
	}
	if !approvalRules[c.Quorum.Approval.Default] {
		return fmt.Errorf("config.quorum.approval.default %q is not supported", c.Quorum.Approval.Default)
	}
	// Per-type names are not checked against approvalRules; the evaluator
	// reports unknown ones as unresolved and tallies with the default rule.
	for matterType, rule := range c.Quorum.Approval.Types {
		if matterType == "" {
			return fmt.Errorf("config.quorum.approval.types has empty matter type")
		}
		if rule == "" {
			return fmt.Errorf("approval rule for matter type %s is empty", matterType)
		}
	}
	if c.Turnos.InterstitialHours < 0 {
		return fmt.Errorf("config.turnos.interstitial_hours must not be negative")
	}
	for _, t := range c.Turnos.Types {
		if t == "" {
			return fmt.Errorf("config.turnos.types contains empty matter type")
		}
	}
	if c.Vista.LeadDays < 0 {
		return fmt.Errorf("config.vista.lead_days must not be negative")
	}
	if c.Agenda.PublicationLeadHours < 0 {
		return fmt.Errorf("config.agenda.publication_lead_hours must not be negative")
	}
	for sessionType, hours := range c.Agenda.BySessionType {
		if hours < 0 {
			return fmt.Errorf("publication lead for session type %s must not be negative", sessionType)
		}
	}
	seen := map[string]bool{}
	for i, w := range c.Webhooks {
		if w.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if w.ID != "" {
			if seen[w.ID] {
				return fmt.Errorf("duplicate webhook id %s", w.ID)
			}
			seen[w.ID] = true
		}
		for _, evt := range w.Events {
			if evt == "" {
				return fmt.Errorf("config.webhooks[%d].events contains empty event type", i)
			}
		}
	}
	return nil
}

// RequiresTwoRounds reports whether matters of the given type need two voting rounds.
func (c *Config) RequiresTwoRounds(matterType string) bool {
	for _, t := range c.Turnos.Types {
		if t == matterType {
			return true
		}
	}
	return false
}

func (c *Config) Interstitial() time.Duration {
	return time.Duration(c.Turnos.InterstitialHours) * time.Hour
}

// PublicationLead returns how long before the scheduled date an agenda must be approved.
func (c *Config) PublicationLead(sessionType string) time.Duration {
	if hours, ok := c.Agenda.BySessionType[sessionType]; ok {
		return time.Duration(hours) * time.Hour
	}
	return time.Duration(c.Agenda.PublicationLeadHours) * time.Hour
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "plenario.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(chamberName string) string {
	return fmt.Sprintf(defaultTemplate, chamberName)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default chamber Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault("Camara Municipal"))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// ToYAML renders the config back to YAML.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultTemplate = `chamber:
  name: %q
  seats: 0

quorum:
  installation:
    rule: absolute_majority
  approval:
    default: simple_majority
    veto_override: absolute_majority
    types:
      PLC: absolute_majority
      PELO: two_thirds
      RI: absolute_majority

turnos:
  types: [PELO]
  interstitial_hours: 240

vista:
  lead_days: 2

agenda:
  publication_lead_hours: 48
  by_session_type:
    extraordinaria: 24
    solene: 0
`
