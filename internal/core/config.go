package core

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ActionType enumerates the enforcement action kinds. The set is closed:
// a rule referencing anything else is rejected when the config is resolved.
type ActionType string

const (
	ActionLogOnly    ActionType = "log_only"
	ActionWebhook    ActionType = "webhook"
	ActionKill       ActionType = "kill"
	ActionQuarantine ActionType = "quarantine"
)

// ParseActionType validates an action string from config.
func ParseActionType(s string) (ActionType, error) {
	switch ActionType(s) {
	case ActionLogOnly, ActionWebhook, ActionKill, ActionQuarantine:
		return ActionType(s), nil
	case "":
		return ActionLogOnly, nil
	}
	return "", fmt.Errorf("unknown action type %q", s)
}

// Config is the YAML-facing configuration. It is raw input only: severities
// and actions are plain strings and defaults are not yet applied. Resolve
// turns it into the immutable ResolvedConfig the engine is built from.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	DryRun    bool   `yaml:"dry_run"`

	Receiver ReceiverConfig `yaml:"receiver"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
	Bus      BusConfig      `yaml:"bus"`

	EnableMetrics bool `yaml:"enable_metrics"`

	// Global default webhook destination; per-rule overrides take precedence.
	WebhookURL string `yaml:"webhook_url" validate:"omitempty,url"`

	// Container name patterns never acted upon, regardless of policy.
	ExcludedContainers []string `yaml:"excluded_containers"`

	// Rules are evaluated in declaration order; first full match wins.
	Policies []RuleConfig `yaml:"policies" validate:"dive"`
}

// ReceiverConfig holds the HTTP alert receiver settings.
type ReceiverConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"omitempty,gte=1,lte=65535"`
}

// RuntimeConfig holds container runtime selection settings.
type RuntimeConfig struct {
	AutoDetect bool   `yaml:"auto_detect"`
	Type       string `yaml:"type" validate:"omitempty,oneof=docker docker_desktop orbstack"`
	Socket     string `yaml:"socket"`
}

// BusConfig holds the optional NATS audit bus settings.
type BusConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Embedded bool   `yaml:"embedded"`
	URL      string `yaml:"url"`
	DataDir  string `yaml:"data_dir"`
	Port     int    `yaml:"port" validate:"omitempty,gte=1,lte=65535"`
}

// RuleConfig is one raw policy rule as written in YAML.
type RuleConfig struct {
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description"`

	RulePatterns      []string `yaml:"rule_patterns"`
	PriorityMin       string   `yaml:"priority_min"`
	ContainerPatterns []string `yaml:"container_patterns"`
	ImagePatterns     []string `yaml:"image_patterns"`
	ExcludeContainers []string `yaml:"exclude_containers"`

	Action     string `yaml:"action" validate:"omitempty,oneof=log_only webhook kill quarantine"`
	WebhookURL string `yaml:"webhook_url" validate:"omitempty,url"`

	CooldownSeconds int `yaml:"cooldown_seconds" validate:"gte=0"`
}

// PolicyRule is a fully resolved, immutable policy rule.
type PolicyRule struct {
	Name        string
	Description string

	RulePatterns      []string
	PriorityMin       Severity
	ContainerPatterns []string
	ImagePatterns     []string
	ExcludeContainers []string

	Action     ActionType
	WebhookURL string

	Cooldown time.Duration
}

// ResolvedConfig is the fully resolved configuration: defaults applied,
// severities and actions parsed, structure validated. It is built once at
// startup and never mutated afterwards.
type ResolvedConfig struct {
	LogLevel  string
	LogFormat string
	DryRun    bool

	Receiver ReceiverConfig
	Runtime  RuntimeConfig
	Bus      BusConfig

	EnableMetrics bool

	WebhookURL         string
	ExcludedContainers []string
	Policies           []PolicyRule
}

// DefaultConfig returns a raw Config with working defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "console",
		Receiver: ReceiverConfig{
			Host: "0.0.0.0",
			Port: 8766,
		},
		Runtime: RuntimeConfig{
			AutoDetect: true,
		},
		Bus: BusConfig{
			Enabled:  false,
			Embedded: true,
			URL:      "nats://127.0.0.1:4222",
			DataDir:  "./data/nats",
			Port:     4222,
		},
		ExcludedContainers: []string{"ghost-mole*"},
	}
}

// LoadConfig loads configuration from a YAML file, falling back to defaults
// when the path is empty or the file does not exist.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.WebhookURL == "" {
		cfg.WebhookURL = os.Getenv("GHOST_ENFORCER_WEBHOOK_URL")
	}

	return cfg, nil
}

var validate = validator.New()

// Resolve validates the raw config and produces the immutable resolved
// form. When no policies are configured the built-in default rule set is
// substituted. Resolve fails on any structural defect: this is the
// fail-fast boundary, nothing past it sees an invalid rule.
func (c *Config) Resolve() (*ResolvedConfig, error) {
	if err := validate.Struct(c); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	raw := c.Policies
	if len(raw) == 0 {
		raw = DefaultPolicies()
	}

	seen := make(map[string]struct{}, len(raw))
	policies := make([]PolicyRule, 0, len(raw))
	for i, rc := range raw {
		if _, dup := seen[rc.Name]; dup {
			return nil, fmt.Errorf("policy %d: duplicate rule name %q", i, rc.Name)
		}
		seen[rc.Name] = struct{}{}

		action, err := ParseActionType(rc.Action)
		if err != nil {
			return nil, fmt.Errorf("policy %q: %w", rc.Name, err)
		}

		min := SeverityWarning
		if rc.PriorityMin != "" {
			min = ParseSeverity(rc.PriorityMin)
		}

		policies = append(policies, PolicyRule{
			Name:              rc.Name,
			Description:       rc.Description,
			RulePatterns:      rc.RulePatterns,
			PriorityMin:       min,
			ContainerPatterns: rc.ContainerPatterns,
			ImagePatterns:     rc.ImagePatterns,
			ExcludeContainers: rc.ExcludeContainers,
			Action:            action,
			WebhookURL:        rc.WebhookURL,
			Cooldown:          time.Duration(rc.CooldownSeconds) * time.Second,
		})
	}

	resolved := &ResolvedConfig{
		LogLevel:           c.LogLevel,
		LogFormat:          c.LogFormat,
		DryRun:             c.DryRun,
		Receiver:           c.Receiver,
		Runtime:            c.Runtime,
		Bus:                c.Bus,
		EnableMetrics:      c.EnableMetrics,
		WebhookURL:         c.WebhookURL,
		ExcludedContainers: c.ExcludedContainers,
		Policies:           policies,
	}
	if resolved.Receiver.Port == 0 {
		resolved.Receiver.Port = 8766
	}
	if resolved.Receiver.Host == "" {
		resolved.Receiver.Host = "0.0.0.0"
	}
	return resolved, nil
}

// DefaultPolicies returns the built-in rule set used when no policies are
// configured: immediate response to critical threats, a 30s-cooldown tier
// for high-priority threats, and a 60s-cooldown catch-all.
func DefaultPolicies() []RuleConfig {
	return []RuleConfig{
		{
			Name:        "critical-threats",
			Description: "Respond to critical security threats",
			PriorityMin: "critical",
			RulePatterns: []string{
				"Ghost EDR - Reverse Shell*",
				"Ghost EDR - Crypto Miner*",
				"Ghost EDR - Container Escape*",
				"Ghost EDR - Nsenter*",
				"Ghost EDR - Kernel Module*",
				"Ghost EDR - Netcat Reverse Shell*",
				"Ghost EDR - Download and Execute*",
				"Ghost EDR - Process Injection*",
			},
			Action:          string(ActionLogOnly),
			CooldownSeconds: 0,
		},
		{
			Name:        "high-threats",
			Description: "Respond to high priority threats",
			PriorityMin: "error",
			RulePatterns: []string{
				"Ghost EDR - Mining Pool Connection*",
				"Ghost EDR - Mount in Privileged*",
				"Ghost EDR - Shell Spawned from Web*",
				"Ghost EDR - Docker Socket Access*",
			},
			Action:          string(ActionLogOnly),
			CooldownSeconds: 30,
		},
		{
			Name:            "suspicious-activity",
			Description:     "Respond to suspicious activity",
			PriorityMin:     "warning",
			Action:          string(ActionLogOnly),
			CooldownSeconds: 60,
		},
	}
}
