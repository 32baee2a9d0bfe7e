package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML strings like "30s" or "2m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config represents the application configuration
type Config struct {
	// Environment backends keyed by kind name
	Environments map[string]EnvironmentConfig `yaml:"environments"`

	// Policy holds the chat backend settings
	Policy PolicyConfig `yaml:"policy"`

	// Runner holds run-loop settings
	Runner RunnerConfig `yaml:"runner"`

	// Monitor holds connectivity probe settings
	Monitor MonitorConfig `yaml:"monitor"`

	// Observability holds metrics/health server settings
	Observability ObservabilityConfig `yaml:"observability"`
}

// EnvironmentConfig holds configuration for one backend
type EnvironmentConfig struct {
	BaseURL           string   `yaml:"base_url"`
	CreateTimeout     Duration `yaml:"create_timeout"`
	StepTimeout       Duration `yaml:"step_timeout"`
	ObserveTimeout    Duration `yaml:"observe_timeout"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	Burst             int      `yaml:"burst"`
}

// PolicyConfig holds the chat backend configuration
type PolicyConfig struct {
	BaseURL           string   `yaml:"base_url"`
	APIKey            string   `yaml:"api_key"`
	Model             string   `yaml:"model"`
	Temperature       float32  `yaml:"temperature"`
	MaxTokens         int      `yaml:"max_tokens"`
	GenerationTimeout Duration `yaml:"generation_timeout"`
	ProbeTimeout      Duration `yaml:"probe_timeout"`
	ProbeCooldown     Duration `yaml:"probe_cooldown"`
	MaxRounds         int      `yaml:"max_rounds"`
	MaxTurnPairs      int      `yaml:"max_turn_pairs"`
}

// RunnerConfig holds run-loop configuration
type RunnerConfig struct {
	InitialObsRetries int      `yaml:"initial_obs_retries"`
	InitialObsDelay   Duration `yaml:"initial_obs_delay"`
	StepRetries       int      `yaml:"step_retries"`
	StepDelay         Duration `yaml:"step_delay"`
	ObserveRetries    int      `yaml:"observe_retries"`
	ObserveDelay      Duration `yaml:"observe_delay"`
	RoundDelay        Duration `yaml:"round_delay"`
	Concurrency       int      `yaml:"concurrency"`
}

// MonitorConfig holds connectivity probe configuration
type MonitorConfig struct {
	Schedule string `yaml:"schedule"`
}

// ObservabilityConfig holds metrics and health server configuration
type ObservabilityConfig struct {
	EnableMetrics bool `yaml:"enable_metrics"`
	MetricsPort   int  `yaml:"metrics_port"`
}

// Default backend ports follow the conventional local deployment.
var defaultBackends = map[string]string{
	"textcraft": "http://localhost:36001",
	"babyai":    "http://localhost:36002",
	"sciworld":  "http://localhost:36003",
	"webarena":  "http://localhost:36004",
	"searchqa":  "http://localhost:36005",
}

// DefaultConfig returns a configuration pointing at local backends.
func DefaultConfig() *Config {
	cfg := &Config{
		Environments: make(map[string]EnvironmentConfig, len(defaultBackends)),
	}
	applyDefaults(cfg)
	return cfg
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Environments == nil {
		cfg.Environments = make(map[string]EnvironmentConfig, len(defaultBackends))
	}
	for kind, url := range defaultBackends {
		ec := cfg.Environments[kind]
		if ec.BaseURL == "" {
			ec.BaseURL = url
		}
		if ec.CreateTimeout == 0 {
			// Browser-backed episodes create and step far slower than
			// the text backends.
			if kind == "webarena" {
				ec.CreateTimeout = Duration(120 * time.Second)
			} else {
				ec.CreateTimeout = Duration(30 * time.Second)
			}
		}
		if ec.StepTimeout == 0 {
			if kind == "webarena" {
				ec.StepTimeout = Duration(120 * time.Second)
			} else {
				ec.StepTimeout = Duration(30 * time.Second)
			}
		}
		if ec.ObserveTimeout == 0 {
			ec.ObserveTimeout = Duration(10 * time.Second)
		}
		cfg.Environments[kind] = ec
	}

	if cfg.Policy.Model == "" {
		cfg.Policy.Model = "gpt-4o-mini"
	}
	if cfg.Policy.Temperature == 0 {
		cfg.Policy.Temperature = 0.6
	}
	if cfg.Policy.MaxTokens == 0 {
		cfg.Policy.MaxTokens = 1024
	}
	if cfg.Policy.GenerationTimeout == 0 {
		cfg.Policy.GenerationTimeout = Duration(60 * time.Second)
	}
	if cfg.Policy.ProbeTimeout == 0 {
		cfg.Policy.ProbeTimeout = Duration(5 * time.Second)
	}
	if cfg.Policy.ProbeCooldown == 0 {
		cfg.Policy.ProbeCooldown = Duration(30 * time.Second)
	}
	if cfg.Policy.MaxRounds == 0 {
		cfg.Policy.MaxRounds = 50
	}
	if cfg.Policy.MaxTurnPairs == 0 {
		cfg.Policy.MaxTurnPairs = 40
	}

	if cfg.Runner.InitialObsRetries == 0 {
		cfg.Runner.InitialObsRetries = 3
	}
	if cfg.Runner.InitialObsDelay == 0 {
		cfg.Runner.InitialObsDelay = Duration(3 * time.Second)
	}
	if cfg.Runner.StepRetries == 0 {
		cfg.Runner.StepRetries = 2
	}
	if cfg.Runner.StepDelay == 0 {
		cfg.Runner.StepDelay = Duration(2 * time.Second)
	}
	if cfg.Runner.ObserveRetries == 0 {
		cfg.Runner.ObserveRetries = 2
	}
	if cfg.Runner.ObserveDelay == 0 {
		cfg.Runner.ObserveDelay = Duration(1 * time.Second)
	}
	if cfg.Runner.RoundDelay == 0 {
		cfg.Runner.RoundDelay = Duration(100 * time.Millisecond)
	}
	if cfg.Runner.Concurrency == 0 {
		cfg.Runner.Concurrency = 4
	}

	if cfg.Monitor.Schedule == "" {
		cfg.Monitor.Schedule = "@every 30s"
	}
	if cfg.Observability.MetricsPort == 0 {
		cfg.Observability.MetricsPort = 9091
	}

	// Load the API key from the environment if not in config
	if cfg.Policy.APIKey == "" {
		cfg.Policy.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	for kind, ec := range c.Environments {
		if _, ok := defaultBackends[kind]; !ok {
			return fmt.Errorf("unknown environment kind %q", kind)
		}
		if ec.BaseURL == "" {
			return fmt.Errorf("environment %s: base_url is required", kind)
		}
	}
	if c.Policy.Model == "" {
		return fmt.Errorf("policy model is required")
	}
	if c.Policy.MaxRounds < 1 {
		return fmt.Errorf("policy max_rounds must be positive")
	}
	return nil
}
