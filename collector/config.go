package collector

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete collector configuration.
//
// # Example Config File
//
//	targets_file: /etc/esxifleet/targets.txt
//
//	collect:
//	  max_concurrency: 8
//	  per_target_timeout: 30s
//
//	source:
//	  kind: http
//	  http:
//	    token: env://ESXIFLEET_API_TOKEN
//	    insecure_skip_verify: true
//	    rate_limit: 60
//
//	output:
//	  report_path: public/esxi_versions.json
//	  csv_path: public/esxi_hosts.csv
type Config struct {
	TargetsFile string        `yaml:"targets_file"`
	Collect     CollectConfig `yaml:"collect"`
	Source      SourceConfig  `yaml:"source"`
	Output      OutputConfig  `yaml:"output"`
}

// CollectConfig bounds the collection run.
type CollectConfig struct {
	MaxConcurrency   int      `yaml:"max_concurrency"`
	PerTargetTimeout Duration `yaml:"per_target_timeout"`
}

// Duration wraps time.Duration so YAML values like "30s" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\"")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// SourceConfig selects and configures the built-in query capability.
// Credential fields (token, password) accept literal values, env://NAME, or
// op://vault/item/field references.
type SourceConfig struct {
	Kind string           `yaml:"kind"` // "http" or "ssh"
	HTTP HTTPSourceConfig `yaml:"http"`
	SSH  SSHSourceConfig  `yaml:"ssh"`
}

// HTTPSourceConfig configures the HTTP inventory source.
type HTTPSourceConfig struct {
	Path               string `yaml:"path,omitempty"`
	Token              string `yaml:"token,omitempty"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify,omitempty"`
	RateLimit          int    `yaml:"rate_limit,omitempty"`
}

// SSHSourceConfig configures the SSH inventory source.
type SSHSourceConfig struct {
	Username       string `yaml:"username,omitempty"`
	Password       string `yaml:"password,omitempty"`
	PrivateKeyPath string `yaml:"private_key,omitempty"`
	Command        string `yaml:"command,omitempty"`
	Port           int    `yaml:"port,omitempty"`
}

// OutputConfig names the report artifacts written by the collect CLI.
type OutputConfig struct {
	ReportPath string `yaml:"report_path,omitempty"`
	CSVPath    string `yaml:"csv_path,omitempty"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Collect: CollectConfig{
			MaxConcurrency:   8,
			PerTargetTimeout: Duration(30 * time.Second),
		},
		Source: SourceConfig{
			Kind: "http",
		},
		Output: OutputConfig{
			ReportPath: "esxi_versions.json",
		},
	}
}

// LoadConfig loads configuration from a YAML file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides.
// Environment variables use the ESXIFLEET_ prefix:
//   - ESXIFLEET_TARGETS_FILE
//   - ESXIFLEET_MAX_CONCURRENCY
//   - ESXIFLEET_PER_TARGET_TIMEOUT (Go duration, e.g. "45s")
//   - ESXIFLEET_SOURCE_KIND
//   - ESXIFLEET_HTTP_TOKEN
//   - ESXIFLEET_SSH_USERNAME
//   - ESXIFLEET_SSH_PASSWORD
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("ESXIFLEET_TARGETS_FILE"); v != "" {
		c.TargetsFile = v
	}
	if v := os.Getenv("ESXIFLEET_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Collect.MaxConcurrency = n
		}
	}
	if v := os.Getenv("ESXIFLEET_PER_TARGET_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Collect.PerTargetTimeout = Duration(d)
		}
	}
	if v := os.Getenv("ESXIFLEET_SOURCE_KIND"); v != "" {
		c.Source.Kind = v
	}
	if v := os.Getenv("ESXIFLEET_HTTP_TOKEN"); v != "" {
		c.Source.HTTP.Token = v
	}
	if v := os.Getenv("ESXIFLEET_SSH_USERNAME"); v != "" {
		c.Source.SSH.Username = v
	}
	if v := os.Getenv("ESXIFLEET_SSH_PASSWORD"); v != "" {
		c.Source.SSH.Password = v
	}
}

// Validate checks that required configuration is present and positive.
func (c *Config) Validate() error {
	if c.TargetsFile == "" {
		return fmt.Errorf("targets_file is required")
	}
	if c.Collect.MaxConcurrency <= 0 {
		return fmt.Errorf("collect.max_concurrency must be positive")
	}
	if c.Collect.PerTargetTimeout <= 0 {
		return fmt.Errorf("collect.per_target_timeout must be positive")
	}
	switch c.Source.Kind {
	case "http", "ssh":
	default:
		return fmt.Errorf("source.kind must be http or ssh, got %q", c.Source.Kind)
	}
	return nil
}
