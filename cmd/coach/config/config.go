// Package config holds the coach CLI configuration, loaded from
// .coach/config.yaml with environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all coach CLI configuration.
type Config struct {
	// Backend settings
	API APIConfig `yaml:"api"`

	// Member identity presented to the backend
	Member MemberConfig `yaml:"member"`

	// Page context attached to chat requests
	Post PostConfig `yaml:"post"`

	// Local state
	DataDir string `yaml:"data_dir"`

	// SkipAccessCheck fabricates a local test grant instead of calling the
	// backend. Development use only.
	SkipAccessCheck bool `yaml:"skip_access_check"`
}

// APIConfig configures the backend endpoint.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	// TimeoutSeconds bounds each request, retries included.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// MemberConfig identifies the member on whose behalf the CLI runs.
type MemberConfig struct {
	Email        string `yaml:"email"`
	IsPaidMember bool   `yaml:"is_paid_member"`
}

// PostConfig is the page context attached to chat requests.
type PostConfig struct {
	Slug  string `yaml:"slug"`
	Title string `yaml:"title"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8000",
			TimeoutSeconds: 30,
		},
		DataDir: defaultDataDir(),
	}
}

// DefaultPath returns the config file location. A project-local
// .coach/config.yaml wins over the one in the home directory.
func DefaultPath() string {
	if cwd, err := os.Getwd(); err == nil {
		local := filepath.Join(cwd, ".coach", "config.yaml")
		if _, err := os.Stat(local); err == nil {
			return local
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".coach", "config.yaml")
	}
	return filepath.Join(".coach", "config.yaml")
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults, not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration back as YAML.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("COACH_API_BASE"); url != "" {
		c.API.BaseURL = url
	}
	if email := os.Getenv("COACH_MEMBER_EMAIL"); email != "" {
		c.Member.Email = email
	}
	if dir := os.Getenv("COACH_DATA_DIR"); dir != "" {
		c.DataDir = dir
	}
	if os.Getenv("QC_TEST_SKIP_ACCESS") == "1" {
		c.SkipAccessCheck = true
	}
}

// Validate checks the fields the CLI cannot run without.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("api.timeout_seconds must be positive")
	}
	return nil
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".coach")
	}
	return ".coach"
}
