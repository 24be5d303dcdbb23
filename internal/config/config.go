// Package config loads the pantry server configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"mcp-pantry/internal/ai"
)

// Config holds all pantry configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Rules   RulesConfig   `yaml:"rules"`
	AI      AIConfig      `yaml:"ai"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// RulesConfig points at an external classification rules file. Empty means
// the embedded defaults, and no file is watched.
type RulesConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

type AIConfig struct {
	Provider string `yaml:"provider"` // gemini, gateway
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	ProxyURL string `yaml:"proxy_url"`
	Timeout  string `yaml:"timeout"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

const defaultGatewayModel = "anthropic/claude-3.5-sonnet"

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			DBPath: "/data/pantry.db",
		},
		Rules: RulesConfig{
			Watch: true,
		},
		AI: AIConfig{
			Provider: "gateway",
			Model:    defaultGatewayModel,
			ProxyURL: "http://mcp-compose-http-proxy:9876",
			Timeout:  "60s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path, then a .env file in the working
// directory, then environment overrides. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	// .env is optional
	_ = godotenv.Load()

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
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

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("PANTRY_DB_PATH"); path != "" {
		c.Storage.DBPath = path
	}
	if host := os.Getenv("PANTRY_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("PANTRY_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if path := os.Getenv("PANTRY_RULES_PATH"); path != "" {
		c.Rules.Path = path
	}
	if level := os.Getenv("PANTRY_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	// Gateway settings
	if url := os.Getenv("MCP_PROXY_URL"); url != "" {
		c.AI.ProxyURL = url
	}
	if model := os.Getenv("OPENROUTER_MODEL"); model != "" {
		c.AI.Model = model
	}
	if key := os.Getenv("MCP_PROXY_API_KEY"); key != "" {
		c.AI.APIKey = key
	}

	// A Gemini key wins over the gateway.
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.AI.APIKey = key
		c.AI.Provider = "gemini"
		if c.AI.Model == defaultGatewayModel {
			c.AI.Model = ""
		}
	}
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	switch c.AI.Provider {
	case "", "gateway", "gemini":
	default:
		return fmt.Errorf("unknown ai.provider %q", c.AI.Provider)
	}
	if _, err := c.AITimeout(); err != nil {
		return err
	}
	return nil
}

// AITimeout parses ai.timeout, defaulting to 60s.
func (c *Config) AITimeout() (time.Duration, error) {
	if c.AI.Timeout == "" {
		return 60 * time.Second, nil
	}
	d, err := time.ParseDuration(c.AI.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid ai.timeout %q: %w", c.AI.Timeout, err)
	}
	return d, nil
}

// Generator returns the settings for ai.NewGenerator.
func (c *Config) Generator() ai.Config {
	timeout, err := c.AITimeout()
	if err != nil {
		timeout = 60 * time.Second
	}
	return ai.Config{
		Provider: c.AI.Provider,
		APIKey:   c.AI.APIKey,
		Model:    c.AI.Model,
		ProxyURL: c.AI.ProxyURL,
		Timeout:  timeout,
	}
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
