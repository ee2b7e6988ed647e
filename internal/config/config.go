package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main Loom configuration
type Config struct {
	// Model provider settings
	Model ModelConfig `json:"model" mapstructure:"model"`

	// Reasoning block settings
	Reasoning ReasoningConfig `json:"reasoning" mapstructure:"reasoning"`

	// Turn orchestration settings
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Conversation store settings
	Store StoreConfig `json:"store" mapstructure:"store"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ModelConfig holds inference backend configuration
type ModelConfig struct {
	Provider    string  `json:"provider" mapstructure:"provider"` // ollama, openai, anthropic
	Name        string  `json:"name" mapstructure:"name"`
	BaseURL     string  `json:"base_url" mapstructure:"base_url"`
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
}

// ReasoningConfig holds hidden reasoning block settings
type ReasoningConfig struct {
	OpenMarker  string `json:"open_marker" mapstructure:"open_marker"`
	CloseMarker string `json:"close_marker" mapstructure:"close_marker"`
	Prime       bool   `json:"prime" mapstructure:"prime"`
}

// AgentConfig holds turn orchestration settings
type AgentConfig struct {
	SystemPrompt string  `json:"system_prompt" mapstructure:"system_prompt"`
	MaxToolTurns int     `json:"max_tool_turns" mapstructure:"max_tool_turns"`
	DailyRate    float64 `json:"daily_rate" mapstructure:"daily_rate"`
}

// StoreConfig holds conversation store settings
type StoreConfig struct {
	Backend string `json:"backend" mapstructure:"backend"` // file, sqlite, memory
	Dir     string `json:"dir" mapstructure:"dir"`         // file backend session directory
	Path    string `json:"path" mapstructure:"path"`       // sqlite backend database path
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Listen  string `json:"listen" mapstructure:"listen"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:    "ollama",
			Name:        "qwen3:8b",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Reasoning: ReasoningConfig{
			OpenMarker:  "<think>",
			CloseMarker: "</think>",
			Prime:       true,
		},
		Agent: AgentConfig{
			SystemPrompt: "You are a helpful assistant. Use the available tools when they help answer the question.",
			MaxToolTurns: 10,
		},
		Store: StoreConfig{
			Backend: "file",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9290",
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case "ollama":
	case "openai", "anthropic":
		if c.Model.APIKey == "" {
			return fmt.Errorf("model provider %s requires an api_key", c.Model.Provider)
		}
	default:
		return fmt.Errorf("invalid model provider %s (must be: ollama, openai, anthropic)", c.Model.Provider)
	}

	if c.Model.Name == "" {
		return fmt.Errorf("model name is required")
	}

	if c.Reasoning.OpenMarker == "" || c.Reasoning.CloseMarker == "" {
		return fmt.Errorf("reasoning markers cannot be empty")
	}
	if c.Reasoning.OpenMarker == c.Reasoning.CloseMarker {
		return fmt.Errorf("reasoning open and close markers must differ")
	}

	switch c.Store.Backend {
	case "file", "sqlite", "memory":
	default:
		return fmt.Errorf("invalid store backend %s (must be: file, sqlite, memory)", c.Store.Backend)
	}

	if c.Agent.MaxToolTurns < 0 {
		return fmt.Errorf("max_tool_turns cannot be negative")
	}

	return nil
}
