package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateProvider validates a model provider name
func (v *Validator) ValidateProvider(provider string) error {
	validProviders := []string{"ollama", "openai", "anthropic"}
	for _, valid := range validProviders {
		if provider == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid provider: %s (must be one of: %s)", provider, strings.Join(validProviders, ", "))
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if provider == "ollama" {
		return nil // local backend, no key
	}

	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateModel validates a model name
func (v *Validator) ValidateModel(model string) error {
	if model == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateStoreBackend validates the conversation store backend
func (v *Validator) ValidateStoreBackend(backend string) error {
	validBackends := []string{"file", "sqlite", "memory"}
	for _, valid := range validBackends {
		if backend == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid store backend: %s (must be one of: %s)", backend, strings.Join(validBackends, ", "))
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateProvider(cfg.Model.Provider); err != nil {
		errors = append(errors, err)
	} else if err := v.ValidateAPIKey(cfg.Model.APIKey, cfg.Model.Provider); err != nil {
		errors = append(errors, err)
	}

	if err := v.ValidateModel(cfg.Model.Name); err != nil {
		errors = append(errors, err)
	}
	if cfg.Model.Temperature != 0 {
		if err := v.ValidateTemperature(cfg.Model.Temperature); err != nil {
			errors = append(errors, err)
		}
	}
	if cfg.Model.MaxTokens != 0 {
		if err := v.ValidateMaxTokens(cfg.Model.MaxTokens); err != nil {
			errors = append(errors, err)
		}
	}

	if cfg.Reasoning.OpenMarker == "" || cfg.Reasoning.CloseMarker == "" {
		errors = append(errors, fmt.Errorf("reasoning markers cannot be empty"))
	} else if cfg.Reasoning.OpenMarker == cfg.Reasoning.CloseMarker {
		errors = append(errors, fmt.Errorf("reasoning open and close markers must differ"))
	}

	if cfg.Agent.MaxToolTurns < 0 {
		errors = append(errors, fmt.Errorf("agent max_tool_turns must be >= 0"))
	}

	if err := v.ValidateStoreBackend(cfg.Store.Backend); err != nil {
		errors = append(errors, err)
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
