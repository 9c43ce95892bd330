package config

import (
	"fmt"
	"os"
	"time"
)

// Embedding strategies. One is chosen per deployment.
const (
	StrategyStatistical = "statistical"
	StrategyLearned     = "learned"
)

// EmbeddingConfig selects and parameterizes the embedding strategy.
type EmbeddingConfig struct {
	Strategy    string            `mapstructure:"strategy"`
	Statistical StatisticalConfig `mapstructure:"statistical"`
	Learned     LearnedConfig     `mapstructure:"learned"`
}

// StatisticalConfig drives the color histogram + texture extractor.
type StatisticalConfig struct {
	Size      int `mapstructure:"size"`       // square side the image is resampled to
	Bins      int `mapstructure:"bins"`       // histogram bins per channel
	AuxLength int `mapstructure:"aux_length"` // declared length of the auxiliary feature block
}

// Dimensions returns the vector length this configuration produces.
func (c *StatisticalConfig) Dimensions() int {
	return c.Bins*3 + c.AuxLength
}

// LearnedConfig points at a hosted CLIP-family image encoder.
type LearnedConfig struct {
	Provider   string        `mapstructure:"provider"`    // "jina" or "openai-compatible"
	Model      string        `mapstructure:"model"`       // encoder model name
	APIKey     string        `mapstructure:"api_key"`     // set directly or via api_key_env
	APIKeyEnv  string        `mapstructure:"api_key_env"` // environment variable holding the key
	BaseURL    string        `mapstructure:"base_url"`
	Dimensions int           `mapstructure:"dimensions"`
	InputSize  int           `mapstructure:"input_size"` // preprocessing square side
	Timeout    time.Duration `mapstructure:"timeout"`
	Warmup     bool          `mapstructure:"warmup"` // probe the encoder when it is first loaded
}

// ResolveEnvVars fills the learned API key from its environment variable when unset.
func (c *EmbeddingConfig) ResolveEnvVars() {
	if c.Learned.APIKeyEnv != "" && c.Learned.APIKey == "" {
		if val := os.Getenv(c.Learned.APIKeyEnv); val != "" {
			c.Learned.APIKey = val
		}
	}
}

// Validate checks that the selected strategy is fully configured.
// Returns an error describing the first validation failure, or nil if valid.
func (c *EmbeddingConfig) Validate() error {
	switch c.Strategy {
	case StrategyStatistical:
		if c.Statistical.Size <= 1 {
			return fmt.Errorf("embedding statistical: size must be greater than 1")
		}
		if c.Statistical.Bins <= 0 || c.Statistical.Bins > 256 {
			return fmt.Errorf("embedding statistical: bins must be in [1,256]")
		}
		if c.Statistical.AuxLength < 0 {
			return fmt.Errorf("embedding statistical: aux_length must not be negative")
		}
	case StrategyLearned:
		if c.Learned.Model == "" {
			return fmt.Errorf("embedding learned: model is required")
		}
		if c.Learned.Dimensions <= 0 {
			return fmt.Errorf("embedding learned: dimensions must be positive")
		}
		if c.Learned.InputSize <= 0 {
			return fmt.Errorf("embedding learned: input_size must be positive")
		}
		switch c.Learned.Provider {
		case "jina", "openai-compatible":
		default:
			return fmt.Errorf("embedding learned: unknown provider %q", c.Learned.Provider)
		}
	default:
		return fmt.Errorf("embedding: unknown strategy %q", c.Strategy)
	}
	return nil
}

// Dimensions returns the vector length of the selected strategy.
func (c *EmbeddingConfig) Dimensions() int {
	if c.Strategy == StrategyLearned {
		return c.Learned.Dimensions
	}
	return c.Statistical.Dimensions()
}
