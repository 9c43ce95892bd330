package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
match:
  default_top_n: 10
  timeout: 5s
embedding:
  strategy: statistical
  statistical:
    bins: 16
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Match.DefaultTopN != 10 || cfg.Match.Timeout != 5*time.Second {
		t.Errorf("match = %+v, want file values", cfg.Match)
	}
	if cfg.Embedding.Statistical.Size != 64 || cfg.Embedding.Statistical.Bins != 16 {
		t.Errorf("statistical = %+v, want size default and bins from file", cfg.Embedding.Statistical)
	}
	if got := cfg.Embedding.Dimensions(); got != 16*3+32 {
		t.Errorf("Dimensions() = %d, want %d", got, 16*3+32)
	}
	if cfg.Catalog.EmbeddingStore != "file" {
		t.Errorf("EmbeddingStore = %q, want file", cfg.Catalog.EmbeddingStore)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() error = nil, want failure for a missing explicit config file")
	}
}

func TestEmbeddingConfigValidate(t *testing.T) {
	valid := EmbeddingConfig{
		Strategy:    StrategyStatistical,
		Statistical: StatisticalConfig{Size: 64, Bins: 32, AuxLength: 32},
		Learned:     LearnedConfig{Provider: "jina", Model: "m", Dimensions: 512, InputSize: 224},
	}

	tests := []struct {
		name    string
		mutate  func(*EmbeddingConfig)
		wantErr bool
	}{
		{"statistical ok", func(c *EmbeddingConfig) {}, false},
		{"learned ok", func(c *EmbeddingConfig) { c.Strategy = StrategyLearned }, false},
		{"too many bins", func(c *EmbeddingConfig) { c.Statistical.Bins = 300 }, true},
		{"size too small", func(c *EmbeddingConfig) { c.Statistical.Size = 1 }, true},
		{"unknown provider", func(c *EmbeddingConfig) {
			c.Strategy = StrategyLearned
			c.Learned.Provider = "acme"
		}, true},
		{"learned without model", func(c *EmbeddingConfig) {
			c.Strategy = StrategyLearned
			c.Learned.Model = ""
		}, true},
		{"unknown strategy", func(c *EmbeddingConfig) { c.Strategy = "sift" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Setenv("TEST_ENCODER_KEY", "from-env")
	cfg := EmbeddingConfig{Learned: LearnedConfig{APIKeyEnv: "TEST_ENCODER_KEY"}}
	cfg.ResolveEnvVars()
	if cfg.Learned.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want from-env", cfg.Learned.APIKey)
	}

	cfg.Learned.APIKey = "explicit"
	cfg.ResolveEnvVars()
	if cfg.Learned.APIKey != "explicit" {
		t.Errorf("explicit key overwritten: %q", cfg.Learned.APIKey)
	}
}
