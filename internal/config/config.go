package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type OracleConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
}

type StoreConfig struct {
	Backend  string `toml:"backend"` // "memory" or "memgraph"
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type ConcurrencyConfig struct {
	Classify int `toml:"classify"`
}

type RetryConfig struct {
	MaxAttempts int `toml:"max_attempts"`
	BaseDelayMS int `toml:"base_delay_ms"`
	MaxDelayMS  int `toml:"max_delay_ms"`
}

type GroupingConfig struct {
	SimilarityThreshold float64 `toml:"similarity_threshold"`
}

type VersionConfig struct {
	// Precedence lists comparator criteria in order. Valid entries:
	// finality, signature, date, page_count, document_id. The document id
	// tiebreak is appended automatically if omitted.
	Precedence []string `toml:"precedence"`
}

type ToleranceConfig struct {
	AbsoluteEpsilon float64 `toml:"absolute_epsilon"`
	PercentEpsilon  float64 `toml:"percent_epsilon"`
}

type AttributeSpec struct {
	Name  string   `toml:"name"`
	Unit  string   `toml:"unit"`
	Chain []string `toml:"chain"`
}

type DerivationStep struct {
	ID           string   `toml:"id"`
	Kind         string   `toml:"kind"` // source | formula | adjustment
	Description  string   `toml:"description"`
	Field        string   `toml:"field"`
	DocumentType string   `toml:"document_type"`
	Formula      string   `toml:"formula"` // sum | subtract | multiply | percent | average | per_period
	Operand      float64  `toml:"operand"`
	Parents      []string `toml:"parents"`
	Rationale    string   `toml:"rationale"`
}

type Derivation struct {
	Attribute string           `toml:"attribute"`
	Steps     []DerivationStep `toml:"step"`
}

type RulesConfig struct {
	CatalogPath string `toml:"catalog_path"`
}

type Config struct {
	Oracle      OracleConfig      `toml:"oracle"`
	Store       StoreConfig       `toml:"store"`
	Concurrency ConcurrencyConfig `toml:"concurrency"`
	Retry       RetryConfig       `toml:"retry"`
	Grouping    GroupingConfig    `toml:"grouping"`
	Version     VersionConfig     `toml:"version"`
	Tolerance   ToleranceConfig   `toml:"tolerance"`
	Attributes  []AttributeSpec   `toml:"attribute"`
	Derivations []Derivation      `toml:"derivation"`
	Rules       RulesConfig       `toml:"rules"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Concurrency.Classify <= 0 {
		c.Concurrency.Classify = 4
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelayMS <= 0 {
		c.Retry.BaseDelayMS = 250
	}
	if c.Retry.MaxDelayMS <= 0 {
		c.Retry.MaxDelayMS = 5000
	}
	if c.Grouping.SimilarityThreshold <= 0 {
		c.Grouping.SimilarityThreshold = 0.85
	}
	if len(c.Version.Precedence) == 0 {
		c.Version.Precedence = []string{"finality", "signature", "date", "page_count", "document_id"}
	}
	if c.Tolerance.AbsoluteEpsilon <= 0 {
		c.Tolerance.AbsoluteEpsilon = 0.10
	}
	if c.Tolerance.PercentEpsilon <= 0 {
		c.Tolerance.PercentEpsilon = 0.25
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
}
