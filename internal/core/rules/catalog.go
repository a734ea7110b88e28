package rules

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/loanworks/granite/internal/core/model"
)

// Catalog is the externally curated, immutable rule reference data. Loaded
// once and shared read-only across concurrent loan evaluations.
type Catalog struct {
	Rules []model.ComplianceRule
}

type rawRule struct {
	model.ComplianceRule
	EffectiveFrom string `toml:"effective_from"`
	EffectiveTo   string `toml:"effective_to"`
}

type rawCatalog struct {
	Rules []rawRule `toml:"rule"`
}

func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule catalog '%s': %w", path, err)
	}

	var raw rawCatalog
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse rule catalog: %w", err)
	}

	catalog := &Catalog{Rules: make([]model.ComplianceRule, 0, len(raw.Rules))}
	seen := make(map[string]bool)

	for _, r := range raw.Rules {
		rule := r.ComplianceRule
		if rule.Code == "" {
			return nil, fmt.Errorf("rule catalog entry with empty code")
		}
		if seen[rule.Code] {
			return nil, fmt.Errorf("duplicate rule code %q", rule.Code)
		}
		seen[rule.Code] = true

		rule.EffectiveFrom, err = parseCatalogDate(r.EffectiveFrom)
		if err != nil {
			return nil, fmt.Errorf("rule %s: bad effective_from: %w", rule.Code, err)
		}
		rule.EffectiveTo, err = parseCatalogDate(r.EffectiveTo)
		if err != nil {
			return nil, fmt.Errorf("rule %s: bad effective_to: %w", rule.Code, err)
		}

		switch rule.Logic.Kind {
		case model.LogicThreshold, model.LogicPresence, model.LogicEquality, model.LogicCalcVerified:
		default:
			return nil, fmt.Errorf("rule %s: unknown logic kind %q", rule.Code, rule.Logic.Kind)
		}

		catalog.Rules = append(catalog.Rules, rule)
	}

	return catalog, nil
}

func parseCatalogDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
