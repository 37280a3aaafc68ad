package config

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"newswire/internal/types"
)

func DefaultTaxonomyConfig() TaxonomyConfig {
	return TaxonomyConfig{
		Allowed: []string{
			"CENTRAL_BANK_POLICY",
			"GEOPOLITICAL_EVENT",
			"INDUSTRY_REGULATION",
			"CORPORATE_EARNINGS",
			"CORPORATE_ACTIONS",
			"MANAGEMENT_CHANGE",
			"PRODUCT_TECH_UPDATE",
			"BUSINESS_OPERATIONS",
			"INCIDENT_LEGAL",
			"MACRO_ECONOMY",
			"MARKET_SENTIMENT",
			"ANALYST_OPINION",
			"NON_FINANCIAL",
			"MACRO_NOBODY",
		},
		Included: []string{
			"CENTRAL_BANK_POLICY",
			"GEOPOLITICAL_EVENT",
			"INDUSTRY_REGULATION",
			"CORPORATE_EARNINGS",
			"CORPORATE_ACTIONS",
			"MANAGEMENT_CHANGE",
			"PRODUCT_TECH_UPDATE",
			"BUSINESS_OPERATIONS",
			"INCIDENT_LEGAL",
		},
		Excluded: []string{
			"MACRO_NOBODY",
			"NON_FINANCIAL",
			"ANALYST_OPINION",
		},
		GenericPatterns: []string{"nobody"},
	}
}

var upper = cases.Upper(language.Und)

// NormalizeLabel upper-cases a label, turns spaces and dashes into
// underscores and collapses repeated underscores.
func NormalizeLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return ""
	}
	label = upper.String(label)
	label = strings.NewReplacer(" ", "_", "-", "_").Replace(label)
	for strings.Contains(label, "__") {
		label = strings.ReplaceAll(label, "__", "_")
	}
	return strings.Trim(label, "_")
}

// Taxonomy is the closed label set every classification is validated against.
type Taxonomy struct {
	allowed  []string
	included []string
	excluded []string
	generic  []string

	allowedSet  map[string]struct{}
	includedSet map[string]struct{}
	excludedSet map[string]struct{}
}

func NewTaxonomy(cfg TaxonomyConfig) (*Taxonomy, error) {
	t := &Taxonomy{
		allowedSet:  make(map[string]struct{}),
		includedSet: make(map[string]struct{}),
		excludedSet: make(map[string]struct{}),
	}

	for _, label := range cfg.Allowed {
		label = NormalizeLabel(label)
		if label == "" {
			continue
		}
		if isReserved(label) {
			return nil, fmt.Errorf("taxonomy: %s is reserved and cannot be an allowed label", label)
		}
		if _, dup := t.allowedSet[label]; dup {
			continue
		}
		t.allowedSet[label] = struct{}{}
		t.allowed = append(t.allowed, label)
	}
	if len(t.allowed) == 0 {
		return nil, fmt.Errorf("taxonomy: allowed labels must not be empty")
	}

	for _, label := range cfg.Included {
		label = NormalizeLabel(label)
		if _, ok := t.allowedSet[label]; !ok {
			return nil, fmt.Errorf("taxonomy: included label %s is not allowed", label)
		}
		t.includedSet[label] = struct{}{}
		t.included = append(t.included, label)
	}

	for _, label := range cfg.Excluded {
		label = NormalizeLabel(label)
		if _, ok := t.allowedSet[label]; !ok {
			return nil, fmt.Errorf("taxonomy: excluded label %s is not allowed", label)
		}
		if _, ok := t.includedSet[label]; ok {
			return nil, fmt.Errorf("taxonomy: label %s cannot be both included and excluded", label)
		}
		t.excludedSet[label] = struct{}{}
		t.excluded = append(t.excluded, label)
	}

	for _, p := range cfg.GenericPatterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			t.generic = append(t.generic, p)
		}
	}

	return t, nil
}

func MustTaxonomy(cfg TaxonomyConfig) *Taxonomy {
	t, err := NewTaxonomy(cfg)
	if err != nil {
		panic(err)
	}
	return t
}

func isReserved(label string) bool {
	switch label {
	case types.LabelUncategorized, types.LabelError, types.LabelExcluded:
		return true
	}
	return false
}

func (t *Taxonomy) Allowed() []string {
	return append([]string(nil), t.allowed...)
}

func (t *Taxonomy) Included() []string {
	return append([]string(nil), t.included...)
}

func (t *Taxonomy) IsAllowed(label string) bool {
	_, ok := t.allowedSet[label]
	return ok
}

func (t *Taxonomy) IsIncluded(label string) bool {
	_, ok := t.includedSet[label]
	return ok
}

func (t *Taxonomy) IsExcluded(label string) bool {
	_, ok := t.excludedSet[label]
	return ok
}

// IsGeneric reports whether a stored label matches one of the too-generic
// patterns, case-insensitively.
func (t *Taxonomy) IsGeneric(label string) bool {
	lower := strings.ToLower(label)
	for _, p := range t.generic {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Terminal lists the primary labels a reclassification sweep must skip.
func (t *Taxonomy) Terminal() []string {
	terminal := make([]string, 0, len(t.allowed)+2)
	terminal = append(terminal, t.allowed...)
	return append(terminal, types.LabelError, types.LabelExcluded)
}
