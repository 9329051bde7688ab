// Package catalog reads benefit migration files: batches of new benefit
// templates that are inserted together or not at all.
package catalog

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"benefit_cycle_engine/internal/domain/benefit"
	"benefit_cycle_engine/internal/domain/cycle"
)

// Migration is one benefit migration file.
type Migration struct {
	Name     string        `yaml:"name"`
	Benefits []BenefitSpec `yaml:"benefits"`
}

// BenefitSpec is a benefit template as written in a migration file.
type BenefitSpec struct {
	CardID         int64   `yaml:"card_id"`
	Name           string  `yaml:"name"`
	Description    string  `yaml:"description"`
	Frequency      string  `yaml:"frequency"`
	Alignment      string  `yaml:"alignment"`
	StartMonth     *int    `yaml:"start_month"`
	DurationMonths *int    `yaml:"duration_months"`
	CappedValue    float64 `yaml:"capped_value"`
	Occurrences    int     `yaml:"occurrences_per_cycle"`
	Active         *bool   `yaml:"active"`
}

// LoadMigration reads and parses a migration YAML file.
// Unknown fields are rejected so typos don't silently drop settings.
func LoadMigration(path string) (*Migration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration file: %w", err)
	}
	return ParseMigration(data)
}

func ParseMigration(data []byte) (*Migration, error) {
	var m Migration
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if strings.TrimSpace(m.Name) == "" {
		return nil, fmt.Errorf("invalid migration: name is required")
	}
	if len(m.Benefits) == 0 {
		return nil, fmt.Errorf("invalid migration %q: benefits list is required and must be non-empty", m.Name)
	}
	return &m, nil
}

// Templates converts every benefit entry into a validated template.
func (m *Migration) Templates() ([]*benefit.Template, error) {
	templates := make([]*benefit.Template, 0, len(m.Benefits))
	for i, b := range m.Benefits {
		t, err := b.Template()
		if err != nil {
			return nil, fmt.Errorf("benefit #%d (%q): %w", i+1, b.Name, err)
		}
		templates = append(templates, t)
	}
	return templates, nil
}

func (b BenefitSpec) Template() (*benefit.Template, error) {
	if b.CardID <= 0 {
		return nil, fmt.Errorf("card_id is required")
	}
	freq, err := cycle.ParseFrequency(b.Frequency)
	if err != nil {
		return nil, err
	}
	alignment, err := cycle.NewAlignment(b.Alignment, b.StartMonth, b.DurationMonths)
	if err != nil {
		return nil, err
	}
	occurrences := b.Occurrences
	if occurrences == 0 {
		occurrences = 1
	}
	active := true
	if b.Active != nil {
		active = *b.Active
	}

	t := &benefit.Template{
		CardID:              b.CardID,
		Name:                strings.TrimSpace(b.Name),
		Description:         strings.TrimSpace(b.Description),
		Frequency:           freq,
		Alignment:           alignment,
		CappedValue:         b.CappedValue,
		OccurrencesPerCycle: occurrences,
		IsActive:            active,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}
