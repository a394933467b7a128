// Package chart classifies account types into financial statement sections.
package chart

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/ledger/internal/accounting"
)

//go:embed default.yaml
var defaultYAML []byte

// Section names a financial statement.
type Section string

const (
	IncomeStatement Section = "Income Statement"
	BalanceSheet    Section = "Balance Sheet"
)

// Nature groups categories for derived totals.
type Nature string

const (
	NatureRevenue        Nature = "revenue"
	NatureExpense        Nature = "expense"
	NatureAsset          Nature = "asset"
	NatureLiability      Nature = "liability"
	NatureEquity         Nature = "equity"
	NatureReconciliation Nature = "reconciliation"
)

// Side returns the side that increases totals of this nature.
func (n Nature) Side() accounting.EntryType {
	switch n {
	case NatureRevenue, NatureLiability, NatureEquity:
		return accounting.Credit
	default:
		return accounting.Debit
	}
}

// Classification places an account type on a statement.
type Classification struct {
	Section  Section `json:"section"`
	Category string  `json:"category"`
	Nature   Nature  `json:"nature"`
}

// Chart is an immutable account type classification table.
type Chart struct {
	byType   map[accounting.AccountType]Classification
	sides    map[accounting.AccountType]accounting.EntryType
	sections []Section
}

type fileCategory struct {
	Name   string   `yaml:"name"`
	Nature string   `yaml:"nature"`
	Types  []string `yaml:"types"`
}

type fileSection struct {
	Name       string         `yaml:"name"`
	Categories []fileCategory `yaml:"categories"`
}

type file struct {
	Sections     []fileSection     `yaml:"sections"`
	NaturalSides map[string]string `yaml:"natural_sides"`
}

// Default returns the embedded chart.
func Default() *Chart {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("chart: embedded default invalid: %v", err))
	}
	return c
}

// Load reads a chart from a YAML file. An empty path yields the default chart.
func Load(path string) (*Chart, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("chart: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a chart from YAML. A type may appear in at most one category.
func Parse(data []byte) (*Chart, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("chart: parse: %w", err)
	}
	if len(f.Sections) == 0 {
		return nil, errors.New("chart: no sections defined")
	}
	c := &Chart{
		byType: make(map[accounting.AccountType]Classification),
		sides:  make(map[accounting.AccountType]accounting.EntryType),
	}
	for _, s := range f.Sections {
		section := Section(s.Name)
		if section != IncomeStatement && section != BalanceSheet {
			return nil, fmt.Errorf("chart: unknown section %q", s.Name)
		}
		c.sections = append(c.sections, section)
		for _, cat := range s.Categories {
			if cat.Name == "" {
				return nil, fmt.Errorf("chart: unnamed category in %s", s.Name)
			}
			for _, raw := range cat.Types {
				t := accounting.AccountType(strings.ToUpper(raw))
				if !t.Valid() {
					return nil, fmt.Errorf("chart: unknown account type %q", raw)
				}
				if prev, dup := c.byType[t]; dup {
					return nil, fmt.Errorf("chart: %s listed under both %s and %s", t, prev.Category, cat.Name)
				}
				c.byType[t] = Classification{Section: section, Category: cat.Name, Nature: Nature(cat.Nature)}
			}
		}
	}
	for raw, side := range f.NaturalSides {
		t := accounting.AccountType(strings.ToUpper(raw))
		if !t.Valid() {
			return nil, fmt.Errorf("chart: unknown account type %q", raw)
		}
		switch strings.ToLower(side) {
		case "debit":
			c.sides[t] = accounting.Debit
		case "credit":
			c.sides[t] = accounting.Credit
		default:
			return nil, fmt.Errorf("chart: invalid natural side %q for %s", side, raw)
		}
	}
	return c, nil
}

// Classify returns the statement placement of t. ok is false for unclassified types.
func (c *Chart) Classify(t accounting.AccountType) (Classification, bool) {
	cls, ok := c.byType[t]
	return cls, ok
}

// NaturalSide returns the side on which balances of t normally sit.
func (c *Chart) NaturalSide(t accounting.AccountType) accounting.EntryType {
	if side, ok := c.sides[t]; ok {
		return side
	}
	return accounting.Debit
}

// Sections lists the statement sections in configured order.
func (c *Chart) Sections() []Section {
	return append([]Section(nil), c.sections...)
}
