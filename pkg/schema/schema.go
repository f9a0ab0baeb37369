// Package schema is the in-code description of the forgelake warehouse:
// every table, column, and type, with the conventions downstream consumers
// need. The ingestion stores derive their DDL from it and the CLI prints it
// as JSON, so this package is the single source of truth for the contract.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Schema struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Tables      []TableInfo `json:"tables"`
}

type TableInfo struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Columns     []ColumnInfo `json:"columns"`
}

type ColumnInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Table returns the named table description.
func (s *Schema) Table(name string) (TableInfo, error) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, nil
		}
	}
	return TableInfo{}, fmt.Errorf("table %s not in schema %s", name, s.Name)
}

// MustTable is Table for compile-time-known names; it panics on a miss.
func (s *Schema) MustTable(name string) TableInfo {
	t, err := s.Table(name)
	if err != nil {
		panic(err)
	}
	return t
}

// IsSCD2 reports whether the table is a slowly-changing dimension, persisted
// as <name>_current and <name>_history rather than under its base name.
func (t TableInfo) IsSCD2() bool {
	return strings.Contains(t.Description, "(SCD2)")
}

// ColumnSpecs renders the columns as "name:TYPE" pairs in declaration order,
// the form the ingestion layer consumes.
func (t TableInfo) ColumnSpecs() []string {
	specs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		specs[i] = c.Name + ":" + c.Type
	}
	return specs
}

// JSON renders the schema for the --print-schema contract output.
func (s *Schema) JSON() (string, error) {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema: %w", err)
	}
	return string(b), nil
}
