package models

import (
	"strings"
	"time"
)

// ColumnDescriptor describes a single column of a discovered table.
type ColumnDescriptor struct {
	Name     string `json:"name" yaml:"name"`
	DataType string `json:"data_type" yaml:"data_type"`
	Nullable bool   `json:"nullable" yaml:"nullable"`
	Ordinal  int    `json:"ordinal" yaml:"ordinal"`
}

// TableDescriptor describes a discovered table with its columns in
// ordinal order.
type TableDescriptor struct {
	SchemaName string             `json:"schema_name" yaml:"schema_name"`
	TableName  string             `json:"table_name" yaml:"table_name"`
	Columns    []ColumnDescriptor `json:"columns" yaml:"columns"`
}

// QualifiedName returns "schema.table", or just the table name when the
// schema name is empty.
func (t *TableDescriptor) QualifiedName() string {
	if t.SchemaName == "" {
		return t.TableName
	}
	return t.SchemaName + "." + t.TableName
}

// SchemaSnapshot is an immutable point-in-time copy of database schema
// metadata. Snapshots are shared read-only across concurrent pipeline runs;
// never mutate one after capture.
type SchemaSnapshot struct {
	Tables     []TableDescriptor `json:"tables" yaml:"tables"`
	CapturedAt time.Time         `json:"captured_at" yaml:"captured_at"`
}

// HasTable reports whether the snapshot contains a table whose name (or
// schema-qualified name) matches, case-insensitively.
func (s *SchemaSnapshot) HasTable(name string) bool {
	if s == nil {
		return false
	}
	name = strings.ToLower(strings.Trim(name, `"`))
	for i := range s.Tables {
		t := &s.Tables[i]
		if strings.ToLower(t.TableName) == name || strings.ToLower(t.QualifiedName()) == name {
			return true
		}
	}
	return false
}

// TableNames returns the qualified names of all tables in snapshot order.
func (s *SchemaSnapshot) TableNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.Tables))
	for i := range s.Tables {
		names[i] = s.Tables[i].QualifiedName()
	}
	return names
}
