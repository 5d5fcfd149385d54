// Package schema is bundlebase's minimal stand-in for the Arrow schema
// and record-batch types the real execution engine consumes (spec §1:
// "the core needs only a capability that compiles a plan tree into a
// stream of record batches... only their Arrow schema and row iterator
// are consumed"). No repo in the retrieval pack vendors an Arrow or
// Parquet library (see DESIGN.md), so this package defines the smallest
// contract the rest of bundlebase needs and nothing more.
package schema

import (
	"fmt"

	"github.com/nvoxland/bundlebase/internal/bberrors"
)

// Type is a column's logical data type.
type Type int

const (
	Int64 Type = iota
	Float64
	Bool
	Utf8
	Utf8View // Utf8View columns reject CreateIndex (spec §4.8, §8).
	Timestamp
)

func (t Type) String() string {
	switch t {
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case Bool:
		return "bool"
	case Utf8:
		return "utf8"
	case Utf8View:
		return "utf8_view"
	case Timestamp:
		return "timestamp"
	default:
		return "unknown"
	}
}

// Field is one column of a Schema.
type Field struct {
	Name     string
	Type     Type
	Nullable bool
}

// Schema is an ordered list of Fields.
type Schema struct {
	Fields []Field
}

// Column finds a field by name.
func (s Schema) Column(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Names returns every field name, in order — used to build the
// "available alternatives" lists of spec §7.
func (s Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Without returns a copy of s with the named column removed.
func (s Schema) Without(name string) Schema {
	out := Schema{}
	for _, f := range s.Fields {
		if f.Name != name {
			out.Fields = append(out.Fields, f)
		}
	}
	return out
}

// Renamed returns a copy of s with column `from` renamed to `to`.
func (s Schema) Renamed(from, to string) Schema {
	out := Schema{}
	for _, f := range s.Fields {
		if f.Name == from {
			f.Name = to
		}
		out.Fields = append(out.Fields, f)
	}
	return out
}

// Project returns a copy of s restricted to the named columns, in the
// order the caller requested.
func (s Schema) Project(columns []string) (Schema, error) {
	out := Schema{}
	for _, name := range columns {
		f, ok := s.Column(name)
		if !ok {
			return Schema{}, bberrors.ColumnNotFound(name, s.Names())
		}
		out.Fields = append(out.Fields, f)
	}
	return out, nil
}

// Merge unions two schemas produced by independent attaches (spec
// §4.4): fields must share name and Type; a nullability mismatch
// resolves to nullable (the tie-break rule of spec §4.4).
func Merge(a, b Schema) (Schema, error) {
	out := Schema{Fields: append([]Field{}, a.Fields...)}
	index := map[string]int{}
	for i, f := range out.Fields {
		index[f.Name] = i
	}
	for _, f := range b.Fields {
		i, ok := index[f.Name]
		if !ok {
			index[f.Name] = len(out.Fields)
			out.Fields = append(out.Fields, f)
			continue
		}
		existing := out.Fields[i]
		if existing.Type != f.Type {
			return Schema{}, bberrors.New(bberrors.SchemaConflictKind,
				"column %q has conflicting types %s and %s", f.Name, existing.Type, f.Type)
		}
		if existing.Nullable != f.Nullable {
			out.Fields[i].Nullable = true
		}
	}
	return out, nil
}

// Row is one logical record. It stands in for a slice of a real
// columnar record batch (spec §1) — see package doc.
type Row map[string]interface{}

// String renders the whole row for diagnostics.
func (r Row) String() string {
	return fmt.Sprintf("%v", map[string]interface{}(r))
}

// Batch is a schema-tagged group of rows, the stand-in for a record batch.
type Batch struct {
	Schema Schema
	Rows   []Row
}
