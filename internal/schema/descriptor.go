package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nvoxland/bundlebase/internal/bberrors"
)

// Describe renders s as the compact descriptor string DefineFunction
// stores in its Schema field (spec §6 commit format: a plain string,
// not a structured sub-document, so the canonical commit codec doesn't
// need a schema sub-grammar).
func (s Schema) Describe() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = fmt.Sprintf("%s:%s:%t", f.Name, f.Type, f.Nullable)
	}
	return strings.Join(parts, ",")
}

// ParseDescriptor parses the Describe() format back into a Schema.
func ParseDescriptor(desc string) (Schema, error) {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return Schema{}, nil
	}
	var out Schema
	for _, part := range strings.Split(desc, ",") {
		fields := strings.Split(part, ":")
		if len(fields) != 3 {
			return Schema{}, bberrors.New(bberrors.DecodeErrorKind, "invalid schema descriptor field %q", part)
		}
		typ, err := parseType(fields[1])
		if err != nil {
			return Schema{}, err
		}
		nullable, err := strconv.ParseBool(fields[2])
		if err != nil {
			return Schema{}, bberrors.Wrap(bberrors.DecodeErrorKind, err, "invalid nullable flag in %q", part)
		}
		out.Fields = append(out.Fields, Field{Name: fields[0], Type: typ, Nullable: nullable})
	}
	return out, nil
}

func parseType(s string) (Type, error) {
	switch s {
	case "int64":
		return Int64, nil
	case "float64":
		return Float64, nil
	case "bool":
		return Bool, nil
	case "utf8":
		return Utf8, nil
	case "utf8_view":
		return Utf8View, nil
	case "timestamp":
		return Timestamp, nil
	default:
		return 0, bberrors.New(bberrors.DecodeErrorKind, "unknown schema type %q", s)
	}
}
