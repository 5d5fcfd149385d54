package decoder

import (
	"context"
	"encoding/csv"
	"strconv"
	"strings"

	"github.com/nvoxland/bundlebase/internal/bberrors"
	"github.com/nvoxland/bundlebase/internal/schema"
)

// CSVDecoder decodes a header-row CSV file, sniffing each column's type
// from its values (int64 if every value parses as an integer, float64 if
// every value parses as a float, bool if every value is true/false,
// utf8 otherwise). A column is nullable if any row leaves it blank.
type CSVDecoder struct{}

func (CSVDecoder) Decode(ctx context.Context, data []byte) (schema.Schema, []schema.Row, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return schema.Schema{}, nil, bberrors.Wrap(bberrors.DecodeErrorKind, err, "reading csv")
	}
	if len(records) == 0 {
		return schema.Schema{}, nil, nil
	}
	header := records[0]
	data2 := records[1:]

	nullable := make([]bool, len(header))
	kinds := make([]schema.Type, len(header))
	seen := make([]bool, len(header))
	for _, row := range data2 {
		for i := range header {
			if i >= len(row) || row[i] == "" {
				nullable[i] = true
				continue
			}
			t := sniff(row[i])
			if !seen[i] {
				kinds[i] = t
				seen[i] = true
			} else if kinds[i] != t {
				kinds[i] = widen(kinds[i], t)
			}
		}
	}

	s := schema.Schema{}
	for i, name := range header {
		k := kinds[i]
		if !seen[i] {
			k = schema.Utf8
		}
		s.Fields = append(s.Fields, schema.Field{Name: name, Type: k, Nullable: nullable[i]})
	}

	rows := make([]schema.Row, 0, len(data2))
	for _, rec := range data2 {
		row := schema.Row{}
		for i, name := range header {
			if i >= len(rec) || rec[i] == "" {
				continue
			}
			row[name] = convert(rec[i], s.Fields[i].Type)
		}
		rows = append(rows, row)
	}
	return s, rows, nil
}

func sniff(v string) schema.Type {
	if v == "true" || v == "false" {
		return schema.Bool
	}
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return schema.Int64
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return schema.Float64
	}
	return schema.Utf8
}

func widen(a, b schema.Type) schema.Type {
	if a == b {
		return a
	}
	if (a == schema.Int64 && b == schema.Float64) || (a == schema.Float64 && b == schema.Int64) {
		return schema.Float64
	}
	return schema.Utf8
}

func convert(v string, t schema.Type) interface{} {
	switch t {
	case schema.Int64:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case schema.Float64:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case schema.Bool:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return v
	}
}
