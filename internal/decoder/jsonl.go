package decoder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"

	"github.com/nvoxland/bundlebase/internal/bberrors"
	"github.com/nvoxland/bundlebase/internal/schema"
)

// JSONLDecoder decodes newline-delimited JSON objects (or a single JSON
// array of objects), inferring the schema as the union of keys across
// every record.
type JSONLDecoder struct{}

func (JSONLDecoder) Decode(ctx context.Context, data []byte) (schema.Schema, []schema.Row, error) {
	var records []map[string]interface{}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return schema.Schema{}, nil, bberrors.Wrap(bberrors.DecodeErrorKind, err, "parsing json array")
		}
	} else {
		scanner := bufio.NewScanner(bytes.NewReader(data))
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var rec map[string]interface{}
			if err := json.Unmarshal(line, &rec); err != nil {
				return schema.Schema{}, nil, bberrors.Wrap(bberrors.DecodeErrorKind, err, "parsing jsonl line")
			}
			records = append(records, rec)
		}
		if err := scanner.Err(); err != nil {
			return schema.Schema{}, nil, bberrors.Wrap(bberrors.DecodeErrorKind, err, "scanning jsonl")
		}
	}

	order := []string{}
	seen := map[string]bool{}
	types := map[string]schema.Type{}
	nullable := map[string]bool{}
	counts := map[string]int{}
	for _, rec := range records {
		for k, v := range rec {
			if !seen[k] {
				seen[k] = true
				order = append(order, k)
				types[k] = jsonType(v)
			} else if t := jsonType(v); t != types[k] {
				types[k] = widen(types[k], t)
			}
			counts[k]++
		}
	}
	s := schema.Schema{}
	for _, k := range order {
		s.Fields = append(s.Fields, schema.Field{Name: k, Type: types[k], Nullable: nullable[k] || counts[k] != len(records)})
	}

	rows := make([]schema.Row, 0, len(records))
	for _, rec := range records {
		row := schema.Row{}
		for k, v := range rec {
			if v != nil {
				row[k] = v
			}
		}
		rows = append(rows, row)
	}
	return s, rows, nil
}

func jsonType(v interface{}) schema.Type {
	switch val := v.(type) {
	case bool:
		return schema.Bool
	case float64:
		if val == float64(int64(val)) {
			return schema.Int64
		}
		return schema.Float64
	case string:
		return schema.Utf8
	default:
		return schema.Utf8
	}
}
