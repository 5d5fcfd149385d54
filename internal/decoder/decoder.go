// Package decoder is the registry of format decoders Attach consults to
// turn an external file's bytes into a schema.Schema and its rows (spec
// §1: "the specific format of data packs (Parquet/CSV/JSON decoders)...
// only their Arrow schema and row iterator are consumed"). CSV and JSONL
// reference decoders are provided for testing; production formats
// (Parquet, etc.) are expected to be registered by the embedder, since
// no repo in the retrieval pack vendors a Parquet/Arrow library (see
// DESIGN.md).
package decoder

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/nvoxland/bundlebase/internal/bberrors"
	"github.com/nvoxland/bundlebase/internal/objectstore"
	"github.com/nvoxland/bundlebase/internal/schema"
)

// Decoder turns the bytes at a url into a schema and its rows.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (schema.Schema, []schema.Row, error)
}

// Registry maps a format key (file extension or explicit format_hint)
// to the Decoder that handles it.
type Registry struct {
	decoders map[string]Decoder
}

// NewRegistry returns a Registry pre-populated with the csv and jsonl
// reference decoders.
func NewRegistry() *Registry {
	r := &Registry{decoders: map[string]Decoder{}}
	r.Register("csv", CSVDecoder{})
	r.Register("jsonl", JSONLDecoder{})
	r.Register("json", JSONLDecoder{})
	return r
}

// Register installs (or replaces) the decoder for a format key.
func (r *Registry) Register(format string, d Decoder) {
	r.decoders[strings.ToLower(format)] = d
}

// Format resolves the effective format key for a url and optional
// explicit format_hint (spec §4.4 "Attach... schema auto-detected via
// the decoder registry keyed on extension or explicit format_hint").
func Format(url, formatHint string) string {
	if formatHint != "" {
		return strings.ToLower(formatHint)
	}
	ext := filepath.Ext(url)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// DecodeURL fetches url's bytes from store and decodes them with the
// registered decoder for its format.
func (r *Registry) DecodeURL(ctx context.Context, store objectstore.Store, url, formatHint string) (schema.Schema, []schema.Row, error) {
	format := Format(url, formatHint)
	d, ok := r.decoders[format]
	if !ok {
		return schema.Schema{}, nil, bberrors.New(bberrors.DecodeErrorKind,
			"no decoder registered for format %q (url %q) — register one via Registry.Register", format, url)
	}
	data, err := store.Get(ctx, url)
	if err != nil {
		return schema.Schema{}, nil, err
	}
	s, rows, err := d.Decode(ctx, data)
	if err != nil {
		return schema.Schema{}, nil, bberrors.Wrap(bberrors.DecodeErrorKind, err, "decoding %q as %s", url, format)
	}
	return s, rows, nil
}
