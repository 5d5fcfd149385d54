// Package index materializes the per-column auxiliary structures spec
// §4.8 describes: "CreateIndex records intent. Materialization
// computes a sorted map from column value to row locator across all
// current fragments; stored as a pack." The fold that tracks which
// columns are indexed (and whether they need (re)building) lives in
// plan.State.Indexes; this package does the actual row-locator build
// and persists it through the PackStore.
package index

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/nvoxland/bundlebase/internal/bberrors"
	"github.com/nvoxland/bundlebase/internal/packstore"
	"github.com/nvoxland/bundlebase/internal/schema"
	"gopkg.in/yaml.v3"
)

// Entry is one distinct column value and the row positions (within the
// materialized batch passed to Build) that carry it, sorted by Value's
// string rendering to keep the index pack's bytes — and therefore its
// fingerprint — deterministic across rebuilds of unchanged data (spec
// §4.8 "RebuildIndex... is idempotent").
type Entry struct {
	Value string `yaml:"value"`
	Rows  []int  `yaml:"rows"`
}

// Build computes the sorted value→rows map for column across batch.
func Build(batch schema.Batch, column string) ([]Entry, error) {
	if _, ok := batch.Schema.Column(column); !ok {
		return nil, bberrors.ColumnNotFound(column, batch.Schema.Names())
	}
	grouped := map[string][]int{}
	for i, row := range batch.Rows {
		key := fmt.Sprintf("%v", row[column])
		grouped[key] = append(grouped[key], i)
	}
	entries := make([]Entry, 0, len(grouped))
	for k, rows := range grouped {
		entries = append(entries, Entry{Value: k, Rows: rows})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Value < entries[j].Value })
	return entries, nil
}

// Encode renders entries to their canonical pack bytes.
func Encode(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(entries); err != nil {
		return nil, bberrors.Wrap(bberrors.DecodeErrorKind, err, "encoding index pack")
	}
	if err := enc.Close(); err != nil {
		return nil, bberrors.Wrap(bberrors.DecodeErrorKind, err, "closing index pack encoder")
	}
	return buf.Bytes(), nil
}

// Decode parses index pack bytes back into entries.
func Decode(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, bberrors.Wrap(bberrors.DecodeErrorKind, err, "decoding index pack")
	}
	return entries, nil
}

// Manager materializes and loads index packs through a PackStore.
type Manager struct {
	Packs *packstore.Store
}

// NewManager builds a Manager backed by packs.
func NewManager(packs *packstore.Store) *Manager {
	return &Manager{Packs: packs}
}

// Materialize builds column's index over batch and writes it to the
// PackStore, returning its fingerprint.
func (m *Manager) Materialize(ctx context.Context, batch schema.Batch, column string) (string, error) {
	entries, err := Build(batch, column)
	if err != nil {
		return "", err
	}
	data, err := Encode(entries)
	if err != nil {
		return "", err
	}
	return m.Packs.Put(ctx, data)
}

// Load reads back a previously materialized index pack.
func (m *Manager) Load(ctx context.Context, fingerprint string) ([]Entry, error) {
	data, err := m.Packs.Get(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Lookup finds the row positions for value within entries by binary
// search over their sorted Value strings.
func Lookup(entries []Entry, value interface{}) []int {
	key := fmt.Sprintf("%v", value)
	i := sort.Search(len(entries), func(i int) bool { return entries[i].Value >= key })
	if i < len(entries) && entries[i].Value == key {
		return entries[i].Rows
	}
	return nil
}
