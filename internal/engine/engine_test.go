package engine

import (
	"context"
	"testing"

	"github.com/nvoxland/bundlebase/internal/decoder"
	"github.com/nvoxland/bundlebase/internal/objectstore"
	"github.com/nvoxland/bundlebase/internal/operation"
	"github.com/nvoxland/bundlebase/internal/plan"
	"github.com/nvoxland/bundlebase/internal/schema"
)

func resolveSchemaViaDecoder(store objectstore.Store, registry *decoder.Registry) func(context.Context, string, string) (schema.Schema, error) {
	return func(ctx context.Context, url, formatHint string) (schema.Schema, error) {
		s, _, err := registry.DecodeURL(ctx, store, url, formatHint)
		return s, err
	}
}

func TestCompileAttachAndFilter(t *testing.T) {
	objectstore.ResetMemoryStore()
	store, err := objectstore.Open("memory:///", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ctx := context.Background()
	csv := "id,salary\n1,40000\n2,60000\n3,70000\n"
	if err := store.Put(ctx, "memory:///data/people.csv", []byte(csv)); err != nil {
		t.Fatalf("put: %v", err)
	}

	registry := decoder.NewRegistry()
	eng := New(store, registry, nil)
	deps := plan.Deps{ResolveSchema: resolveSchemaViaDecoder(store, registry)}

	state := plan.New()
	state, err = plan.Apply(ctx, state, operation.Attach{URL: "memory:///data/people.csv"}, deps)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	state, err = plan.Apply(ctx, state, operation.Filter{Expr: "salary > $1", Params: []interface{}{50000.0}}, deps)
	if err != nil {
		t.Fatalf("filter: %v", err)
	}

	batch, err := eng.Compile(ctx, state)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(batch.Rows) != 2 {
		t.Fatalf("expected 2 rows with salary > 50000, got %d: %+v", len(batch.Rows), batch.Rows)
	}
}

func TestCompileJoin(t *testing.T) {
	objectstore.ResetMemoryStore()
	store, err := objectstore.Open("memory:///", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ctx := context.Background()
	customers := "name,Country\nacme,US\nglobex,FR\n"
	regions := "Country,region\nUS,NA\nFR,EU\n"
	if err := store.Put(ctx, "memory:///data/customers.csv", []byte(customers)); err != nil {
		t.Fatalf("put customers: %v", err)
	}
	if err := store.Put(ctx, "memory:///data/regions.csv", []byte(regions)); err != nil {
		t.Fatalf("put regions: %v", err)
	}

	registry := decoder.NewRegistry()
	eng := New(store, registry, nil)
	deps := plan.Deps{ResolveSchema: resolveSchemaViaDecoder(store, registry)}

	state := plan.New()
	state, err = plan.Apply(ctx, state, operation.Attach{URL: "memory:///data/customers.csv"}, deps)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	state, err = plan.Apply(ctx, state, operation.Join{
		Name: "regions", URL: "memory:///data/regions.csv", Predicate: `$base."Country" = regions."Country"`,
	}, deps)
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	batch, err := eng.Compile(ctx, state)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(batch.Rows) != 2 {
		t.Fatalf("expected 2 joined rows, got %d: %+v", len(batch.Rows), batch.Rows)
	}
}

func TestCompileEmptyBundle(t *testing.T) {
	eng := New(nil, decoder.NewRegistry(), nil)
	batch, err := eng.Compile(context.Background(), plan.New())
	if err != nil {
		t.Fatalf("compile empty: %v", err)
	}
	if len(batch.Rows) != 0 {
		t.Fatalf("expected zero rows for empty bundle")
	}
}
