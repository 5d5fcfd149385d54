package plan

import (
	"context"
	"testing"

	"github.com/nvoxland/bundlebase/internal/bberrors"
	"github.com/nvoxland/bundlebase/internal/operation"
	"github.com/nvoxland/bundlebase/internal/schema"
)

func fixedSchemaDeps(schemas map[string]schema.Schema) Deps {
	return Deps{
		ResolveSchema: func(ctx context.Context, url, formatHint string) (schema.Schema, error) {
			s, ok := schemas[url]
			if !ok {
				return schema.Schema{}, bberrors.NotFound("no fixture schema for %q", url)
			}
			return s, nil
		},
		ParseSchema: func(desc string) (schema.Schema, error) {
			return schemas[desc], nil
		},
	}
}

func TestApplyAttachUnionsSchema(t *testing.T) {
	deps := fixedSchemaDeps(map[string]schema.Schema{
		"a.csv": {Fields: []schema.Field{{Name: "id", Type: schema.Int64}, {Name: "name", Type: schema.Utf8}}},
		"b.csv": {Fields: []schema.Field{{Name: "id", Type: schema.Int64}, {Name: "extra", Type: schema.Float64}}},
	})
	state := New()
	state, err := Apply(context.Background(), state, operation.Attach{URL: "a.csv"}, deps)
	if err != nil {
		t.Fatalf("attach a: %v", err)
	}
	state, err = Apply(context.Background(), state, operation.Attach{URL: "b.csv"}, deps)
	if err != nil {
		t.Fatalf("attach b: %v", err)
	}
	if len(state.Schema.Fields) != 3 {
		t.Fatalf("expected 3 merged fields, got %d", len(state.Schema.Fields))
	}
	if state.Root.Kind != NodeUnion || len(state.Root.Inputs) != 2 {
		t.Fatalf("expected union of 2 scans, got %+v", state.Root)
	}
	if !state.AttachedURLs["a.csv"] || !state.AttachedURLs["b.csv"] {
		t.Fatalf("expected both urls recorded as attached")
	}
}

func TestApplyFilterAndRenameRemove(t *testing.T) {
	deps := fixedSchemaDeps(map[string]schema.Schema{
		"a.csv": {Fields: []schema.Field{{Name: "salary", Type: schema.Float64}, {Name: "dept", Type: schema.Utf8}}},
	})
	state := New()
	state, _ = Apply(context.Background(), state, operation.Attach{URL: "a.csv"}, deps)
	state, err := Apply(context.Background(), state, operation.Filter{Expr: "salary > $1", Params: []interface{}{50000.0}}, deps)
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if state.Root.Kind != NodeFilter {
		t.Fatalf("expected filter node, got %+v", state.Root)
	}
	state, err = Apply(context.Background(), state, operation.RenameColumn{From: "dept", To: "department"}, deps)
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, ok := state.Schema.Column("department"); !ok {
		t.Fatalf("expected renamed column present")
	}
	state, err = Apply(context.Background(), state, operation.RemoveColumn{Name: "salary"}, deps)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := state.Schema.Column("salary"); ok {
		t.Fatalf("expected salary removed")
	}
	if _, err := Apply(context.Background(), state, operation.RemoveColumn{Name: "missing"}, deps); !bberrors.Is(err, bberrors.ColumnNotFoundKind) {
		t.Fatalf("expected ColumnNotFound, got %v", err)
	}
}

func TestApplyJoinThenAttachToJoin(t *testing.T) {
	deps := fixedSchemaDeps(map[string]schema.Schema{
		"customers.csv": {Fields: []schema.Field{{Name: "Country", Type: schema.Utf8}}},
		"regions.csv":   {Fields: []schema.Field{{Name: "Country", Type: schema.Utf8}}},
		"regions2.csv":  {Fields: []schema.Field{{Name: "Country", Type: schema.Utf8}}},
	})
	state := New()
	state, _ = Apply(context.Background(), state, operation.Attach{URL: "customers.csv"}, deps)
	state, err := Apply(context.Background(), state, operation.Join{
		Name: "regions", URL: "regions.csv", Predicate: `$base."Country" = regions."Country"`,
	}, deps)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if state.Root.Kind != NodeJoin {
		t.Fatalf("expected join node root, got %+v", state.Root)
	}
	state, err = Apply(context.Background(), state, operation.AttachToJoin{Name: "regions", URL: "regions2.csv"}, deps)
	if err != nil {
		t.Fatalf("attach to join: %v", err)
	}
	if state.Root.JoinRight.Kind != NodeUnion || len(state.Root.JoinRight.Inputs) != 2 {
		t.Fatalf("expected join right side to be a 2-way union, got %+v", state.Root.JoinRight)
	}
	if _, err := Apply(context.Background(), state, operation.AttachToJoin{Name: "missing", URL: "regions2.csv"}, deps); err == nil {
		t.Fatalf("expected error attaching to unknown join")
	}
}

func TestApplyIndexLifecycle(t *testing.T) {
	deps := fixedSchemaDeps(map[string]schema.Schema{
		"a.csv": {Fields: []schema.Field{{Name: "id", Type: schema.Int64}, {Name: "tags", Type: schema.Utf8View}}},
	})
	state := New()
	state, _ = Apply(context.Background(), state, operation.Attach{URL: "a.csv"}, deps)

	state, err := Apply(context.Background(), state, operation.CreateIndex{Column: "id"}, deps)
	if err != nil {
		t.Fatalf("create index: %v", err)
	}
	if state.Indexes["id"].Built {
		t.Fatalf("expected freshly created index to not be built yet")
	}
	state, err = Apply(context.Background(), state, operation.RebuildIndex{Column: "id"}, deps)
	if err != nil {
		t.Fatalf("rebuild index: %v", err)
	}
	if !state.Indexes["id"].Built {
		t.Fatalf("expected index marked built after rebuild")
	}
	if _, err := Apply(context.Background(), state, operation.DropIndex{Column: "missing"}, deps); !bberrors.Is(err, bberrors.IndexNotFoundKind) {
		t.Fatalf("expected IndexNotFound, got %v", err)
	}
	if _, err := Apply(context.Background(), state, operation.CreateIndex{Column: "tags"}, deps); !bberrors.Is(err, bberrors.UnsupportedIndexTypeKind) {
		t.Fatalf("expected UnsupportedIndexType, got %v", err)
	}
}

func TestApplyViewLifecycle(t *testing.T) {
	deps := fixedSchemaDeps(map[string]schema.Schema{})
	state := New()
	state, err := Apply(context.Background(), state, operation.CreateView{Name: "high_index", ChildBundleRef: "abc123abc123"}, deps)
	if err != nil {
		t.Fatalf("create view: %v", err)
	}
	if _, err := Apply(context.Background(), state, operation.CreateView{Name: "high_index", ChildBundleRef: "def456def456"}, deps); !bberrors.Is(err, bberrors.ViewAlreadyExistsKind) {
		t.Fatalf("expected ViewAlreadyExists, got %v", err)
	}
	state, err = Apply(context.Background(), state, operation.RenameView{From: "high_index", To: "renamed"}, deps)
	if err != nil {
		t.Fatalf("rename view: %v", err)
	}
	if _, ok := state.Views["renamed"]; !ok {
		t.Fatalf("expected renamed view present")
	}
	idx := state.ViewIndex()
	if idx["abc123abc123"] != "renamed" {
		t.Fatalf("expected ViewIndex to map id to renamed name, got %+v", idx)
	}
	if _, err := Apply(context.Background(), state, operation.DropView{Name: "missing"}, deps); !bberrors.Is(err, bberrors.ViewNotFoundKind) {
		t.Fatalf("expected ViewNotFound, got %v", err)
	}
	state, err = Apply(context.Background(), state, operation.DropView{Name: "renamed"}, deps)
	if err != nil {
		t.Fatalf("drop view: %v", err)
	}
	if len(state.Views) != 0 {
		t.Fatalf("expected no views left")
	}
}
