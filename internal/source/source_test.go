package source

import (
	"context"
	"testing"

	"github.com/nvoxland/bundlebase/internal/objectstore"
	"github.com/nvoxland/bundlebase/internal/plan"
)

func TestCheckRefreshMatchesGlobAndSkipsAttached(t *testing.T) {
	objectstore.ResetMemoryStore()
	store, err := objectstore.Open("memory:///", nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	files := []string{
		"memory:///S/a.parquet",
		"memory:///S/b.parquet",
		"memory:///S/notes.txt",
		"memory:///S/nested/c.parquet",
	}
	for _, f := range files {
		if err := store.Put(ctx, f, []byte("x")); err != nil {
			t.Fatalf("put %s: %v", f, err)
		}
	}

	def := plan.SourceDef{URLPrefix: "memory:///S", Patterns: []string{"**/*.parquet"}, FunctionName: "data_directory"}
	attached := map[string]bool{"memory:///S/a.parquet": true}

	pending, err := CheckRefresh(ctx, store, def, attached)
	if err != nil {
		t.Fatalf("check refresh: %v", err)
	}
	want := []string{"memory:///S/b.parquet", "memory:///S/nested/c.parquet"}
	if len(pending) != len(want) {
		t.Fatalf("expected %v, got %v", want, pending)
	}
	for i, w := range want {
		if pending[i] != w {
			t.Fatalf("expected %v, got %v", want, pending)
		}
	}
}

func TestCheckRefreshEmptyDirectory(t *testing.T) {
	objectstore.ResetMemoryStore()
	store, err := objectstore.Open("memory:///", nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	def := plan.SourceDef{URLPrefix: "memory:///S", Patterns: []string{"**/*.parquet"}}
	pending, err := CheckRefresh(context.Background(), store, def, map[string]bool{})
	if err != nil {
		t.Fatalf("check refresh: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending files, got %v", pending)
	}
}
