package packstore

import (
	"context"
	"testing"

	"github.com/nvoxland/bundlebase/internal/objectstore"
)

func TestPutIsIdempotent(t *testing.T) {
	objectstore.ResetMemoryStore()
	objects, err := objectstore.Open("memory:///pack-test", nil)
	if err != nil {
		t.Fatal(err)
	}
	store := New(objects, "memory:///pack-test")
	ctx := context.Background()

	fp1, err := store.Put(ctx, []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if len(fp1) != 12 {
		t.Fatalf("expected 12-hex fingerprint, got %q", fp1)
	}
	fp2, err := store.Put(ctx, []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if fp1 != fp2 {
		t.Fatalf("expected identical fingerprints for identical content: %q vs %q", fp1, fp2)
	}

	data, err := store.Get(ctx, fp1)
	if err != nil || string(data) != "hello" {
		t.Fatalf("Get: data=%q err=%v", data, err)
	}

	exists, err := store.Exists(ctx, fp1)
	if err != nil || !exists {
		t.Fatalf("Exists: %v %v", exists, err)
	}
	exists, err = store.Exists(ctx, "000000000000")
	if err != nil || exists {
		t.Fatalf("Exists for missing fp should be false: %v %v", exists, err)
	}
}
