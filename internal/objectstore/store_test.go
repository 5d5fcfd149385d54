package objectstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalPutGetList(t *testing.T) {
	dir := t.TempDir()
	store := NewLocal(nil)
	ctx := context.Background()

	base := filepath.Join(dir, "bundle", "_bundlebase")
	path1 := filepath.Join(base, "00000000000000000.yaml")
	path2 := filepath.Join(base, "00000000000000001.yaml")

	if err := store.Put(ctx, path1, []byte("init")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	ok, err := store.PutIfAbsent(ctx, path2, []byte("commit1"))
	if err != nil || !ok {
		t.Fatalf("PutIfAbsent: ok=%v err=%v", ok, err)
	}
	ok, err = store.PutIfAbsent(ctx, path2, []byte("commit1-again"))
	if err != nil || ok {
		t.Fatalf("PutIfAbsent should report false on existing object: ok=%v err=%v", ok, err)
	}

	data, err := store.Get(ctx, path1)
	if err != nil || string(data) != "init" {
		t.Fatalf("Get: data=%q err=%v", data, err)
	}

	names, err := store.List(ctx, base)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 entries, got %d: %v", len(names), names)
	}

	if err := store.Delete(ctx, path1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(path1); !os.IsNotExist(err) {
		t.Fatalf("expected file removed")
	}
}

func TestLocalGetNotFound(t *testing.T) {
	store := NewLocal(nil)
	_, err := store.Get(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestMemoryStoreSharedAcrossOpens(t *testing.T) {
	ResetMemoryStore()
	ctx := context.Background()
	s1, err := Open("memory:///a", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s1.Put(ctx, "memory:///a/_bundlebase/x", []byte("v")); err != nil {
		t.Fatal(err)
	}
	s2, err := Open("memory:///a", nil)
	if err != nil {
		t.Fatal(err)
	}
	data, err := s2.Get(ctx, "memory:///a/_bundlebase/x")
	if err != nil || string(data) != "v" {
		t.Fatalf("expected shared data, got %q err=%v", data, err)
	}
}

func TestConfigLongestPrefixOverride(t *testing.T) {
	cfg := NewConfig(map[string]string{"region": "us-east-1", "allow_http": "false"})
	cfg = cfg.WithOverride("s3://bucket/dev/", map[string]string{"allow_http": "true"})
	cfg = cfg.WithOverride("s3://bucket/", map[string]string{"region": "us-west-2"})

	kv := cfg.Resolve("s3://bucket/dev/path")
	if kv["allow_http"] != "true" {
		t.Fatalf("expected longest-prefix override to win, got %q", kv["allow_http"])
	}
	if kv["region"] != "us-east-1" {
		t.Fatalf("expected global fallback for unrelated key, got %q", kv["region"])
	}

	kv2 := cfg.Resolve("s3://bucket/prod/path")
	if kv2["region"] != "us-west-2" {
		t.Fatalf("expected bucket-level override, got %q", kv2["region"])
	}
	if kv2["allow_http"] != "false" {
		t.Fatalf("expected global default outside dev prefix, got %q", kv2["allow_http"])
	}
}
