package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchFiresOnNewFile(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := make(chan string, 1)
	stop, err := Watch(ctx, dir, func(path string) {
		select {
		case seen <- path:
		default:
		}
	})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer stop()

	target := filepath.Join(dir, "new.csv")
	if err := os.WriteFile(target, []byte("id\n1\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	select {
	case path := <-seen:
		if path != target {
			t.Fatalf("expected onChange for %q, got %q", target, path)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for watch callback")
	}
}

func TestWatchMissingDirectoryIsNoOp(t *testing.T) {
	stop, err := Watch(context.Background(), filepath.Join(os.TempDir(), "does-not-exist-bundlebase-watch"), func(string) {})
	if err != nil {
		t.Fatalf("expected a nil-error no-op, got %v", err)
	}
	stop()
}
