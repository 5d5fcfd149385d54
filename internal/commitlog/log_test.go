package commitlog

import (
	"context"
	"testing"
	"time"

	"github.com/nvoxland/bundlebase/internal/bberrors"
	"github.com/nvoxland/bundlebase/internal/objectstore"
	"github.com/nvoxland/bundlebase/internal/operation"
)

func memFactory() StoreFactory {
	return func(bundleURL string) (objectstore.Store, error) {
		return objectstore.Open(bundleURL, nil)
	}
}

func mustWriteInit(t *testing.T, w *Writer, e Envelope) LocalCommit {
	t.Helper()
	lc, err := w.WriteInit(context.Background(), e)
	if err != nil {
		t.Fatalf("WriteInit: %v", err)
	}
	return lc
}

func TestInitAppendAndVersion(t *testing.T) {
	objectstore.ResetMemoryStore()
	ctx := context.Background()
	bundleURL := "memory:///b1"
	store, _ := objectstore.Open(bundleURL, nil)
	w := NewWriter(store, bundleURL)

	init := mustWriteInit(t, w, Envelope{ID: "abc123"})
	v0 := init.Fingerprint

	change, err := NewChange("attach data", []operation.Operation{operation.Attach{URL: "memory:///fixtures/a.csv"}})
	if err != nil {
		t.Fatal(err)
	}
	c1, err := w.Append(ctx, init.Index, init.Fingerprint, Envelope{
		Author: "tester", Timestamp: time.Now(), Message: "first", Changes: []Change{change},
	})
	if err != nil {
		t.Fatal(err)
	}
	if c1.Envelope.Parent != v0 {
		t.Fatalf("expected parent to equal init fingerprint")
	}

	chain, err := Load(ctx, memFactory(), bundleURL)
	if err != nil {
		t.Fatal(err)
	}
	if chain.BundleID != "abc123" {
		t.Fatalf("expected bundle id abc123, got %q", chain.BundleID)
	}
	if len(chain.Full) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(chain.Full))
	}
	if chain.Version() != c1.Fingerprint {
		t.Fatalf("version should equal head commit fingerprint")
	}
	if len(chain.Version()) != 12 {
		t.Fatalf("version should be 12 hex chars, got %q", chain.Version())
	}
}

func TestConcurrentWriteConflict(t *testing.T) {
	objectstore.ResetMemoryStore()
	ctx := context.Background()
	bundleURL := "memory:///b2"
	store, _ := objectstore.Open(bundleURL, nil)
	w := NewWriter(store, bundleURL)
	init := mustWriteInit(t, w, Envelope{ID: "id1"})

	_, err := w.Append(ctx, init.Index, init.Fingerprint, Envelope{Author: "a", Timestamp: time.Now(), Message: "m1"})
	if err != nil {
		t.Fatal(err)
	}
	// Racing writer reusing the stale head (index 0) should conflict.
	_, err = w.Append(ctx, init.Index, init.Fingerprint, Envelope{Author: "b", Timestamp: time.Now(), Message: "m2"})
	if err == nil {
		t.Fatal("expected ConcurrentWriteConflict")
	}
	if !bberrors.Is(err, bberrors.ConcurrentWriteConflictKind) {
		t.Fatalf("expected ConcurrentWriteConflict, got %v", err)
	}
}

func TestBundleAlreadyExists(t *testing.T) {
	objectstore.ResetMemoryStore()
	ctx := context.Background()
	bundleURL := "memory:///b3"
	store, _ := objectstore.Open(bundleURL, nil)
	w := NewWriter(store, bundleURL)
	mustWriteInit(t, w, Envelope{ID: "id1"})
	_, err := w.WriteInit(ctx, Envelope{ID: "id2"})
	if !bberrors.Is(err, bberrors.BundleAlreadyExistsKind) {
		t.Fatalf("expected BundleAlreadyExists, got %v", err)
	}
}

func TestFromChainInheritsBundleID(t *testing.T) {
	objectstore.ResetMemoryStore()
	ctx := context.Background()
	factory := memFactory()

	rootURL := "memory:///p1"
	rootStore, _ := objectstore.Open(rootURL, nil)
	rootW := NewWriter(rootStore, rootURL)
	mustWriteInit(t, rootW, Envelope{ID: "root-id"})

	p2URL := "memory:///p2"
	p2Store, _ := objectstore.Open(p2URL, nil)
	p2W := NewWriter(p2Store, p2URL)
	mustWriteInit(t, p2W, Envelope{From: rootURL})

	p3URL := "memory:///p3"
	p3Store, _ := objectstore.Open(p3URL, nil)
	p3W := NewWriter(p3Store, p3URL)
	mustWriteInit(t, p3W, Envelope{From: p2URL})

	for _, u := range []string{rootURL, p2URL, p3URL} {
		chain, err := Load(ctx, factory, u)
		if err != nil {
			t.Fatalf("Load(%q): %v", u, err)
		}
		if chain.BundleID != "root-id" {
			t.Fatalf("Load(%q): expected bundle id root-id, got %q", u, chain.BundleID)
		}
	}
}

func TestFromChainCycleRejected(t *testing.T) {
	objectstore.ResetMemoryStore()
	ctx := context.Background()
	factory := memFactory()

	aURL := "memory:///cyc-a"
	bURL := "memory:///cyc-b"
	aStore, _ := objectstore.Open(aURL, nil)
	bStore, _ := objectstore.Open(bURL, nil)
	mustWriteInit(t, NewWriter(aStore, aURL), Envelope{From: bURL})
	mustWriteInit(t, NewWriter(bStore, bURL), Envelope{From: aURL})

	_, err := Load(ctx, factory, aURL)
	if !bberrors.Is(err, bberrors.InvalidUrlKind) {
		t.Fatalf("expected InvalidUrl cycle error, got %v", err)
	}
}

func TestEncodeDecodeCommitRoundTrip(t *testing.T) {
	change, err := NewChange("attach", []operation.Operation{
		operation.Attach{URL: "a"},
		operation.Filter{Expr: "x > $1", Params: []interface{}{1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e := Envelope{Parent: "abcdefabcdef", Author: "tester", Timestamp: ts, Message: "hi", Changes: []Change{change}}
	raw, err := Encode(e)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Parent != e.Parent || decoded.Author != e.Author || !decoded.Timestamp.Equal(e.Timestamp) || decoded.Message != e.Message {
		t.Fatalf("round trip mismatch: %+v vs %+v", decoded, e)
	}
	if len(decoded.Changes) != 1 || decoded.Changes[0].ID != change.ID {
		t.Fatalf("change round trip mismatch: %+v", decoded.Changes)
	}
	ok, err := decoded.Changes[0].VerifyID()
	if err != nil || !ok {
		t.Fatalf("expected change id to verify: ok=%v err=%v", ok, err)
	}
}

func TestInitCommitExclusivity(t *testing.T) {
	_, err := Encode(Envelope{ID: "x", From: "y"})
	if err == nil {
		t.Fatal("expected validation error for both id and from set")
	}
}
