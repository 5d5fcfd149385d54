package builder

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/nvoxland/bundlebase/internal/bberrors"
	"github.com/nvoxland/bundlebase/internal/commitlog"
	"github.com/nvoxland/bundlebase/internal/objectstore"
	"github.com/nvoxland/bundlebase/internal/schema"
)

// wasmPagedFunctionHex is a hand-assembled WebAssembly module exporting
// "memory", page_ptr(i32)->i32, and page_len(i32)->i32 (see
// engine.WasmFunctionBody). page 0 holds a fixed two-row JSON array
// ({"page_num":0} twice); every other page reports length 0, ending
// the scan. Used to exercise the persisted-function path without a
// real WASM toolchain in this test run.
const wasmPagedFunctionHex = "0061736d0100000001060160017f017f03030200000503010001072003066d656d6f7279020008706167655f707472000008706167655f6c656e00010a0f02040041000b0800200045411f6c0b0b25010041000b1f5b7b22706167655f6e756d223a307d2c7b22706167655f6e756d223a307d5d"

func wasmPagedFunction(t *testing.T) []byte {
	t.Helper()
	b, err := hex.DecodeString(wasmPagedFunctionHex)
	if err != nil {
		t.Fatalf("decode wasm fixture: %v", err)
	}
	return b
}

func memFactory() commitlog.StoreFactory {
	return func(bundleURL string) (objectstore.Store, error) {
		return objectstore.Open(bundleURL, nil)
	}
}

func putCSV(t *testing.T, ctx context.Context, store objectstore.Store, url, content string) {
	t.Helper()
	if err := store.Put(ctx, url, []byte(content)); err != nil {
		t.Fatalf("put %s: %v", url, err)
	}
}

func TestCreateAttachFilterCommit(t *testing.T) {
	objectstore.ResetMemoryStore()
	ctx := context.Background()
	store, _ := objectstore.Open("memory:///b1", nil)
	putCSV(t, ctx, store, "memory:///data/people.csv", "id,salary\n1,40000\n2,60000\n3,70000\n")

	b, err := Create(ctx, memFactory(), "memory:///b1", "tester")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := b.Attach(ctx, "memory:///data/people.csv", ""); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := b.Filter(ctx, "salary > $1", 50000.0); err != nil {
		t.Fatalf("filter: %v", err)
	}

	st := b.Status()
	if len(st.Changes) != 2 || st.TotalOperations != 2 {
		t.Fatalf("expected 2 staged changes with 2 total operations, got %+v", st)
	}
	if b.IsEmpty() {
		t.Fatalf("expected staged changes to be present")
	}

	n, err := b.NumRows(ctx)
	if err != nil {
		t.Fatalf("num rows before commit: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows with salary > 50000, got %d", n)
	}

	if _, err := b.Commit(ctx, "attach and filter people"); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !b.IsEmpty() {
		t.Fatalf("expected no staged changes after commit")
	}

	history := b.History()
	if len(history) != 2 {
		t.Fatalf("expected init commit + 1 commit, got %d", len(history))
	}
	if history[1].Message != "attach and filter people" {
		t.Fatalf("unexpected commit message: %q", history[1].Message)
	}

	// Reopening replays the same state from disk.
	reopened, err := Open(ctx, memFactory(), "memory:///b1", "tester")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	n, err = reopened.NumRows(ctx)
	if err != nil {
		t.Fatalf("num rows after reopen: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows after reopen, got %d", n)
	}
}

func TestCommitWithNothingStagedErrors(t *testing.T) {
	objectstore.ResetMemoryStore()
	ctx := context.Background()
	b, err := Create(ctx, memFactory(), "memory:///empty", "tester")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := b.Commit(ctx, "nothing to see here"); err == nil {
		t.Fatalf("expected an error committing with nothing staged")
	}
}

func TestExtendInheritsBundleID(t *testing.T) {
	objectstore.ResetMemoryStore()
	ctx := context.Background()
	store, _ := objectstore.Open("memory:///root", nil)
	putCSV(t, ctx, store, "memory:///data/people.csv", "id,salary\n1,40000\n2,60000\n")

	root, err := Create(ctx, memFactory(), "memory:///root", "tester")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := root.Attach(ctx, "memory:///data/people.csv", ""); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := root.Commit(ctx, "attach people"); err != nil {
		t.Fatalf("commit: %v", err)
	}

	extended, err := Extend(ctx, memFactory(), "memory:///root", "memory:///extended", "tester")
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if extended.BundleID() != root.BundleID() {
		t.Fatalf("expected extended bundle id %q to equal root %q", extended.BundleID(), root.BundleID())
	}
	n, err := extended.NumRows(ctx)
	if err != nil {
		t.Fatalf("num rows: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected extended bundle to inherit 2 rows, got %d", n)
	}
}

func TestJoinAndAttachToJoin(t *testing.T) {
	objectstore.ResetMemoryStore()
	ctx := context.Background()
	store, _ := objectstore.Open("memory:///b1", nil)
	putCSV(t, ctx, store, "memory:///data/customers.csv", "name,Country\nacme,US\nglobex,FR\n")
	putCSV(t, ctx, store, "memory:///data/regions1.csv", "Country,region\nUS,NA\n")
	putCSV(t, ctx, store, "memory:///data/regions2.csv", "Country,region\nFR,EU\n")

	b, err := Create(ctx, memFactory(), "memory:///b1", "tester")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := b.Attach(ctx, "memory:///data/customers.csv", ""); err != nil {
		t.Fatalf("attach customers: %v", err)
	}
	if err := b.Join(ctx, "regions", "memory:///data/regions1.csv", `$base."Country" = regions."Country"`); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := b.AttachToJoin(ctx, "regions", "memory:///data/regions2.csv"); err != nil {
		t.Fatalf("attach to join: %v", err)
	}

	n, err := b.NumRows(ctx)
	if err != nil {
		t.Fatalf("num rows: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 joined rows across both region files, got %d", n)
	}
}

func TestCreateViewAndOpen(t *testing.T) {
	objectstore.ResetMemoryStore()
	ctx := context.Background()
	store, _ := objectstore.Open("memory:///parent", nil)
	putCSV(t, ctx, store, "memory:///data/people.csv", "id,salary\n1,40000\n2,60000\n3,70000\n")

	b, err := Create(ctx, memFactory(), "memory:///parent", "tester")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := b.Attach(ctx, "memory:///data/people.csv", ""); err != nil {
		t.Fatalf("attach: %v", err)
	}

	fork, err := b.Select(ctx, "select * where salary > 50000")
	if err != nil {
		t.Fatalf("select fork: %v", err)
	}
	if err := b.CreateView(ctx, "high_earners", fork); err != nil {
		t.Fatalf("create view: %v", err)
	}
	if _, err := b.Commit(ctx, "attach people, define high_earners view"); err != nil {
		t.Fatalf("commit: %v", err)
	}

	names := b.Views()
	found := false
	for _, name := range names {
		if name == "high_earners" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected high_earners view in %+v", names)
	}

	view, err := b.View(ctx, "high_earners")
	if err != nil {
		t.Fatalf("open view: %v", err)
	}
	n, err := view.NumRows(ctx)
	if err != nil {
		t.Fatalf("view num rows: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected view to carry 2 filtered rows, got %d", n)
	}
	if view.BundleID() != b.BundleID() {
		t.Fatalf("expected view to report the parent's bundle id")
	}

	if err := b.DropView(ctx, "high_earners"); err != nil {
		t.Fatalf("drop view: %v", err)
	}
	if _, err := b.View(ctx, "high_earners"); !bberrors.Is(err, bberrors.ViewNotFoundKind) {
		t.Fatalf("expected ViewNotFound after drop, got %v", err)
	}
}

func TestDefineSourceRunsImmediateRefresh(t *testing.T) {
	objectstore.ResetMemoryStore()
	ctx := context.Background()
	store, _ := objectstore.Open("memory:///b1", nil)
	putCSV(t, ctx, store, "memory:///S/a.csv", "id\n1\n")
	putCSV(t, ctx, store, "memory:///S/b.csv", "id\n2\n")

	b, err := Create(ctx, memFactory(), "memory:///b1", "tester")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	count, err := b.DefineSource(ctx, "memory:///S", []string{"*.csv"}, "csv")
	if err != nil {
		t.Fatalf("define source: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected define_source to immediately attach 2 files, got %d", count)
	}

	n, err := b.NumRows(ctx)
	if err != nil {
		t.Fatalf("num rows: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows from the refreshed source, got %d", n)
	}

	more, err := b.Refresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if more != 0 {
		t.Fatalf("expected no new pending files on second refresh, got %d", more)
	}
}

func TestViewRenameAndUnknownLookup(t *testing.T) {
	objectstore.ResetMemoryStore()
	ctx := context.Background()
	store, _ := objectstore.Open("memory:///b1", nil)
	putCSV(t, ctx, store, "memory:///data/people.csv", "id\n1\n2\n")

	b, err := Create(ctx, memFactory(), "memory:///b1", "tester")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := b.Attach(ctx, "memory:///data/people.csv", ""); err != nil {
		t.Fatalf("attach: %v", err)
	}
	fork, err := b.Select(ctx, "select *")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := b.CreateView(ctx, "everyone", fork); err != nil {
		t.Fatalf("create view: %v", err)
	}
	if err := b.RenameView(ctx, "everyone", "all_people"); err != nil {
		t.Fatalf("rename view: %v", err)
	}
	if _, err := b.View(ctx, "everyone"); !bberrors.Is(err, bberrors.ViewNotFoundKind) {
		t.Fatalf("expected old name to be gone, got %v", err)
	}
	if _, err := b.View(ctx, "all_people"); err != nil {
		t.Fatalf("expected renamed view to open: %v", err)
	}

	if _, err := Open(ctx, memFactory(), "memory:///b1", "tester"); err != nil {
		t.Fatalf("reopen: %v", err)
	}
}

// TestDefineFunctionPaginatedScan mirrors the original
// test_python_function_with_multiple_pages case: an in-process body
// returns two non-empty pages, then an empty one ends the scan.
func TestDefineFunctionPaginatedScan(t *testing.T) {
	objectstore.ResetMemoryStore()
	ctx := context.Background()
	b, err := Create(ctx, memFactory(), "memory:///paged", "tester")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	s := schema.Schema{Fields: []schema.Field{{Name: "page_num", Type: schema.Int64}}}
	body := func(ctx context.Context, page int) (schema.Batch, error) {
		switch page {
		case 0:
			return schema.Batch{Schema: s, Rows: []schema.Row{{"page_num": int64(0)}, {"page_num": int64(0)}}}, nil
		case 1:
			return schema.Batch{Schema: s, Rows: []schema.Row{{"page_num": int64(1)}, {"page_num": int64(1)}}}, nil
		default:
			return schema.Batch{}, nil
		}
	}
	if err := b.DefineFunction(ctx, "paginated_func", s, "3", body); err != nil {
		t.Fatalf("define function: %v", err)
	}
	if err := b.AttachFunction(ctx, "paginated_func"); err != nil {
		t.Fatalf("attach function: %v", err)
	}

	n, err := b.NumRows(ctx)
	if err != nil {
		t.Fatalf("num rows: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 rows across both pages, got %d", n)
	}
}

// TestAttachFunctionUnknownNameErrors checks attach_function surfaces
// FunctionNotFound for a name never registered with DefineFunction.
func TestAttachFunctionUnknownNameErrors(t *testing.T) {
	objectstore.ResetMemoryStore()
	ctx := context.Background()
	b, err := Create(ctx, memFactory(), "memory:///nofunc", "tester")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := b.AttachFunction(ctx, "never_defined"); !bberrors.Is(err, bberrors.FunctionNotFoundKind) {
		t.Fatalf("expected FunctionNotFound, got %v", err)
	}
}

// TestDefinePersistedFunctionWasm exercises the persisted (bytecode
// pack) function body path end to end: the body is wired and scannable
// in the same session before any commit, and still scannable after
// commit and a fresh Open() reloads it from PackStore.
func TestDefinePersistedFunctionWasm(t *testing.T) {
	objectstore.ResetMemoryStore()
	ctx := context.Background()
	b, err := Create(ctx, memFactory(), "memory:///persisted", "tester")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	s := schema.Schema{Fields: []schema.Field{{Name: "page_num", Type: schema.Int64}}}
	if err := b.DefinePersistedFunction(ctx, "paginated_func", s, "2", wasmPagedFunction(t)); err != nil {
		t.Fatalf("define persisted function: %v", err)
	}
	if err := b.AttachFunction(ctx, "paginated_func"); err != nil {
		t.Fatalf("attach function: %v", err)
	}

	n, err := b.NumRows(ctx)
	if err != nil {
		t.Fatalf("num rows before commit: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows from the wasm body before commit, got %d", n)
	}

	if _, err := b.Commit(ctx, "define persisted function"); err != nil {
		t.Fatalf("commit: %v", err)
	}

	reopened, err := Open(ctx, memFactory(), "memory:///persisted", "tester")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	n, err = reopened.NumRows(ctx)
	if err != nil {
		t.Fatalf("num rows after reopen: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected the reloaded persisted body to still produce 2 rows, got %d", n)
	}
}

// TestDefinePersistedFunctionRejectsMalformedModule checks a bad pack
// surfaces a clean compile error rather than a disguised no-op.
func TestDefinePersistedFunctionRejectsMalformedModule(t *testing.T) {
	objectstore.ResetMemoryStore()
	ctx := context.Background()
	b, err := Create(ctx, memFactory(), "memory:///badwasm", "tester")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	s := schema.Schema{Fields: []schema.Field{{Name: "x", Type: schema.Int64}}}
	if err := b.DefinePersistedFunction(ctx, "broken", s, "1", []byte("not a wasm module")); !bberrors.Is(err, bberrors.ExecutionErrorKind) {
		t.Fatalf("expected ExecutionError for a malformed module, got %v", err)
	}
}

// TestWatchUnknownSourceErrors checks Watch rejects a urlPrefix never
// registered via DefineSource, rather than silently watching nothing.
func TestWatchUnknownSourceErrors(t *testing.T) {
	objectstore.ResetMemoryStore()
	ctx := context.Background()
	b, err := Create(ctx, memFactory(), "memory:///watchnone", "tester")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := b.Watch(ctx, "file:///does/not/exist", nil); err == nil {
		t.Fatalf("expected an error watching an unregistered source")
	}
}
