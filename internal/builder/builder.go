// Package builder implements spec §4.5: the in-memory mutable handle
// that accumulates staged changes on top of a committed head, exposes
// the fluent operation API, and commits them atomically.
package builder

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nvoxland/bundlebase/internal/bberrors"
	"github.com/nvoxland/bundlebase/internal/commitlog"
	"github.com/nvoxland/bundlebase/internal/decoder"
	"github.com/nvoxland/bundlebase/internal/engine"
	"github.com/nvoxland/bundlebase/internal/fingerprint"
	"github.com/nvoxland/bundlebase/internal/identity"
	"github.com/nvoxland/bundlebase/internal/index"
	"github.com/nvoxland/bundlebase/internal/objectstore"
	"github.com/nvoxland/bundlebase/internal/operation"
	"github.com/nvoxland/bundlebase/internal/packstore"
	"github.com/nvoxland/bundlebase/internal/plan"
	"github.com/nvoxland/bundlebase/internal/schema"
	"github.com/nvoxland/bundlebase/internal/source"
	"github.com/nvoxland/bundlebase/internal/views"
)

// Builder is the staged-changes handle of spec §4.5. Mutator methods
// stage exactly one Change per call and eagerly apply it to the
// in-memory resolved plan.State, so reads and status() never need a
// separate recompilation step.
type Builder struct {
	store        objectstore.Store
	storeFactory commitlog.StoreFactory
	bundleURL    string
	author       string

	decoders *decoder.Registry
	packs    *packstore.Store
	indexMgr *index.Manager

	chain  *commitlog.Chain
	staged []commitlog.Change
	state  plan.State

	functionBodies map[string]engine.FunctionBody
	pendingPacks   map[string][]byte // fingerprint -> bytes awaiting commit (spec §4.5 step 1)
}

// Create writes a fresh InitCommit at bundleURL (spec §4.9 "create").
// Returns BundleAlreadyExists if one is already present.
func Create(ctx context.Context, factory commitlog.StoreFactory, bundleURL, author string) (*Builder, error) {
	store, err := factory(bundleURL)
	if err != nil {
		return nil, err
	}
	writer := commitlog.NewWriter(store, bundleURL)
	if _, err := writer.WriteInit(ctx, commitlog.Envelope{ID: identity.New(), Timestamp: time.Now().UTC()}); err != nil {
		return nil, err
	}
	return Open(ctx, factory, bundleURL, author)
}

// Open loads bundleURL's full commit chain (following any FROM pointers)
// and folds every operation into a resolved plan.State.
func Open(ctx context.Context, factory commitlog.StoreFactory, bundleURL, author string) (*Builder, error) {
	store, err := factory(bundleURL)
	if err != nil {
		return nil, err
	}
	chain, err := commitlog.Load(ctx, factory, bundleURL)
	if err != nil {
		return nil, err
	}
	b := &Builder{
		store: store, storeFactory: factory, bundleURL: bundleURL, author: author,
		decoders: decoder.NewRegistry(), packs: packstore.New(store, bundleURL),
		chain: chain, state: plan.New(),
		functionBodies: map[string]engine.FunctionBody{}, pendingPacks: map[string][]byte{},
	}
	b.indexMgr = index.NewManager(b.packs)

	state := plan.New()
	for _, lc := range chain.Full {
		for _, change := range lc.Envelope.Changes {
			state, err = plan.ApplyAll(ctx, state, change.Operations, b.deps())
			if err != nil {
				return nil, bberrors.Wrap(bberrors.PlanErrorKind, err, "replaying commit history of %q", bundleURL)
			}
		}
	}
	b.state = state

	// Reload any persisted (wazero/WASM) function bodies whose pack was
	// committed in an earlier session — in-process bodies (spec §9's
	// function-table-index case) have no pack to reload: their
	// definition is replayed, but scanning them fails with
	// FunctionNotFound until DefineFunction is called again this session.
	for name, def := range state.Functions {
		exists, err := b.packs.Exists(ctx, def.BodyRef)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}
		data, err := b.packs.Get(ctx, def.BodyRef)
		if err != nil {
			return nil, err
		}
		fb, err := engine.WasmFunctionBody(ctx, data)
		if err != nil {
			return nil, bberrors.Wrap(bberrors.ExecutionErrorKind, err, "loading persisted function %q", name)
		}
		b.functionBodies[name] = fb
	}
	return b, nil
}

// Extend opens bundleURL, writes a new InitCommit at newURL whose From
// points back at it, and returns a Builder opened on newURL (spec
// §4.9 "extend"). The new bundle's observable BundleID equals the root
// bundle's, resolved by commitlog.Load walking the From chain.
func Extend(ctx context.Context, factory commitlog.StoreFactory, bundleURL, newURL, author string) (*Builder, error) {
	if _, err := commitlog.Load(ctx, factory, bundleURL); err != nil {
		return nil, err
	}
	newStore, err := factory(newURL)
	if err != nil {
		return nil, err
	}
	writer := commitlog.NewWriter(newStore, newURL)
	if _, err := writer.WriteInit(ctx, commitlog.Envelope{From: bundleURL, Timestamp: time.Now().UTC()}); err != nil {
		return nil, err
	}
	return Open(ctx, factory, newURL, author)
}

func (b *Builder) deps() plan.Deps {
	return plan.Deps{
		ResolveSchema: func(ctx context.Context, url, formatHint string) (schema.Schema, error) {
			s, _, err := b.decoders.DecodeURL(ctx, b.store, url, formatHint)
			return s, err
		},
		ParseSchema: schema.ParseDescriptor,
	}
}

// Engine returns the execution engine bound to this Builder's store,
// decoders, and per-Builder function registry (spec §5 "the function
// registry is per-Builder").
func (b *Builder) Engine() engine.Engine {
	return engine.New(b.store, b.decoders, b.functionBodies)
}

func (b *Builder) stage(ctx context.Context, op operation.Operation) error {
	newState, err := plan.Apply(ctx, b.state, op, b.deps())
	if err != nil {
		return err
	}
	change, err := commitlog.NewChange(op.Describe(), []operation.Operation{op})
	if err != nil {
		return err
	}
	b.staged = append(b.staged, change)
	b.state = newState
	return nil
}

// clone returns a value-independent copy of b for Select's fork (spec
// §4.5 "select(sql) is special: it returns a forked Builder").
func (b *Builder) clone() *Builder {
	nb := *b
	nb.staged = append([]commitlog.Change{}, b.staged...)
	nb.functionBodies = make(map[string]engine.FunctionBody, len(b.functionBodies))
	for k, v := range b.functionBodies {
		nb.functionBodies[k] = v
	}
	nb.pendingPacks = make(map[string][]byte, len(b.pendingPacks))
	for k, v := range b.pendingPacks {
		nb.pendingPacks[k] = v
	}
	return &nb
}

// --- Mutators (spec §6 operation variants; each stages one change) ---

func (b *Builder) Attach(ctx context.Context, url, formatHint string) error {
	return b.stage(ctx, operation.Attach{URL: url, FormatHint: formatHint})
}

func (b *Builder) AttachFunction(ctx context.Context, name string) error {
	return b.stage(ctx, operation.AttachFunction{Name: name})
}

// DefineFunction registers an in-process function body. There is no
// serialized byte payload to content-address for a Go closure, so
// BodyRef is a synthetic marker over name+version (spec §9's
// "function-table index" case) rather than a PackStore fingerprint.
// Use DefinePersistedFunction for the byte-payload case.
func (b *Builder) DefineFunction(ctx context.Context, name string, s schema.Schema, version string, body engine.FunctionBody) error {
	op := operation.DefineFunction{
		Name: name, Schema: s.Describe(), Version: version,
		BodyRef: fingerprint.OfString(name + "@" + version),
	}
	if err := b.stage(ctx, op); err != nil {
		return err
	}
	b.functionBodies[name] = body
	return nil
}

// DefinePersistedFunction registers a function whose body is a
// serialized byte payload — a WebAssembly module, the concrete shape
// spec §9's "for persisted bundles, a serialized body (e.g. bytecode
// pack)" takes here, executed via github.com/tetratelabs/wazero behind
// the same FunctionBody contract DefineFunction's in-process closures
// satisfy. body must export "memory" and two i32 functions,
// page_ptr(page) and page_len(page), the same page_len==0 stop rule
// MemEngine.evalScan already applies to in-process bodies (see
// engine.WasmFunctionBody). Its fingerprint is computed eagerly
// (pure), but the bytes are written to PackStore only at Commit time
// (spec §4.5 step 1), so a later Select("...") fork that never commits
// never orphans a pack write. The executable FunctionBody, unlike the
// pack write, is wired immediately so the function can be attached and
// scanned within the same session before any commit.
func (b *Builder) DefinePersistedFunction(ctx context.Context, name string, s schema.Schema, version string, body []byte) error {
	fp := fingerprint.Of(body)
	op := operation.DefineFunction{Name: name, Schema: s.Describe(), Version: version, BodyRef: fp}
	fb, err := engine.WasmFunctionBody(ctx, body)
	if err != nil {
		return err
	}
	if err := b.stage(ctx, op); err != nil {
		return err
	}
	b.pendingPacks[fp] = body
	b.functionBodies[name] = fb
	return nil
}

func (b *Builder) RemoveColumn(ctx context.Context, name string) error {
	return b.stage(ctx, operation.RemoveColumn{Name: name})
}

func (b *Builder) RenameColumn(ctx context.Context, from, to string) error {
	return b.stage(ctx, operation.RenameColumn{From: from, To: to})
}

func (b *Builder) Filter(ctx context.Context, expr string, params ...interface{}) error {
	return b.stage(ctx, operation.Filter{Expr: expr, Params: params})
}

// Select returns a forked Builder (spec §4.5); b is unchanged.
func (b *Builder) Select(ctx context.Context, sql string) (*Builder, error) {
	fork := b.clone()
	if err := fork.stage(ctx, operation.Select{SQL: sql}); err != nil {
		return nil, err
	}
	return fork, nil
}

// SelectColumns is the projection-list form of Select. The observed
// Python test suite only forks the SQL form (spec §9 Open Question);
// this implementation forks both forms for consistency — see
// DESIGN.md's decision record.
func (b *Builder) SelectColumns(ctx context.Context, columns []string) (*Builder, error) {
	fork := b.clone()
	if err := fork.stage(ctx, operation.Select{Projection: columns}); err != nil {
		return nil, err
	}
	return fork, nil
}

func (b *Builder) Join(ctx context.Context, name, url, predicate string) error {
	return b.stage(ctx, operation.Join{Name: name, URL: url, Predicate: predicate})
}

func (b *Builder) AttachToJoin(ctx context.Context, name, url string) error {
	return b.stage(ctx, operation.AttachToJoin{Name: name, URL: url})
}

func (b *Builder) CreateIndex(ctx context.Context, column string) error {
	return b.stage(ctx, operation.CreateIndex{Column: column})
}

func (b *Builder) DropIndex(ctx context.Context, column string) error {
	return b.stage(ctx, operation.DropIndex{Column: column})
}

func (b *Builder) RebuildIndex(ctx context.Context, column string) error {
	return b.stage(ctx, operation.RebuildIndex{Column: column})
}

// BuildIndex materializes column's index pack over the current plan's
// rows (spec §4.8) and returns its fingerprint.
func (b *Builder) BuildIndex(ctx context.Context, column string) (string, error) {
	batch, err := b.Engine().Compile(ctx, b.state)
	if err != nil {
		return "", err
	}
	return b.indexMgr.Materialize(ctx, batch, column)
}

func (b *Builder) SetName(ctx context.Context, value string) error {
	return b.stage(ctx, operation.SetName{Value: value})
}

func (b *Builder) SetDescription(ctx context.Context, value string) error {
	return b.stage(ctx, operation.SetDescription{Value: value})
}

func (b *Builder) SetConfig(ctx context.Context, key, value, urlPrefix string) error {
	return b.stage(ctx, operation.SetConfig{Key: key, Value: value, URLPrefix: urlPrefix})
}

// --- Views (spec §4.6) ---

func (b *Builder) CreateView(ctx context.Context, name string, fork *Builder) error {
	// The fork starts with a copy of b's staged changes; those reach the
	// view through the parent's own commit (the child FROMs the parent),
	// so only the changes the fork staged after that shared prefix go
	// into the child's commit.
	shared := 0
	for shared < len(b.staged) && shared < len(fork.staged) && fork.staged[shared].ID == b.staged[shared].ID {
		shared++
	}
	var ops []operation.Operation
	for _, c := range fork.staged[shared:] {
		ops = append(ops, c.Operations...)
	}
	op, err := views.Create(ctx, b.store, b.bundleURL, name, ops, b.author, time.Now().UTC())
	if err != nil {
		return err
	}
	return b.stage(ctx, op)
}

func (b *Builder) RenameView(ctx context.Context, from, to string) error {
	return b.stage(ctx, operation.RenameView{From: from, To: to})
}

func (b *Builder) DropView(ctx context.Context, name string) error {
	return b.stage(ctx, operation.DropView{Name: name})
}

// View opens the named (or id-addressed) view as its own Builder.
func (b *Builder) View(ctx context.Context, nameOrID string) (*Builder, error) {
	_, childURL, err := views.Resolve(b.state, b.bundleURL, nameOrID)
	if err != nil {
		return nil, err
	}
	return Open(ctx, b.storeFactory, childURL, b.author)
}

// Views returns the id->name mapping (spec §8 scenario 5).
func (b *Builder) Views() map[string]string {
	return b.state.ViewIndex()
}

// --- Source / refresh (spec §4.7) ---

func (b *Builder) DefineSource(ctx context.Context, urlPrefix string, patterns []string, functionName string) (int, error) {
	if err := b.stage(ctx, operation.DefineSource{URLPrefix: urlPrefix, Patterns: patterns, FunctionName: functionName}); err != nil {
		return 0, err
	}
	return b.Refresh(ctx)
}

// PendingAttach names a file a registered source has seen but not yet
// attached.
type PendingAttach struct {
	SourceID string
	URL      string
}

// CheckRefresh reports, per registered source, files that match its
// glob patterns and are not already attached (spec §4.7).
func (b *Builder) CheckRefresh(ctx context.Context) ([]PendingAttach, error) {
	var out []PendingAttach
	for _, id := range sortedSourceIDs(b.state.Sources) {
		def := b.state.Sources[id]
		pending, err := source.CheckRefresh(ctx, b.store, def, b.state.AttachedURLs)
		if err != nil {
			return nil, err
		}
		for _, url := range pending {
			out = append(out, PendingAttach{SourceID: id, URL: url})
		}
	}
	return out, nil
}

// Refresh stages one Attach per pending URL, grouped into one change
// per source (spec §4.7), and returns the count of newly attached files.
func (b *Builder) Refresh(ctx context.Context) (int, error) {
	pending, err := b.CheckRefresh(ctx)
	if err != nil {
		return 0, err
	}
	bySource := map[string][]string{}
	var order []string
	for _, p := range pending {
		if _, ok := bySource[p.SourceID]; !ok {
			order = append(order, p.SourceID)
		}
		bySource[p.SourceID] = append(bySource[p.SourceID], p.URL)
	}

	count := 0
	for _, sourceID := range order {
		def := b.state.Sources[sourceID]
		var ops []operation.Operation
		for _, url := range bySource[sourceID] {
			op := operation.Attach{URL: url, FormatHint: def.FunctionName}
			newState, err := plan.Apply(ctx, b.state, op, b.deps())
			if err != nil {
				return count, err
			}
			b.state = newState
			ops = append(ops, op)
			count++
		}
		change, err := commitlog.NewChange(fmt.Sprintf("refresh source %q", sourceID), ops)
		if err != nil {
			return count, err
		}
		b.staged = append(b.staged, change)
	}
	return count, nil
}

// Watch starts a reactive watch on a file:// source previously
// registered via DefineSource (urlPrefix is the same key passed to
// DefineSource), calling Refresh whenever source.Watch's debounced
// fsnotify events fire — a supplement to polling CheckRefresh/Refresh
// on a timer, not a replacement for it (spec §4.7; source.Watch is a
// documented no-op for memory:// and s3:// prefixes). onRefresh, if
// non-nil, is called with the result of each triggered Refresh.
func (b *Builder) Watch(ctx context.Context, urlPrefix string, onRefresh func(count int, err error)) (stop func(), err error) {
	if _, ok := b.state.Sources[urlPrefix]; !ok {
		return nil, bberrors.New(bberrors.PlanErrorKind, "unknown source %q", urlPrefix)
	}
	dir := strings.TrimPrefix(urlPrefix, "file://")
	return source.Watch(ctx, dir, func(string) {
		count, err := b.Refresh(ctx)
		if onRefresh != nil {
			onRefresh(count, err)
		}
	})
}

func sortedSourceIDs(m map[string]plan.SourceDef) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// --- Status / history / commit (spec §4.5, SPEC_FULL.md "supplemented features") ---

// ChangeStatus is one entry of Status().
type ChangeStatus struct {
	ID             string
	Description    string
	OperationCount int
}

// Status is status()'s return shape.
type Status struct {
	Changes         []ChangeStatus
	TotalOperations int
}

func (b *Builder) Status() Status {
	st := Status{}
	for _, c := range b.staged {
		st.Changes = append(st.Changes, ChangeStatus{ID: c.ID, Description: c.Description, OperationCount: c.OperationCount()})
		st.TotalOperations += c.OperationCount()
	}
	return st
}

// IsEmpty reports whether there are no staged changes (spec §8 invariant 5).
func (b *Builder) IsEmpty() bool { return len(b.staged) == 0 }

// CommitInfo is one entry of History().
type CommitInfo struct {
	Index       int
	Parent      string
	Author      string
	Timestamp   time.Time
	Message     string
	ChangeCount int
}

// History lists the resolved commit chain, oldest first — a read-only
// listing, not time travel (SPEC_FULL.md supplemented feature).
func (b *Builder) History() []CommitInfo {
	out := make([]CommitInfo, 0, len(b.chain.Full))
	for _, lc := range b.chain.Full {
		out = append(out, CommitInfo{
			Index: lc.Index, Parent: lc.Envelope.Parent, Author: lc.Envelope.Author,
			Timestamp: lc.Envelope.Timestamp, Message: lc.Envelope.Message, ChangeCount: len(lc.Envelope.Changes),
		})
	}
	return out
}

// Commit serializes the staged changes into a new commit file (spec §4.5).
func (b *Builder) Commit(ctx context.Context, message string) (commitlog.LocalCommit, error) {
	if b.IsEmpty() {
		return commitlog.LocalCommit{}, bberrors.New(bberrors.PlanErrorKind, "nothing staged to commit")
	}
	for fp, data := range b.pendingPacks {
		if _, err := b.store.PutIfAbsent(ctx, b.packs.URL(fp), data); err != nil {
			return commitlog.LocalCommit{}, err
		}
	}
	env := commitlog.Envelope{Author: b.author, Timestamp: time.Now().UTC(), Message: message, Changes: b.staged}
	writer := commitlog.NewWriter(b.store, b.bundleURL)
	lc, err := writer.Append(ctx, b.chain.HeadIndex(), b.chain.HeadFingerprint(), env)
	if err != nil {
		return commitlog.LocalCommit{}, err
	}
	b.chain.Local = append(b.chain.Local, lc)
	b.chain.Full = append(b.chain.Full, lc)
	b.staged = nil
	b.pendingPacks = map[string][]byte{}
	return lc, nil
}

// Version is the bundle's current 12-hex version (spec §3/§4.3).
func (b *Builder) Version() string { return b.chain.Version() }

// BundleID is the root bundle id, resolved through any FROM chain (spec §4.9).
func (b *Builder) BundleID() string { return b.chain.BundleID }

// URL is this Builder's own bundle URL (not necessarily the root of its FROM chain).
func (b *Builder) URL() string { return b.bundleURL }

// Schema is the current resolved output schema.
func (b *Builder) Schema() schema.Schema { return b.state.Schema }

// NumRows compiles the current plan and counts its rows.
func (b *Builder) NumRows(ctx context.Context) (int, error) {
	batch, err := b.Engine().Compile(ctx, b.state)
	if err != nil {
		return 0, err
	}
	return len(batch.Rows), nil
}

// ToDict materializes the current plan into a dict-of-columns-and-rows
// shape (SPEC_FULL.md "to_dict() shape"). Fails with NotFound("no
// data") on an empty bundle (spec §8 boundary behavior).
func (b *Builder) ToDict(ctx context.Context) (map[string]interface{}, error) {
	if b.state.IsEmpty() {
		return nil, bberrors.NotFound("no data")
	}
	batch, err := b.Engine().Compile(ctx, b.state)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]interface{}, len(batch.Rows))
	for i, r := range batch.Rows {
		rows[i] = map[string]interface{}(r)
	}
	return map[string]interface{}{"schema": batch.Schema.Names(), "rows": rows}, nil
}

// StreamBatches compiles the current plan and returns its rows as a
// single schema.Batch — the reference engine materializes eagerly
// rather than truly streaming (see the engine.Engine doc).
func (b *Builder) StreamBatches(ctx context.Context) (schema.Batch, error) {
	return b.Engine().Compile(ctx, b.state)
}
