package plan

import (
	"context"
	"sort"

	"github.com/nvoxland/bundlebase/internal/bberrors"
	"github.com/nvoxland/bundlebase/internal/operation"
	"github.com/nvoxland/bundlebase/internal/schema"
)

// Deps supplies the two reads Apply needs that aren't pure: resolving
// an attached URL's schema (via the decoder registry, spec §4.4
// "schema auto-detected via the decoder registry") and parsing a
// DefineFunction's declared schema descriptor. Everything else about
// Apply is a pure function of (State, Operation).
type Deps struct {
	ResolveSchema func(ctx context.Context, url, formatHint string) (schema.Schema, error)
	ParseSchema   func(desc string) (schema.Schema, error)
}

// Apply is the resolver's transition function, plan' = apply(plan, op)
// (spec §4.4). It never mutates state in place; it returns a new State
// value, sharing unmodified sub-trees and maps with the input.
func Apply(ctx context.Context, state State, op operation.Operation, deps Deps) (State, error) {
	switch o := op.(type) {
	case operation.Attach:
		return applyAttach(ctx, state, o, deps)
	case operation.AttachFunction:
		return applyAttachFunction(state, o)
	case operation.DefineFunction:
		return applyDefineFunction(state, o, deps)
	case operation.DefineSource:
		return applyDefineSource(state, o)
	case operation.RemoveColumn:
		return applyRemoveColumn(state, o)
	case operation.RenameColumn:
		return applyRenameColumn(state, o)
	case operation.Filter:
		return applyFilter(state, o)
	case operation.Select:
		return applySelect(state, o)
	case operation.Join:
		return applyJoin(ctx, state, o, deps)
	case operation.AttachToJoin:
		return applyAttachToJoin(ctx, state, o, deps)
	case operation.CreateIndex:
		return applyCreateIndex(state, o)
	case operation.DropIndex:
		return applyDropIndex(state, o)
	case operation.RebuildIndex:
		return applyRebuildIndex(state, o)
	case operation.CreateView:
		return applyCreateView(state, o)
	case operation.RenameView:
		return applyRenameView(state, o)
	case operation.DropView:
		return applyDropView(state, o)
	case operation.SetName:
		state.Name = o.Value
		return state, nil
	case operation.SetDescription:
		state.Description = o.Value
		return state, nil
	case operation.SetConfig:
		return applySetConfig(state, o)
	default:
		return state, bberrors.New(bberrors.PlanErrorKind, "unhandled operation kind %q", op.Kind())
	}
}

// ApplyAll folds a whole operation sequence left to right.
func ApplyAll(ctx context.Context, state State, ops []operation.Operation, deps Deps) (State, error) {
	for _, op := range ops {
		var err error
		state, err = Apply(ctx, state, op, deps)
		if err != nil {
			return state, err
		}
	}
	return state, nil
}

func unionInto(root Node, add Node) Node {
	if root.Kind == NodeEmpty {
		return add
	}
	if root.Kind == NodeUnion {
		root.Inputs = append(append([]Node{}, root.Inputs...), add)
		return root
	}
	return Node{Kind: NodeUnion, Inputs: []Node{root, add}}
}

func applyAttach(ctx context.Context, state State, o operation.Attach, deps Deps) (State, error) {
	s, err := deps.ResolveSchema(ctx, o.URL, o.FormatHint)
	if err != nil {
		return state, err
	}
	merged, err := schema.Merge(state.Schema, s)
	if err != nil {
		return state, err
	}
	state.Schema = merged
	state.Root = unionInto(state.Root, Node{Kind: NodeScan, ScanURL: o.URL, ScanFormatHint: o.FormatHint})
	state.AttachedURLs = copyStrMap(state.AttachedURLs)
	state.AttachedURLs[o.URL] = true
	return state, nil
}

func applyAttachFunction(state State, o operation.AttachFunction) (State, error) {
	fn, ok := state.Functions[o.Name]
	if !ok {
		return state, bberrors.FunctionNotFound(o.Name, functionNames(state.Functions))
	}
	merged, err := schema.Merge(state.Schema, fn.resolved)
	if err != nil {
		return state, err
	}
	state.Schema = merged
	state.Root = unionInto(state.Root, Node{Kind: NodeScan, ScanFunction: o.Name})
	url := "function://" + o.Name
	state.AttachedURLs = copyStrMap(state.AttachedURLs)
	state.AttachedURLs[url] = true
	return state, nil
}

func applyDefineFunction(state State, o operation.DefineFunction, deps Deps) (State, error) {
	parsed, err := deps.ParseSchema(o.Schema)
	if err != nil {
		return state, bberrors.Wrap(bberrors.PlanErrorKind, err, "parsing schema for function %q", o.Name)
	}
	state.Functions = copyFunctions(state.Functions)
	state.Functions[o.Name] = FunctionDef{
		Name: o.Name, Schema: o.Schema, Version: o.Version, BodyRef: o.BodyRef, resolved: parsed,
	}
	return state, nil
}

func applyDefineSource(state State, o operation.DefineSource) (State, error) {
	state.Sources = copySources(state.Sources)
	state.Sources[o.URLPrefix] = SourceDef{
		URLPrefix: o.URLPrefix, Patterns: append([]string{}, o.Patterns...), FunctionName: o.FunctionName,
	}
	return state, nil
}

func applyRemoveColumn(state State, o operation.RemoveColumn) (State, error) {
	if _, ok := state.Schema.Column(o.Name); !ok {
		return state, bberrors.ColumnNotFound(o.Name, state.Schema.Names())
	}
	state.Schema = state.Schema.Without(o.Name)
	root := state.Root
	state.Root = Node{Kind: NodeRemove, RemoveInput: &root, RemoveColumn: o.Name}
	return state, nil
}

func applyRenameColumn(state State, o operation.RenameColumn) (State, error) {
	if _, ok := state.Schema.Column(o.From); !ok {
		return state, bberrors.ColumnNotFound(o.From, state.Schema.Names())
	}
	state.Schema = state.Schema.Renamed(o.From, o.To)
	root := state.Root
	state.Root = Node{Kind: NodeRename, RenameInput: &root, RenameFrom: o.From, RenameTo: o.To}
	return state, nil
}

func applyFilter(state State, o operation.Filter) (State, error) {
	root := state.Root
	state.Root = Node{Kind: NodeFilter, FilterInput: &root, FilterExpr: o.Expr, FilterParams: o.Params}
	return state, nil
}

func applySelect(state State, o operation.Select) (State, error) {
	if o.SQL != "" {
		root := state.Root
		state.Root = Node{Kind: NodeSQL, SQLInput: &root, SQL: o.SQL}
		// schema of an arbitrary SQL statement can only be determined by
		// the execution engine; the fold leaves the prior schema in place
		// as a best-effort approximation until execution resolves it.
		return state, nil
	}
	projected, err := state.Schema.Project(o.Projection)
	if err != nil {
		return state, err
	}
	state.Schema = projected
	root := state.Root
	state.Root = Node{Kind: NodeProject, ProjectInput: &root, ProjectColumns: append([]string{}, o.Projection...)}
	return state, nil
}

func applyJoin(ctx context.Context, state State, o operation.Join, deps Deps) (State, error) {
	s, err := deps.ResolveSchema(ctx, o.URL, "")
	if err != nil {
		return state, err
	}
	right := Node{Kind: NodeScan, ScanURL: o.URL}
	base := state.Root
	state.Root = Node{Kind: NodeJoin, JoinBase: &base, JoinRight: &right, JoinName: o.Name, JoinPredicate: o.Predicate}
	merged, err := schema.Merge(state.Schema, s)
	if err != nil {
		return state, err
	}
	state.Schema = merged
	state.joins = copyJoins(state.joins)
	state.joins[o.Name] = &right
	return state, nil
}

func applyAttachToJoin(ctx context.Context, state State, o operation.AttachToJoin, deps Deps) (State, error) {
	if _, ok := state.joins[o.Name]; !ok {
		return state, bberrors.New(bberrors.PlanErrorKind, "no join named %q to attach to", o.Name)
	}
	s, err := deps.ResolveSchema(ctx, o.URL, "")
	if err != nil {
		return state, err
	}
	add := Node{Kind: NodeScan, ScanURL: o.URL}
	newRoot, ok := replaceJoinRight(state.Root, o.Name, add)
	if !ok {
		return state, bberrors.New(bberrors.PlanErrorKind, "join %q not reachable from current plan root", o.Name)
	}
	state.Root = newRoot
	merged, err := schema.Merge(state.Schema, s)
	if err != nil {
		return state, err
	}
	state.Schema = merged
	return state, nil
}

// replaceJoinRight walks node looking for the Join node named name and
// returns a new tree with add unioned into its right side.
func replaceJoinRight(node Node, name string, add Node) (Node, bool) {
	switch node.Kind {
	case NodeJoin:
		if node.JoinName == name {
			right := unionInto(*node.JoinRight, add)
			node.JoinRight = &right
			return node, true
		}
		if base, ok := replaceJoinRight(*node.JoinBase, name, add); ok {
			node.JoinBase = &base
			return node, true
		}
		return node, false
	case NodeFilter:
		if in, ok := replaceJoinRight(*node.FilterInput, name, add); ok {
			node.FilterInput = &in
			return node, true
		}
		return node, false
	case NodeProject:
		if in, ok := replaceJoinRight(*node.ProjectInput, name, add); ok {
			node.ProjectInput = &in
			return node, true
		}
		return node, false
	case NodeSQL:
		if in, ok := replaceJoinRight(*node.SQLInput, name, add); ok {
			node.SQLInput = &in
			return node, true
		}
		return node, false
	case NodeRename:
		if in, ok := replaceJoinRight(*node.RenameInput, name, add); ok {
			node.RenameInput = &in
			return node, true
		}
		return node, false
	case NodeRemove:
		if in, ok := replaceJoinRight(*node.RemoveInput, name, add); ok {
			node.RemoveInput = &in
			return node, true
		}
		return node, false
	case NodeUnion:
		for i, in := range node.Inputs {
			out, ok := replaceJoinRight(in, name, add)
			if !ok {
				continue
			}
			inputs := append([]Node{}, node.Inputs...)
			inputs[i] = out
			node.Inputs = inputs
			return node, true
		}
		return node, false
	default:
		return node, false
	}
}

func applyCreateIndex(state State, o operation.CreateIndex) (State, error) {
	f, ok := state.Schema.Column(o.Column)
	if !ok {
		return state, bberrors.ColumnNotFound(o.Column, state.Schema.Names())
	}
	if f.Type == schema.Utf8View {
		return state, bberrors.New(bberrors.UnsupportedIndexTypeKind, "column %q is utf8_view, indexing is not supported", o.Column)
	}
	state.Indexes = copyIndexes(state.Indexes)
	state.Indexes[o.Column] = IndexDef{Column: o.Column, Built: false}
	return state, nil
}

func applyDropIndex(state State, o operation.DropIndex) (State, error) {
	if _, ok := state.Indexes[o.Column]; !ok {
		return state, bberrors.IndexNotFound(o.Column, indexColumns(state.Indexes))
	}
	state.Indexes = copyIndexes(state.Indexes)
	delete(state.Indexes, o.Column)
	return state, nil
}

func applyRebuildIndex(state State, o operation.RebuildIndex) (State, error) {
	if _, ok := state.Indexes[o.Column]; !ok {
		return state, bberrors.IndexNotFound(o.Column, indexColumns(state.Indexes))
	}
	state.Indexes = copyIndexes(state.Indexes)
	state.Indexes[o.Column] = IndexDef{Column: o.Column, Built: true}
	return state, nil
}

func applyCreateView(state State, o operation.CreateView) (State, error) {
	if _, ok := state.Views[o.Name]; ok {
		return state, bberrors.New(bberrors.ViewAlreadyExistsKind, "view %q already exists", o.Name)
	}
	id := o.ChildBundleRef
	v := ViewDef{ID: id, Name: o.Name}
	state.Views = copyViews(state.Views)
	state.ViewsByID = copyViews(state.ViewsByID)
	state.Views[o.Name] = v
	state.ViewsByID[id] = v
	return state, nil
}

func applyRenameView(state State, o operation.RenameView) (State, error) {
	v, ok := state.Views[o.From]
	if !ok {
		return state, bberrors.ViewNotFound(o.From, viewAlternatives(state))
	}
	if _, ok := state.Views[o.To]; ok {
		return state, bberrors.New(bberrors.ViewAlreadyExistsKind, "view %q already exists", o.To)
	}
	state.Views = copyViews(state.Views)
	state.ViewsByID = copyViews(state.ViewsByID)
	delete(state.Views, o.From)
	v.Name = o.To
	state.Views[o.To] = v
	state.ViewsByID[v.ID] = v
	return state, nil
}

func applyDropView(state State, o operation.DropView) (State, error) {
	v, ok := state.Views[o.Name]
	if !ok {
		return state, bberrors.ViewNotFound(o.Name, viewAlternatives(state))
	}
	state.Views = copyViews(state.Views)
	state.ViewsByID = copyViews(state.ViewsByID)
	delete(state.Views, o.Name)
	delete(state.ViewsByID, v.ID)
	return state, nil
}

func applySetConfig(state State, o operation.SetConfig) (State, error) {
	state.Config = copyConfig(state.Config)
	inner, ok := state.Config[o.URLPrefix]
	if !ok {
		inner = map[string]string{}
	} else {
		c := map[string]string{}
		for k, v := range inner {
			c[k] = v
		}
		inner = c
	}
	inner[o.Key] = o.Value
	state.Config[o.URLPrefix] = inner
	return state, nil
}

func functionNames(m map[string]FunctionDef) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func indexColumns(m map[string]IndexDef) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func viewAlternatives(state State) []string {
	out := make([]string, 0, len(state.Views)+len(state.ViewsByID))
	for name := range state.Views {
		out = append(out, name)
	}
	for id := range state.ViewsByID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ViewIndex returns the id->name mapping of spec §8 scenario 5 (views()).
func (s State) ViewIndex() map[string]string {
	out := make(map[string]string, len(s.ViewsByID))
	for id, v := range s.ViewsByID {
		out[id] = v.Name
	}
	return out
}
