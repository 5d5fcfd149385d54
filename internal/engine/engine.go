// Package engine is the reference implementation of the columnar
// execution engine the resolver compiles plans against (spec §1: "the
// core needs only a capability that compiles a plan tree into a stream
// of record batches"). The real engine's planner, expression evaluator
// and record-batch producer are explicitly out of scope; this package
// exists so the rest of bundlebase — and its tests — have something
// that satisfies the Engine contract without depending on an external
// query engine, since no repo in the retrieval pack vendors one (see
// DESIGN.md).
package engine

import (
	"context"
	"strings"

	"github.com/nvoxland/bundlebase/internal/bberrors"
	"github.com/nvoxland/bundlebase/internal/decoder"
	"github.com/nvoxland/bundlebase/internal/objectstore"
	"github.com/nvoxland/bundlebase/internal/plan"
	"github.com/nvoxland/bundlebase/internal/schema"
)

// FunctionBody is the callback a DefineFunction body resolves to for
// in-process callers (spec §9 "for in-process callers, a function-table
// index"). It is called with successive page indices until it returns
// an empty batch, per spec §4.4's paginated-scan rule.
type FunctionBody func(ctx context.Context, page int) (schema.Batch, error)

// Engine compiles a resolved plan.State into a materialized schema.Batch.
// The real engine would stream record batches; this reference
// implementation materializes eagerly, which is sufficient for a
// library whose I/O is dominated by small test fixtures.
type Engine interface {
	Compile(ctx context.Context, state plan.State) (schema.Batch, error)
}

// MemEngine is the reference in-memory Engine. It resolves NodeScan
// leaves by reading through a decoder.Registry (for URL scans) or a
// FunctionBody table (for function:// scans), and evaluates
// Filter/Join/Select nodes with the small expression language in
// expr.go.
type MemEngine struct {
	Store     objectstore.Store
	Decoders  *decoder.Registry
	Functions map[string]FunctionBody
}

// New returns a MemEngine reading external files through store via
// decoders, with fn supplying function:// scan bodies.
func New(store objectstore.Store, decoders *decoder.Registry, fn map[string]FunctionBody) *MemEngine {
	if decoders == nil {
		decoders = decoder.NewRegistry()
	}
	if fn == nil {
		fn = map[string]FunctionBody{}
	}
	return &MemEngine{Store: store, Decoders: decoders, Functions: fn}
}

func (e *MemEngine) Compile(ctx context.Context, state plan.State) (schema.Batch, error) {
	if state.IsEmpty() {
		return schema.Batch{Schema: state.Schema}, nil
	}
	rows, err := e.eval(ctx, state.Root)
	if err != nil {
		return schema.Batch{}, err
	}
	return schema.Batch{Schema: state.Schema, Rows: rows}, nil
}

func (e *MemEngine) eval(ctx context.Context, node plan.Node) ([]schema.Row, error) {
	switch node.Kind {
	case plan.NodeEmpty:
		return nil, nil
	case plan.NodeScan:
		return e.evalScan(ctx, node)
	case plan.NodeUnion:
		var out []schema.Row
		for _, in := range node.Inputs {
			rows, err := e.eval(ctx, in)
			if err != nil {
				return nil, err
			}
			out = append(out, rows...)
		}
		return out, nil
	case plan.NodeFilter:
		return e.evalFilter(ctx, node)
	case plan.NodeProject:
		return e.evalProject(ctx, node)
	case plan.NodeSQL:
		return e.evalSQL(ctx, node)
	case plan.NodeRename:
		return e.evalRename(ctx, node)
	case plan.NodeRemove:
		return e.evalRemove(ctx, node)
	case plan.NodeJoin:
		return e.evalJoin(ctx, node)
	default:
		return nil, bberrors.New(bberrors.ExecutionErrorKind, "unhandled plan node kind %v", node.Kind)
	}
}

func (e *MemEngine) evalScan(ctx context.Context, node plan.Node) ([]schema.Row, error) {
	if node.ScanFunction != "" {
		fn, ok := e.Functions[node.ScanFunction]
		if !ok {
			return nil, bberrors.FunctionNotFound(node.ScanFunction, nil)
		}
		var out []schema.Row
		for page := 0; ; page++ {
			if err := ctx.Err(); err != nil {
				return nil, bberrors.Wrap(bberrors.CanceledKind, err, "scanning function %q", node.ScanFunction)
			}
			batch, err := fn(ctx, page)
			if err != nil {
				return nil, err
			}
			if len(batch.Rows) == 0 {
				break
			}
			out = append(out, batch.Rows...)
		}
		return out, nil
	}
	_, rows, err := e.Decoders.DecodeURL(ctx, e.Store, node.ScanURL, node.ScanFormatHint)
	return rows, err
}

func (e *MemEngine) evalFilter(ctx context.Context, node plan.Node) ([]schema.Row, error) {
	rows, err := e.eval(ctx, *node.FilterInput)
	if err != nil {
		return nil, err
	}
	var out []schema.Row
	for _, r := range rows {
		ok, err := Eval(node.FilterExpr, Context{Default: r, Named: map[string]schema.Row{"base": r}, Params: node.FilterParams})
		if err != nil {
			return nil, bberrors.Wrap(bberrors.ExecutionErrorKind, err, "evaluating filter %q", node.FilterExpr)
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (e *MemEngine) evalProject(ctx context.Context, node plan.Node) ([]schema.Row, error) {
	rows, err := e.eval(ctx, *node.ProjectInput)
	if err != nil {
		return nil, err
	}
	out := make([]schema.Row, len(rows))
	for i, r := range rows {
		nr := schema.Row{}
		for _, col := range node.ProjectColumns {
			if v, ok := r[col]; ok {
				nr[col] = v
			}
		}
		out[i] = nr
	}
	return out, nil
}

func (e *MemEngine) evalRename(ctx context.Context, node plan.Node) ([]schema.Row, error) {
	rows, err := e.eval(ctx, *node.RenameInput)
	if err != nil {
		return nil, err
	}
	out := make([]schema.Row, len(rows))
	for i, r := range rows {
		nr := schema.Row{}
		for k, v := range r {
			if k == node.RenameFrom {
				k = node.RenameTo
			}
			nr[k] = v
		}
		out[i] = nr
	}
	return out, nil
}

func (e *MemEngine) evalRemove(ctx context.Context, node plan.Node) ([]schema.Row, error) {
	rows, err := e.eval(ctx, *node.RemoveInput)
	if err != nil {
		return nil, err
	}
	out := make([]schema.Row, len(rows))
	for i, r := range rows {
		nr := schema.Row{}
		for k, v := range r {
			if k != node.RemoveColumn {
				nr[k] = v
			}
		}
		out[i] = nr
	}
	return out, nil
}

func (e *MemEngine) evalJoin(ctx context.Context, node plan.Node) ([]schema.Row, error) {
	base, err := e.eval(ctx, *node.JoinBase)
	if err != nil {
		return nil, err
	}
	right, err := e.eval(ctx, *node.JoinRight)
	if err != nil {
		return nil, err
	}
	var out []schema.Row
	for _, b := range base {
		for _, r := range right {
			ok, err := Eval(node.JoinPredicate, Context{
				Default: b,
				Named:   map[string]schema.Row{"base": b, node.JoinName: r},
			})
			if err != nil {
				return nil, bberrors.Wrap(bberrors.ExecutionErrorKind, err, "evaluating join predicate %q", node.JoinPredicate)
			}
			if !ok {
				continue
			}
			merged := schema.Row{}
			for k, v := range b {
				merged[k] = v
			}
			for k, v := range r {
				merged[k] = v
			}
			out = append(out, merged)
		}
	}
	return out, nil
}

// evalSQL supports the constrained dialect spec §6 describes for
// select(sql): "select <* | col, col, …> [from data|bundle] [where
// <predicate>]" against the current plan bound as the virtual table
// data/bundle. The FROM clause is optional, since there is exactly one
// implicit input.
func (e *MemEngine) evalSQL(ctx context.Context, node plan.Node) ([]schema.Row, error) {
	rows, err := e.eval(ctx, *node.SQLInput)
	if err != nil {
		return nil, err
	}
	sel, where, err := parseMiniSQL(node.SQL)
	if err != nil {
		return nil, err
	}
	if where != "" {
		var filtered []schema.Row
		for _, r := range rows {
			ok, err := Eval(where, Context{Default: r, Named: map[string]schema.Row{"base": r}})
			if err != nil {
				return nil, bberrors.Wrap(bberrors.ExecutionErrorKind, err, "evaluating select where clause %q", where)
			}
			if ok {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}
	if len(sel) == 1 && sel[0] == "*" {
		return rows, nil
	}
	out := make([]schema.Row, len(rows))
	for i, r := range rows {
		nr := schema.Row{}
		for _, col := range sel {
			if v, ok := r[col]; ok {
				nr[col] = v
			}
		}
		out[i] = nr
	}
	return out, nil
}

// parseMiniSQL splits "select <cols> [where <pred>]" into its column
// list and predicate. data/bundle are accepted but unused table aliases
// since there is only ever one implicit input (spec §6).
func parseMiniSQL(sql string) (columns []string, where string, err error) {
	s := strings.TrimSpace(sql)
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "select ") {
		return nil, "", bberrors.New(bberrors.PlanErrorKind, "unsupported select statement %q: must start with SELECT", sql)
	}
	rest := strings.TrimSpace(s[len("select "):])
	whereIdx := indexCaseInsensitive(rest, " where ")
	colPart := rest
	if whereIdx >= 0 {
		colPart = rest[:whereIdx]
		where = strings.TrimSpace(rest[whereIdx+len(" where "):])
	}
	colPart = strings.TrimSpace(colPart)
	if fromIdx := indexCaseInsensitive(colPart, " from "); fromIdx >= 0 {
		table := strings.ToLower(strings.TrimSpace(colPart[fromIdx+len(" from "):]))
		if table != "data" && table != "bundle" {
			return nil, "", bberrors.New(bberrors.PlanErrorKind, "unsupported table %q in select statement %q: only data and bundle are available", table, sql)
		}
		colPart = strings.TrimSpace(colPart[:fromIdx])
	}
	if colPart == "*" {
		return []string{"*"}, where, nil
	}
	for _, c := range strings.Split(colPart, ",") {
		columns = append(columns, strings.TrimSpace(c))
	}
	return columns, where, nil
}

func indexCaseInsensitive(s, substr string) int {
	return strings.Index(strings.ToLower(s), strings.ToLower(substr))
}
