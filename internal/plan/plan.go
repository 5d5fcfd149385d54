// Package plan is the pure fold the resolver applies over a bundle's
// commit sequence (spec §4.4): "the resolver is a pure fold over the
// commit sequence. Each operation has a transition function
// plan' = apply(plan, op)". Node is the tagged-union logical query
// tree; State carries the node plus every side-channel the fold
// accumulates (function registry, views, indexes, sources, metadata).
package plan

import (
	"github.com/nvoxland/bundlebase/internal/schema"
)

// NodeKind tags the closed set of logical plan nodes.
type NodeKind int

const (
	NodeEmpty NodeKind = iota
	NodeScan
	NodeUnion
	NodeFilter
	NodeProject
	NodeSQL
	NodeRename
	NodeRemove
	NodeJoin
)

// Node is one node of the logical query tree built by Apply. Only the
// fields relevant to Kind are populated; this is the same
// tagged-variant shape as operation.Operation, one layer up.
type Node struct {
	Kind NodeKind

	// NodeScan
	ScanURL        string
	ScanFormatHint string
	ScanFunction   string // set instead of ScanURL for function:// scans

	// NodeUnion
	Inputs []Node

	// NodeFilter
	FilterInput  *Node
	FilterExpr   string
	FilterParams []interface{}

	// NodeProject
	ProjectInput   *Node
	ProjectColumns []string

	// NodeSQL
	SQLInput *Node
	SQL      string

	// NodeRename
	RenameInput *Node
	RenameFrom  string
	RenameTo    string

	// NodeRemove
	RemoveInput  *Node
	RemoveColumn string

	// NodeJoin
	JoinBase      *Node
	JoinRight     *Node
	JoinName      string
	JoinPredicate string
}

// FunctionDef is a registered DefineFunction body: name, declared
// schema, version (participates in identity per spec §4.4/§9 so
// redefinitions invalidate cached materialization), and a reference to
// the body (a function-table index for in-process callers, or a pack
// fingerprint for persisted bundles).
type FunctionDef struct {
	Name    string
	Schema  string
	Version string
	BodyRef string

	resolved schema.Schema // parsed form of Schema, filled in by Apply
}

// SourceDef is a registered DefineSource declaration (spec §4.7).
type SourceDef struct {
	URLPrefix    string
	Patterns     []string
	FunctionName string
}

// IndexDef is a CreateIndex entry (spec §4.8). Built is false after
// CreateIndex and true once RebuildIndex has been applied; later
// attaches or other content changes do not reset it.
type IndexDef struct {
	Column string
	Built  bool
}

// ViewDef is a CreateView entry (spec §4.6). Apply fills in ID and Name
// only; ChildURL is left empty, and views.ChildURL derives the child
// url from the parent url and ID.
type ViewDef struct {
	ID       string
	Name     string
	ChildURL string
}

// State is the resolver's accumulated fold state: the logical plan
// root plus every side-channel an operation can touch. Apply returns a
// new State value rather than mutating in place (spec §9 "value
// copy... avoiding shared-mutable-state"), though its map fields are
// shared-until-written for efficiency — Apply always replaces a
// touched map wholesale rather than mutating the caller's copy.
type State struct {
	Root   Node
	Schema schema.Schema

	Functions map[string]FunctionDef
	Sources   map[string]SourceDef
	Indexes   map[string]IndexDef

	Views     map[string]ViewDef // keyed by name
	ViewsByID map[string]ViewDef // keyed by id

	// AttachedURLs records every URL ever passed to Attach, for
	// check_refresh's "not already attached" test (spec §4.7).
	AttachedURLs map[string]bool

	Name        string
	Description string

	// Config mirrors SetConfig{key, value, url_prefix}; "" is the
	// global prefix. The map is only recorded: nothing resolves it by
	// longest prefix or feeds it to objectstore.Config.
	Config map[string]map[string]string

	joins map[string]*Node // live join right-sides addressable by name, for AttachToJoin
}

// New returns the empty initial fold state (no data attached).
func New() State {
	return State{
		Functions:    map[string]FunctionDef{},
		Sources:      map[string]SourceDef{},
		Indexes:      map[string]IndexDef{},
		Views:        map[string]ViewDef{},
		ViewsByID:    map[string]ViewDef{},
		AttachedURLs: map[string]bool{},
		Config:       map[string]map[string]string{},
		joins:        map[string]*Node{},
	}
}

// IsEmpty reports whether no data has been attached yet (spec §8
// "Empty bundle: num_rows == 0, schema is empty").
func (s State) IsEmpty() bool {
	return s.Root.Kind == NodeEmpty
}

func copyStrMap(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyFunctions(m map[string]FunctionDef) map[string]FunctionDef {
	out := make(map[string]FunctionDef, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copySources(m map[string]SourceDef) map[string]SourceDef {
	out := make(map[string]SourceDef, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyIndexes(m map[string]IndexDef) map[string]IndexDef {
	out := make(map[string]IndexDef, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyViews(m map[string]ViewDef) map[string]ViewDef {
	out := make(map[string]ViewDef, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyConfig(m map[string]map[string]string) map[string]map[string]string {
	out := make(map[string]map[string]string, len(m))
	for k, v := range m {
		inner := make(map[string]string, len(v))
		for ik, iv := range v {
			inner[ik] = iv
		}
		out[k] = inner
	}
	return out
}

func copyJoins(m map[string]*Node) map[string]*Node {
	out := make(map[string]*Node, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
