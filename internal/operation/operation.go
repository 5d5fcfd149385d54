// Package operation defines the closed set of Operation variants from
// spec §3/§6 and their canonical serialization. Operations are grouped
// into Changes by the builder (spec §3 "Change").
package operation

// Kind identifies one of the closed set of Operation variants.
type Kind string

const (
	KindAttach         Kind = "attach"
	KindAttachFunction Kind = "attach_function"
	KindDefineFunction Kind = "define_function"
	KindDefineSource   Kind = "define_source"
	KindRemoveColumn   Kind = "remove_column"
	KindRenameColumn   Kind = "rename_column"
	KindFilter         Kind = "filter"
	KindSelect         Kind = "select"
	KindJoin           Kind = "join"
	KindAttachToJoin   Kind = "attach_to_join"
	KindCreateIndex    Kind = "create_index"
	KindDropIndex      Kind = "drop_index"
	KindRebuildIndex   Kind = "rebuild_index"
	KindCreateView     Kind = "create_view"
	KindRenameView     Kind = "rename_view"
	KindDropView       Kind = "drop_view"
	KindSetName        Kind = "set_name"
	KindSetDescription Kind = "set_description"
	KindSetConfig      Kind = "set_config"
)

// Operation is implemented by every closed-set variant.
type Operation interface {
	Kind() Kind
	// Describe renders a short human-readable description, used by
	// Builder.status() and the "describe" rendering of spec §4.
	Describe() string
}

// Attach brings in an external data file as a new logical table fragment.
type Attach struct {
	URL        string `yaml:"url"`
	FormatHint string `yaml:"format_hint,omitempty"`
}

func (Attach) Kind() Kind { return KindAttach }
func (a Attach) Describe() string {
	if a.FormatHint != "" {
		return "attach " + a.URL + " as " + a.FormatHint
	}
	return "attach " + a.URL
}

// AttachFunction brings in a previously defined function as a fragment,
// via the pseudo-URL function://<name>.
type AttachFunction struct {
	Name string `yaml:"name"`
}

func (AttachFunction) Kind() Kind           { return KindAttachFunction }
func (a AttachFunction) Describe() string   { return "attach function " + a.Name }

// DefineFunction registers a named record-batch producer. Version is
// an opaque identity string, not a numeric ordering (spec §9's
// function bodies carry a declared version like "2", not 2).
type DefineFunction struct {
	Name    string `yaml:"name"`
	Schema  string `yaml:"schema"`
	Version string `yaml:"version"`
	BodyRef string `yaml:"body_ref"`
}

func (DefineFunction) Kind() Kind         { return KindDefineFunction }
func (d DefineFunction) Describe() string { return "define function " + d.Name }

// DefineSource registers a poll-able source.
type DefineSource struct {
	URLPrefix    string   `yaml:"url_prefix"`
	Patterns     []string `yaml:"patterns"`
	FunctionName string   `yaml:"function_name"`
}

func (DefineSource) Kind() Kind         { return KindDefineSource }
func (d DefineSource) Describe() string { return "define source " + d.URLPrefix }

// RemoveColumn drops a column from the output schema.
type RemoveColumn struct {
	Name string `yaml:"name"`
}

func (RemoveColumn) Kind() Kind         { return KindRemoveColumn }
func (r RemoveColumn) Describe() string { return "remove column " + r.Name }

// RenameColumn renames a column in the output schema.
type RenameColumn struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

func (RenameColumn) Kind() Kind         { return KindRenameColumn }
func (r RenameColumn) Describe() string { return "rename column " + r.From + " to " + r.To }

// Filter wraps the current plan in a row predicate with positional
// parameters ($1, $2, …).
type Filter struct {
	Expr   string        `yaml:"expr"`
	Params []interface{} `yaml:"params,omitempty"`
}

func (Filter) Kind() Kind       { return KindFilter }
func (f Filter) Describe() string { return "filter " + f.Expr }

// Select replaces the current plan with either a full SQL statement
// against the virtual table data/bundle, or a column projection list.
// Exactly one of SQL or Projection is set.
type Select struct {
	SQL        string   `yaml:"sql,omitempty"`
	Projection []string `yaml:"projection,omitempty"`
}

func (Select) Kind() Kind { return KindSelect }
func (s Select) Describe() string {
	if s.SQL != "" {
		return "select " + s.SQL
	}
	return "select columns"
}

// Join creates a named right-side table plus an equi/theta predicate.
type Join struct {
	Name      string `yaml:"name"`
	URL       string `yaml:"url"`
	Predicate string `yaml:"predicate_expr"`
}

func (Join) Kind() Kind       { return KindJoin }
func (j Join) Describe() string { return "join " + j.Name + " on " + j.Predicate }

// AttachToJoin appends more data into an existing named join right-side.
type AttachToJoin struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

func (AttachToJoin) Kind() Kind       { return KindAttachToJoin }
func (a AttachToJoin) Describe() string { return "attach to join " + a.Name + ": " + a.URL }

// CreateIndex creates a persistent index on a column.
type CreateIndex struct {
	Column string `yaml:"column"`
}

func (CreateIndex) Kind() Kind       { return KindCreateIndex }
func (c CreateIndex) Describe() string { return "create index on " + c.Column }

// DropIndex removes a previously created index.
type DropIndex struct {
	Column string `yaml:"column"`
}

func (DropIndex) Kind() Kind       { return KindDropIndex }
func (d DropIndex) Describe() string { return "drop index on " + d.Column }

// RebuildIndex recomputes an existing index.
type RebuildIndex struct {
	Column string `yaml:"column"`
}

func (RebuildIndex) Kind() Kind       { return KindRebuildIndex }
func (r RebuildIndex) Describe() string { return "rebuild index on " + r.Column }

// CreateView records a name→child-bundle reference.
type CreateView struct {
	Name           string `yaml:"name"`
	ChildBundleRef string `yaml:"child_bundle_ref"`
}

func (CreateView) Kind() Kind       { return KindCreateView }
func (c CreateView) Describe() string { return "create view " + c.Name }

// RenameView renames an existing view.
type RenameView struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

func (RenameView) Kind() Kind       { return KindRenameView }
func (r RenameView) Describe() string { return "rename view " + r.From + " to " + r.To }

// DropView removes a view's name→id mapping without deleting bytes.
type DropView struct {
	Name string `yaml:"name"`
}

func (DropView) Kind() Kind       { return KindDropView }
func (d DropView) Describe() string { return "drop view " + d.Name }

// SetName sets the bundle's display name.
type SetName struct {
	Value string `yaml:"value"`
}

func (SetName) Kind() Kind       { return KindSetName }
func (s SetName) Describe() string { return "set name to " + s.Value }

// SetDescription sets the bundle's description.
type SetDescription struct {
	Value string `yaml:"value"`
}

func (SetDescription) Kind() Kind       { return KindSetDescription }
func (s SetDescription) Describe() string { return "set description" }

// SetConfig sets a side-channel config key, optionally scoped to a url
// prefix (spec §4.1 per-url-prefix overrides).
type SetConfig struct {
	Key       string `yaml:"key"`
	Value     string `yaml:"value"`
	URLPrefix string `yaml:"url_prefix,omitempty"`
}

func (SetConfig) Kind() Kind       { return KindSetConfig }
func (s SetConfig) Describe() string { return "set config " + s.Key + "=" + s.Value }
