package operation

import (
	"bytes"

	"github.com/nvoxland/bundlebase/internal/bberrors"
	"gopkg.in/yaml.v3"
)

// rawEnvelope is used for decoding, where the rest of the fields stay
// generic until Kind is known.
type rawEnvelope struct {
	Kind string `yaml:"kind"`
}

// ToNode renders an Operation into a *yaml.Node suitable for embedding in
// a canonical commit document: a mapping with "kind" first, in struct
// declaration order thereafter, so encoding is fully deterministic.
func ToNode(op Operation) (*yaml.Node, error) {
	var merged yaml.Node
	raw, err := yaml.Marshal(op)
	if err != nil {
		return nil, bberrors.Wrap(bberrors.PlanErrorKind, err, "encoding operation")
	}
	var fieldsNode yaml.Node
	if err := yaml.Unmarshal(raw, &fieldsNode); err != nil {
		return nil, bberrors.Wrap(bberrors.PlanErrorKind, err, "re-reading encoded operation")
	}
	// fieldsNode is a DocumentNode wrapping a single MappingNode.
	mapping := fieldsNode.Content[0]

	kindNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "kind"}
	valueNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: string(op.Kind())}
	merged.Kind = yaml.MappingNode
	merged.Content = append([]*yaml.Node{kindNode, valueNode}, mapping.Content...)
	return &merged, nil
}

// FromNode decodes a single operation mapping node, dispatching on "kind".
func FromNode(node *yaml.Node) (Operation, error) {
	var re rawEnvelope
	if err := node.Decode(&re); err != nil {
		return nil, bberrors.Wrap(bberrors.DecodeErrorKind, err, "decoding operation envelope")
	}
	decodeInto := func(v interface{}) error {
		return node.Decode(v)
	}
	switch Kind(re.Kind) {
	case KindAttach:
		var v Attach
		if err := decodeInto(&v); err != nil {
			return nil, err
		}
		return v, nil
	case KindAttachFunction:
		var v AttachFunction
		if err := decodeInto(&v); err != nil {
			return nil, err
		}
		return v, nil
	case KindDefineFunction:
		var v DefineFunction
		if err := decodeInto(&v); err != nil {
			return nil, err
		}
		return v, nil
	case KindDefineSource:
		var v DefineSource
		if err := decodeInto(&v); err != nil {
			return nil, err
		}
		return v, nil
	case KindRemoveColumn:
		var v RemoveColumn
		if err := decodeInto(&v); err != nil {
			return nil, err
		}
		return v, nil
	case KindRenameColumn:
		var v RenameColumn
		if err := decodeInto(&v); err != nil {
			return nil, err
		}
		return v, nil
	case KindFilter:
		var v Filter
		if err := decodeInto(&v); err != nil {
			return nil, err
		}
		return v, nil
	case KindSelect:
		var v Select
		if err := decodeInto(&v); err != nil {
			return nil, err
		}
		return v, nil
	case KindJoin:
		var v Join
		if err := decodeInto(&v); err != nil {
			return nil, err
		}
		return v, nil
	case KindAttachToJoin:
		var v AttachToJoin
		if err := decodeInto(&v); err != nil {
			return nil, err
		}
		return v, nil
	case KindCreateIndex:
		var v CreateIndex
		if err := decodeInto(&v); err != nil {
			return nil, err
		}
		return v, nil
	case KindDropIndex:
		var v DropIndex
		if err := decodeInto(&v); err != nil {
			return nil, err
		}
		return v, nil
	case KindRebuildIndex:
		var v RebuildIndex
		if err := decodeInto(&v); err != nil {
			return nil, err
		}
		return v, nil
	case KindCreateView:
		var v CreateView
		if err := decodeInto(&v); err != nil {
			return nil, err
		}
		return v, nil
	case KindRenameView:
		var v RenameView
		if err := decodeInto(&v); err != nil {
			return nil, err
		}
		return v, nil
	case KindDropView:
		var v DropView
		if err := decodeInto(&v); err != nil {
			return nil, err
		}
		return v, nil
	case KindSetName:
		var v SetName
		if err := decodeInto(&v); err != nil {
			return nil, err
		}
		return v, nil
	case KindSetDescription:
		var v SetDescription
		if err := decodeInto(&v); err != nil {
			return nil, err
		}
		return v, nil
	case KindSetConfig:
		var v SetConfig
		if err := decodeInto(&v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, bberrors.New(bberrors.DecodeErrorKind, "unknown operation kind %q", re.Kind)
	}
}

// EncodeList renders a canonical operations list as YAML bytes — used
// directly by Change.id fingerprinting (spec §3 "a change's id equals
// the fingerprint of its canonical operations list").
func EncodeList(ops []Operation) ([]byte, error) {
	nodes := make([]*yaml.Node, 0, len(ops))
	for _, op := range ops {
		n, err := ToNode(op)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	seq := &yaml.Node{Kind: yaml.SequenceNode, Content: nodes}
	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{seq}}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, bberrors.Wrap(bberrors.PlanErrorKind, err, "encoding operations list")
	}
	if err := enc.Close(); err != nil {
		return nil, bberrors.Wrap(bberrors.PlanErrorKind, err, "closing operations encoder")
	}
	return buf.Bytes(), nil
}

// DecodeList parses a YAML sequence of operation envelopes.
func DecodeList(node *yaml.Node) ([]Operation, error) {
	if node == nil {
		return nil, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, bberrors.New(bberrors.DecodeErrorKind, "operations must be a sequence, got %v", node.Kind)
	}
	ops := make([]Operation, 0, len(node.Content))
	for _, c := range node.Content {
		op, err := FromNode(c)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

