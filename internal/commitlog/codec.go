package commitlog

import (
	"bytes"
	"time"

	"github.com/nvoxland/bundlebase/internal/bberrors"
	"github.com/nvoxland/bundlebase/internal/operation"
	"gopkg.in/yaml.v3"
)

func strNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func nullNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
}

func kv(key string, value *yaml.Node) []*yaml.Node {
	return []*yaml.Node{strNode(key), value}
}

// Encode renders e in the canonical text form of spec §6: sorted/fixed
// field order (parent, author, timestamp, message, changes, id-or-from)
// and LF line endings, so its bytes are suitable for fingerprinting
// (spec §3 "version" and §8 invariant 1).
func Encode(e Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	var content []*yaml.Node

	parentNode := nullNode()
	if e.Parent != "" {
		parentNode = strNode(e.Parent)
	}
	content = append(content, kv("parent", parentNode)...)
	content = append(content, kv("author", strNode(e.Author))...)
	content = append(content, kv("timestamp", strNode(e.Timestamp.UTC().Format(time.RFC3339)))...)
	content = append(content, kv("message", strNode(e.Message))...)

	changesNode, err := encodeChanges(e.Changes)
	if err != nil {
		return nil, err
	}
	content = append(content, kv("changes", changesNode)...)

	if e.ID != "" {
		content = append(content, kv("id", strNode(e.ID))...)
	} else if e.From != "" {
		content = append(content, kv("from", strNode(e.From))...)
	}

	mapping := &yaml.Node{Kind: yaml.MappingNode, Content: content}
	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{mapping}}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, bberrors.Wrap(bberrors.PlanErrorKind, err, "encoding commit envelope")
	}
	if err := enc.Close(); err != nil {
		return nil, bberrors.Wrap(bberrors.PlanErrorKind, err, "closing commit encoder")
	}
	return buf.Bytes(), nil
}

func encodeChanges(changes []Change) (*yaml.Node, error) {
	items := make([]*yaml.Node, 0, len(changes))
	for _, c := range changes {
		opsNodes := make([]*yaml.Node, 0, len(c.Operations))
		for _, op := range c.Operations {
			n, err := operation.ToNode(op)
			if err != nil {
				return nil, err
			}
			opsNodes = append(opsNodes, n)
		}
		opsSeq := &yaml.Node{Kind: yaml.SequenceNode, Content: opsNodes}
		changeContent := append(append(
			kv("id", strNode(c.ID)),
			kv("description", strNode(c.Description))...),
			kv("operations", opsSeq)...)
		items = append(items, &yaml.Node{Kind: yaml.MappingNode, Content: changeContent})
	}
	return &yaml.Node{Kind: yaml.SequenceNode, Content: items}, nil
}

// mappingLookup returns the value node for key in a mapping node, or nil.
func mappingLookup(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

// Decode parses canonical (or any equivalent) commit text back into an
// Envelope.
func Decode(data []byte) (Envelope, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Envelope{}, bberrors.Wrap(bberrors.DecodeErrorKind, err, "parsing commit file")
	}
	if len(doc.Content) == 0 {
		return Envelope{}, bberrors.New(bberrors.DecodeErrorKind, "empty commit file")
	}
	mapping := doc.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return Envelope{}, bberrors.New(bberrors.DecodeErrorKind, "commit file is not a mapping")
	}

	var e Envelope
	if n := mappingLookup(mapping, "parent"); n != nil && n.Tag != "!!null" {
		e.Parent = n.Value
	}
	if n := mappingLookup(mapping, "author"); n != nil {
		e.Author = n.Value
	}
	if n := mappingLookup(mapping, "timestamp"); n != nil {
		ts, err := time.Parse(time.RFC3339, n.Value)
		if err != nil {
			return Envelope{}, bberrors.Wrap(bberrors.DecodeErrorKind, err, "parsing timestamp %q", n.Value)
		}
		e.Timestamp = ts.UTC()
	}
	if n := mappingLookup(mapping, "message"); n != nil {
		e.Message = n.Value
	}
	if n := mappingLookup(mapping, "changes"); n != nil && n.Kind == yaml.SequenceNode {
		for _, cn := range n.Content {
			var c Change
			if idNode := mappingLookup(cn, "id"); idNode != nil {
				c.ID = idNode.Value
			}
			if descNode := mappingLookup(cn, "description"); descNode != nil {
				c.Description = descNode.Value
			}
			opsNode := mappingLookup(cn, "operations")
			ops, err := operation.DecodeList(opsNode)
			if err != nil {
				return Envelope{}, err
			}
			c.Operations = ops
			e.Changes = append(e.Changes, c)
		}
	}
	if n := mappingLookup(mapping, "id"); n != nil {
		e.ID = n.Value
	}
	if n := mappingLookup(mapping, "from"); n != nil {
		e.From = n.Value
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}
