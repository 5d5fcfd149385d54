package operation

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ops := []Operation{
		Attach{URL: "file:///data/userdata.parquet"},
		Filter{Expr: `salary > $1`, Params: []interface{}{50000.0}},
		RenameColumn{From: "Old", To: "New"},
		SetConfig{Key: "region", Value: "us-west-2", URLPrefix: "s3://bucket/"},
	}

	encoded, err := EncodeList(ops)
	if err != nil {
		t.Fatalf("EncodeList: %v", err)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(encoded, &node); err != nil {
		t.Fatalf("unmarshal encoded bytes: %v", err)
	}
	seq := node.Content[0]
	decoded, err := DecodeList(seq)
	if err != nil {
		t.Fatalf("DecodeList: %v", err)
	}
	if len(decoded) != len(ops) {
		t.Fatalf("expected %d ops, got %d", len(ops), len(decoded))
	}
	attach, ok := decoded[0].(Attach)
	if !ok || attach.URL != "file:///data/userdata.parquet" {
		t.Fatalf("unexpected decoded attach: %#v", decoded[0])
	}
	filter, ok := decoded[1].(Filter)
	if !ok || filter.Expr != "salary > $1" || len(filter.Params) != 1 {
		t.Fatalf("unexpected decoded filter: %#v", decoded[1])
	}
}

func TestEncodeListDeterministic(t *testing.T) {
	ops := []Operation{Attach{URL: "a"}, Filter{Expr: "x > $1", Params: []interface{}{1}}}
	b1, err := EncodeList(ops)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := EncodeList(ops)
	if err != nil {
		t.Fatal(err)
	}
	if string(b1) != string(b2) {
		t.Fatalf("expected deterministic encoding, got:\n%s\nvs\n%s", b1, b2)
	}
}
