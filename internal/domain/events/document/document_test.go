package document

import (
	"encoding/json"
	"testing"
)

func TestMerge_EmptyPatchKeepsDocumentEqual(t *testing.T) {
	existing := Document{
		"ml":    Number(120),
		"side":  String("left"),
		"flags": List(String("a"), String("b")),
		"extra": Nested(Document{"k": Bool(true)}),
	}

	merged := existing.Merge(Document{})
	if !merged.Equal(existing) {
		t.Fatalf("merge with empty patch must preserve the document: %#v", merged)
	}

	merged2 := existing.Merge(nil)
	if !merged2.Equal(existing) {
		t.Fatalf("merge with nil patch must preserve the document: %#v", merged2)
	}
}

func TestMerge_OverridesOnlyPatchedKeys(t *testing.T) {
	existing := Document{
		"ml":   Number(120),
		"side": String("left"),
	}
	patch := Document{
		"side": String("right"),
		"note": String("tomó bien"),
	}

	merged := existing.Merge(patch)

	if ml, _ := merged.Number("ml"); ml != 120 {
		t.Fatalf("unpatched key must survive, got ml=%v", ml)
	}
	if merged.Text("side") != "right" {
		t.Fatalf("patched key must win, got %q", merged.Text("side"))
	}
	if merged.Text("note") != "tomó bien" {
		t.Fatalf("new keys must be added, got %q", merged.Text("note"))
	}

	// Pureza: ni el receptor ni el patch cambian.
	if existing.Text("side") != "left" {
		t.Fatalf("merge must not mutate the receiver")
	}
	if len(patch) != 2 {
		t.Fatalf("merge must not mutate the patch")
	}
}

func TestMerge_NullOverwritesValue(t *testing.T) {
	existing := Document{"temp_c": Number(38.2)}
	merged := existing.Merge(Document{"temp_c": Null()})

	v, ok := merged["temp_c"]
	if !ok || v.Kind() != KindNull {
		t.Fatalf("expected explicit null to overwrite, got %#v", v)
	}
}

func TestDocument_JSONRoundTrip(t *testing.T) {
	original := Document{
		"ml":       Number(120),
		"side":     String("left"),
		"finished": Bool(true),
		"tags":     List(String("night"), Number(3)),
		"nested":   Nested(Document{"deep": String("x")}),
		"none":     Null(),
	}

	raw, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	var decoded Document
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	if !decoded.Equal(original) {
		t.Fatalf("round trip mismatch:\noriginal: %#v\ndecoded:  %#v", original, decoded)
	}
}

func TestDecode_TolerantOnBadInput(t *testing.T) {
	cases := [][]byte{nil, {}, []byte("not json"), []byte("null"), []byte(`"just a string"`)}
	for _, input := range cases {
		doc := Decode(input)
		if doc == nil || len(doc) != 0 {
			t.Fatalf("Decode(%q) must return an empty document, got %#v", input, doc)
		}
	}

	doc := Decode([]byte(`{"ml": 90, "side": "right"}`))
	if ml, _ := doc.Number("ml"); ml != 90 {
		t.Fatalf("expected ml=90, got %v", ml)
	}
}

func TestEncode_NilDocument(t *testing.T) {
	var doc Document
	if got := string(doc.Encode()); got != "{}" {
		t.Fatalf("nil document must encode as {}, got %s", got)
	}
}

func TestNumber_ParsesNumericStrings(t *testing.T) {
	doc := Document{"amount_ml": String(" 150 ")}
	v, ok := doc.Number("ml", "amount_ml")
	if !ok || v != 150 {
		t.Fatalf("expected 150 from numeric string, got %v (ok=%v)", v, ok)
	}
}
