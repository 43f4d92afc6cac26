package gtproto

import (
	"reflect"
	"testing"
)

func TestVariantListRoundTrip(t *testing.T) {
	vl := VariantList{Elements: []Variant{
		NewStringVariant("OnSendToServer"),
		NewI32Variant(17242),
		NewI32Variant(0),
		NewI32Variant(0),
		NewStringVariant("213.179.209.168|"),
	}}

	enc := vl.Serialize()
	got, err := DeserializeVariantList(enc)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if !reflect.DeepEqual(got, vl) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, vl)
	}
}

func TestVariantListSkipsUnknown(t *testing.T) {
	vl := VariantList{Elements: []Variant{
		NewStringVariant("f"),
		{Kind: VariantUnknown},
		NewI32Variant(7),
	}}
	enc := vl.Serialize()
	if enc[0] != 2 {
		t.Fatalf("expected serialized count 2, got %d", enc[0])
	}
	got, err := DeserializeVariantList(enc)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if len(got.Elements) != 2 {
		t.Fatalf("expected 2 elements back, got %d", len(got.Elements))
	}
}

func TestVariantListLengthBound(t *testing.T) {
	vl := VariantList{Elements: []Variant{
		NewStringVariant("hello"),
		NewI32Variant(1),
		NewU32Variant(2),
		NewVec2Variant(1, 2),
		NewVec3Variant(1, 2, 3),
		NewFloatVariant(1.5),
	}}
	enc := vl.Serialize()

	want := 1
	for _, v := range vl.Elements {
		bodySize := 0
		switch v.Kind {
		case VariantFloat, VariantU32, VariantI32:
			bodySize = 4
		case VariantVec2:
			bodySize = 8
		case VariantVec3:
			bodySize = 12
		case VariantString:
			bodySize = 4 + len(v.S)
		}
		want += 2 + bodySize
	}
	if len(enc) != want {
		t.Fatalf("serialized length = %d, want %d", len(enc), want)
	}
}

func TestDeserializeVariantListTruncated(t *testing.T) {
	if _, err := DeserializeVariantList([]byte{5}); err == nil {
		t.Fatalf("expected error for truncated element list")
	}
}
