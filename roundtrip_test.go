package dbus

import (
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func marshalUnmarshal(t *testing.T, v interface{}, dest interface{}) {
	t.Helper()
	body, fds, sig, err := Marshal(v, LittleEndian)
	if err != nil {
		t.Fatalf("Marshal(%#v): %v", v, err)
	}
	if err := Unmarshal(body, LittleEndian, sig, dest, fds); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
}

func TestRoundtripBasicTypes(t *testing.T) {
	type payload struct {
		B  byte
		Bo bool
		N  int16
		Q  uint16
		I  int32
		U  uint32
		X  int64
		T  uint64
		D  float64
		S  string
		O  ObjectPath
		G  Signature
	}
	in := payload{
		B: 7, Bo: true, N: -5, Q: 9, I: -100, U: 100,
		X: -1 << 40, T: 1 << 40, D: 3.5,
		S: "hello", O: "/org/example", G: "a{sv}",
	}
	var out payload
	marshalUnmarshal(t, in, &out)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("roundtrip mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundtripArrayAndMap(t *testing.T) {
	type payload struct {
		Nums []int32
		Strs map[string]string
		Raw  []byte
	}
	in := payload{
		Nums: []int32{1, 2, 3},
		Strs: map[string]string{"a": "1", "b": "2"},
		Raw:  []byte{0xde, 0xad, 0xbe, 0xef},
	}
	var out payload
	marshalUnmarshal(t, in, &out)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("roundtrip mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundtripEmptyArray(t *testing.T) {
	type payload struct {
		Nums []int32
	}
	in := payload{Nums: []int32{}}
	var out payload
	marshalUnmarshal(t, in, &out)
	if len(out.Nums) != 0 {
		t.Fatalf("got %v, want empty", out.Nums)
	}
}

func TestRoundtripNestedStruct(t *testing.T) {
	type inner struct {
		X int32
		Y string
	}
	type outer struct {
		Items []inner
	}
	in := outer{Items: []inner{{1, "a"}, {2, "b"}}}
	var out outer
	marshalUnmarshal(t, in, &out)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("roundtrip mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundtripVariant(t *testing.T) {
	type payload struct {
		V Variant
	}
	v, err := MakeVariant(int32(42))
	if err != nil {
		t.Fatal(err)
	}
	in := payload{V: v}
	var out payload
	marshalUnmarshal(t, in, &out)
	if out.V.Signature() != "i" || out.V.Value().(int32) != 42 {
		t.Fatalf("got %#v, want signature i value 42", out.V)
	}
}

func TestRoundtripTaggedUnion(t *testing.T) {
	type payload struct {
		U TaggedUnion
	}
	v, err := MakeVariant("chosen")
	if err != nil {
		t.Fatal(err)
	}
	in := payload{U: TaggedUnion{Tag: 2, Payload: v}}
	var out payload
	marshalUnmarshal(t, in, &out)
	if out.U.Tag != 2 || out.U.Payload.Signature() != "s" || out.U.Payload.Value().(string) != "chosen" {
		t.Fatalf("got %#v, want Tag=2 Payload=s:chosen", out.U)
	}
}

func TestRoundtripBigEndian(t *testing.T) {
	type payload struct {
		A uint32
		B string
	}
	in := payload{A: 0x01020304, B: "x"}
	body, fds, sig, err := Marshal(in, BigEndian)
	if err != nil {
		t.Fatal(err)
	}
	var out payload
	if err := Unmarshal(body, BigEndian, sig, &out, fds); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("roundtrip mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshalAnyArrayOfInt(t *testing.T) {
	// Matches the canonical example: signature "ai" body [1,2,3,4].
	raw := []byte{16, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, 4, 0, 0, 0}
	v, err := UnmarshalAny(raw, LittleEndian, "ai", nil)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := v.([]interface{})
	if !ok {
		t.Fatalf("got %T, want []interface{}", v)
	}
	want := []int32{1, 2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i].(int32) != want[i] {
			t.Fatalf("element %d = %v, want %d", i, got[i], want[i])
		}
	}
}

func TestMaxDepthReachedOnEncode(t *testing.T) {
	// Nested slices: reflect.TypeOf can build an arbitrarily deep
	// []...[]int32 value at runtime, giving an "aaa...ai" signature
	// that exceeds the array nesting bound.
	depth := depthLimit + 1
	typ := reflect.TypeOf(int32(0))
	for i := 0; i < depth; i++ {
		typ = reflect.SliceOf(typ)
	}
	v := reflect.MakeSlice(typ, 0, 0)
	_, _, _, err := Marshal(v.Interface(), LittleEndian)
	if !IsKind(err, MaxDepthReached) {
		t.Fatalf("Marshal(%d-deep slice) = %v, want MaxDepthReached", depth, err)
	}
}
