package dbus

import "testing"

func TestValidateSignatureAccepts(t *testing.T) {
	sigs := []Signature{
		"",
		"y", "b", "n", "q", "i", "u", "x", "t", "d", "s", "o", "g", "v",
		"ai", "as", "a{sv}", "(ii)", "a(ii)", "a{s(ii)}", "aai",
	}
	for _, sig := range sigs {
		if err := validateSignature(sig); err != nil {
			t.Errorf("validateSignature(%q) = %v, want nil", sig, err)
		}
	}
}

func TestValidateSignatureRejects(t *testing.T) {
	sigs := []Signature{
		"(", ")", "a", "a{s}", "a{iss}", "a{vs}", "z", "(ii",
	}
	for _, sig := range sigs {
		if err := validateSignature(sig); err == nil {
			t.Errorf("validateSignature(%q) = nil, want error", sig)
		}
	}
}

func TestValidateSignatureDepthLimit(t *testing.T) {
	sig := Signature("")
	for i := 0; i < depthLimit+1; i++ {
		sig += "a"
	}
	sig += "i"
	if err := validateSignature(sig); !IsKind(err, MaxDepthReached) {
		t.Fatalf("validateSignature(33-deep array) = %v, want MaxDepthReached", err)
	}
}

func TestSplitStructSignature(t *testing.T) {
	fields, err := splitStructSignature("isa{sv}")
	if err != nil {
		t.Fatal(err)
	}
	want := []Signature{"i", "s", "a{sv}"}
	if len(fields) != len(want) {
		t.Fatalf("got %v, want %v", fields, want)
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Errorf("field %d = %q, want %q", i, fields[i], want[i])
		}
	}
}

func TestSplitDictEntry(t *testing.T) {
	key, val, err := splitDictEntry("{sv}")
	if err != nil {
		t.Fatal(err)
	}
	if key != "s" || val != "v" {
		t.Fatalf("got key=%q val=%q, want s, v", key, val)
	}
}

func TestSignatureOfWidening(t *testing.T) {
	cases := []struct {
		v    interface{}
		want Signature
	}{
		{int8(1), "n"},
		{int16(1), "n"},
		{float32(1), "d"},
		{float64(1), "d"},
		{uint8(1), "y"},
		{"hi", "s"},
		{ObjectPath("/a"), "o"},
		{Signature("s"), "g"},
		{[]int32{1, 2}, "ai"},
		{map[string]int32{"a": 1}, "a{si}"},
	}
	for _, c := range cases {
		sig, err := signatureFor(c.v)
		if err != nil {
			t.Errorf("signatureFor(%#v) error: %v", c.v, err)
			continue
		}
		if sig != c.want {
			t.Errorf("signatureFor(%#v) = %q, want %q", c.v, sig, c.want)
		}
	}
}
