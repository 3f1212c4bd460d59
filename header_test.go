package dbus

import "testing"

func TestHeaderValidateRequiredFields(t *testing.T) {
	h := newHeader(LittleEndian, TypeMethodCall, 1)
	if err := h.validate(); !IsKind(err, InvalidField) {
		t.Fatalf("validate() on a bare method-call header = %v, want InvalidField", err)
	}
	h.setPath("/a")
	h.setString(FieldMember, "M")
	if err := h.validate(); err != nil {
		t.Fatalf("validate() = %v, want nil", err)
	}
}

func TestHeaderFieldArrayRoundtrips(t *testing.T) {
	h := newHeader(LittleEndian, TypeSignal, 7)
	h.setPath("/org/example")
	h.setString(FieldInterface, "org.example.Iface")
	h.setString(FieldMember, "Changed")

	fieldsBytes, err := h.marshalFields(LittleEndian, 12)
	if err != nil {
		t.Fatal(err)
	}
	full := make([]byte, 0, 12+len(fieldsBytes))
	full = append(full, byte(LittleEndian), byte(TypeSignal), 0, 1)
	full = append(full, 0, 0, 0, 0) // body length
	full = append(full, 7, 0, 0, 0) // serial
	full = append(full, fieldsBytes...)

	parsed, consumed, err := parseHeader(full)
	if err != nil {
		t.Fatal(err)
	}
	if consumed != len(full) {
		t.Fatalf("consumed %d, want %d", consumed, len(full))
	}
	if parsed.pathField(FieldPath) != "/org/example" {
		t.Fatalf("path = %q", parsed.pathField(FieldPath))
	}
	if parsed.stringField(FieldInterface) != "org.example.Iface" {
		t.Fatalf("interface = %q", parsed.stringField(FieldInterface))
	}
	if parsed.stringField(FieldMember) != "Changed" {
		t.Fatalf("member = %q", parsed.stringField(FieldMember))
	}
}

func TestFieldSignatureMismatchRejected(t *testing.T) {
	h := newHeader(LittleEndian, TypeMethodCall, 1)
	h.setPath("/a")
	h.setString(FieldMember, "M")
	h.Fields[FieldReplySerial] = NewVariant("s", "wrong type")
	if err := h.validate(); !IsKind(err, InvalidField) {
		t.Fatalf("validate() with mistyped field = %v, want InvalidField", err)
	}
}
