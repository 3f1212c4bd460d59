package dbus

import (
	"reflect"
	"strings"
	"unicode/utf8"
)

var (
	typeHasObjectPath = reflect.TypeOf((*HasObjectPath)(nil)).Elem()
	typeVariant       = reflect.TypeOf(Variant{})
	typeSignature     = reflect.TypeOf(Signature(""))
	typeObjectPath    = reflect.TypeOf(ObjectPath(""))
)

// Signature is the type signature of a D-Bus value: a compact string
// drawn from the D-Bus type code alphabet (see the alignment table in
// the package's accompanying specification).
type Signature string

// ObjectPath is a D-Bus object path. Validation of path syntax is left
// to callers; this package treats it as an opaque string that must
// still satisfy the universal string constraints (UTF-8, no interior
// NUL).
type ObjectPath string

// HasObjectPath is implemented by types that can stand in for an
// ObjectPath when serialized, so domain-specific path types don't need
// to be ObjectPath themselves.
type HasObjectPath interface {
	GetObjectPath() ObjectPath
}

// GetObjectPath lets ObjectPath itself satisfy HasObjectPath.
func (o ObjectPath) GetObjectPath() ObjectPath { return o }

// Variant is the D-Bus self-describing any-type: a value tagged with
// its own signature at serialization time.
type Variant struct {
	sig   Signature
	value interface{}
}

// MakeVariant wraps v in a Variant, deriving its signature from v's Go
// type. Use NewVariant if the signature is already known, to avoid the
// reflection walk.
func MakeVariant(v interface{}) (Variant, error) {
	sig, err := SignatureOf(reflect.TypeOf(v))
	if err != nil {
		return Variant{}, err
	}
	return Variant{sig: sig, value: v}, nil
}

// NewVariant builds a Variant from an explicit signature, skipping
// signature derivation.
func NewVariant(sig Signature, v interface{}) Variant {
	return Variant{sig: sig, value: v}
}

// Signature returns the variant's inline signature.
func (v Variant) Signature() Signature { return v.sig }

// Value returns the variant's payload.
func (v Variant) Value() interface{} { return v.value }

// TaggedUnion is the `(uv)` encoding of a tagged union: a u32
// discriminant followed by a variant carrying the chosen payload.
type TaggedUnion struct {
	Tag     uint32
	Payload Variant
}

// RemoteError represents a D-Bus TypeError message body: an error name
// plus a human-readable message.
type RemoteError struct {
	Name    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return e.Name + ": " + e.Message
	}
	return e.Name
}

func validateString(s string) error {
	if !utf8.ValidString(s) {
		return newErr(InvalidValue, "string is not valid UTF-8")
	}
	if strings.IndexByte(s, 0) != -1 {
		return newErr(InvalidValue, "string contains an interior NUL byte")
	}
	return nil
}

// SignatureOf derives the D-Bus signature the serializer will produce
// for a Go value of type t, applying the numeric widening rules
// imposed by the surface API (int8 -> n, float32 -> d, bool -> 32-bit
// b).
func SignatureOf(t reflect.Type) (Signature, error) {
	if t == nil {
		return "", newErr(InvalidSignature, "cannot determine signature of nil type")
	}
	if t.AssignableTo(typeHasObjectPath) {
		return "o", nil
	}
	switch t.Kind() {
	case reflect.Uint8:
		return "y", nil
	case reflect.Bool:
		return "b", nil
	case reflect.Int8, reflect.Int16:
		// D-Bus has no signed byte type; widen to the 16-bit signed code.
		return "n", nil
	case reflect.Uint16:
		return "q", nil
	case reflect.Int32:
		return "i", nil
	case reflect.Uint32:
		if t == typeFd {
			if !fdSupported {
				return "", newErr(InvalidSignature, "file descriptor passing unsupported on this platform")
			}
			return "h", nil
		}
		return "u", nil
	case reflect.Int64:
		return "x", nil
	case reflect.Uint64:
		return "t", nil
	case reflect.Float32, reflect.Float64:
		// D-Bus has no 32-bit float type; widen to the 64-bit code.
		return "d", nil
	case reflect.String:
		if t == typeSignature {
			return "g", nil
		}
		if t == typeObjectPath {
			return "o", nil
		}
		return "s", nil
	case reflect.Array, reflect.Slice:
		elemSig, err := SignatureOf(t.Elem())
		if err != nil {
			return "", err
		}
		return Signature("a") + elemSig, nil
	case reflect.Map:
		keySig, err := SignatureOf(t.Key())
		if err != nil {
			return "", err
		}
		valSig, err := SignatureOf(t.Elem())
		if err != nil {
			return "", err
		}
		return Signature("a{") + keySig + valSig + "}", nil
	case reflect.Struct:
		if t == typeVariant {
			return "v", nil
		}
		sig := Signature("(")
		for i := 0; i != t.NumField(); i++ {
			f := t.Field(i)
			if f.PkgPath != "" {
				continue // unexported field, not part of the wire shape
			}
			fieldSig, err := SignatureOf(f.Type)
			if err != nil {
				return "", err
			}
			sig += fieldSig
		}
		sig += ")"
		return sig, nil
	case reflect.Ptr:
		return SignatureOf(t.Elem())
	}
	return "", newErr(InvalidSignature, "cannot determine signature for "+t.String())
}

// Marshaler is implemented by values that know their own D-Bus
// signature, bypassing reflection-based derivation. The message
// builder's typed body-ingestion path checks for this interface
// first.
type Marshaler interface {
	SignatureDBus() Signature
}

// signatureFor derives the body signature for v: the value's own
// SignatureDBus if it implements Marshaler, else the reflective
// derivation via SignatureOf.
func signatureFor(v interface{}) (Signature, error) {
	if m, ok := v.(Marshaler); ok {
		return m.SignatureDBus(), nil
	}
	return SignatureOf(reflect.TypeOf(v))
}
