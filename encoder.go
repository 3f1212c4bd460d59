package dbus

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
)

// encoder walks a value signature-directed, appending wire bytes to
// out. It is the single serialization engine used both for message
// bodies and, with one instance for the whole field array, for header
// fields.
type encoder struct {
	out    *bytes.Buffer
	ctx    EncodingContext
	fds    *fdTable
	depths containerDepths
}

func newEncoder(order ByteOrder, baseOffset int, fds *fdTable) *encoder {
	return &encoder{
		out: new(bytes.Buffer),
		ctx: EncodingContext{Order: order, Offset: baseOffset},
		fds: fds,
	}
}

// childAt returns a fresh encoder sharing this encoder's byte order
// and descriptor table and starting from its current nesting depths,
// whose offset starts at absOffset. Used by
// array and map encoding: the child's bytes are measured in isolation
// and spliced into the parent buffer once complete, so the parent
// never needs to seek back and patch a length field.
func (e *encoder) childAt(absOffset int) *encoder {
	return &encoder{
		out:    new(bytes.Buffer),
		ctx:    EncodingContext{Order: e.ctx.Order, Offset: absOffset},
		fds:    e.fds,
		depths: e.depths,
	}
}

func (e *encoder) align(n int) {
	pad := e.ctx.padding(n)
	for i := 0; i < pad; i++ {
		e.out.WriteByte(0)
	}
	e.ctx.Offset += pad
}

func (e *encoder) writeByte(b byte) {
	e.out.WriteByte(b)
	e.ctx.Offset++
}

func (e *encoder) writeRaw(p []byte) {
	e.out.Write(p)
	e.ctx.Offset += len(p)
}

func (e *encoder) writeUint16(v uint16) {
	e.align(2)
	var b [2]byte
	e.ctx.Order.binary().PutUint16(b[:], v)
	e.writeRaw(b[:])
}

func (e *encoder) writeUint32(v uint32) {
	e.align(4)
	var b [4]byte
	e.ctx.Order.binary().PutUint32(b[:], v)
	e.writeRaw(b[:])
}

func (e *encoder) writeUint64(v uint64) {
	e.align(8)
	var b [8]byte
	e.ctx.Order.binary().PutUint64(b[:], v)
	e.writeRaw(b[:])
}

func (e *encoder) writeString(s string, lenCode byte) error {
	if err := validateString(s); err != nil {
		return err
	}
	switch lenCode {
	case 'g':
		if len(s) > 255 {
			return newErr(ExcessData, "signature longer than 255 bytes")
		}
		if err := validateSignature(Signature(s)); err != nil {
			return err
		}
		e.writeByte(byte(len(s)))
	default:
		if len(s) > math.MaxUint32 {
			return newErr(ExcessData, "string longer than a u32 can express")
		}
		e.writeUint32(uint32(len(s)))
	}
	e.writeRaw([]byte(s))
	e.writeByte(0)
	return nil
}

// appendValue serializes rv, whose signature is exactly sig (one
// complete type). sig drives the dispatch; rv's Go type only needs to
// be compatible with it.
func (e *encoder) appendValue(rv reflect.Value, sig Signature) error {
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return newErr(InvalidValue, "cannot serialize nil value")
		}
		rv = rv.Elem()
	}
	code := sig[0]
	switch code {
	case 'y':
		e.writeByte(byte(asUint(rv)))
		return nil
	case 'b':
		e.align(4)
		v := uint32(0)
		if rv.Kind() == reflect.Bool && rv.Bool() {
			v = 1
		}
		e.writeUint32(v)
		return nil
	case 'n':
		e.align(2)
		e.writeUint16(uint16(int16(asInt(rv))))
		return nil
	case 'q':
		e.writeUint16(uint16(asUint(rv)))
		return nil
	case 'i':
		e.align(4)
		e.writeUint32(uint32(int32(asInt(rv))))
		return nil
	case 'u':
		e.writeUint32(uint32(asUint(rv)))
		return nil
	case 'x':
		e.align(8)
		e.writeUint64(uint64(asInt(rv)))
		return nil
	case 't':
		e.writeUint64(asUint(rv))
		return nil
	case 'd':
		e.align(8)
		e.writeUint64(math.Float64bits(asFloat(rv)))
		return nil
	case 's':
		return e.writeString(stringOf(rv), 's')
	case 'o':
		return e.writeString(pathOf(rv), 'o')
	case 'g':
		return e.writeString(stringOf(rv), 'g')
	case 'h':
		return e.appendFd(rv)
	case 'v':
		return e.appendVariant(rv)
	case 'a':
		return e.appendArray(rv, sig[1:])
	case '(':
		return e.appendStruct(rv, sig)
	default:
		return newErr(InvalidSignature, fmt.Sprintf("unsupported type code '%c'", code))
	}
}

func (e *encoder) appendFd(rv reflect.Value) error {
	if !fdSupported {
		return newErr(InvalidValue, "file descriptor passing unsupported on this platform")
	}
	e.align(4)
	switch rv.Type() {
	case typeFd:
		e.writeUint32(uint32(rv.Interface().(Fd)))
		return nil
	case typeRawFD:
		idx := e.fds.index(rv.Interface().(RawFD))
		e.writeUint32(uint32(idx))
		return nil
	default:
		return newErr(IncorrectType, "value for 'h' must be Fd or RawFD")
	}
}

func (e *encoder) appendVariant(rv reflect.Value) error {
	var v Variant
	switch rv.Type() {
	case typeVariant:
		v = rv.Interface().(Variant)
	default:
		var err error
		v, err = MakeVariant(rv.Interface())
		if err != nil {
			return err
		}
	}
	if err := e.depths.incStruct(); err != nil {
		return err
	}
	defer e.depths.decStruct()
	if err := e.writeString(string(v.sig), 'g'); err != nil {
		return err
	}
	return e.appendValue(reflect.ValueOf(v.value), v.sig)
}

// appendArray serializes rv (a Go slice, array, or map) as the D-Bus
// array whose element signature is elemSig. The padding that aligns
// the first element is written unconditionally, even for a
// zero-length array, and is not counted in the length prefix; the
// length prefix covers only the element bytes that follow it.
func (e *encoder) appendArray(rv reflect.Value, elemSig Signature) error {
	if elemSig == "" {
		return newErr(InvalidSignature, "array type code with no element signature")
	}
	if elemSig[0] == 'y' && rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		e.align(4)
		data := rv.Bytes()
		if len(data) > math.MaxUint32 {
			return newErr(ExcessData, "byte array longer than a u32 can express")
		}
		e.writeUint32(uint32(len(data)))
		e.writeRaw(data)
		return nil
	}

	e.align(4)
	if err := e.depths.incArray(); err != nil {
		return err
	}
	defer e.depths.decArray()

	elemAlign := alignment(elemSig[0])
	if elemSig[0] == '{' {
		elemAlign = 8
	}
	pad := padTo(e.ctx.Offset+4, elemAlign)
	child := e.childAt(e.ctx.Offset + 4 + pad)

	switch rv.Kind() {
	case reflect.Map:
		keys := rv.MapKeys()
		keySig, valSig, err := splitDictEntry(elemSig)
		if err != nil {
			return err
		}
		for _, k := range keys {
			child.align(8)
			if err := child.appendValue(k, keySig); err != nil {
				return err
			}
			if err := child.appendValue(rv.MapIndex(k), valSig); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := child.appendValue(rv.Index(i), elemSig); err != nil {
				return err
			}
		}
	default:
		return newErr(IncorrectType, "array signature requires a slice, array or map value")
	}

	body := child.out.Bytes()
	if len(body) > math.MaxUint32 {
		return newErr(ExcessData, "array longer than a u32 can express")
	}
	e.writeUint32(uint32(len(body)))
	for i := 0; i < pad; i++ {
		e.out.WriteByte(0)
	}
	e.ctx.Offset += pad
	e.writeRaw(body)
	return nil
}

func splitDictEntry(sig Signature) (key, val Signature, err error) {
	if len(sig) < 3 || sig[0] != '{' || sig[len(sig)-1] != '}' {
		return "", "", newErr(InvalidSignature, "expected a dict-entry signature")
	}
	inner := sig[1 : len(sig)-1]
	depths := &containerDepths{}
	c := newSigCursor(inner)
	key, err = c.nextComplete(depths)
	if err != nil {
		return "", "", err
	}
	val, err = c.nextComplete(depths)
	if err != nil {
		return "", "", err
	}
	if !c.done() {
		return "", "", newErr(InvalidSignature, "dict-entry signature has more than two types")
	}
	return key, val, nil
}

func (e *encoder) appendStruct(rv reflect.Value, sig Signature) error {
	e.align(8)
	if err := e.depths.incStruct(); err != nil {
		return err
	}
	defer e.depths.decStruct()

	fieldSigs, err := splitStructSignature(sig[1 : len(sig)-1])
	if err != nil {
		return err
	}

	if rv.Kind() != reflect.Struct {
		return newErr(IncorrectType, "struct signature requires a struct value")
	}
	fi := 0
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Type().Field(i)
		if f.PkgPath != "" {
			continue
		}
		if fi >= len(fieldSigs) {
			return newErr(InvalidValue, "struct has more exported fields than the signature has types")
		}
		if err := e.appendValue(rv.Field(i), fieldSigs[fi]); err != nil {
			return err
		}
		fi++
	}
	if fi != len(fieldSigs) {
		return newErr(InvalidValue, "struct field count does not match signature")
	}
	return nil
}

func asUint(rv reflect.Value) uint64 {
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return uint64(rv.Int())
	}
	return 0
}

func asInt(rv reflect.Value) int64 {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return int64(rv.Uint())
	}
	return 0
}

func asFloat(rv reflect.Value) float64 {
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return 0
}

func stringOf(rv reflect.Value) string {
	if rv.Type().Implements(typeHasObjectPath) {
		return string(rv.Interface().(HasObjectPath).GetObjectPath())
	}
	if rv.Kind() == reflect.String {
		return rv.String()
	}
	return ""
}

func pathOf(rv reflect.Value) string {
	if rv.Type().Implements(typeHasObjectPath) {
		return string(rv.Interface().(HasObjectPath).GetObjectPath())
	}
	return rv.String()
}

// Marshal serializes v (which must correspond to a single complete
// D-Bus type, e.g. a struct for a whole message body) into wire bytes
// using order, returning the bytes, the file descriptors referenced
// along the way, and the signature that was derived for v.
//
// The returned signature follows the message-body convention: if v is
// a Go struct, its derived "(...)"-wrapped signature has the outer
// parens stripped, since a body's arguments are its top-level types
// with no enclosing struct. The wire bytes are unaffected by this,
// since a struct's only framing is an 8-byte alignment pad that is
// always zero-length at offset 0.
func Marshal(v interface{}, order ByteOrder) ([]byte, []RawFD, Signature, error) {
	sig, err := signatureFor(v)
	if err != nil {
		return nil, nil, "", err
	}
	if err := validateSignature(sig); err != nil {
		return nil, nil, "", err
	}
	fds := &fdTable{}
	enc := newEncoder(order, 0, fds)
	if err := enc.appendValue(reflect.ValueOf(v), sig); err != nil {
		return nil, nil, "", err
	}
	bareSig := sig
	if len(sig) >= 2 && sig[0] == '(' && sig[len(sig)-1] == ')' {
		bareSig = sig[1 : len(sig)-1]
	}
	return enc.out.Bytes(), fds.fds, bareSig, nil
}
