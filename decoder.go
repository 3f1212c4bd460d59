package dbus

import (
	"math"
	"reflect"
)

// decoder walks a byte buffer signature-directed, the mirror image of
// encoder. It tracks its absolute offset the same way, so alignment
// padding can be verified rather than merely skipped: a misaligned
// value is a sign the signature and buffer have diverged, and is
// reported as InvalidValue rather than silently absorbed.
type decoder struct {
	buf    []byte
	pos    int
	ctx    EncodingContext
	fds    *fdTable
	depths containerDepths
}

func newDecoder(buf []byte, order ByteOrder, baseOffset int, fds *fdTable) *decoder {
	return &decoder{buf: buf, ctx: EncodingContext{Order: order, Offset: baseOffset}, fds: fds}
}

func (d *decoder) remaining() int { return len(d.buf) - d.pos }

func (d *decoder) align(n int) error {
	pad := d.ctx.padding(n)
	if pad > d.remaining() {
		return newErr(InvalidValue, "truncated message: missing alignment padding")
	}
	for i := 0; i < pad; i++ {
		if d.buf[d.pos] != 0 {
			return newErr(InvalidValue, "non-zero alignment padding byte")
		}
		d.pos++
	}
	d.ctx.Offset += pad
	return nil
}

func (d *decoder) take(n int) ([]byte, error) {
	if n > d.remaining() {
		return nil, newErr(InvalidValue, "truncated message: expected more data")
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	d.ctx.Offset += n
	return b, nil
}

func (d *decoder) readByte() (byte, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) readUint16() (uint16, error) {
	if err := d.align(2); err != nil {
		return 0, err
	}
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return d.ctx.Order.binary().Uint16(b), nil
}

func (d *decoder) readUint32() (uint32, error) {
	if err := d.align(4); err != nil {
		return 0, err
	}
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return d.ctx.Order.binary().Uint32(b), nil
}

func (d *decoder) readUint64() (uint64, error) {
	if err := d.align(8); err != nil {
		return 0, err
	}
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return d.ctx.Order.binary().Uint64(b), nil
}

func (d *decoder) readString(lenCode byte) (string, error) {
	var n int
	switch lenCode {
	case 'g':
		b, err := d.readByte()
		if err != nil {
			return "", err
		}
		n = int(b)
	default:
		u, err := d.readUint32()
		if err != nil {
			return "", err
		}
		if u > math.MaxInt32 {
			return "", newErr(ExcessData, "string length exceeds addressable range")
		}
		n = int(u)
	}
	b, err := d.take(n)
	if err != nil {
		return "", err
	}
	s := string(b)
	nul, err := d.readByte()
	if err != nil {
		return "", err
	}
	if nul != 0 {
		return "", newErr(InvalidValue, "string is not NUL-terminated")
	}
	if err := validateString(s); err != nil {
		return "", err
	}
	if lenCode == 'g' {
		if err := validateSignature(Signature(s)); err != nil {
			return "", err
		}
	}
	return s, nil
}

// decodeAny decodes a value of the given signature into a generic Go
// representation: basic types as their natural Go type, arrays as
// []interface{} (or []byte for ay, and map[interface{}]interface{}
// for a{..}), structs
// as []interface{} of field values, and variants as a Variant. This
// is the path used when the caller has no static Go type to decode
// into, e.g. dumping an arbitrary message body for display.
func (d *decoder) decodeAny(sig Signature) (interface{}, error) {
	code := sig[0]
	switch code {
	case 'y':
		return d.readByte()
	case 'b':
		u, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		if u > 1 {
			return nil, newErr(InvalidValue, "bool wire value must be 0 or 1")
		}
		return u == 1, nil
	case 'n':
		u, err := d.readUint16()
		return int16(u), err
	case 'q':
		return d.readUint16()
	case 'i':
		u, err := d.readUint32()
		return int32(u), err
	case 'u':
		return d.readUint32()
	case 'x':
		u, err := d.readUint64()
		return int64(u), err
	case 't':
		return d.readUint64()
	case 'd':
		u, err := d.readUint64()
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(u), nil
	case 's':
		return d.readString('s')
	case 'o':
		s, err := d.readString('s')
		return ObjectPath(s), err
	case 'g':
		s, err := d.readString('g')
		return Signature(s), err
	case 'h':
		return d.decodeFd()
	case 'v':
		return d.decodeVariant()
	case 'a':
		return d.decodeArrayAny(sig[1:])
	case '(':
		return d.decodeStructAny(sig)
	}
	return nil, newErr(InvalidSignature, "unsupported type code")
}

func (d *decoder) decodeFd() (interface{}, error) {
	if !fdSupported {
		return nil, newErr(InvalidValue, "file descriptor passing unsupported on this platform")
	}
	u, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	return Fd(u), nil
}

func (d *decoder) decodeVariant() (interface{}, error) {
	if err := d.depths.incStruct(); err != nil {
		return nil, err
	}
	defer d.depths.decStruct()
	sig, err := d.readString('g')
	if err != nil {
		return nil, err
	}
	if err := validateSignature(Signature(sig)); err != nil {
		return nil, err
	}
	val, err := d.decodeAny(Signature(sig))
	if err != nil {
		return nil, err
	}
	return NewVariant(Signature(sig), val), nil
}

func (d *decoder) decodeArrayAny(elemSig Signature) (interface{}, error) {
	if elemSig == "" {
		return nil, newErr(InvalidSignature, "array type code with no element signature")
	}
	if elemSig[0] == 'y' {
		n, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		return d.take(int(n))
	}

	n, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	if int64(n) > messageSizeLimit {
		return nil, newErr(ExcessData, "array length exceeds message size limit")
	}
	if err := d.depths.incArray(); err != nil {
		return nil, err
	}
	defer d.depths.decArray()

	elemAlign := alignment(elemSig[0])
	if elemSig[0] == '{' {
		elemAlign = 8
	}
	if err := d.align(elemAlign); err != nil {
		return nil, err
	}
	end := d.pos + int(n)
	if end > len(d.buf) {
		return nil, newErr(InvalidValue, "truncated message: array body shorter than its length prefix")
	}

	if elemSig[0] == '{' {
		keySig, valSig, err := splitDictEntry(elemSig)
		if err != nil {
			return nil, err
		}
		result := make(map[interface{}]interface{})
		for d.pos < end {
			if err := d.align(8); err != nil {
				return nil, err
			}
			k, err := d.decodeAny(keySig)
			if err != nil {
				return nil, err
			}
			v, err := d.decodeAny(valSig)
			if err != nil {
				return nil, err
			}
			result[k] = v
		}
		return result, nil
	}

	var result []interface{}
	for d.pos < end {
		v, err := d.decodeAny(elemSig)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if d.pos != end {
		return nil, newErr(InvalidValue, "array body did not end on its declared length")
	}
	return result, nil
}

func (d *decoder) decodeStructAny(sig Signature) (interface{}, error) {
	if err := d.align(8); err != nil {
		return nil, err
	}
	if err := d.depths.incStruct(); err != nil {
		return nil, err
	}
	defer d.depths.decStruct()
	fieldSigs, err := splitStructSignature(sig[1 : len(sig)-1])
	if err != nil {
		return nil, err
	}
	fields := make([]interface{}, 0, len(fieldSigs))
	for _, fs := range fieldSigs {
		v, err := d.decodeAny(fs)
		if err != nil {
			return nil, err
		}
		fields = append(fields, v)
	}
	return fields, nil
}

// decodeInto decodes a value of signature sig into rv, a settable
// reflect.Value whose Go type must be shape-compatible with sig. It is
// the counterpart to encoder.appendValue, used when the caller has
// supplied a concrete Go type to unmarshal into.
func (d *decoder) decodeInto(rv reflect.Value, sig Signature) error {
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			rv.Set(reflect.New(rv.Type().Elem()))
		}
		rv = rv.Elem()
	}
	code := sig[0]
	switch code {
	case 'y':
		b, err := d.readByte()
		if err != nil {
			return err
		}
		rv.SetUint(uint64(b))
		return nil
	case 'b':
		u, err := d.readUint32()
		if err != nil {
			return err
		}
		if u > 1 {
			return newErr(InvalidValue, "bool wire value must be 0 or 1")
		}
		rv.SetBool(u == 1)
		return nil
	case 'n':
		u, err := d.readUint16()
		if err != nil {
			return err
		}
		rv.SetInt(int64(int16(u)))
		return nil
	case 'q':
		u, err := d.readUint16()
		if err != nil {
			return err
		}
		rv.SetUint(uint64(u))
		return nil
	case 'i':
		u, err := d.readUint32()
		if err != nil {
			return err
		}
		if rv.Type() == typeFd {
			return newErr(IncorrectType, "'i' cannot decode into Fd")
		}
		rv.SetInt(int64(int32(u)))
		return nil
	case 'u':
		u, err := d.readUint32()
		if err != nil {
			return err
		}
		rv.SetUint(uint64(u))
		return nil
	case 'x':
		u, err := d.readUint64()
		if err != nil {
			return err
		}
		rv.SetInt(int64(u))
		return nil
	case 't':
		u, err := d.readUint64()
		if err != nil {
			return err
		}
		rv.SetUint(u)
		return nil
	case 'd':
		u, err := d.readUint64()
		if err != nil {
			return err
		}
		rv.SetFloat(math.Float64frombits(u))
		return nil
	case 's':
		s, err := d.readString('s')
		if err != nil {
			return err
		}
		rv.SetString(s)
		return nil
	case 'o':
		s, err := d.readString('s')
		if err != nil {
			return err
		}
		rv.SetString(s)
		return nil
	case 'g':
		s, err := d.readString('g')
		if err != nil {
			return err
		}
		rv.SetString(s)
		return nil
	case 'h':
		if !fdSupported {
			return newErr(InvalidValue, "file descriptor passing unsupported on this platform")
		}
		u, err := d.readUint32()
		if err != nil {
			return err
		}
		if rv.Type() != typeFd {
			return newErr(IncorrectType, "value for 'h' must decode into Fd")
		}
		rv.Set(reflect.ValueOf(Fd(u)))
		return nil
	case 'v':
		v, err := d.decodeVariant()
		if err != nil {
			return err
		}
		if rv.Type() == typeVariant {
			rv.Set(reflect.ValueOf(v))
			return nil
		}
		variant := v.(Variant)
		payload := reflect.ValueOf(variant.value)
		if !payload.IsValid() || !payload.Type().ConvertibleTo(rv.Type()) {
			return newErr(IncorrectType, "variant payload type is not convertible to destination type")
		}
		rv.Set(payload.Convert(rv.Type()))
		return nil
	case 'a':
		return d.decodeArrayInto(rv, sig[1:])
	case '(':
		return d.decodeStructInto(rv, sig)
	}
	return newErr(InvalidSignature, "unsupported type code")
}

func (d *decoder) decodeArrayInto(rv reflect.Value, elemSig Signature) error {
	if elemSig == "" {
		return newErr(InvalidSignature, "array type code with no element signature")
	}
	if elemSig[0] == 'y' && rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		n, err := d.readUint32()
		if err != nil {
			return err
		}
		b, err := d.take(int(n))
		if err != nil {
			return err
		}
		cp := make([]byte, len(b))
		copy(cp, b)
		rv.SetBytes(cp)
		return nil
	}

	n, err := d.readUint32()
	if err != nil {
		return err
	}
	if int64(n) > messageSizeLimit {
		return newErr(ExcessData, "array length exceeds message size limit")
	}
	if err := d.depths.incArray(); err != nil {
		return err
	}
	defer d.depths.decArray()

	elemAlign := alignment(elemSig[0])
	if elemSig[0] == '{' {
		elemAlign = 8
	}
	if err := d.align(elemAlign); err != nil {
		return err
	}
	end := d.pos + int(n)
	if end > len(d.buf) {
		return newErr(InvalidValue, "truncated message: array body shorter than its length prefix")
	}

	if elemSig[0] == '{' {
		if rv.Kind() != reflect.Map {
			return newErr(IncorrectType, "dict-entry array signature requires a map value")
		}
		keySig, valSig, err := splitDictEntry(elemSig)
		if err != nil {
			return err
		}
		rv.Set(reflect.MakeMap(rv.Type()))
		for d.pos < end {
			if err := d.align(8); err != nil {
				return err
			}
			k := reflect.New(rv.Type().Key()).Elem()
			if err := d.decodeInto(k, keySig); err != nil {
				return err
			}
			v := reflect.New(rv.Type().Elem()).Elem()
			if err := d.decodeInto(v, valSig); err != nil {
				return err
			}
			rv.SetMapIndex(k, v)
		}
		return nil
	}

	if rv.Kind() != reflect.Slice {
		return newErr(IncorrectType, "array signature requires a slice value")
	}
	slice := reflect.MakeSlice(rv.Type(), 0, 0)
	for d.pos < end {
		elem := reflect.New(rv.Type().Elem()).Elem()
		if err := d.decodeInto(elem, elemSig); err != nil {
			return err
		}
		slice = reflect.Append(slice, elem)
	}
	if d.pos != end {
		return newErr(InvalidValue, "array body did not end on its declared length")
	}
	rv.Set(slice)
	return nil
}

func (d *decoder) decodeStructInto(rv reflect.Value, sig Signature) error {
	if err := d.align(8); err != nil {
		return err
	}
	if err := d.depths.incStruct(); err != nil {
		return err
	}
	defer d.depths.decStruct()
	if rv.Kind() != reflect.Struct {
		return newErr(IncorrectType, "struct signature requires a struct value")
	}
	fieldSigs, err := splitStructSignature(sig[1 : len(sig)-1])
	if err != nil {
		return err
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
		if err := d.decodeInto(rv.Field(i), fieldSigs[fi]); err != nil {
			return err
		}
		fi++
	}
	if fi != len(fieldSigs) {
		return newErr(InvalidValue, "struct field count does not match signature")
	}
	return nil
}

// Unmarshal decodes buf into dest (a non-nil pointer). sig is a bare
// sequence of complete types, the same shape a message body carries:
// if dest points to a struct (and not a Variant), each of the
// struct's exported fields consumes one type from the sequence in
// order, matching the convention that a message body's arguments are
// its top-level types with no enclosing struct parens. Otherwise sig
// must name exactly one type, decoded directly into dest.
func Unmarshal(buf []byte, order ByteOrder, sig Signature, dest interface{}, fds []RawFD) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return newErr(IncorrectType, "Unmarshal destination must be a non-nil pointer")
	}
	elem := rv.Elem()
	d := newDecoder(buf, order, 0, &fdTable{fds: fds})

	if elem.Kind() == reflect.Struct && elem.Type() != typeVariant {
		types, err := splitStructSignature(sig)
		if err != nil {
			return err
		}
		fi := 0
		for i := 0; i < elem.NumField(); i++ {
			f := elem.Type().Field(i)
			if f.PkgPath != "" {
				continue
			}
			if fi >= len(types) {
				return newErr(InvalidValue, "destination struct has more exported fields than the body has arguments")
			}
			if err := d.decodeInto(elem.Field(i), types[fi]); err != nil {
				return err
			}
			fi++
		}
		if fi != len(types) {
			return newErr(InvalidValue, "destination struct field count does not match body argument count")
		}
	} else {
		if err := d.decodeInto(elem, sig); err != nil {
			return err
		}
	}
	if d.pos != len(buf) {
		return newErr(ExcessData, "trailing bytes after decoding declared signature")
	}
	return nil
}

// UnmarshalAny decodes buf into the generic interface{} representation
// described on decodeAny, without requiring a concrete Go type. sig is
// a bare sequence of complete types; a single-type sequence decodes to
// that type's natural representation, while a multi-type sequence (a
// message body with more than one argument) decodes to []interface{}
// holding one entry per argument.
func UnmarshalAny(buf []byte, order ByteOrder, sig Signature, fds []RawFD) (interface{}, error) {
	d := newDecoder(buf, order, 0, &fdTable{fds: fds})
	types, err := splitStructSignature(sig)
	if err != nil {
		return nil, err
	}
	var result interface{}
	if len(types) == 1 {
		result, err = d.decodeAny(types[0])
		if err != nil {
			return nil, err
		}
	} else {
		args := make([]interface{}, 0, len(types))
		for _, t := range types {
			v, err := d.decodeAny(t)
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		}
		result = args
	}
	if d.pos != len(buf) {
		return nil, newErr(ExcessData, "trailing bytes after decoding declared signature")
	}
	return result, nil
}
