package dbus

import "reflect"

// MessageType is the primary header's message type byte, one of the
// four message kinds the protocol defines.
type MessageType uint8

const (
	TypeInvalid MessageType = iota
	TypeMethodCall
	TypeMethodReturn
	TypeError
	TypeSignal
)

var messageTypeString = map[MessageType]string{
	TypeInvalid:      "invalid",
	TypeMethodCall:   "method_call",
	TypeMethodReturn: "method_return",
	TypeError:        "error",
	TypeSignal:       "signal",
}

func (t MessageType) String() string {
	if s, ok := messageTypeString[t]; ok {
		return s
	}
	return "unknown"
}

// MessageFlag is a bit in the primary header's flags byte.
type MessageFlag uint8

const (
	FlagNoReplyExpected MessageFlag = 1 << iota
	FlagNoAutoStart
	FlagAllowInteractiveAuthorization
)

// FieldCode identifies a header field in the variable-length field
// array that follows the primary header.
type FieldCode byte

const (
	FieldPath FieldCode = iota + 1
	FieldInterface
	FieldMember
	FieldErrorName
	FieldReplySerial
	FieldDestination
	FieldSender
	FieldSignature
	FieldUnixFDs
)

// fieldSignature is the variant signature a well-formed message must
// carry a given header field as.
func fieldSignature(code FieldCode) Signature {
	switch code {
	case FieldPath:
		return "o"
	case FieldInterface, FieldMember, FieldErrorName, FieldDestination, FieldSender:
		return "s"
	case FieldReplySerial, FieldUnixFDs:
		return "u"
	case FieldSignature:
		return "g"
	}
	return ""
}

// requiredFields lists the header fields a message of the given type
// must carry to be considered well-formed.
func requiredFields(t MessageType) []FieldCode {
	switch t {
	case TypeMethodCall:
		return []FieldCode{FieldPath, FieldMember}
	case TypeMethodReturn:
		return []FieldCode{FieldReplySerial}
	case TypeError:
		return []FieldCode{FieldErrorName, FieldReplySerial}
	case TypeSignal:
		return []FieldCode{FieldPath, FieldInterface, FieldMember}
	}
	return nil
}

// PrimaryHeader is the fixed 12-byte prefix of every D-Bus message.
type PrimaryHeader struct {
	Order      ByteOrder
	Type       MessageType
	Flags      MessageFlag
	Protocol   byte
	BodyLength uint32
	Serial     uint32
}

// Header is the complete message header: the fixed primary header
// plus the variable-length array of typed fields.
type Header struct {
	Primary PrimaryHeader
	Fields  map[FieldCode]Variant
}

func newHeader(order ByteOrder, t MessageType, serial uint32) *Header {
	return &Header{
		Primary: PrimaryHeader{Order: order, Type: t, Protocol: 1, Serial: serial},
		Fields:  make(map[FieldCode]Variant),
	}
}

func (h *Header) setString(code FieldCode, v string) {
	if v == "" {
		delete(h.Fields, code)
		return
	}
	h.Fields[code] = NewVariant(fieldSignature(code), v)
}

func (h *Header) setPath(v ObjectPath) {
	if v == "" {
		delete(h.Fields, FieldPath)
		return
	}
	h.Fields[FieldPath] = NewVariant("o", v)
}

func (h *Header) setUint32(code FieldCode, v uint32) {
	if v == 0 {
		delete(h.Fields, code)
		return
	}
	h.Fields[code] = NewVariant(fieldSignature(code), v)
}

func (h *Header) stringField(code FieldCode) string {
	v, ok := h.Fields[code]
	if !ok {
		return ""
	}
	switch s := v.value.(type) {
	case string:
		return s
	case Signature:
		return string(s)
	case ObjectPath:
		return string(s)
	}
	return ""
}

func (h *Header) pathField(code FieldCode) ObjectPath {
	v, ok := h.Fields[code]
	if !ok {
		return ""
	}
	p, _ := v.value.(ObjectPath)
	return p
}

func (h *Header) uint32Field(code FieldCode) uint32 {
	v, ok := h.Fields[code]
	if !ok {
		return 0
	}
	switch u := v.value.(type) {
	case uint32:
		return u
	}
	return 0
}

// validate checks that the header carries every field the message
// type requires, and that no field present carries the wrong variant
// signature.
func (h *Header) validate() error {
	for _, code := range requiredFields(h.Primary.Type) {
		if _, ok := h.Fields[code]; !ok {
			return newErr(InvalidField, "missing required header field for "+h.Primary.Type.String())
		}
	}
	if h.Primary.Type != TypeMethodCall && h.Primary.Flags&FlagNoReplyExpected != 0 {
		return newErr(InvalidField, "NoReplyExpected is only meaningful on a method call")
	}
	for code, v := range h.Fields {
		want := fieldSignature(code)
		if want != "" && v.sig != want {
			return newErr(InvalidField, "header field has the wrong variant signature")
		}
	}
	return nil
}

// fieldArraySignature is the signature of the header field array:
// a(yv).
const fieldArraySignature = Signature("a(yv)")

// marshalFields serializes the header's field array (without the
// primary header bytes that precede it) starting at absolute offset
// baseOffset, which must already account for the 12-byte primary
// header.
func (h *Header) marshalFields(order ByteOrder, baseOffset int) ([]byte, error) {
	enc := newEncoder(order, baseOffset, &fdTable{})
	type rawField struct {
		Code byte
		Val  Variant
	}
	var entries []rawField
	for code, v := range h.Fields {
		entries = append(entries, rawField{Code: byte(code), Val: v})
	}
	// Deterministic ordering keeps serialization reproducible, which
	// matters for tests comparing raw bytes.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].Code > entries[j].Code; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
	rv := reflect.ValueOf(entries)
	if err := enc.appendValue(rv, fieldArraySignature); err != nil {
		return nil, err
	}
	return enc.out.Bytes(), nil
}

// parseHeader reads a primary header plus field array from the front
// of buf, returning the decoded Header and the number of bytes
// consumed (the header's length before the 8-byte body alignment).
func parseHeader(buf []byte) (*Header, int, error) {
	if len(buf) < 16 {
		return nil, 0, newErr(InvalidValue, "truncated message: shorter than the primary header")
	}
	var order ByteOrder
	switch buf[0] {
	case byte(LittleEndian):
		order = LittleEndian
	case byte(BigEndian):
		order = BigEndian
	default:
		return nil, 0, newErr(InvalidValue, "unknown message endianness byte")
	}
	h := &Header{Fields: make(map[FieldCode]Variant)}
	h.Primary.Order = order
	h.Primary.Type = MessageType(buf[1])
	h.Primary.Flags = MessageFlag(buf[2])
	h.Primary.Protocol = buf[3]

	d := newDecoder(buf, order, 0, &fdTable{})
	d.pos = 4
	d.ctx.Offset = 4
	bodyLen, err := d.readUint32()
	if err != nil {
		return nil, 0, err
	}
	h.Primary.BodyLength = bodyLen
	serial, err := d.readUint32()
	if err != nil {
		return nil, 0, err
	}
	h.Primary.Serial = serial

	raw, err := d.decodeAny(fieldArraySignature)
	if err != nil {
		return nil, 0, err
	}
	entries, _ := raw.([]interface{})
	for _, e := range entries {
		pair, _ := e.([]interface{})
		if len(pair) != 2 {
			continue
		}
		code, _ := pair[0].(byte)
		variant, _ := pair[1].(Variant)
		h.Fields[FieldCode(code)] = variant
	}
	return h, d.pos, nil
}
