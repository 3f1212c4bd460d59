package dbus

// Builder assembles a Message step by step: set the fields a message
// of its type requires, attach a body, then Build. It mirrors the
// constructor-plus-chained-setters shape of a typical D-Bus message
// builder, adapted to return errors eagerly rather than panicking on
// a malformed combination of fields.
type Builder struct {
	header  *Header
	order   ByteOrder
	bodySig Signature
	body    []byte
	fds     []RawFD
	err     error
}

func newBuilder(t MessageType, order ByteOrder) *Builder {
	return &Builder{header: newHeader(order, t, nextSerial()), order: order}
}

// NewMethodCall starts a METHOD_CALL message addressed at path/iface/member.
func NewMethodCall(path ObjectPath, iface, member string) *Builder {
	b := newBuilder(TypeMethodCall, LittleEndian)
	b.header.setPath(path)
	b.header.setString(FieldInterface, iface)
	b.header.setString(FieldMember, member)
	return b
}

// NewSignal starts a SIGNAL message emitted from path/iface/member.
func NewSignal(path ObjectPath, iface, member string) *Builder {
	b := newBuilder(TypeSignal, LittleEndian)
	b.header.setPath(path)
	b.header.setString(FieldInterface, iface)
	b.header.setString(FieldMember, member)
	return b
}

// NewMethodReturn starts a METHOD_RETURN reply to call.
func NewMethodReturn(call *Message) *Builder {
	b := newBuilder(TypeMethodReturn, call.header.Primary.Order)
	b.header.setUint32(FieldReplySerial, call.Serial())
	if sender := call.Sender(); sender != "" {
		b.header.setString(FieldDestination, sender)
	}
	return b
}

// NewError starts an ERROR reply to call, named name.
func NewError(call *Message, name string) *Builder {
	b := newBuilder(TypeError, call.header.Primary.Order)
	b.header.setUint32(FieldReplySerial, call.Serial())
	b.header.setString(FieldErrorName, name)
	if sender := call.Sender(); sender != "" {
		b.header.setString(FieldDestination, sender)
	}
	return b
}

// WithFlags sets the message flags. NoReplyExpected is rejected on
// anything but a method call, matching the protocol's own constraint.
func (b *Builder) WithFlags(flags MessageFlag) *Builder {
	if b.err != nil {
		return b
	}
	if b.header.Primary.Type != TypeMethodCall && flags&FlagNoReplyExpected != 0 {
		b.err = newErr(InvalidField, "NoReplyExpected is only meaningful on a method call")
		return b
	}
	b.header.Primary.Flags = flags
	return b
}

// Sender sets the SENDER field.
func (b *Builder) Sender(sender string) *Builder {
	b.header.setString(FieldSender, sender)
	return b
}

// Destination sets the DESTINATION field.
func (b *Builder) Destination(dest string) *Builder {
	b.header.setString(FieldDestination, dest)
	return b
}

// ReplyTo copies call's serial into REPLY_SERIAL and, if call carries
// a SENDER, sets it as this message's DESTINATION. It is equivalent to
// calling NewMethodReturn/NewError with call, offered separately for
// builders that start from WithFlags chains already in progress.
func (b *Builder) ReplyTo(call *Message) *Builder {
	b.header.setUint32(FieldReplySerial, call.Serial())
	if sender := call.Sender(); sender != "" {
		b.header.setString(FieldDestination, sender)
	}
	return b
}

// Body sets the message body from a typed Go value, deriving its
// D-Bus signature via SignatureOf (or the value's own Marshaler
// implementation).
func (b *Builder) Body(v interface{}) *Builder {
	if b.err != nil {
		return b
	}
	body, fds, sig, err := Marshal(v, b.order)
	if err != nil {
		b.err = err
		return b
	}
	b.bodySig, b.body, b.fds = sig, body, fds
	return b
}

// RawBody sets the message body from already-encoded bytes under an
// explicit signature, for callers relaying a body they did not
// construct from a Go value themselves. The signature is validated
// for well-formedness and the depth/size bounds; the body bytes
// themselves are trusted as-is, since checking them byte-for-byte
// against sig would cost exactly what a full decode does and defeats
// the purpose of taking a raw path in the first place.
func (b *Builder) RawBody(sig Signature, body []byte, fds []RawFD) *Builder {
	if b.err != nil {
		return b
	}
	if err := validateSignature(sig); err != nil {
		b.err = err
		return b
	}
	log.WithFields(log.Fields{"signature": string(sig), "bytes": len(body)}).
		Warn("dbus: building message body from unvalidated raw bytes")
	b.bodySig, b.body, b.fds = sig, body, fds
	return b
}

// Build assembles the complete wire message: primary header, header
// field array, padding to an 8-byte boundary, and body. It validates
// the header against its message type's required fields, enforces the
// message size cap, and re-parses the header it just wrote to catch
// any builder/parser disagreement before handing bytes to a caller.
func (b *Builder) Build() (*Message, []byte, error) {
	if b.err != nil {
		return nil, nil, b.err
	}
	if b.bodySig != "" {
		b.header.setString(FieldSignature, string(b.bodySig))
	}
	if len(b.fds) > 0 {
		if !fdSupported {
			return nil, nil, newErr(InvalidValue, "file descriptor passing unsupported on this platform")
		}
		b.header.setUint32(FieldUnixFDs, uint32(len(b.fds)))
	}
	if err := b.header.validate(); err != nil {
		return nil, nil, err
	}
	if len(b.body) > 0xffffffff {
		return nil, nil, newErr(ExcessData, "body longer than a u32 can express")
	}
	b.header.Primary.BodyLength = uint32(len(b.body))

	fieldsBytes, err := b.header.marshalFields(b.order, 12)
	if err != nil {
		return nil, nil, err
	}
	headerLen := 12 + len(fieldsBytes)
	bodyStart := headerLen + padTo(headerLen, 8)
	total := bodyStart + len(b.body)
	if int64(total) > messageSizeLimit {
		return nil, nil, newErr(ExcessData, "message exceeds the maximum message size")
	}

	out := make([]byte, 0, total)
	out = append(out, byte(b.order), byte(b.header.Primary.Type), byte(b.header.Primary.Flags), b.header.Primary.Protocol)
	var lenBuf, serialBuf [4]byte
	b.order.binary().PutUint32(lenBuf[:], b.header.Primary.BodyLength)
	b.order.binary().PutUint32(serialBuf[:], b.header.Primary.Serial)
	out = append(out, lenBuf[:]...)
	out = append(out, serialBuf[:]...)
	out = append(out, fieldsBytes...)
	for len(out) < bodyStart {
		out = append(out, 0)
	}
	out = append(out, b.body...)

	parsed, consumed, err := DecodeMessage(out)
	if err != nil {
		return nil, nil, wrapErr(InputOutput, "header failed to round-trip after assembly", err)
	}
	if consumed != total || parsed.headerLn != headerLen {
		return nil, nil, newErr(InputOutput, "assembled message length disagrees with its own header")
	}
	parsed.fds = b.fds
	return parsed, out, nil
}
