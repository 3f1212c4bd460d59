package dbus

import (
	"fmt"
	"strings"
	"sync"
)

var serialMutex sync.Mutex
var messageSerial uint32

// nextSerial hands out process-unique, monotonically increasing
// message serials. A real bus connection would instead track serials
// per connection; this package only guarantees uniqueness within a
// process, which is enough for constructing well-formed messages
// before handing them to a transport.
func nextSerial() uint32 {
	serialMutex.Lock()
	defer serialMutex.Unlock()
	messageSerial++
	return messageSerial
}

// Message is a fully assembled, immutable D-Bus message: a validated
// header paired with its raw body bytes. Construct one with Builder;
// parse one off the wire with DecodeMessage.
type Message struct {
	header   *Header
	body     []byte
	fds      []RawFD
	headerLn int
}

// Type returns the message's primary header type.
func (m *Message) Type() MessageType { return m.header.Primary.Type }

// Flags returns the message's primary header flags.
func (m *Message) Flags() MessageFlag { return m.header.Primary.Flags }

// Serial returns the message's own serial number.
func (m *Message) Serial() uint32 { return m.header.Primary.Serial }

// ReplySerial returns the REPLY_SERIAL field, or 0 if absent.
func (m *Message) ReplySerial() uint32 { return m.header.uint32Field(FieldReplySerial) }

// Path returns the PATH field, or "" if absent.
func (m *Message) Path() ObjectPath { return m.header.pathField(FieldPath) }

// Interface returns the INTERFACE field, or "" if absent.
func (m *Message) Interface() string { return m.header.stringField(FieldInterface) }

// Member returns the MEMBER field, or "" if absent.
func (m *Message) Member() string { return m.header.stringField(FieldMember) }

// ErrorName returns the ERROR_NAME field, or "" if absent.
func (m *Message) ErrorName() string { return m.header.stringField(FieldErrorName) }

// Destination returns the DESTINATION field, or "" if absent.
func (m *Message) Destination() string { return m.header.stringField(FieldDestination) }

// Sender returns the SENDER field, or "" if absent.
func (m *Message) Sender() string { return m.header.stringField(FieldSender) }

// Signature returns the body's SIGNATURE field, or "" for an empty
// body.
func (m *Message) Signature() Signature {
	return Signature(m.header.stringField(FieldSignature))
}

// Header returns the message's decoded header.
func (m *Message) Header() *Header { return m.header }

// BodyBytes returns the raw, still-encoded message body.
func (m *Message) BodyBytes() []byte { return m.body }

// FDs returns the file descriptors the body's UNIX_FD entries index
// into.
func (m *Message) FDs() []RawFD { return m.fds }

// DeserializeBody decodes the message body into dest, a non-nil
// pointer whose Go type must be shape-compatible with the message's
// signature.
func (m *Message) DeserializeBody(dest interface{}) error {
	if m.Signature() == "" {
		return newErr(InvalidValue, "message has no body to deserialize")
	}
	return Unmarshal(m.body, m.header.Primary.Order, m.Signature(), dest, m.fds)
}

// Body decodes the message body into the generic interface{}
// representation, without requiring a concrete Go type.
func (m *Message) Body() (interface{}, error) {
	if m.Signature() == "" {
		return nil, nil
	}
	return UnmarshalAny(m.body, m.header.Primary.Order, m.Signature(), m.fds)
}

// String renders the message the way dbus-monitor does: one summary
// line naming its type, path, interface, member and signature.
func (m *Message) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s serial=%d", m.Type(), m.Serial())
	if rs := m.ReplySerial(); rs != 0 {
		fmt.Fprintf(&b, " reply_serial=%d", rs)
	}
	if p := m.Path(); p != "" {
		fmt.Fprintf(&b, " path=%s", p)
	}
	if iface := m.Interface(); iface != "" {
		fmt.Fprintf(&b, " interface=%s", iface)
	}
	if member := m.Member(); member != "" {
		fmt.Fprintf(&b, " member=%s", member)
	}
	if name := m.ErrorName(); name != "" {
		fmt.Fprintf(&b, " error_name=%s", name)
	}
	if dest := m.Destination(); dest != "" {
		fmt.Fprintf(&b, " destination=%s", dest)
	}
	if sig := m.Signature(); sig != "" {
		fmt.Fprintf(&b, " signature=%s", sig)
	}
	return b.String()
}

// DecodeMessage parses a complete message (header, header padding and
// body) from buf. It returns the message and the number of bytes of
// buf consumed, so a transport reading a stream can find the start of
// the next message.
func DecodeMessage(buf []byte) (*Message, int, error) {
	h, headerLen, err := parseHeader(buf)
	if err != nil {
		return nil, 0, err
	}
	if err := h.validate(); err != nil {
		return nil, 0, err
	}
	bodyStart := headerLen + padTo(headerLen, 8)
	bodyEnd := bodyStart + int(h.Primary.BodyLength)
	if bodyEnd > len(buf) {
		return nil, 0, newErr(InvalidValue, "truncated message: body shorter than BodyLength")
	}
	nfds := int(h.uint32Field(FieldUnixFDs))
	msg := &Message{
		header:   h,
		body:     buf[bodyStart:bodyEnd],
		fds:      make([]RawFD, nfds),
		headerLn: headerLen,
	}
	return msg, bodyEnd, nil
}
