package dbus

import (
	"testing"

	. "gopkg.in/check.v1"
)

func Test(t *testing.T) { TestingT(t) }

type BuilderSuite struct{}

var _ = Suite(&BuilderSuite{})

func (s *BuilderSuite) TestMethodCallRoundtrip(c *C) {
	b := NewMethodCall("/org/example/Object", "org.example.Iface", "DoThing").
		Body(struct {
			A int32
			B string
		}{A: 7, B: "hi"})
	msg, raw, err := b.Build()
	c.Assert(err, IsNil)
	c.Assert(msg.Type(), Equals, TypeMethodCall)
	c.Assert(msg.Path(), Equals, ObjectPath("/org/example/Object"))
	c.Assert(msg.Interface(), Equals, "org.example.Iface")
	c.Assert(msg.Member(), Equals, "DoThing")
	c.Assert(msg.Signature(), Equals, Signature("is"))

	decoded, consumed, err := DecodeMessage(raw)
	c.Assert(err, IsNil)
	c.Assert(consumed, Equals, len(raw))
	c.Assert(decoded.Member(), Equals, "DoThing")

	var out struct {
		A int32
		B string
	}
	c.Assert(decoded.DeserializeBody(&out), IsNil)
	c.Assert(out.A, Equals, int32(7))
	c.Assert(out.B, Equals, "hi")
}

func (s *BuilderSuite) TestMethodCallMissingMemberFails(c *C) {
	_, _, err := NewMethodCall("/org/example/Object", "org.example.Iface", "").Build()
	c.Assert(err, NotNil)
	c.Assert(IsKind(err, InvalidField), Equals, true)
}

func (s *BuilderSuite) TestMethodReturnCarriesReplySerial(c *C) {
	call, _, err := NewMethodCall("/a", "b.c", "D").Build()
	c.Assert(err, IsNil)

	reply, raw, err := NewMethodReturn(call).Body(int32(99)).Build()
	c.Assert(err, IsNil)
	c.Assert(reply.ReplySerial(), Equals, call.Serial())

	decoded, _, err := DecodeMessage(raw)
	c.Assert(err, IsNil)
	c.Assert(decoded.ReplySerial(), Equals, call.Serial())
}

func (s *BuilderSuite) TestErrorRequiresErrorName(c *C) {
	call, _, err := NewMethodCall("/a", "b.c", "D").Build()
	c.Assert(err, IsNil)
	b := newBuilder(TypeError, LittleEndian)
	b.header.setUint32(FieldReplySerial, call.Serial())
	_, _, err = b.Build()
	c.Assert(IsKind(err, InvalidField), Equals, true)
}

func (s *BuilderSuite) TestNoReplyExpectedRejectedOutsideMethodCall(c *C) {
	b := NewSignal("/a", "b.c", "D").WithFlags(FlagNoReplyExpected)
	_, _, err := b.Build()
	c.Assert(IsKind(err, InvalidField), Equals, true)
}

func (s *BuilderSuite) TestRawBodyMatchesRawExample(c *C) {
	// The canonical raw-body scenario: signature "ai" body [1,2,3,4].
	body := []byte{16, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, 4, 0, 0, 0}
	msg, _, err := NewMethodCall("/a", "b.c", "D").RawBody("ai", body, nil).Build()
	c.Assert(err, IsNil)
	v, err := msg.Body()
	c.Assert(err, IsNil)
	items := v.([]interface{})
	c.Assert(len(items), Equals, 4)
}

func (s *BuilderSuite) TestEmptyBodyHasNoSignature(c *C) {
	msg, _, err := NewMethodCall("/a", "b.c", "D").Build()
	c.Assert(err, IsNil)
	c.Assert(msg.Signature(), Equals, Signature(""))
}
