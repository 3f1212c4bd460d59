package dbus

// sigCursor walks a Signature one complete type at a time, tracking
// container nesting so callers can bound recursion without
// re-deriving it from the string at every step. It is small and
// cheap to copy, which lets the encoder/decoder snapshot and restore
// cursor position when they need to re-walk a subsignature (e.g. once
// per element of an array).
type sigCursor struct {
	sig string
	pos int
}

func newSigCursor(sig Signature) *sigCursor {
	return &sigCursor{sig: string(sig)}
}

func (c *sigCursor) done() bool { return c.pos >= len(c.sig) }

func (c *sigCursor) peek() (byte, bool) {
	if c.done() {
		return 0, false
	}
	return c.sig[c.pos], true
}

func (c *sigCursor) advance() {
	if !c.done() {
		c.pos++
	}
}

// clone returns an independent copy positioned identically to c, so a
// caller can explore ahead (e.g. to measure a subsignature's length)
// without disturbing c.
func (c *sigCursor) clone() *sigCursor {
	cp := *c
	return &cp
}

// remaining returns the unconsumed tail of the signature.
func (c *sigCursor) remaining() Signature {
	return Signature(c.sig[c.pos:])
}

// nextComplete consumes and returns exactly one complete type from the
// cursor: a single basic type code, or a bracketed container together
// with its full contents. depths tracks and enforces the array and
// struct/variant/dict-entry nesting bounds while walking nested
// containers.
func (c *sigCursor) nextComplete(depths *containerDepths) (Signature, error) {
	start := c.pos
	if err := c.skipOne(depths); err != nil {
		return "", err
	}
	return Signature(c.sig[start:c.pos]), nil
}

// skipOne advances past exactly one complete type without allocating
// the substring, used when the caller only needs to know where the
// type ends.
func (c *sigCursor) skipOne(depths *containerDepths) error {
	b, ok := c.peek()
	if !ok {
		return newErr(InvalidSignature, "unexpected end of signature")
	}
	switch b {
	case 'y', 'b', 'n', 'q', 'i', 'u', 'x', 't', 'd', 's', 'o', 'g', 'v':
		c.advance()
		return nil
	case 'h':
		if !fdSupported {
			return newErr(InvalidSignature, "file descriptor passing unsupported on this platform")
		}
		c.advance()
		return nil
	case 'a':
		c.advance()
		if err := depths.incArray(); err != nil {
			return err
		}
		defer depths.decArray()
		next, ok := c.peek()
		if !ok {
			return newErr(InvalidSignature, "array type code with no element signature")
		}
		if next == '{' {
			return c.skipDictEntry(depths)
		}
		return c.skipOne(depths)
	case '(':
		c.advance()
		if err := depths.incStruct(); err != nil {
			return err
		}
		defer depths.decStruct()
		fields := 0
		for {
			next, ok := c.peek()
			if !ok {
				return newErr(InvalidSignature, "unterminated struct signature")
			}
			if next == ')' {
				c.advance()
				if fields == 0 {
					return newErr(InvalidSignature, "struct signature with no fields")
				}
				return nil
			}
			if err := c.skipOne(depths); err != nil {
				return err
			}
			fields++
		}
	default:
		return newErr(InvalidSignature, "invalid type code '"+string(b)+"'")
	}
}

func (c *sigCursor) skipDictEntry(depths *containerDepths) error {
	c.advance() // consume '{'
	if err := depths.incStruct(); err != nil {
		return err
	}
	defer depths.decStruct()
	keyStart := c.pos
	if err := c.skipOne(depths); err != nil {
		return err
	}
	if c.sig[keyStart] == 'a' || c.sig[keyStart] == '(' || c.sig[keyStart] == 'v' {
		return newErr(InvalidSignature, "dict-entry key must be a basic type")
	}
	if err := c.skipOne(depths); err != nil {
		return err
	}
	b, ok := c.peek()
	if !ok || b != '}' {
		return newErr(InvalidSignature, "unterminated dict-entry signature")
	}
	c.advance()
	return nil
}

// validateSignature checks sig for well-formedness in isolation,
// without touching any value buffer: balanced brackets, only known
// type codes, dict-entry keys restricted to basic types, and the
// nesting bounds honored throughout.
func validateSignature(sig Signature) error {
	c := newSigCursor(sig)
	depths := &containerDepths{}
	for !c.done() {
		if _, err := c.nextComplete(depths); err != nil {
			return err
		}
	}
	return nil
}

// splitStructSignature splits a bare sequence of complete types (a
// struct's contents with its parentheses already removed, or a message
// body signature) into the signature of each type, in order. It does
// not strip parentheses itself: "(ii)" yields the single type "(ii)".
// The encoder and decoder use it for struct fields, and Unmarshal/
// UnmarshalAny for a message body's top-level arguments.
func splitStructSignature(sig Signature) ([]Signature, error) {
	c := newSigCursor(sig)
	depths := &containerDepths{}
	var fields []Signature
	for !c.done() {
		f, err := c.nextComplete(depths)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}
