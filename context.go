package dbus

import "encoding/binary"

// ByteOrder selects the endianness a message is serialized with. The
// D-Bus primary header carries an endianness flag ('l' or 'B') so a
// receiver can decode regardless of which the sender chose.
type ByteOrder byte

const (
	LittleEndian ByteOrder = 'l'
	BigEndian    ByteOrder = 'B'
)

func (o ByteOrder) binary() binary.ByteOrder {
	if o == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// EncodingContext bundles the state a serializer or deserializer needs
// that is independent of the signature being walked: the wire byte
// order, and the absolute offset of the current cursor within the
// complete message (header bytes included), which alignment padding
// is computed against.
type EncodingContext struct {
	Order  ByteOrder
	Offset int
}

func (ctx EncodingContext) padding(align int) int {
	return padTo(ctx.Offset, align)
}

// padTo returns the number of padding bytes needed to bring offset up
// to the next multiple of align.
func padTo(offset, align int) int {
	rem := offset % align
	if rem == 0 {
		return 0
	}
	return align - rem
}

// alignment returns the byte boundary a value of the given D-Bus type
// code must start on.
func alignment(code byte) int {
	switch code {
	case 'y', 'g', 'v':
		return 1
	case 'n', 'q':
		return 2
	case 'b', 'i', 'u', 's', 'o', 'h', 'a':
		return 4
	case 'x', 't', 'd', '(', ')', '{', '}':
		return 8
	default:
		return 1
	}
}
