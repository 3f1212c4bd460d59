package dbus

import "reflect"

// Fd is a D-Bus UNIX_FD: an index into the out-of-band descriptor
// array carried alongside a message, rather than a raw file
// descriptor number. Encoders translate a RawFD into an Fd index at
// serialization time; decoders return the Fd index as read from the
// wire and do not resolve it to a RawFD.
type Fd uint32

var typeFd = reflect.TypeOf(Fd(0))

// RawFD is a real, process-local file descriptor, as handed to the
// transport layer for out-of-band passing (e.g. via SCM_RIGHTS on a
// UNIX domain socket). This package never dups, closes, or passes
// descriptors itself; it only tracks the index <-> descriptor mapping
// for a single message.
type RawFD int

var typeRawFD = reflect.TypeOf(RawFD(0))

// fdTable accumulates the RawFDs referenced by a message's body as it
// is serialized, and hands back the Fd index to embed in the body.
// at maps an index back to its RawFD; the decoder does not call it.
type fdTable struct {
	fds []RawFD
}

// index returns the Fd to embed for fd, appending it to the table if
// not already present.
func (t *fdTable) index(fd RawFD) Fd {
	for i, existing := range t.fds {
		if existing == fd {
			return Fd(i)
		}
	}
	t.fds = append(t.fds, fd)
	return Fd(len(t.fds) - 1)
}

func (t *fdTable) at(idx Fd) (RawFD, error) {
	if int(idx) >= len(t.fds) {
		return 0, newErr(InvalidValue, "UNIX_FD index out of range")
	}
	return t.fds[idx], nil
}

func (t *fdTable) len() int { return len(t.fds) }
