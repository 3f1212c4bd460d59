package dbus

import "github.com/xyproto/env/v2"

// maxMessageSize is the hard D-Bus ceiling on a complete message
// (header + padding + body): 2^27 bytes. It can never be raised past
// this value, only lowered, so that tests can exercise the ExcessData
// path against a smaller boundary without waiting to allocate 128MiB.
const maxMessageSize = 1 << 27

// maxContainerDepth bounds array nesting, and separately bounds the
// combined nesting of structs, variants and dict-entries, both at 32
// per the D-Bus specification.
const maxContainerDepth = 32

var (
	messageSizeLimit = env.Int64("DBUS_CODEC_MAX_MESSAGE_SIZE", maxMessageSize)
	depthLimit       = env.Int("DBUS_CODEC_MAX_DEPTH", maxContainerDepth)
)

func init() {
	if messageSizeLimit <= 0 || messageSizeLimit > maxMessageSize {
		messageSizeLimit = maxMessageSize
	}
	if depthLimit <= 0 || depthLimit > maxContainerDepth {
		depthLimit = maxContainerDepth
	}
}
