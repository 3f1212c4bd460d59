//go:build !windows && !js && !wasip1

package dbus

// fdSupported is true on platforms where UNIX_FD passing over an
// ancillary-data channel (SCM_RIGHTS) is meaningful. The 'h' type code
// is rejected outright where it is not.
const fdSupported = true
