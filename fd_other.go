//go:build windows || js || wasip1

package dbus

// fdSupported is false on platforms with no SCM_RIGHTS-style
// descriptor passing; 'h' signatures are rejected at signature-derive
// and validate time.
const fdSupported = false
