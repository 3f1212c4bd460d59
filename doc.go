// Package dbus implements the D-Bus wire codec: a signature-directed
// serializer/deserializer for the D-Bus type system, and a builder that
// assembles complete D-Bus messages (header plus body) ready for
// transport.
//
// It does not dial a bus, authenticate a connection, or provide a
// proxy/object-server API; callers that need those should pair this
// package with their own transport.
package dbus
