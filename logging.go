package dbus

import "github.com/sirupsen/logrus"

// log is the package's structured logger. Nothing on the normal
// encode/decode path writes to it; errors are returned instead. It
// exists for the handful of spots where a caller has opted into a
// hazard (the raw-body builder path) that deserves a visible warning
// even though it isn't a hard failure.
var log = logrus.StandardLogger()
