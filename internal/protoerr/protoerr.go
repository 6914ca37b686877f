// Package protoerr classifies errors into the kinds the dispatcher's error
// handling policy distinguishes between, mirroring the teacher's sentinel +
// errors.Is classification (internal/server/errors.go) generalized from a
// fixed TCP-server vocabulary to the protocol layer's own kinds.
package protoerr

import "errors"

// Sentinel kinds. Wrap a concrete error with fmt.Errorf("%w: ...", Config)
// etc. so callers can classify it with errors.Is/Kind.
var (
	Config   = errors.New("config")   // invalid enum/range; aborts connect/send
	IO       = errors.New("io")       // driver returned failure; surfaced to caller
	Framing  = errors.New("framing")  // malformed packet; logged and swallowed
	Parse    = errors.New("parse")    // bad JSON command from UI; aborts the send only
	Timeout  = errors.New("timeout")  // partial evicted; logged and swallowed
	Overflow = errors.New("overflow") // partial >1024B, dropped; logged and swallowed
)

// Kind returns the metrics/logging label for an error produced by this
// module, defaulting to "other" for errors that don't wrap one of the
// sentinels above.
func Kind(err error) string {
	switch {
	case errors.Is(err, Config):
		return "config"
	case errors.Is(err, IO):
		return "io"
	case errors.Is(err, Framing):
		return "framing"
	case errors.Is(err, Parse):
		return "parse"
	case errors.Is(err, Timeout):
		return "timeout"
	case errors.Is(err, Overflow):
		return "overflow"
	default:
		return "other"
	}
}

// Swallowed reports whether the dispatcher's policy is to log-and-continue
// for this error kind rather than surface it to the command's result.
func Swallowed(err error) bool {
	switch {
	case errors.Is(err, Framing), errors.Is(err, Timeout), errors.Is(err, Overflow):
		return true
	default:
		return false
	}
}
