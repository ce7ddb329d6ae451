// Package status defines the uniform error taxonomy shared by every
// component in the simulation. The core operations (transport, IBC,
// blockchain, consensus, node and relayer lifecycle) return a *status.Error
// (or nil for success) instead of an ad-hoc error string, so callers can
// branch on Code rather than matching message text. Errors from other
// helpers, and status errors wrapped with fmt.Errorf, are not *status.Error
// values and Of reports them as Unknown.
package status

import "fmt"

// Code is one of a fixed set of outcome kinds. Ok is never carried as an
// error value; functions that succeed return a nil error instead.
type Code int

const (
	Ok Code = iota
	Timeout
	NetworkDrop
	InvalidState
	Serialization
	ConsensusFault
	ChannelClosed
	NotFound
	Cancelled
	Unknown
)

func (c Code) String() string {
	switch c {
	case Ok:
		return "Ok"
	case Timeout:
		return "Timeout"
	case NetworkDrop:
		return "NetworkDrop"
	case InvalidState:
		return "InvalidState"
	case Serialization:
		return "Serialization"
	case ConsensusFault:
		return "ConsensusFault"
	case ChannelClosed:
		return "ChannelClosed"
	case NotFound:
		return "NotFound"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Error pairs a Code with a human-readable message and implements the
// standard error interface, so it composes with errors.As/errors.Is.
type Error struct {
	Code Code
	Msg  string
}

func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil status>"
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Of extracts the Code carried by err. Non-status errors and nil both
// report Ok, matching the convention that nil means success.
func Of(err error) Code {
	if err == nil {
		return Ok
	}
	if se, ok := err.(*Error); ok {
		return se.Code
	}
	return Unknown
}

// Is reports whether err is a status.Error carrying the given code.
func Is(err error, code Code) bool {
	return Of(err) == code
}
