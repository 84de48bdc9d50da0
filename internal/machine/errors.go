package machine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures returned by connections and the cloud client.
type ErrorKind int

const (
	// KindNetwork is a transport or timeout failure.
	KindNetwork ErrorKind = iota + 1
	// KindProtocol is a response that was received but is malformed.
	KindProtocol
	// KindValue is a well-formed logical rejection (bad credentials, unknown device).
	KindValue
	// KindJSON is a payload decode failure.
	KindJSON
	// KindServer is an error list explicitly reported by the remote side.
	KindServer
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindProtocol:
		return "protocol"
	case KindValue:
		return "value"
	case KindJSON:
		return "json"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Error is the typed error shared by every backend.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s error: %s", e.Kind, e.Msg)
	default:
		return e.Kind.String() + " error"
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrValue) works
// regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNetwork  = &Error{Kind: KindNetwork}
	ErrProtocol = &Error{Kind: KindProtocol}
	ErrValue    = &Error{Kind: KindValue}
	ErrJSON     = &Error{Kind: KindJSON}
	ErrServer   = &Error{Kind: KindServer}
)

func NetworkError(err error) error {
	return &Error{Kind: KindNetwork, Err: err}
}

func ProtocolError(msg string) error {
	return &Error{Kind: KindProtocol, Msg: msg}
}

func ValueError(msg string) error {
	return &Error{Kind: KindValue, Msg: msg}
}

func JSONError(err error) error {
	return &Error{Kind: KindJSON, Err: err}
}

func ServerError(msg string) error {
	return &Error{Kind: KindServer, Msg: msg}
}
