// Package api
// Author: momentics <momentics@gmail.com>
//
// Error taxonomy shared by the socket layer, the inverted sockets and the
// readiness multiplexer.

package api

import "fmt"

// ErrorCode identifies a failure class independently of its cause.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeSocketCreate
	ErrCodeBind
	ErrCodeAddressInUse
	ErrCodeClosed
	ErrCodeConnect
	ErrCodeIOClose
	ErrCodeWouldBlock
	ErrCodeShutdown
	ErrCodeDisconnected
	ErrCodeNetwork
	ErrCodeNotSupported
	ErrCodeBusy
	ErrCodeBufferUnderflow
)

var codeNames = map[ErrorCode]string{
	ErrCodeOK:              "ok",
	ErrCodeSocketCreate:    "cannot create socket",
	ErrCodeBind:            "cannot bind socket",
	ErrCodeAddressInUse:    "address already in use",
	ErrCodeClosed:          "socket already closed",
	ErrCodeConnect:         "cannot connect socket",
	ErrCodeIOClose:         "error closing socket",
	ErrCodeWouldBlock:      "operation would block",
	ErrCodeShutdown:        "connection shut down by peer",
	ErrCodeDisconnected:    "connection disconnected",
	ErrCodeNetwork:         "network failure",
	ErrCodeNotSupported:    "operation not supported",
	ErrCodeBusy:            "socket busy",
	ErrCodeBufferUnderflow: "buffer underflow",
}

func (c ErrorCode) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("error code %d", int(c))
}

// Error is a classified failure. Two errors match under errors.Is when
// their codes are equal, so wrapped causes can be tested against the
// sentinels below.
type Error struct {
	Code ErrorCode
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Code.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a classified error for op wrapping cause.
func NewError(code ErrorCode, op string, cause error) *Error {
	return &Error{Code: code, Op: op, Err: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or
// ErrCodeOK when none is present.
func CodeOf(err error) ErrorCode {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ErrCodeOK
		}
		err = u.Unwrap()
	}
	return ErrCodeOK
}

// IsNetwork reports whether err belongs to one of the transport failure
// classes produced by the socket layer.
func IsNetwork(err error) bool {
	switch CodeOf(err) {
	case ErrCodeWouldBlock, ErrCodeShutdown, ErrCodeDisconnected, ErrCodeNetwork, ErrCodeAddressInUse:
		return true
	}
	return false
}

// Sentinels for errors.Is comparisons.
var (
	ErrSocketCreate    = &Error{Code: ErrCodeSocketCreate}
	ErrBind            = &Error{Code: ErrCodeBind}
	ErrAddressInUse    = &Error{Code: ErrCodeAddressInUse}
	ErrClosed          = &Error{Code: ErrCodeClosed}
	ErrConnect         = &Error{Code: ErrCodeConnect}
	ErrIOClose         = &Error{Code: ErrCodeIOClose}
	ErrWouldBlock      = &Error{Code: ErrCodeWouldBlock}
	ErrShutdown        = &Error{Code: ErrCodeShutdown}
	ErrDisconnected    = &Error{Code: ErrCodeDisconnected}
	ErrNetwork         = &Error{Code: ErrCodeNetwork}
	ErrNotSupported    = &Error{Code: ErrCodeNotSupported}
	ErrBusy            = &Error{Code: ErrCodeBusy}
	ErrBufferUnderflow = &Error{Code: ErrCodeBufferUnderflow}
)
