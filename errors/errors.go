package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType int

const (
	ErrorNone ErrorType = iota
	ErrorTransport
	ErrorProtocol
	ErrorInvalidArgument
	ErrorMalformedUri
)

func (t ErrorType) String() string {
	switch t {
	case ErrorNone:
		return "none"
	case ErrorTransport:
		return "transport"
	case ErrorProtocol:
		return "protocol"
	case ErrorInvalidArgument:
		return "invalid argument"
	case ErrorMalformedUri:
		return "malformed uri"
	default:
		return fmt.Sprintf("error type %d", int(t))
	}
}

// TransportError represents transport-layer specific errors
type TransportError int

const (
	TransportErrorNone TransportError = iota
	TransportErrorSocketCreateFailure
	TransportErrorSocketConnectFailure
	TransportErrorSocketReadFailure
	TransportErrorSocketWriteFailure
	TransportErrorConnectionClosed
	TransportErrorDnsFailure
	TransportErrorTimeout
	TransportErrorTlsHandshakeFailure
	TransportErrorIoUringInit
	TransportErrorIoUringSubmit
	TransportErrorUnsupportedBackend
)

func (e TransportError) String() string {
	switch e {
	case TransportErrorNone:
		return "none"
	case TransportErrorSocketCreateFailure:
		return "socket creation failed"
	case TransportErrorSocketConnectFailure:
		return "socket connection failed"
	case TransportErrorSocketReadFailure:
		return "socket read failed"
	case TransportErrorSocketWriteFailure:
		return "socket write failed"
	case TransportErrorConnectionClosed:
		return "connection closed"
	case TransportErrorDnsFailure:
		return "DNS lookup failed"
	case TransportErrorTimeout:
		return "timed out"
	case TransportErrorTlsHandshakeFailure:
		return "TLS handshake failed"
	case TransportErrorIoUringInit:
		return "io_uring initialization failed"
	case TransportErrorIoUringSubmit:
		return "io_uring submission failed"
	case TransportErrorUnsupportedBackend:
		return "unsupported backend"
	default:
		return fmt.Sprintf("transport error %d", int(e))
	}
}

// ProtocolError represents protocol-layer specific errors
type ProtocolError int

const (
	ProtocolErrorNone ProtocolError = iota
	// ProtocolErrorServerFailure is a code 0 envelope.
	ProtocolErrorServerFailure
	// ProtocolErrorStreamEnded means the peer stopped sending before a terminal envelope.
	ProtocolErrorStreamEnded
)

func (e ProtocolError) String() string {
	switch e {
	case ProtocolErrorNone:
		return "none"
	case ProtocolErrorServerFailure:
		return "server reported failure"
	case ProtocolErrorStreamEnded:
		return "stream ended without result"
	default:
		return fmt.Sprintf("protocol error %d", int(e))
	}
}

// SseError is the main error type for the client
type SseError struct {
	Type          ErrorType
	TransportErr  TransportError
	ProtocolErr   ProtocolError
	Message       string
	UnderlyingErr error
}

// Error implements the error interface
func (e *SseError) Error() string {
	if e == nil {
		return "no error"
	}

	var typeStr string
	switch e.Type {
	case ErrorTransport:
		typeStr = fmt.Sprintf("Transport error (%s)", e.TransportErr)
	case ErrorProtocol:
		typeStr = fmt.Sprintf("Protocol error (%s)", e.ProtocolErr)
	case ErrorInvalidArgument:
		typeStr = "Invalid argument"
	case ErrorMalformedUri:
		typeStr = "Malformed URI"
	default:
		typeStr = "Unknown error"
	}

	if e.Message != "" {
		typeStr = fmt.Sprintf("%s: %s", typeStr, e.Message)
	}

	if e.UnderlyingErr != nil {
		return fmt.Sprintf("%s (caused by: %v)", typeStr, e.UnderlyingErr)
	}

	return typeStr
}

// Unwrap returns the underlying error for error chain support
func (e *SseError) Unwrap() error {
	return e.UnderlyingErr
}

// NewTransportError creates a new transport error
func NewTransportError(err TransportError, message string, underlying error) *SseError {
	return &SseError{
		Type:          ErrorTransport,
		TransportErr:  err,
		Message:       message,
		UnderlyingErr: underlying,
	}
}

// NewProtocolError creates a new protocol error
func NewProtocolError(err ProtocolError, message string, underlying error) *SseError {
	return &SseError{
		Type:          ErrorProtocol,
		ProtocolErr:   err,
		Message:       message,
		UnderlyingErr: underlying,
	}
}

// NewInvalidArgumentError creates a new invalid argument error
func NewInvalidArgumentError(message string) *SseError {
	return &SseError{
		Type:    ErrorInvalidArgument,
		Message: message,
	}
}

// NewMalformedUriError reports a URI that cannot be turned into an endpoint.
func NewMalformedUriError(uri string, underlying error) *SseError {
	return &SseError{
		Type:          ErrorMalformedUri,
		Message:       fmt.Sprintf("cannot parse %q", uri),
		UnderlyingErr: underlying,
	}
}

// IsMalformedUri reports whether err carries an ErrorMalformedUri.
func IsMalformedUri(err error) bool {
	var sseErr *SseError
	return stderrors.As(err, &sseErr) && sseErr.Type == ErrorMalformedUri
}

// IsTransport reports whether err is a transport error with the given code.
func IsTransport(err error, code TransportError) bool {
	var sseErr *SseError
	return stderrors.As(err, &sseErr) && sseErr.Type == ErrorTransport && sseErr.TransportErr == code
}

// IsServerFailure reports whether err is a code 0 envelope surfaced as an error.
func IsServerFailure(err error) bool {
	var sseErr *SseError
	return stderrors.As(err, &sseErr) && sseErr.Type == ErrorProtocol && sseErr.ProtocolErr == ProtocolErrorServerFailure
}
