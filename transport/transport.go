package transport

import (
	"crypto/tls"
	"strings"
	"time"

	"github.com/wheakerd/sse-client/errors"
)

//go:generate go run github.com/golang/mock/mockgen -package mocks -destination mocks/transport.go github.com/wheakerd/sse-client/transport Transport

// Transport defines the interface for network transports
type Transport interface {
	// Connect establishes a connection to the specified host and port.
	// A zero timeout means no deadline for the handshake.
	Connect(host string, port int, timeout time.Duration) error

	// Write sends data over the connection
	// Returns the number of bytes written
	Write(buf []byte) (int, error)

	// Read receives data from the connection
	// Returns the number of bytes read
	Read(buf []byte) (int, error)

	// Close closes the connection. Calling it more than once is a no-op.
	Close() error
}

// Backend selects the plaintext transport implementation.
type Backend int

const (
	BackendStd Backend = iota
	BackendIoUring
	BackendIoUringV2
)

func (b Backend) String() string {
	switch b {
	case BackendStd:
		return "std"
	case BackendIoUring:
		return "iouring"
	case BackendIoUringV2:
		return "iouring-v2"
	default:
		return "unknown"
	}
}

// ParseBackend maps a backend name to a Backend. The empty string is BackendStd.
func ParseBackend(name string) (Backend, error) {
	switch strings.ToLower(name) {
	case "", "std":
		return BackendStd, nil
	case "iouring", "io_uring":
		return BackendIoUring, nil
	case "iouring-v2", "io_uring-v2":
		return BackendIoUringV2, nil
	default:
		return BackendStd, errors.NewInvalidArgumentError("unknown backend " + name)
	}
}

// Options configures transport selection.
type Options struct {
	Backend Backend

	// TLSConfig is cloned for https endpoints. ServerName defaults to the dialed host.
	TLSConfig *tls.Config

	// Fingerprint names a uTLS ClientHello to mimic. Empty uses crypto/tls.
	Fingerprint string
}

// New returns an unconnected transport for the given URI scheme.
func New(scheme string, opts Options) (Transport, error) {
	if scheme == "https" {
		return NewTlsTransport(opts.TLSConfig, opts.Fingerprint)
	}

	switch opts.Backend {
	case BackendStd:
		return NewTcpTransport(), nil
	case BackendIoUring:
		return newUringTransport()
	case BackendIoUringV2:
		return newUringV2Transport()
	default:
		return nil, errors.NewTransportError(
			errors.TransportErrorUnsupportedBackend,
			opts.Backend.String(),
			nil,
		)
	}
}
