package client

import (
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/wheakerd/sse-client/transport"
)

// DefaultTimeout bounds the initial connect.
const DefaultTimeout = 500 * time.Millisecond

type options struct {
	timeout        time.Duration
	logger         *slog.Logger
	transportOpts  transport.Options
	transport      transport.Transport
	recvBufferSize int
}

// Option configures a Client.
type Option func(*options)

// WithTimeout sets the connect timeout. Zero waits indefinitely.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}

// WithLogger sets the logger. By default the client logs nothing.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithBackend selects the plaintext transport implementation. It has no
// effect on https endpoints.
func WithBackend(backend transport.Backend) Option {
	return func(o *options) {
		o.transportOpts.Backend = backend
	}
}

// WithTLSConfig sets the TLS configuration for https endpoints.
func WithTLSConfig(config *tls.Config) Option {
	return func(o *options) {
		o.transportOpts.TLSConfig = config
	}
}

// WithFingerprint makes https connections present a uTLS browser ClientHello.
// See transport.Fingerprints for the accepted names.
func WithFingerprint(name string) Option {
	return func(o *options) {
		o.transportOpts.Fingerprint = name
	}
}

// WithRecvBufferSize caps the size of a single Recv result.
func WithRecvBufferSize(size int) Option {
	return func(o *options) {
		o.recvBufferSize = size
	}
}

// WithTransport uses t instead of building one from the endpoint scheme.
func WithTransport(t transport.Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}
