package transport

import (
	"crypto/tls"
	stderrors "errors"
	"net"
	"strings"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
	"github.com/wheakerd/sse-client/errors"
)

// Fingerprints lists the uTLS ClientHello presets accepted by NewTlsTransport.
var Fingerprints = map[string]*utls.ClientHelloID{
	"chrome":     &utls.HelloChrome_Auto,
	"firefox":    &utls.HelloFirefox_Auto,
	"safari":     &utls.HelloSafari_Auto,
	"ios":        &utls.HelloIOS_Auto,
	"android":    &utls.HelloAndroid_11_OkHttp,
	"edge":       &utls.HelloEdge_Auto,
	"golang":     &utls.HelloGolang,
	"randomized": &utls.HelloRandomizedALPN,
}

// TlsTransport implements Transport over TLS, using crypto/tls or a uTLS
// ClientHello fingerprint.
type TlsTransport struct {
	config      *tls.Config
	fingerprint *utls.ClientHelloID

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// NewTlsTransport creates a TLS transport. An empty fingerprint selects crypto/tls.
func NewTlsTransport(config *tls.Config, fingerprint string) (*TlsTransport, error) {
	t := &TlsTransport{}
	if config != nil {
		t.config = config.Clone()
	} else {
		t.config = &tls.Config{}
	}

	if fingerprint != "" {
		id, ok := Fingerprints[strings.ToLower(fingerprint)]
		if !ok {
			return nil, errors.NewInvalidArgumentError("unknown TLS fingerprint " + fingerprint)
		}
		t.fingerprint = id
	}

	return t, nil
}

// Connect dials host:port and completes the TLS handshake within timeout.
func (t *TlsTransport) Connect(host string, port int, timeout time.Duration) error {
	if err := t.connectable(); err != nil {
		return err
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	raw, err := dialTCP(host, port, timeout)
	if err != nil {
		return err
	}

	// Dial and handshake share the same budget
	if err := raw.SetDeadline(deadline); err != nil {
		raw.Close()
		return errors.NewTransportError(errors.TransportErrorSocketCreateFailure, "failed to set deadline", err)
	}

	serverName := t.config.ServerName
	if serverName == "" {
		serverName = host
	}

	var conn net.Conn
	if t.fingerprint == nil {
		conn, err = t.handshakeStd(raw, serverName)
	} else {
		conn, err = t.handshakeUtls(raw, serverName)
	}
	if err != nil {
		raw.Close()
		var netErr net.Error
		if stderrors.As(err, &netErr) && netErr.Timeout() {
			return errors.NewTransportError(errors.TransportErrorTimeout, "TLS handshake timed out", err)
		}
		return errors.NewTransportError(errors.TransportErrorTlsHandshakeFailure, "handshake with "+serverName, err)
	}

	if err := raw.SetDeadline(time.Time{}); err != nil {
		conn.Close()
		return errors.NewTransportError(errors.TransportErrorSocketCreateFailure, "failed to clear deadline", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		conn.Close()
		return errTransportClosed()
	}
	t.conn = conn
	return nil
}

func (t *TlsTransport) handshakeStd(raw net.Conn, serverName string) (net.Conn, error) {
	config := t.config.Clone()
	config.ServerName = serverName
	if len(config.NextProtos) == 0 {
		config.NextProtos = []string{"http/1.1"}
	}

	conn := tls.Client(raw, config)
	if err := conn.Handshake(); err != nil {
		return nil, err
	}
	return conn, nil
}

// handshakeUtls mimics the configured browser but only advertises http/1.1
// in ALPN, since requests are written as HTTP/1.1.
func (t *TlsTransport) handshakeUtls(raw net.Conn, serverName string) (net.Conn, error) {
	conn := utls.UClient(raw, &utls.Config{
		RootCAs:               t.config.RootCAs,
		ServerName:            serverName,
		InsecureSkipVerify:    t.config.InsecureSkipVerify,
		VerifyPeerCertificate: t.config.VerifyPeerCertificate,
	}, *t.fingerprint)

	if err := conn.BuildHandshakeState(); err != nil {
		return nil, err
	}
	hasALPNExtension := false
	for _, extension := range conn.Extensions {
		if alpn, ok := extension.(*utls.ALPNExtension); ok {
			hasALPNExtension = true
			alpn.AlpnProtocols = []string{"http/1.1"}
			break
		}
	}
	if !hasALPNExtension {
		conn.Extensions = append(conn.Extensions, &utls.ALPNExtension{AlpnProtocols: []string{"http/1.1"}})
	}
	if err := conn.BuildHandshakeState(); err != nil {
		return nil, err
	}

	if err := conn.Handshake(); err != nil {
		return nil, err
	}
	return conn, nil
}

// Write sends data over the TLS connection
func (t *TlsTransport) Write(buf []byte) (int, error) {
	conn, err := t.live(errors.TransportErrorSocketWriteFailure)
	if err != nil {
		return 0, err
	}
	return writeConn(conn, buf)
}

// Read receives data from the TLS connection
func (t *TlsTransport) Read(buf []byte) (int, error) {
	conn, err := t.live(errors.TransportErrorSocketReadFailure)
	if err != nil {
		return 0, err
	}
	return readConn(conn, buf)
}

// Close closes the TLS connection
func (t *TlsTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.closed = true
	t.mu.Unlock()

	if conn == nil {
		return nil
	}

	if err := conn.Close(); err != nil {
		return errors.NewTransportError(
			errors.TransportErrorConnectionClosed,
			"failed to close socket",
			err,
		)
	}

	return nil
}

func (t *TlsTransport) connectable() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return checkConnectable(t.conn, t.closed)
}

func (t *TlsTransport) live(code errors.TransportError) (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return liveConn(t.conn, t.closed, code)
}
