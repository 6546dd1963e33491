package transport

import (
	stderrors "errors"
	"io"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/wheakerd/sse-client/errors"
)

// TcpTransport implements the Transport interface using net.Conn
type TcpTransport struct {
	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// NewTcpTransport creates a new TcpTransport instance
func NewTcpTransport() *TcpTransport {
	return &TcpTransport{
		conn: nil,
	}
}

// Connect establishes a TCP connection to the specified host and port
func (t *TcpTransport) Connect(host string, port int, timeout time.Duration) error {
	if err := t.connectable(); err != nil {
		return err
	}

	conn, err := dialTCP(host, port, timeout)
	if err != nil {
		return err
	}

	return t.attach(conn)
}

// Write sends data over the TCP connection
func (t *TcpTransport) Write(buf []byte) (int, error) {
	conn, err := t.live(errors.TransportErrorSocketWriteFailure)
	if err != nil {
		return 0, err
	}
	return writeConn(conn, buf)
}

// Read receives data from the TCP connection
func (t *TcpTransport) Read(buf []byte) (int, error) {
	conn, err := t.live(errors.TransportErrorSocketReadFailure)
	if err != nil {
		return 0, err
	}
	return readConn(conn, buf)
}

// Close closes the TCP connection
func (t *TcpTransport) Close() error {
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

func (t *TcpTransport) connectable() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return checkConnectable(t.conn, t.closed)
}

// attach installs conn unless Close ran while it was being dialed.
func (t *TcpTransport) attach(conn net.Conn) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		conn.Close()
		return errTransportClosed()
	}
	t.conn = conn
	return nil
}

func (t *TcpTransport) live(code errors.TransportError) (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return liveConn(t.conn, t.closed, code)
}

func errTransportClosed() error {
	return errors.NewTransportError(errors.TransportErrorConnectionClosed, "transport closed", nil)
}

func checkConnectable(conn net.Conn, closed bool) error {
	if closed {
		return errTransportClosed()
	}
	if conn != nil {
		return errors.NewTransportError(
			errors.TransportErrorSocketConnectFailure,
			"already connected",
			nil,
		)
	}
	return nil
}

// liveConn reports a closed transport as ConnectionClosed and one that never
// connected with code.
func liveConn(conn net.Conn, closed bool, code errors.TransportError) (net.Conn, error) {
	if closed {
		return nil, errTransportClosed()
	}
	if conn == nil {
		return nil, errors.NewTransportError(code, "not connected", nil)
	}
	return conn, nil
}

// dialTCP dials host:port and disables Nagle's algorithm on the result.
func dialTCP(host string, port int, timeout time.Duration) (net.Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return nil, classifyDialError(addr, err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			conn.Close()
			return nil, errors.NewTransportError(
				errors.TransportErrorSocketCreateFailure,
				"failed to set TCP_NODELAY",
				err,
			)
		}
	}

	return conn, nil
}

func classifyDialError(addr string, err error) error {
	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return errors.NewTransportError(
			errors.TransportErrorDnsFailure,
			"failed to resolve "+addr,
			err,
		)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.NewTransportError(
			errors.TransportErrorTimeout,
			"timed out connecting to "+addr,
			err,
		)
	}

	return errors.NewTransportError(
		errors.TransportErrorSocketConnectFailure,
		"failed to connect to "+addr,
		err,
	)
}

func writeConn(conn net.Conn, buf []byte) (int, error) {
	n, err := conn.Write(buf)
	if err != nil {
		// Broken pipe or reset means the peer is gone
		if stderrors.Is(err, syscall.EPIPE) || stderrors.Is(err, syscall.ECONNRESET) || stderrors.Is(err, net.ErrClosed) {
			return n, errors.NewTransportError(
				errors.TransportErrorConnectionClosed,
				"connection closed during write",
				err,
			)
		}
		return n, errors.NewTransportError(
			errors.TransportErrorSocketWriteFailure,
			"write failed",
			err,
		)
	}

	return n, nil
}

func readConn(conn net.Conn, buf []byte) (int, error) {
	n, err := conn.Read(buf)
	if err != nil {
		if n > 0 {
			// Hand back what arrived; the error resurfaces on the next read
			return n, nil
		}
		if stderrors.Is(err, io.EOF) || stderrors.Is(err, syscall.ECONNRESET) || stderrors.Is(err, net.ErrClosed) {
			return 0, errors.NewTransportError(
				errors.TransportErrorConnectionClosed,
				"connection closed by peer",
				err,
			)
		}
		return 0, errors.NewTransportError(
			errors.TransportErrorSocketReadFailure,
			"read failed",
			err,
		)
	}

	if n == 0 && len(buf) > 0 {
		return 0, errors.NewTransportError(
			errors.TransportErrorConnectionClosed,
			"connection closed by peer",
			nil,
		)
	}

	return n, nil
}
