//go:build linux

package transport

import (
	stderrors "errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/iceber/iouring-go"
	"github.com/wheakerd/sse-client/errors"
)

// UringTransport implements Transport using io_uring for async I/O
type UringTransport struct {
	iour *iouring.IOURing

	mu     sync.Mutex
	fd     int
	closed bool
	done   chan struct{}
}

// NewUringTransport creates a new TCP transport with io_uring
func NewUringTransport() (*UringTransport, error) {
	// Create io_uring instance with queue depth of 32
	iour, err := iouring.New(32)
	if err != nil {
		return nil, errors.NewTransportError(
			errors.TransportErrorIoUringInit,
			"failed to initialize io_uring",
			err,
		)
	}

	return &UringTransport{
		iour: iour,
		fd:   -1,
		done: make(chan struct{}),
	}, nil
}

func newUringTransport() (Transport, error) {
	return NewUringTransport()
}

// Connect establishes a TCP connection using io_uring
func (t *UringTransport) Connect(host string, port int, timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return errors.NewTransportError(errors.TransportErrorConnectionClosed, "transport closed", nil)
	}
	if t.fd >= 0 {
		return errors.NewTransportError(
			errors.TransportErrorSocketConnectFailure,
			"already connected",
			nil,
		)
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return errors.NewTransportError(
			errors.TransportErrorDnsFailure,
			fmt.Sprintf("failed to resolve %s", addr),
			err,
		)
	}

	var sa syscall.Sockaddr
	family := syscall.AF_INET
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		sa4 := &syscall.SockaddrInet4{Port: tcpAddr.Port}
		copy(sa4.Addr[:], ip4)
		sa = sa4
	} else {
		sa6 := &syscall.SockaddrInet6{Port: tcpAddr.Port}
		copy(sa6.Addr[:], tcpAddr.IP.To16())
		sa = sa6
		family = syscall.AF_INET6
	}

	fd, err := syscall.Socket(family, syscall.SOCK_STREAM|syscall.SOCK_CLOEXEC, 0)
	if err != nil {
		return errors.NewTransportError(
			errors.TransportErrorSocketCreateFailure,
			"failed to create socket",
			err,
		)
	}

	// io_uring polls non-blocking sockets itself
	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return errors.NewTransportError(
			errors.TransportErrorSocketCreateFailure,
			"failed to set non-blocking mode",
			err,
		)
	}

	if err := syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1); err != nil {
		syscall.Close(fd)
		return errors.NewTransportError(
			errors.TransportErrorSocketCreateFailure,
			"failed to set TCP_NODELAY",
			err,
		)
	}

	prep, err := iouring.Connect(fd, sa)
	if err != nil {
		syscall.Close(fd)
		return errors.NewTransportError(
			errors.TransportErrorSocketCreateFailure,
			fmt.Sprintf("invalid address %s", addr),
			err,
		)
	}

	// Buffered so the completion never blocks the ring
	ch := make(chan iouring.Result, 1)
	req, err := t.iour.SubmitRequest(prep, ch)
	if err != nil {
		syscall.Close(fd)
		return errors.NewTransportError(
			errors.TransportErrorIoUringSubmit,
			"failed to submit connect request",
			err,
		)
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case result := <-ch:
		// Connect completions carry no value, only an errno
		if err := result.Err(); err != nil {
			syscall.Close(fd)
			return errors.NewTransportError(
				errors.TransportErrorSocketConnectFailure,
				fmt.Sprintf("failed to connect to %s", addr),
				err,
			)
		}
	case <-expired:
		abandonConnect(fd, req, ch)
		syscall.Close(fd)
		return errors.NewTransportError(
			errors.TransportErrorTimeout,
			fmt.Sprintf("timed out connecting to %s", addr),
			nil,
		)
	}

	t.fd = fd
	return nil
}

// Write sends data over the connection using io_uring
func (t *UringTransport) Write(buf []byte) (int, error) {
	fd, iour, err := t.live(errors.TransportErrorSocketWriteFailure)
	if err != nil {
		return 0, err
	}

	totalWritten := 0
	for totalWritten < len(buf) {
		ch := make(chan iouring.Result, 1)
		if _, err := iour.SubmitRequest(iouring.Send(fd, buf[totalWritten:], 0), ch); err != nil {
			return totalWritten, errors.NewTransportError(
				errors.TransportErrorIoUringSubmit,
				"failed to submit write request",
				err,
			)
		}

		var result iouring.Result
		select {
		case result = <-ch:
		case <-t.done:
			return totalWritten, errors.NewTransportError(errors.TransportErrorConnectionClosed, "connection closed", nil)
		}

		n, err := result.ReturnInt()
		if err != nil {
			if stderrors.Is(err, syscall.EPIPE) || stderrors.Is(err, syscall.ECONNRESET) {
				return totalWritten, errors.NewTransportError(
					errors.TransportErrorConnectionClosed,
					"connection closed during write",
					err,
				)
			}
			return totalWritten, errors.NewTransportError(
				errors.TransportErrorSocketWriteFailure,
				"write failed",
				err,
			)
		}

		if n <= 0 {
			return totalWritten, errors.NewTransportError(
				errors.TransportErrorConnectionClosed,
				"connection closed during write",
				nil,
			)
		}

		totalWritten += n
	}

	return totalWritten, nil
}

// Read receives data from the connection using io_uring
func (t *UringTransport) Read(buf []byte) (int, error) {
	fd, iour, err := t.live(errors.TransportErrorSocketReadFailure)
	if err != nil {
		return 0, err
	}

	ch := make(chan iouring.Result, 1)
	if _, err := iour.SubmitRequest(iouring.Recv(fd, buf, 0), ch); err != nil {
		return 0, errors.NewTransportError(
			errors.TransportErrorIoUringSubmit,
			"failed to submit read request",
			err,
		)
	}

	var result iouring.Result
	select {
	case result = <-ch:
	case <-t.done:
		return 0, errors.NewTransportError(errors.TransportErrorConnectionClosed, "connection closed", nil)
	}

	n, err := result.ReturnInt()
	if err != nil {
		if stderrors.Is(err, syscall.ECONNRESET) {
			return 0, errors.NewTransportError(errors.TransportErrorConnectionClosed, "connection reset by peer", err)
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

// Close shuts the socket down, wakes pending I/O and releases the ring.
func (t *UringTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)

	var closeErr error
	if t.fd >= 0 {
		syscall.Shutdown(t.fd, syscall.SHUT_RDWR)
		if err := syscall.Close(t.fd); err != nil {
			closeErr = errors.NewTransportError(
				errors.TransportErrorConnectionClosed,
				"failed to close socket",
				err,
			)
		}
		t.fd = -1
	}

	if t.iour != nil {
		t.iour.Close()
		t.iour = nil
	}

	return closeErr
}

// abandonConnect cancels an in-flight connect and waits for its completion,
// so fd is not closed (and its number reused) while the kernel still holds it.
func abandonConnect(fd int, req iouring.Request, ch <-chan iouring.Result) {
	// A connect already in progress may refuse the cancel; shutdown aborts a
	// SYN_SENT socket, which completes it either way.
	req.Cancel()
	syscall.Shutdown(fd, syscall.SHUT_RDWR)
	<-ch
}

func (t *UringTransport) live(code errors.TransportError) (int, *iouring.IOURing, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return -1, nil, errors.NewTransportError(errors.TransportErrorConnectionClosed, "connection closed", nil)
	}
	if t.fd < 0 {
		return -1, nil, errors.NewTransportError(code, "not connected", nil)
	}
	return t.fd, t.iour, nil
}
