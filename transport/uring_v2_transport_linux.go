//go:build linux

package transport

import (
	stderrors "errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/godzie44/go-uring/uring"
	"github.com/wheakerd/sse-client/errors"
	"golang.org/x/sys/unix"
)

// UringV2Transport implements Transport using godzie44/go-uring for async I/O.
// The socket is blocking; each Read and Write is one submit-and-wait on the ring.
type UringV2Transport struct {
	mu       sync.Mutex
	ring     *uring.Ring
	fd       int
	closed   bool
	inflight int
}

// NewUringV2Transport creates a new TCP transport with io_uring (v2 using godzie44/go-uring)
func NewUringV2Transport() (*UringV2Transport, error) {
	ring, err := uring.New(32)
	if err != nil {
		return nil, errors.NewTransportError(
			errors.TransportErrorIoUringInit,
			"failed to initialize io_uring",
			err,
		)
	}

	return &UringV2Transport{
		ring: ring,
		fd:   -1,
	}, nil
}

func newUringV2Transport() (Transport, error) {
	return NewUringV2Transport()
}

// Connect establishes a TCP connection. The timeout is applied through
// SO_SNDTIMEO, which bounds a blocking connect on Linux.
func (t *UringV2Transport) Connect(host string, port int, timeout time.Duration) error {
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

	var sa unix.Sockaddr
	family := unix.AF_INET
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		sa4 := &unix.SockaddrInet4{Port: tcpAddr.Port}
		copy(sa4.Addr[:], ip4)
		sa = sa4
	} else {
		sa6 := &unix.SockaddrInet6{Port: tcpAddr.Port}
		copy(sa6.Addr[:], tcpAddr.IP.To16())
		sa = sa6
		family = unix.AF_INET6
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return errors.NewTransportError(
			errors.TransportErrorSocketCreateFailure,
			"failed to create socket",
			err,
		)
	}

	if timeout > 0 {
		tv := unix.NsecToTimeval(timeout.Nanoseconds())
		if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv); err != nil {
			unix.Close(fd)
			return errors.NewTransportError(
				errors.TransportErrorSocketCreateFailure,
				"failed to set connect timeout",
				err,
			)
		}
	}

	if err := unix.Connect(fd, sa); err != nil {
		unix.Close(fd)
		if stderrors.Is(err, unix.EINPROGRESS) || stderrors.Is(err, unix.EAGAIN) {
			return errors.NewTransportError(
				errors.TransportErrorTimeout,
				fmt.Sprintf("timed out connecting to %s", addr),
				err,
			)
		}
		return errors.NewTransportError(
			errors.TransportErrorSocketConnectFailure,
			fmt.Sprintf("failed to connect to %s", addr),
			err,
		)
	}

	// Writes are not bounded by the connect timeout
	var zero unix.Timeval
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &zero); err != nil {
		unix.Close(fd)
		return errors.NewTransportError(
			errors.TransportErrorSocketCreateFailure,
			"failed to clear connect timeout",
			err,
		)
	}

	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		unix.Close(fd)
		return errors.NewTransportError(
			errors.TransportErrorSocketCreateFailure,
			"failed to set TCP_NODELAY",
			err,
		)
	}

	t.fd = fd
	return nil
}

// Write sends data over the connection using io_uring
func (t *UringV2Transport) Write(buf []byte) (int, error) {
	fd, ring, err := t.acquire(errors.TransportErrorSocketWriteFailure)
	if err != nil {
		return 0, err
	}
	defer t.release()

	totalWritten := 0
	for totalWritten < len(buf) {
		n, err := submitAndWait(ring, func(r *uring.Ring) error {
			return r.QueueSQE(uring.Write(uintptr(fd), buf[totalWritten:], 0), 0, 0)
		})
		if err != nil {
			if isSseError(err) {
				return totalWritten, err
			}
			if stderrors.Is(err, unix.EPIPE) || stderrors.Is(err, unix.ECONNRESET) {
				return totalWritten, errors.NewTransportError(
					errors.TransportErrorConnectionClosed,
					"connection closed during write",
					err,
				)
			}
			return totalWritten, errors.NewTransportError(
				errors.TransportErrorSocketWriteFailure,
				"write operation failed",
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
func (t *UringV2Transport) Read(buf []byte) (int, error) {
	fd, ring, err := t.acquire(errors.TransportErrorSocketReadFailure)
	if err != nil {
		return 0, err
	}
	defer t.release()

	n, err := submitAndWait(ring, func(r *uring.Ring) error {
		return r.QueueSQE(uring.Read(uintptr(fd), buf, 0), 0, 0)
	})
	if err != nil {
		if isSseError(err) {
			return 0, err
		}
		if stderrors.Is(err, unix.ECONNRESET) {
			return 0, errors.NewTransportError(errors.TransportErrorConnectionClosed, "connection reset by peer", err)
		}
		return 0, errors.NewTransportError(
			errors.TransportErrorSocketReadFailure,
			"read operation failed",
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

// Close shuts the socket down. The descriptor and the ring are released once
// no Read or Write is waiting on them.
func (t *UringV2Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	if t.fd >= 0 {
		// Wakes a blocked read with a zero-length completion
		unix.Shutdown(t.fd, unix.SHUT_RDWR)
	}
	if t.inflight == 0 {
		return t.teardownLocked()
	}
	return nil
}

func (t *UringV2Transport) acquire(code errors.TransportError) (int, *uring.Ring, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return -1, nil, errors.NewTransportError(errors.TransportErrorConnectionClosed, "connection closed", nil)
	}
	if t.fd < 0 {
		return -1, nil, errors.NewTransportError(code, "not connected", nil)
	}
	t.inflight++
	return t.fd, t.ring, nil
}

func (t *UringV2Transport) release() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.inflight--
	if t.closed && t.inflight == 0 {
		t.teardownLocked()
	}
}

func (t *UringV2Transport) teardownLocked() error {
	var closeErr error
	if t.fd >= 0 {
		if err := unix.Close(t.fd); err != nil {
			closeErr = errors.NewTransportError(
				errors.TransportErrorConnectionClosed,
				"failed to close socket",
				err,
			)
		}
		t.fd = -1
	}
	if t.ring != nil {
		t.ring.Close()
		t.ring = nil
	}
	return closeErr
}

func submitAndWait(ring *uring.Ring, queue func(*uring.Ring) error) (int, error) {
	if err := queue(ring); err != nil {
		return 0, errors.NewTransportError(
			errors.TransportErrorIoUringSubmit,
			"failed to queue request",
			err,
		)
	}

	if _, err := ring.Submit(); err != nil {
		return 0, errors.NewTransportError(
			errors.TransportErrorIoUringSubmit,
			"failed to submit request",
			err,
		)
	}

	cqe, err := ring.WaitCQEvents(1)
	if err != nil {
		return 0, err
	}
	defer ring.SeenCQE(cqe)

	if err := cqe.Error(); err != nil {
		return 0, err
	}
	return int(cqe.Res), nil
}

func isSseError(err error) bool {
	var sseErr *errors.SseError
	return stderrors.As(err, &sseErr)
}
