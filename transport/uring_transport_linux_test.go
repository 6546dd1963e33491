//go:build linux

package transport

import (
	"net"
	"testing"
	"time"

	"github.com/wheakerd/sse-client/errors"
)

// newRingOrSkip skips when the kernel or sandbox refuses io_uring.
func newRingOrSkip(t *testing.T, backend Backend) Transport {
	t.Helper()

	tr, err := New("http", Options{Backend: backend})
	if errors.IsTransport(err, errors.TransportErrorIoUringInit) {
		t.Skipf("io_uring unavailable: %v", err)
	}
	if err != nil {
		t.Fatalf("Failed to create transport: %v", err)
	}
	return tr
}

func TestUringTransports_RoundTrip(t *testing.T) {
	for _, backend := range []Backend{BackendIoUring, BackendIoUringV2} {
		t.Run(backend.String(), func(t *testing.T) {
			host, port, cleanup := setupTcpTestServer(t, func(conn net.Conn) {
				buf := make([]byte, 1024)
				n, _ := conn.Read(buf)
				conn.Write(append([]byte("echo:"), buf[:n]...))
			})
			defer cleanup()

			tr := newRingOrSkip(t, backend)
			defer tr.Close()

			if err := tr.Connect(host, port, testTimeout); err != nil {
				t.Fatalf("Connect failed: %v", err)
			}

			if _, err := tr.Write([]byte("ping")); err != nil {
				t.Fatalf("Write failed: %v", err)
			}

			buf := make([]byte, 1024)
			n, err := tr.Read(buf)
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			if got := string(buf[:n]); got != "echo:ping" {
				t.Errorf("Expected %q, got %q", "echo:ping", got)
			}
		})
	}
}

func TestUringTransports_PeerClose(t *testing.T) {
	for _, backend := range []Backend{BackendIoUring, BackendIoUringV2} {
		t.Run(backend.String(), func(t *testing.T) {
			host, port, cleanup := setupTcpTestServer(t, func(conn net.Conn) {})
			defer cleanup()

			tr := newRingOrSkip(t, backend)
			defer tr.Close()

			if err := tr.Connect(host, port, testTimeout); err != nil {
				t.Fatalf("Connect failed: %v", err)
			}

			buf := make([]byte, 1024)
			_, err := tr.Read(buf)
			requireTransportError(t, err, errors.TransportErrorConnectionClosed)
		})
	}
}

func TestUringTransports_CloseUnblocksRead(t *testing.T) {
	for _, backend := range []Backend{BackendIoUring, BackendIoUringV2} {
		t.Run(backend.String(), func(t *testing.T) {
			release := make(chan struct{})
			host, port, cleanup := setupTcpTestServer(t, func(conn net.Conn) {
				<-release
			})
			defer cleanup()
			defer close(release)

			tr := newRingOrSkip(t, backend)
			if err := tr.Connect(host, port, testTimeout); err != nil {
				t.Fatalf("Connect failed: %v", err)
			}

			readErr := make(chan error, 1)
			go func() {
				buf := make([]byte, 1024)
				_, err := tr.Read(buf)
				readErr <- err
			}()

			time.Sleep(50 * time.Millisecond)
			if err := tr.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}
			if err := tr.Close(); err != nil {
				t.Fatalf("Second close failed: %v", err)
			}

			select {
			case err := <-readErr:
				requireTransportError(t, err, errors.TransportErrorConnectionClosed)
			case <-time.After(2 * time.Second):
				t.Fatal("Read still blocked after Close")
			}
		})
	}
}

func TestUringTransports_NotConnected(t *testing.T) {
	for _, backend := range []Backend{BackendIoUring, BackendIoUringV2} {
		t.Run(backend.String(), func(t *testing.T) {
			tr := newRingOrSkip(t, backend)
			defer tr.Close()

			_, err := tr.Write([]byte("test"))
			requireTransportError(t, err, errors.TransportErrorSocketWriteFailure)

			buf := make([]byte, 16)
			_, err = tr.Read(buf)
			requireTransportError(t, err, errors.TransportErrorSocketReadFailure)
		})
	}
}

func TestUringTransports_ConnectRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	for _, backend := range []Backend{BackendIoUring, BackendIoUringV2} {
		t.Run(backend.String(), func(t *testing.T) {
			tr := newRingOrSkip(t, backend)
			defer tr.Close()

			err := tr.Connect("127.0.0.1", port, testTimeout)
			requireTransportError(t, err, errors.TransportErrorSocketConnectFailure)
		})
	}
}

func TestUringTransport_ConnectTimeoutThenReconnect(t *testing.T) {
	tr := newRingOrSkip(t, BackendIoUring)
	defer tr.Close()

	// Unroutable address: the SYN goes nowhere, or the network is unreachable
	start := time.Now()
	err := tr.Connect("10.255.255.1", 81, 50*time.Millisecond)
	if err == nil {
		t.Skip("unroutable address accepted a connection")
	}
	if !errors.IsTransport(err, errors.TransportErrorTimeout) &&
		!errors.IsTransport(err, errors.TransportErrorSocketConnectFailure) {
		t.Fatalf("Expected timeout or connect failure, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Abandoned connect took %v to release", elapsed)
	}

	host, port, cleanup := setupTcpTestServer(t, func(conn net.Conn) {
		conn.Write([]byte("ready"))
	})
	defer cleanup()

	if err := tr.Connect(host, port, testTimeout); err != nil {
		t.Fatalf("Connect after timeout failed: %v", err)
	}

	buf := make([]byte, 16)
	n, err := tr.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got := string(buf[:n]); got != "ready" {
		t.Errorf("Expected %q, got %q", "ready", got)
	}
}
