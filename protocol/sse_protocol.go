package protocol

import (
	"time"

	"github.com/wheakerd/sse-client/errors"
	"github.com/wheakerd/sse-client/transport"
)

// DefaultRecvBufferSize is the largest buffer a single Receive returns.
const DefaultRecvBufferSize = 64 * 1024

// SseProtocol writes event-stream requests and reads raw response buffers
// over a transport.
type SseProtocol struct {
	transport transport.Transport
	endpoint  Endpoint
	headers   *HeaderSet
	buffer    []byte
	readBuf   []byte
}

// NewSseProtocol creates a protocol handler for one endpoint.
func NewSseProtocol(t transport.Transport, ep Endpoint, headers *HeaderSet, recvBufferSize int) (*SseProtocol, error) {
	if recvBufferSize <= 0 {
		return nil, errors.NewInvalidArgumentError("receive buffer size must be positive")
	}
	if headers == nil {
		headers = NewHeaderSet()
	}

	return &SseProtocol{
		transport: t,
		endpoint:  ep,
		headers:   headers,
		buffer:    make([]byte, 0, 1024),
		readBuf:   make([]byte, recvBufferSize),
	}, nil
}

// Connect performs the transport handshake with the endpoint.
func (p *SseProtocol) Connect(timeout time.Duration) error {
	return p.transport.Connect(p.endpoint.Host, p.endpoint.Port, timeout)
}

// Disconnect closes the connection
func (p *SseProtocol) Disconnect() error {
	return p.transport.Close()
}

// Headers returns the header set sent with every request.
func (p *SseProtocol) Headers() *HeaderSet {
	return p.headers
}

// Send encodes one POST request and writes it in a single call. The write
// result is returned as the transport reported it.
func (p *SseProtocol) Send(body []byte) (int, error) {
	p.buffer = EncodeRequest(p.buffer[:0], p.endpoint, p.headers, body)
	return p.transport.Write(p.buffer)
}

// Receive blocks for the next buffer of response bytes. The returned slice
// is owned by the caller.
func (p *SseProtocol) Receive() ([]byte, error) {
	n, err := p.transport.Read(p.readBuf)
	if err != nil {
		return nil, err
	}

	out := make([]byte, n)
	copy(out, p.readBuf[:n])
	return out, nil
}
