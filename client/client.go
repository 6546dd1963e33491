package client

import (
	"io"
	"log/slog"
	"sync"

	"github.com/wheakerd/sse-client/errors"
	"github.com/wheakerd/sse-client/protocol"
	"github.com/wheakerd/sse-client/transport"
)

// Client sends one POST to an event-stream endpoint and reads the response.
//
// A Client owns a single connection and is not safe for concurrent Send and
// Recv. Close may be called from another goroutine to abort a blocked Recv.
type Client struct {
	protocol  *protocol.SseProtocol
	endpoint  protocol.Endpoint
	logger    *slog.Logger
	connected bool

	mu      sync.Mutex
	lastErr error
}

// New parses uri, builds the transport for its scheme and connects.
//
// A malformed uri is returned as an errors.ErrorMalformedUri error. A failed
// handshake is not an error: the client is returned with IsConnected false and
// the cause available from LastError.
func New(uri string, opts ...Option) (*Client, error) {
	o := options{
		timeout:        DefaultTimeout,
		recvBufferSize: protocol.DefaultRecvBufferSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ep, err := protocol.ParseEndpoint(uri)
	if err != nil {
		return nil, err
	}

	t := o.transport
	if t == nil {
		t, err = transport.New(ep.Scheme, o.transportOpts)
		if err != nil {
			return nil, err
		}
	}

	proto, err := protocol.NewSseProtocol(t, ep, protocol.NewHeaderSet(), o.recvBufferSize)
	if err != nil {
		t.Close()
		return nil, err
	}

	c := &Client{
		protocol: proto,
		endpoint: ep,
		logger:   o.logger.With(slog.String("endpoint", ep.String())),
	}

	if err := proto.Connect(o.timeout); err != nil {
		c.setLastErr(err)
		c.logger.Warn("connect failed", slog.Duration("timeout", o.timeout), slog.Any("error", err))
	} else {
		c.connected = true
		c.logger.Info("connected", slog.Duration("timeout", o.timeout))
	}

	return c, nil
}

// SetHeader sets one request header, replacing any existing value.
func (c *Client) SetHeader(name, value string) {
	c.protocol.Headers().Set(name, value)
}

// SetHeaderInt sets one request header to an integer value.
func (c *Client) SetHeaderInt(name string, value int) {
	c.protocol.Headers().SetInt(name, value)
}

// SetHeaders merges headers into the request headers; the given values win.
func (c *Client) SetHeaders(headers map[string]string) {
	c.protocol.Headers().Merge(headers)
}

// Headers returns the request headers in the order they are sent.
func (c *Client) Headers() []protocol.Header {
	return c.protocol.Headers().Headers()
}

// Endpoint returns the parsed target.
func (c *Client) Endpoint() protocol.Endpoint {
	return c.endpoint
}

// IsConnected reports whether the initial handshake succeeded. It is set once
// in New and never revised; later I/O failures show up only in the results
// of Send and Recv.
func (c *Client) IsConnected() bool {
	return c.connected
}

// Send writes one POST request carrying body and returns the number of bytes
// written.
func (c *Client) Send(body string) (int, error) {
	n, err := c.protocol.Send([]byte(body))
	if err != nil {
		c.setLastErr(err)
		c.logger.Debug("send failed", slog.Int("written", n), slog.Any("error", err))
		return n, err
	}
	c.logger.Debug("request sent", slog.Int("bytes", n), slog.Int("body_bytes", len(body)))
	return n, nil
}

// Recv blocks for the next buffer of raw response bytes.
func (c *Client) Recv() ([]byte, error) {
	raw, err := c.protocol.Receive()
	if err != nil {
		c.setLastErr(err)
		c.logger.Debug("recv failed", slog.Any("error", err))
		return nil, err
	}
	return raw, nil
}

// Decode interprets one raw buffer. See protocol.Decode.
func (c *Client) Decode(raw []byte) protocol.Verdict {
	return protocol.Decode(raw)
}

// Await reads and decodes buffers until a terminal envelope arrives. It
// returns the success payload, or an error for a failure envelope
// (errors.IsServerFailure) or a stream that ends first.
func (c *Client) Await() (string, error) {
	for {
		raw, err := c.Recv()
		if err != nil {
			if errors.IsTransport(err, errors.TransportErrorConnectionClosed) {
				return "", errors.NewProtocolError(errors.ProtocolErrorStreamEnded, "", err)
			}
			return "", err
		}

		verdict := c.Decode(raw)
		for _, env := range verdict.Progress {
			c.logger.Debug("progress", slog.Int64("code", env.Code), slog.String("data", env.Data))
		}

		switch verdict.Kind {
		case protocol.VerdictSuccess:
			c.logger.Debug("stream succeeded", slog.Int("payload_bytes", len(verdict.Payload)))
			return verdict.Payload, nil
		case protocol.VerdictFailure:
			c.logger.Debug("stream failed", slog.String("data", verdict.Payload))
			return "", errors.NewProtocolError(errors.ProtocolErrorServerFailure, verdict.Payload, nil)
		}
	}
}

// LastError returns the most recent transport error from connect, Send or
// Recv, or nil.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Close releases the connection. It is safe to call more than once and while
// a Recv is blocked.
func (c *Client) Close() error {
	return c.protocol.Disconnect()
}

func (c *Client) setLastErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}
