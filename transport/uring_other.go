//go:build !linux

package transport

import "github.com/wheakerd/sse-client/errors"

func newUringTransport() (Transport, error) {
	return nil, errors.NewTransportError(
		errors.TransportErrorUnsupportedBackend,
		"io_uring requires linux",
		nil,
	)
}

func newUringV2Transport() (Transport, error) {
	return newUringTransport()
}
