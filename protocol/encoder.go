package protocol

import (
	"strconv"
	"strings"
)

// EncodeRequest appends the POST request for body to dst and returns the
// extended slice. Content-Length is the byte length of body. Host and
// Content-Length are always computed, so entries with those names in headers
// are not written.
func EncodeRequest(dst []byte, ep Endpoint, headers *HeaderSet, body []byte) []byte {
	// Request line
	dst = append(dst, "POST "...)
	dst = append(dst, ep.Path...)
	dst = append(dst, " HTTP/1.1\r\n"...)

	dst = appendHeader(dst, "Host", ep.HostHeader())
	if headers != nil {
		for _, header := range headers.headers {
			if strings.EqualFold(header.Key, "Host") || strings.EqualFold(header.Key, "Content-Length") {
				continue
			}
			dst = appendHeader(dst, header.Key, header.Value)
		}
	}
	dst = appendHeader(dst, "Content-Length", strconv.Itoa(len(body)))

	// Blank line
	dst = append(dst, "\r\n"...)

	return append(dst, body...)
}

func appendHeader(dst []byte, key, value string) []byte {
	dst = append(dst, key...)
	dst = append(dst, ": "...)
	dst = append(dst, value...)
	return append(dst, "\r\n"...)
}
