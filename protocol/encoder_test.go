package protocol

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRequest_ExactShape(t *testing.T) {
	ep := Endpoint{Scheme: "http", Host: "api.example.com", Port: 80, Path: "/v1/stream"}
	body := `{"prompt":"hi"}`

	got := string(EncodeRequest(nil, ep, NewHeaderSet(), []byte(body)))

	want := "POST /v1/stream HTTP/1.1\r\n" +
		"Host: api.example.com\r\n" +
		"Accept: text/event-stream\r\n" +
		"Cache-Control: no-cache\r\n" +
		"Connection: keep-alive\r\n" +
		"Content-Type: application/json\r\n" +
		"Content-Length: 15\r\n" +
		"\r\n" +
		body
	assert.Equal(t, want, got)
}

func TestEncodeRequest_ContentLengthIsByteLength(t *testing.T) {
	ep := Endpoint{Scheme: "http", Host: "h", Port: 80, Path: "/"}

	for _, body := range []string{"", "ascii", "héllo", "日本語", "🙂🙂"} {
		req := string(EncodeRequest(nil, ep, NewHeaderSet(), []byte(body)))

		head, gotBody, found := strings.Cut(req, "\r\n\r\n")
		require.True(t, found)
		assert.Equal(t, body, gotBody)
		assert.Contains(t, head, "Content-Length: "+strconv.Itoa(len(body)))
		assert.Equal(t, 1, strings.Count(req, "\r\n\r\n"), "exactly one blank line for %q", body)
	}
}

func TestEncodeRequest_NonDefaultPortInHost(t *testing.T) {
	ep := Endpoint{Scheme: "https", Host: "h", Port: 8443, Path: "/s"}

	req := string(EncodeRequest(nil, ep, nil, nil))
	assert.True(t, strings.HasPrefix(req, "POST /s HTTP/1.1\r\nHost: h:8443\r\n"), req)
	assert.True(t, strings.HasSuffix(req, "Content-Length: 0\r\n\r\n"), req)
}

func TestEncodeRequest_ComputedHeadersNotDuplicated(t *testing.T) {
	ep := Endpoint{Scheme: "http", Host: "h", Port: 80, Path: "/"}
	headers := NewHeaderSet()
	headers.Set("Host", "spoofed")
	headers.Set("content-length", "999")

	req := string(EncodeRequest(nil, ep, headers, []byte("abc")))
	assert.Equal(t, 1, strings.Count(req, "Host: "))
	assert.NotContains(t, req, "spoofed")
	assert.NotContains(t, req, "999")
	assert.Contains(t, req, "Content-Length: 3\r\n")
}

func TestEncodeRequest_ReusesBuffer(t *testing.T) {
	ep := Endpoint{Scheme: "http", Host: "h", Port: 80, Path: "/"}
	buf := make([]byte, 0, 4096)

	first := EncodeRequest(buf, ep, NewHeaderSet(), []byte("one"))
	second := EncodeRequest(first[:0], ep, NewHeaderSet(), []byte("two"))

	assert.Same(t, &buf[:1][0], &second[0])
	assert.True(t, strings.HasSuffix(string(second), "\r\n\r\ntwo"))
}
