package protocol

import (
	"sort"
	"strconv"
)

// Header represents an HTTP header key-value pair
type Header struct {
	Key   string
	Value string
}

// HeaderSet is an ordered header mapping owned by a single client.
// Serialization follows insertion order; replacing a value keeps its position.
type HeaderSet struct {
	headers []Header
	index   map[string]int
}

// NewHeaderSet returns a set seeded with the event-stream defaults.
func NewHeaderSet() *HeaderSet {
	h := &HeaderSet{index: make(map[string]int)}
	h.Set("Accept", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Content-Type", "application/json")
	return h
}

// Set adds a header or replaces the value of an existing one.
func (h *HeaderSet) Set(name, value string) {
	if i, ok := h.index[name]; ok {
		h.headers[i].Value = value
		return
	}
	h.index[name] = len(h.headers)
	h.headers = append(h.headers, Header{Key: name, Value: value})
}

// SetInt is Set for integer values.
func (h *HeaderSet) SetInt(name string, value int) {
	h.Set(name, strconv.Itoa(value))
}

// Merge applies headers over the set; the given values win. Names not yet
// present are appended in sorted order.
func (h *HeaderSet) Merge(headers map[string]string) {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		h.Set(name, headers[name])
	}
}

// Get returns the value for name.
func (h *HeaderSet) Get(name string) (string, bool) {
	i, ok := h.index[name]
	if !ok {
		return "", false
	}
	return h.headers[i].Value, true
}

func (h *HeaderSet) Len() int {
	return len(h.headers)
}

// Headers returns a copy of the headers in serialization order.
func (h *HeaderSet) Headers() []Header {
	out := make([]Header, len(h.headers))
	copy(out, h.headers)
	return out
}
