package protocol

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Envelope codes with a terminal meaning. Every other code is progress.
const (
	CodeFailure = 0
	CodeSuccess = 3
)

const dataPrefix = "data:"

// Matches the three line ending conventions, longest first.
var lineBreak = regexp.MustCompile(`\r\n|\n|\r`)

// VerdictKind is the outcome of decoding one buffer.
type VerdictKind int

const (
	VerdictPending VerdictKind = iota
	VerdictSuccess
	VerdictFailure
)

func (k VerdictKind) String() string {
	switch k {
	case VerdictPending:
		return "pending"
	case VerdictSuccess:
		return "success"
	case VerdictFailure:
		return "failure"
	default:
		return "verdict(" + strconv.Itoa(int(k)) + ")"
	}
}

// Envelope is the JSON object carried by an accepted data line.
type Envelope struct {
	Code int64
	Data string
}

// Verdict is the result of Decode.
type Verdict struct {
	Kind VerdictKind

	// Payload is the data field of the terminal envelope. For failures it is
	// whatever string the server sent, possibly empty.
	Payload string

	// Progress holds the non-terminal envelopes accepted before the verdict,
	// in stream order.
	Progress []Envelope
}

// Terminal reports whether the verdict ends the receive loop.
func (v Verdict) Terminal() bool {
	return v.Kind != VerdictPending
}

// Decode scans one raw response buffer for a terminal envelope.
//
// Lines are taken from chunked transfer framing: a line of hex digits sets the
// expected chunk size, and a "data:" line is only accepted when the chunk
// size equals its length plus the two bytes of its terminator. Lines that fail
// any check (size mismatch, invalid JSON, malformed envelope) are skipped.
// No state is carried between calls, so a data line split across two buffers
// is never accepted.
func Decode(raw []byte) Verdict {
	var verdict Verdict
	var chunkLength uint64

	for _, line := range lineBreak.Split(string(raw), -1) {
		trimmed := strings.Trim(line, " \t\n\r\x00\x0B")

		if isHex(trimmed) {
			n, err := strconv.ParseUint(trimmed, 16, 64)
			if err != nil {
				// Overflow: no line can be that long
				n = 0
			}
			chunkLength = n
			continue
		}

		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}

		if chunkLength == 0 || chunkLength != uint64(len(line))+2 {
			continue
		}

		env, ok := parseEnvelope(line[len(dataPrefix):])
		if !ok {
			continue
		}

		switch env.Code {
		case CodeSuccess:
			verdict.Kind = VerdictSuccess
			verdict.Payload = env.Data
			return verdict
		case CodeFailure:
			verdict.Kind = VerdictFailure
			verdict.Payload = env.Data
			return verdict
		default:
			verdict.Progress = append(verdict.Progress, env)
		}
	}

	return verdict
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}

// parseEnvelope requires a JSON object with an integer code and a data field.
// A success envelope additionally needs data to be a string.
func parseEnvelope(s string) (Envelope, bool) {
	if !json.Valid([]byte(s)) {
		return Envelope{}, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &fields); err != nil || fields == nil {
		return Envelope{}, false
	}

	rawCode, ok := fields["code"]
	if !ok {
		return Envelope{}, false
	}
	code, ok := parseIntLiteral(rawCode)
	if !ok {
		return Envelope{}, false
	}

	rawData, ok := fields["data"]
	if !ok {
		return Envelope{}, false
	}

	env := Envelope{Code: code}
	var data string
	if err := json.Unmarshal(rawData, &data); err == nil && isStringLiteral(rawData) {
		env.Data = data
	} else if code == CodeSuccess {
		return Envelope{}, false
	}

	return env, true
}

// parseIntLiteral accepts only JSON integer literals, so 3.0, "3" and null
// are not codes.
func parseIntLiteral(raw json.RawMessage) (int64, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || !(s[0] == '-' || '0' <= s[0] && s[0] <= '9') {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func isStringLiteral(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return len(s) > 0 && s[0] == '"'
}
