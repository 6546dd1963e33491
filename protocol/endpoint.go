package protocol

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/wheakerd/sse-client/errors"
	"golang.org/x/net/idna"
)

// Endpoint is the fixed target of a client, derived once from its URI.
type Endpoint struct {
	Scheme string
	Host   string
	Port   int
	Path   string
}

// ParseEndpoint parses an http or https URI. Every failure is reported as
// errors.ErrorMalformedUri.
func ParseEndpoint(uri string) (Endpoint, error) {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil {
		return Endpoint{}, errors.NewMalformedUriError(uri, err)
	}

	ep := Endpoint{Scheme: strings.ToLower(u.Scheme)}
	switch ep.Scheme {
	case "http", "https":
	case "":
		return Endpoint{}, errors.NewMalformedUriError(uri, fmt.Errorf("missing scheme"))
	default:
		return Endpoint{}, errors.NewMalformedUriError(uri, fmt.Errorf("unsupported scheme %q", u.Scheme))
	}

	if u.Opaque != "" {
		return Endpoint{}, errors.NewMalformedUriError(uri, fmt.Errorf("opaque URI"))
	}

	host := u.Hostname()
	if host == "" {
		return Endpoint{}, errors.NewMalformedUriError(uri, fmt.Errorf("missing host"))
	}
	if net.ParseIP(host) == nil {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return Endpoint{}, errors.NewMalformedUriError(uri, err)
		}
		host = ascii
	}
	ep.Host = host

	ep.Port = defaultPort(ep.Scheme)
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return Endpoint{}, errors.NewMalformedUriError(uri, fmt.Errorf("invalid port %q", p))
		}
		ep.Port = port
	}

	ep.Path = u.EscapedPath()
	if ep.Path == "" {
		ep.Path = "/"
	}
	if u.RawQuery != "" {
		ep.Path += "?" + u.RawQuery
	}

	return ep, nil
}

// HostHeader is the value sent in the Host header.
func (e Endpoint) HostHeader() string {
	host := e.Host
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if e.Port == defaultPort(e.Scheme) {
		return host
	}
	return host + ":" + strconv.Itoa(e.Port)
}

// Secure reports whether the endpoint needs an encrypted transport.
func (e Endpoint) Secure() bool {
	return e.Scheme == "https"
}

func (e Endpoint) String() string {
	return e.Scheme + "://" + e.HostHeader() + e.Path
}

func defaultPort(scheme string) int {
	if scheme == "https" {
		return 443
	}
	return 80
}
