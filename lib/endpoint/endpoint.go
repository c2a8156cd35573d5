// Package endpoint defines the host+port identity of a remote tracker or
// storage node. Endpoint is a comparable value type and is used directly as
// a map key by the pool registry.
package endpoint

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/go-i2p/fdfspool/lib/errors"
	"github.com/go-i2p/fdfspool/lib/validation"
)

// Endpoint identifies a remote peer.
type Endpoint struct {
	Host string
	Port int
}

// New builds an Endpoint after validating host and port.
func New(host string, port int) (Endpoint, error) {
	host = strings.TrimSpace(host)
	err := validation.All(
		func() error { return validation.Host("host", host) },
		func() error { return validation.Port("port", port) },
	)
	if err != nil {
		return Endpoint{}, fmt.Errorf("endpoint %s: %w: %w", net.JoinHostPort(host, strconv.Itoa(port)), apperrors.ErrInvalidInput, err)
	}
	return Endpoint{Host: host, Port: port}, nil
}

// Parse parses a "host:port" string. IPv6 literals must be bracketed.
func Parse(s string) (Endpoint, error) {
	host, port, err := validation.HostPort("endpoint", s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse endpoint %q: %w: %w", s, apperrors.ErrInvalidInput, err)
	}
	return Endpoint{Host: host, Port: port}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// constants.
func MustParse(s string) Endpoint {
	ep, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return ep
}

// ParseList parses every address in addrs, reporting all failures at once.
func ParseList(addrs []string) ([]Endpoint, error) {
	var errs validation.Errors
	out := make([]Endpoint, 0, len(addrs))
	for _, a := range addrs {
		ep, err := Parse(a)
		if err != nil {
			errs.Add(err)
			continue
		}
		out = append(out, ep)
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// String returns the dialable "host:port" form.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// IsZero reports whether e is the zero Endpoint.
func (e Endpoint) IsZero() bool {
	return e.Host == "" && e.Port == 0
}

// Dedupe returns eps with duplicates removed, keeping first-seen order.
func Dedupe(eps []Endpoint) []Endpoint {
	seen := make(map[Endpoint]struct{}, len(eps))
	out := make([]Endpoint, 0, len(eps))
	for _, ep := range eps {
		if _, ok := seen[ep]; ok {
			continue
		}
		seen[ep] = struct{}{}
		out = append(out, ep)
	}
	return out
}

// Less orders endpoints by host, then port.
func Less(a, b Endpoint) bool {
	if a.Host != b.Host {
		return a.Host < b.Host
	}
	return a.Port < b.Port
}

// Sort sorts eps in place by Less.
func Sort(eps []Endpoint) {
	sort.Slice(eps, func(i, j int) bool { return Less(eps[i], eps[j]) })
}
