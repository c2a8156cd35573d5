package transport

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/go-i2p/i2pkeys"
	"github.com/go-i2p/onramp"

	apperrors "github.com/go-i2p/fdfspool/lib/errors"
)

// garlicSession is the part of *onramp.Garlic the dialer uses.
type garlicSession interface {
	Dial(network, addr string) (net.Conn, error)
	Close() error
}

// GarlicDialer reaches endpoints whose host is an I2P destination through
// a SAM bridge. The SAM session is opened on the first dial and shared by
// every connection until Close.
type GarlicDialer struct {
	mu sync.Mutex

	name    string
	samAddr string
	options []string

	session garlicSession
	open    func(name, samAddr string, options []string) (garlicSession, error)
	closed  bool
}

// NewGarlicDialer creates a dialer using the given tunnel name and SAM
// bridge. If options is empty, onramp.OPT_DEFAULTS is used.
func NewGarlicDialer(name, samAddr string, options []string) *GarlicDialer {
	return &GarlicDialer{
		name:    name,
		samAddr: samAddr,
		options: options,
		open:    openGarlic,
	}
}

func openGarlic(name, samAddr string, options []string) (garlicSession, error) {
	return onramp.NewGarlic(name, samAddr, options)
}

// ValidateI2PHost checks that host names an I2P destination: a .i2p name
// (including .b32.i2p) or a full base64 destination.
func ValidateI2PHost(host string) error {
	if strings.HasSuffix(host, ".i2p") {
		return nil
	}
	if _, err := i2pkeys.NewI2PAddrFromString(host); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrTransportNotI2P, host)
	}
	return nil
}

func (g *GarlicDialer) sessionLocked() (garlicSession, error) {
	if g.closed {
		return nil, fmt.Errorf("transport: i2p session %w", apperrors.ErrClosed)
	}
	if g.session != nil {
		return g.session, nil
	}

	options := g.options
	if len(options) == 0 {
		options = onramp.OPT_DEFAULTS
	}

	log.WithField("name", g.name).WithField("sam", g.samAddr).Debug("opening i2p session")
	s, err := g.open(g.name, g.samAddr, options)
	if err != nil {
		log.WithError(err).Error("failed to open i2p session")
		return nil, err
	}
	g.session = s
	return s, nil
}

// DialContext dials the I2P destination named by address's host. The port
// is ignored; I2P streaming addresses destinations, not ports. The SAM
// dial does not take a context, so a canceled ctx abandons the attempt and
// closes the connection if it completes later.
func (g *GarlicDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host := address
	if h, _, err := net.SplitHostPort(address); err == nil {
		host = h
	}
	if err := ValidateI2PHost(host); err != nil {
		return nil, err
	}

	g.mu.Lock()
	s, err := g.sessionLocked()
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}

	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		c, err := s.Dial("tcp", host)
		done <- result{c, err}
	}()

	select {
	case r := <-done:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Close closes the SAM session. Connections already handed out are not
// tracked here; their pools close them.
func (g *GarlicDialer) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true

	if g.session == nil {
		return nil
	}
	log.WithField("name", g.name).Debug("closing i2p session")
	return g.session.Close()
}
