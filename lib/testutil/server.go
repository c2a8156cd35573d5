// Package testutil provides fakes for tests that need trackers, storage
// nodes or a dialer without a real cluster.
package testutil

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/go-i2p/fdfspool/lib/endpoint"
)

// Server is a TCP listener standing in for a tracker or storage node. It
// accepts connections and holds them open without reading.
type Server struct {
	listener net.Listener
	addr     string
	accepted atomic.Int64

	mu    sync.Mutex
	conns []net.Conn
}

// NewServer starts a server listening on a random loopback port.
func NewServer() (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	s := &Server{
		listener: ln,
		addr:     ln.Addr().String(),
	}
	go s.acceptLoop()
	return s, nil
}

// Addr returns the server's host:port.
func (s *Server) Addr() string {
	return s.addr
}

// Endpoint returns the server's address as an Endpoint.
func (s *Server) Endpoint() endpoint.Endpoint {
	return endpoint.MustParse(s.addr)
}

// Accepted returns the number of connections accepted so far.
func (s *Server) Accepted() int {
	return int(s.accepted.Load())
}

// DropClients closes every held connection, as a restarting peer would.
func (s *Server) DropClients() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// Close stops accepting and closes every held connection.
func (s *Server) Close() error {
	err := s.listener.Close()
	s.DropClients()
	return err
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.accepted.Add(1)
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
	}
}
