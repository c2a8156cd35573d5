package testutil

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestServer(t *testing.T) {
	srv, err := NewServer()
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	defer srv.Close()

	if srv.Endpoint().String() != srv.Addr() {
		t.Errorf("Endpoint() = %s, want %s", srv.Endpoint(), srv.Addr())
	}

	conn, err := net.DialTimeout("tcp", srv.Addr(), time.Second)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for srv.Accepted() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("Accepted() = %d, want 1", srv.Accepted())
		}
		time.Sleep(5 * time.Millisecond)
	}

	srv.DropClients()
	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Error("read should fail after the server dropped the connection")
	}
}

func TestServerClose(t *testing.T) {
	srv, err := NewServer()
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	addr := srv.Addr()
	if err := srv.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := net.DialTimeout("tcp", addr, 100*time.Millisecond); err == nil {
		t.Error("dial should fail after Close")
	}
}

func TestDialer(t *testing.T) {
	var d Dialer

	conn, err := d.DialContext(context.Background(), "tcp", "a:1")
	if err != nil {
		t.Fatalf("DialContext failed: %v", err)
	}
	conn.Close()

	d.SetFailing(true)
	if _, err := d.DialContext(context.Background(), "tcp", "a:1"); !errors.Is(err, ErrDialRefused) {
		t.Errorf("DialContext error = %v, want ErrDialRefused", err)
	}

	if got := d.Dials("a:1"); got != 2 {
		t.Errorf("Dials(a:1) = %d, want 2", got)
	}
	if got := d.Dials("b:1"); got != 0 {
		t.Errorf("Dials(b:1) = %d, want 0", got)
	}
}

func TestDialerDelayHonorsContext(t *testing.T) {
	var d Dialer
	d.SetDelay(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := d.DialContext(ctx, "tcp", "a:1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("DialContext error = %v, want DeadlineExceeded", err)
	}
}

func TestCheckSAMUnavailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if err := CheckSAM(addr); err == nil {
		t.Error("CheckSAM should fail when nothing is listening")
	}
}
