package testutil

import (
	"fmt"
	"net"
	"testing"
	"time"
)

const (
	// DefaultSAMAddress is the default SAM bridge address for tests.
	DefaultSAMAddress = "127.0.0.1:7656"

	// DefaultDialTimeout is the timeout for SAM connectivity checks.
	DefaultDialTimeout = 2 * time.Second
)

// CheckSAM returns an error if no SAM bridge answers at addr.
func CheckSAM(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, DefaultDialTimeout)
	if err != nil {
		return fmt.Errorf("SAM bridge unavailable at %s: %w\n"+
			"I2P tests require a running I2P router with SAM enabled.", addr, err)
	}
	conn.Close()
	return nil
}

// RequireSAM skips the test when no SAM bridge is reachable at the default
// address or when running with -short.
func RequireSAM(t testing.TB) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping I2P test in short mode")
	}
	if err := CheckSAM(DefaultSAMAddress); err != nil {
		t.Skip(err)
	}
}
