package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-i2p/fdfspool/lib/testutil"
)

// TestDialer_Integration_I2PUnreachable opens a real SAM session and dials a
// destination nobody publishes.
func TestDialer_Integration_I2PUnreachable(t *testing.T) {
	testutil.RequireSAM(t)

	cfg := DefaultConfig()
	cfg.Network = NetworkI2P
	cfg.SAMAddress = testutil.DefaultSAMAddress
	cfg.TunnelName = "fdfspool-test"
	cfg.DialTimeout = 90 * time.Second

	d, err := New(cfg)
	require.NoError(t, err)
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	_, err = d.DialContext(ctx, "tcp", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.b32.i2p:22122")
	assert.Error(t, err)
}
