package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-i2p/fdfspool/lib/endpoint"
	apperrors "github.com/go-i2p/fdfspool/lib/errors"
	"github.com/go-i2p/fdfspool/lib/pool"
	"github.com/go-i2p/fdfspool/lib/testutil"
)

var (
	epA = endpoint.MustParse("10.0.0.1:22122")
	epB = endpoint.MustParse("10.0.0.2:22122")
	epC = endpoint.MustParse("10.0.0.3:22122")
	epX = endpoint.MustParse("10.0.1.1:23000")
	epY = endpoint.MustParse("10.0.1.2:23000")
)

func newTestRegistry(t *testing.T, coordinators []endpoint.Endpoint, d pool.Dialer, opts Options) *Registry {
	t.Helper()
	r := New(coordinators, d, opts)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestNewAppliesDefaults(t *testing.T) {
	r := newTestRegistry(t, []endpoint.Endpoint{epA}, &testutil.Dialer{}, Options{})

	p, ok := r.CoordinatorPool(epA)
	require.True(t, ok)
	assert.Equal(t, DefaultCoordinatorCapacity, p.Capacity())
	assert.Equal(t, DefaultDataCapacity, r.DataPool(epX).Capacity())
}

func TestNewDedupesCoordinators(t *testing.T) {
	r := newTestRegistry(t, []endpoint.Endpoint{epA, epB, epA, epC, epB}, &testutil.Dialer{}, DefaultOptions())

	assert.Equal(t, []endpoint.Endpoint{epA, epB, epC}, r.Coordinators())
	assert.Len(t, r.Stats().Coordinators, 3)
}

func TestCoordinatorsReturnsCopy(t *testing.T) {
	r := newTestRegistry(t, []endpoint.Endpoint{epA, epB}, &testutil.Dialer{}, DefaultOptions())

	eps := r.Coordinators()
	eps[0] = epC
	assert.Equal(t, epA, r.Coordinators()[0])
}

func TestCoordinatorConnNoCoordinators(t *testing.T) {
	r := newTestRegistry(t, nil, &testutil.Dialer{}, DefaultOptions())

	_, err := r.CoordinatorConn(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRegistryNoCoordinators)
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestCoordinatorConnUsesPick(t *testing.T) {
	r := newTestRegistry(t, []endpoint.Endpoint{epA, epB, epC}, &testutil.Dialer{}, DefaultOptions())
	r.pick = func(n int) int { return n - 1 }

	conn, err := r.CoordinatorConn(context.Background())
	require.NoError(t, err)
	defer conn.Release(true)
	assert.Equal(t, epC, conn.Endpoint())
}

func TestCoordinatorSelectionDistribution(t *testing.T) {
	d := &testutil.Dialer{}
	r := newTestRegistry(t, []endpoint.Endpoint{epA, epB, epC}, d, DefaultOptions())

	const draws = 1000
	counts := make(map[endpoint.Endpoint]int)
	for i := 0; i < draws; i++ {
		conn, err := r.CoordinatorConn(context.Background())
		require.NoError(t, err)
		counts[conn.Endpoint()]++
		conn.Release(true)
	}

	require.Len(t, counts, 3)
	for _, ep := range []endpoint.Endpoint{epA, epB, epC} {
		// Expected 333 with a standard deviation near 15.
		assert.Greater(t, counts[ep], 250, "endpoint %s starved", ep)
		assert.Less(t, counts[ep], 420, "endpoint %s favored", ep)
	}

	// Released connections are reused, so each tracker is dialed once.
	for _, ep := range []endpoint.Endpoint{epA, epB, epC} {
		assert.Equal(t, 1, d.Dials(ep.String()))
	}
}

func TestDataPoolConcurrentFirstAccess(t *testing.T) {
	r := newTestRegistry(t, []endpoint.Endpoint{epA}, &testutil.Dialer{}, DefaultOptions())

	const n = 64
	pools := make([]*pool.Pool, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			pools[i] = r.DataPool(epX)
		}(i)
	}
	close(start)
	wg.Wait()

	for _, p := range pools {
		assert.Same(t, pools[0], p)
	}
	assert.Equal(t, []endpoint.Endpoint{epX}, r.DataEndpoints())
}

func TestLookupDataPoolDoesNotCreate(t *testing.T) {
	r := newTestRegistry(t, []endpoint.Endpoint{epA}, &testutil.Dialer{}, DefaultOptions())

	_, ok := r.LookupDataPool(epX)
	assert.False(t, ok)
	assert.Empty(t, r.DataEndpoints())

	created := r.DataPool(epX)
	p, ok := r.LookupDataPool(epX)
	require.True(t, ok)
	assert.Same(t, created, p)
}

func TestDataConnDialFailureKeepsSlot(t *testing.T) {
	d := &testutil.Dialer{}
	opts := DefaultOptions()
	opts.DataCapacity = 1
	r := newTestRegistry(t, []endpoint.Endpoint{epA}, d, opts)

	d.SetFailing(true)
	_, err := r.DataConn(context.Background(), epX)
	require.Error(t, err)
	assert.True(t, apperrors.IsConnectivity(err))

	p, _ := r.LookupDataPool(epX)
	assert.Equal(t, 0, p.Stats().NumOpen)

	d.SetFailing(false)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	conn, err := r.DataConn(ctx, epX)
	require.NoError(t, err, "the failed dial must not leak the only slot")
	assert.Equal(t, epX, conn.Endpoint())
	conn.Release(true)
}

func TestDataPoolsDoNotBlockEachOther(t *testing.T) {
	opts := DefaultOptions()
	opts.DataCapacity = 1
	r := newTestRegistry(t, []endpoint.Endpoint{epA}, &testutil.Dialer{}, opts)

	held, err := r.DataConn(context.Background(), epX)
	require.NoError(t, err)
	defer held.Release(true)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	conn, err := r.DataConn(ctx, epY)
	require.NoError(t, err, "an exhausted pool for one endpoint must not block another")
	conn.Release(true)

	_, err = r.DataConn(ctx, epX)
	assert.True(t, apperrors.IsTimeout(err))
}

func TestRegistryStats(t *testing.T) {
	r := newTestRegistry(t, []endpoint.Endpoint{epB, epA}, &testutil.Dialer{}, DefaultOptions())

	conn, err := r.DataConn(context.Background(), epY)
	require.NoError(t, err)
	r.DataPool(epX)

	s := r.Stats()
	require.Len(t, s.Coordinators, 2)
	assert.Equal(t, epB.String(), s.Coordinators[0].Endpoint)
	require.Len(t, s.Data, 2)
	assert.Equal(t, epX.String(), s.Data[0].Endpoint)
	assert.Equal(t, epY.String(), s.Data[1].Endpoint)
	assert.Equal(t, 1, s.Data[1].NumInUse)
	assert.Len(t, s.All(), 4)

	conn.Release(true)
	assert.Equal(t, 1, r.Stats().Data[1].NumIdle)
}

func TestRegistryClose(t *testing.T) {
	r := New([]endpoint.Endpoint{epA}, &testutil.Dialer{}, DefaultOptions())

	conn, err := r.DataConn(context.Background(), epX)
	require.NoError(t, err)
	conn.Release(true)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err = r.DataConn(context.Background(), epX)
	assert.ErrorIs(t, err, apperrors.ErrPoolClosed)
	_, err = r.CoordinatorConn(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrPoolClosed)
}
