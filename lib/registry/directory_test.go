package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-i2p/fdfspool/lib/endpoint"
	apperrors "github.com/go-i2p/fdfspool/lib/errors"
	"github.com/go-i2p/fdfspool/lib/testutil"
)

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	d := NewDirectory(&testutil.Dialer{}, DefaultOptions())
	t.Cleanup(func() { d.Close() })
	return d
}

func TestDirectoryGetBeforeInitialize(t *testing.T) {
	d := newTestDirectory(t)

	r, err := d.Get("main")
	require.Error(t, err)
	assert.Nil(t, r)
	assert.ErrorIs(t, err, apperrors.ErrRegistryUnknownClient)
	assert.True(t, apperrors.IsNotFound(err))
	assert.True(t, apperrors.IsConfiguration(err))

	assert.Empty(t, d.IDs(), "Get must not create a registry")
}

func TestDirectoryInitializeIsIdempotent(t *testing.T) {
	d := newTestDirectory(t)

	require.NoError(t, d.Initialize("main", []endpoint.Endpoint{epA, epB}))
	first, err := d.Get("main")
	require.NoError(t, err)

	require.NoError(t, d.Initialize("main", []endpoint.Endpoint{epC}))
	second, err := d.Get("main")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, []endpoint.Endpoint{epA, epB}, second.Coordinators())
}

func TestDirectoryConcurrentInitialize(t *testing.T) {
	d := newTestDirectory(t)

	const n = 32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			assert.NoError(t, d.Initialize("main", []endpoint.Endpoint{epA}))
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, []string{"main"}, d.IDs())
}

func TestDirectoryInitializeInvalid(t *testing.T) {
	d := newTestDirectory(t)

	err := d.Initialize("", []endpoint.Endpoint{epA})
	assert.ErrorIs(t, err, apperrors.ErrRegistryInvalidClient)
	assert.True(t, apperrors.IsConfiguration(err))

	err = d.Initialize("main", nil)
	assert.ErrorIs(t, err, apperrors.ErrRegistryNoCoordinators)
	assert.True(t, apperrors.IsConfiguration(err))

	assert.Empty(t, d.IDs())
}

func TestDirectoryIndependentClients(t *testing.T) {
	d := newTestDirectory(t)

	require.NoError(t, d.Initialize("east", []endpoint.Endpoint{epA}))
	require.NoError(t, d.Initialize("west", []endpoint.Endpoint{epB}))
	assert.Equal(t, []string{"east", "west"}, d.IDs())

	east, err := d.GetCoordinatorConnection(context.Background(), "east")
	require.NoError(t, err)
	defer east.Release(true)
	west, err := d.GetCoordinatorConnection(context.Background(), "west")
	require.NoError(t, err)
	defer west.Release(true)

	assert.Equal(t, epA, east.Endpoint())
	assert.Equal(t, epB, west.Endpoint())

	re, _ := d.Get("east")
	rw, _ := d.Get("west")
	assert.NotSame(t, re.DataPool(epX), rw.DataPool(epX))
}

func TestDirectoryGetDataConnection(t *testing.T) {
	d := newTestDirectory(t)

	_, err := d.GetDataConnection(context.Background(), "main", epX)
	assert.ErrorIs(t, err, apperrors.ErrRegistryUnknownClient)
	_, err = d.GetCoordinatorConnection(context.Background(), "main")
	assert.ErrorIs(t, err, apperrors.ErrRegistryUnknownClient)

	require.NoError(t, d.Initialize("main", []endpoint.Endpoint{epA}))
	conn, err := d.GetDataConnection(context.Background(), "main", epX)
	require.NoError(t, err)
	assert.Equal(t, epX, conn.Endpoint())

	stats := d.Stats()
	require.Contains(t, stats, "main")
	require.Len(t, stats["main"].Data, 1)
	assert.Equal(t, 1, stats["main"].Data[0].NumInUse)

	d.UpdateMetrics()
	conn.Release(true)
}

func TestDirectoryClose(t *testing.T) {
	d := NewDirectory(&testutil.Dialer{}, DefaultOptions())
	require.NoError(t, d.Initialize("main", []endpoint.Endpoint{epA}))

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	err := d.Initialize("other", []endpoint.Endpoint{epA})
	assert.True(t, apperrors.IsClosed(err))

	_, err = d.GetCoordinatorConnection(context.Background(), "main")
	assert.ErrorIs(t, err, apperrors.ErrPoolClosed)
}
