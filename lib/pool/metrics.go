package pool

import "github.com/go-i2p/fdfspool/lib/metrics"

// Pool utilization metrics, aggregated over every endpoint pool in the process.
var (
	// PoolConnectionsMax is the summed capacity of the reported pools.
	PoolConnectionsMax = metrics.NewGauge(
		"fdfspool_pool_connections_max",
		"Summed maximum number of connections across pools",
	)
	// PoolConnectionsOpen is the current number of open connections.
	PoolConnectionsOpen = metrics.NewGauge(
		"fdfspool_pool_connections_open",
		"Current number of open connections",
	)
	// PoolConnectionsIdle is the current number of idle connections.
	PoolConnectionsIdle = metrics.NewGauge(
		"fdfspool_pool_connections_idle",
		"Current number of idle connections in pools",
	)
	// PoolConnectionsInUse is the number of connections currently checked out.
	PoolConnectionsInUse = metrics.NewGauge(
		"fdfspool_pool_connections_in_use",
		"Number of connections currently checked out",
	)
	// PoolWaiters is the number of callers blocked in Acquire.
	PoolWaiters = metrics.NewGauge(
		"fdfspool_pool_waiters",
		"Number of callers waiting for a connection",
	)
	PoolAcquireTotal = metrics.NewCounter(
		"fdfspool_pool_acquire_total",
		"Total number of connection acquire attempts",
	)
	PoolAcquireSuccessTotal = metrics.NewCounter(
		"fdfspool_pool_acquire_success_total",
		"Total number of successful connection acquires",
	)
	PoolAcquireFailedTotal = metrics.NewCounter(
		"fdfspool_pool_acquire_failed_total",
		"Total number of failed connection acquires",
	)
	PoolAcquireTimeoutsTotal = metrics.NewCounter(
		"fdfspool_pool_acquire_timeouts_total",
		"Total number of acquires that timed out waiting for a connection",
	)
	PoolAcquireCanceledTotal = metrics.NewCounter(
		"fdfspool_pool_acquire_canceled_total",
		"Total number of acquires abandoned by the caller",
	)
	PoolDialFailuresTotal = metrics.NewCounter(
		"fdfspool_pool_dial_failures_total",
		"Total number of failed connection attempts",
	)
	PoolReleaseTotal = metrics.NewCounter(
		"fdfspool_pool_release_total",
		"Total number of connection releases",
	)
	PoolDiscardedTotal = metrics.NewCounter(
		"fdfspool_pool_discarded_total",
		"Total number of connections destroyed on release",
	)
	// PoolAcquireLatency tracks time spent in Acquire, including dialing.
	PoolAcquireLatency = metrics.NewHistogram(
		"fdfspool_pool_acquire_duration_seconds",
		"Time spent acquiring a connection from a pool",
		metrics.DefaultLatencyBuckets,
	)
)

// UpdateMetrics sets the utilization gauges to the sum of the given stats.
func UpdateMetrics(stats ...Stats) {
	var capSum, open, idle, inUse, waiting int64
	for _, s := range stats {
		capSum += int64(s.Capacity)
		open += int64(s.NumOpen)
		idle += int64(s.NumIdle)
		inUse += int64(s.NumInUse)
		waiting += int64(s.NumWaiting)
	}
	PoolConnectionsMax.Set(capSum)
	PoolConnectionsOpen.Set(open)
	PoolConnectionsIdle.Set(idle)
	PoolConnectionsInUse.Set(inUse)
	PoolWaiters.Set(waiting)
}
