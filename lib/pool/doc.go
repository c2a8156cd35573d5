// Package pool provides a bounded connection pool for a single tracker or
// storage endpoint.
//
// The pool supports:
//   - A hard per-endpoint capacity covering idle, checked-out and dialing connections
//   - Lazy connection establishment on Acquire
//   - FIFO waiting when the pool is exhausted, with timeout and cancellation
//   - Caller-reported liveness on Release
//   - Optional lazy eviction of connections idle longer than MaxIdleTime
//   - Metrics for pool utilization
//
// # Basic Usage
//
//	cfg := pool.DefaultConfig()
//	cfg.Capacity = 20
//	cfg.AcquireTimeout = 5 * time.Second
//
//	p := pool.New(endpoint.MustParse("10.0.0.7:23000"), &net.Dialer{}, cfg)
//	defer p.Close()
//
//	conn, err := p.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	if err := doRequest(conn); err != nil {
//	    conn.Release(false) // protocol state unknown, destroy it
//	    return err
//	}
//	conn.Release(true)
//
// # Liveness
//
// Idle connections are not probed. The caller decides on release whether a
// connection can be reused: Release(conn, false), Conn.Discard, or a prior
// Conn.MarkDead destroy the transport and free its slot for the next
// caller. The pool never replaces a destroyed connection on its own.
//
// # Metrics
//
// Aggregated pool metrics are registered with the metrics package:
//   - fdfspool_pool_connections_max / _open / _idle / _in_use
//   - fdfspool_pool_waiters
//   - fdfspool_pool_acquire_total, _success_total, _failed_total
//   - fdfspool_pool_acquire_timeouts_total, _canceled_total
//   - fdfspool_pool_dial_failures_total
//   - fdfspool_pool_release_total, fdfspool_pool_discarded_total
//   - fdfspool_pool_acquire_duration_seconds
package pool
