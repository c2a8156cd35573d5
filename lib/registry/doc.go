// Package registry routes connection requests to per-endpoint pools.
//
// A Registry belongs to one client configuration. It holds a fixed pool for
// each tracker, picked uniformly at random on every CoordinatorConn call,
// and creates a storage pool the first time an endpoint is asked for.
//
// A Directory maps client identifiers to registries so a process can talk
// to several clusters at once:
//
//	dir := registry.NewDirectory(dialer, registry.DefaultOptions())
//	defer dir.Close()
//
//	if err := dir.Initialize("main", trackers); err != nil {
//		return err
//	}
//	conn, err := dir.GetCoordinatorConnection(ctx, "main")
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
// Initialize is first-writer-wins: a second call for a known identifier
// keeps the original registry. Get never creates a registry.
package registry
