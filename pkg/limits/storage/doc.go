// Package storage persists admission-control block entries.
//
// Blocks normally live only in memory. When a persist path is configured,
// the SQLite backend keeps active blocks across restarts: the guard saves
// a block when an IP breaches a threshold, restores unexpired blocks at
// start, and prunes expired rows during its periodic sweep.
//
//   - Memory: in-process map, no persistence (tests and default)
//   - SQLite: file-based persistence through the pure-Go modernc driver
//
// # Usage
//
//	backend, err := storage.NewSQLiteBackend("/var/lib/gatehouse/blocks.db")
//	if err != nil {
//	    return err
//	}
//	defer backend.Close()
//
//	err = backend.Save(ctx, &storage.Block{
//	    IP:           "203.0.113.7",
//	    BlockedUntil: time.Now().Add(30 * time.Minute),
//	    Reason:       "burst",
//	})
//
// # Thread Safety
//
// All backends are safe for concurrent use.
package storage
