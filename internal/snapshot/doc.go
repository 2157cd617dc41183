// Package snapshot persists the cache's last published snapshot in SQLite
// so the hub can serve stale data straight after a restart.
package snapshot
