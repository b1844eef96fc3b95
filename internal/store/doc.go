// Package store is the hierarchical key/value property store that backs
// notification persistence.
//
// Keys are dot-separated paths ("a.b.c"). Values are strings; typed reads go
// through GetBool/GetInt/GetLong which fall back to a default on absence or
// parse failure.
//
// Drivers:
//   - "memory": process-local map (default)
//   - "file":   JSON snapshot + JSON Lines journal, compacted periodically
//   - "sqlite": single table in a SQLite database (modernc.org/sqlite)
package store
