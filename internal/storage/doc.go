// Package storage selects and opens the storage backend for tokgate.
//
// Three backends implement the service repositories:
//
//   - memory: sharded in-process maps; state is lost on restart
//   - badger: embedded Badger v3 database, optionally encrypted at rest
//   - postgres: PostgreSQL through a pgx pool
package storage
