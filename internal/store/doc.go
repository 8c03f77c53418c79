// Package store reads and writes one side's sync bookkeeping.
//
// Each side carries a change log, appended to by capture triggers on every
// monitored table. The edge additionally carries the watermark history; the
// hub carries the single-row sync lock. A Store wraps the database handle
// and exposes:
//
//   - the opaque Query and Exec capabilities, failing with database errors
//   - the change feed (RecordsAfter, LatestID, RewriteOldValues)
//   - watermark load and save on the edge
//   - atomic lock acquire and release on the hub
//   - Replay, which runs a rendered statement under the timestamp marker
//   - table, column and trigger introspection
//
// SQLite and MySQL are supported through package dialect.
package store
