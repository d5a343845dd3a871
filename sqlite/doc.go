// Package sqlite provides the local SQLite change log used by a point-of-sale terminal.
//
// The store uses:
//   - WAL journaling with NORMAL synchronous mode and a busy timeout
//   - a single connection, SQLite allows one writer at a time
//   - AUTOINCREMENT ids so change ids are never reused after cleanup
//   - a companion <table>_inflight table as the durable crash marker
//   - a companion <table>_state table for the sync watermark
//
// Times are stored as unix milliseconds. Schema changes are tracked with PRAGMA user_version.
package sqlite
