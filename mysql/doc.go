// Package mysql provides a MySQL 8.0+ change log for a store server shared by several lanes.
//
// The store uses:
//   - BIGINT AUTO_INCREMENT ids, ordered by (priority, id) for dispatch
//   - a companion <table>_inflight table as the durable crash marker
//   - a companion <table>_state table for the sync watermark
//   - an advisory GET_LOCK so one engine drains a table at a time
//
// The connection must be opened with parseTime=true. See Schema for the table definitions and
// Store.LockEngine for the single-engine guard.
package mysql
