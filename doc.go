// Package changesync provides an offline change-synchronization engine for local-first clients.
//
// Typical flow:
//  1. The domain layer records every committed mutation as a Change through TrackChange or
//     CreateTransaction. The change log store persists it as pending and the Notifier fires.
//  2. A Service selects eligible changes in (priority, id) order, groups them by transaction id and
//     dispatches every group through the Registry to per-entity handlers.
//  3. A group is marked success when every member was accepted, failed when any member was rejected
//     or retries are exhausted, and retry (with backoff) otherwise.
//
// Changes that were mid-dispatch when the process died are reset to pending by the RecoveryGuard on
// the next start. For storage backends see the sqlite and mysql packages; for the REST transport see
// the httpapi package.
package changesync
