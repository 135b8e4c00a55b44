// Package docstore provides a SQLite-backed document store.
//
// Documents are JSON objects addressed by slash-separated paths
// ("posts/abc", "users/u1/posts/abc"). The last segment is the document id;
// everything before it is the collection.
//
// The store records:
//   - Documents: current data per path
//   - Changes: an append-only change log, one row per committed mutation,
//     holding the before and after images (written in the same transaction
//     as the mutation)
//   - Cursors: the last change seq each named consumer has handled
//   - Tasks: a durable at-least-once task table with leases and dedupe keys
//   - Processing state: the terminal status reported by long-running jobs
//   - Backfill pages: per-page results of backfill jobs, keyed by job and
//     offset, so a redelivered page is recognized
//
// # Transactions
//
// Write transactions start with BEGIN IMMEDIATE so two writers never
// deadlock on a lock upgrade. RunTransaction retries a transaction that hit
// SQLITE_BUSY or SQLITE_LOCKED according to an explicit RetryPolicy; once
// the budget is spent it fails with fault.CodeCommitFailed.
//
// The pool holds a single connection. Code running inside a transaction
// callback must use the Tx it was given; calling Store methods from inside
// the callback blocks forever.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package docstore
