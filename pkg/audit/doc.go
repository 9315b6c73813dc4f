// Package audit records one row per gateway request in a SQLite database.
//
// Records are written asynchronously through a bounded buffer so the
// request path never blocks on storage; overflow drops records and counts
// the drops. A cron-scheduled pruner enforces the retention policy.
package audit
