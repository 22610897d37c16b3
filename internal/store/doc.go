// Package store provides SQLite-backed durable storage for facts.
//
// Every record lives in a single facts table:
//   - Derived facts: one per GitHub event at most (UNIQUE event_id)
//   - Watermarks: one events-were-scanned fact per repository
//   - Judge facts: label-was-attached and friends, without event_id
//
// # Claims
//
// The ingestion loop claims an event by inserting a placeholder row with
// INSERT ... ON CONFLICT(event_id) DO NOTHING inside a transaction. Zero rows
// affected means another run holds or committed the event. The placeholder
// is either filled and committed, or rolled back with the transaction, so a
// discarded event leaves nothing behind.
//
// Transactions start with BEGIN IMMEDIATE (_txlock=immediate), so a second
// process blocks on an in-flight claim until busy_timeout and then observes
// the committed row.
//
// # Deterministic Query Results
//
// All reads go through querysql, which appends "id ASC" to every ORDER BY.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - Single connection per Store: never issue a Store read while holding a Txn
package store
