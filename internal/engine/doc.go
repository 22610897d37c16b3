// Package engine is the incremental ingestion loop.
//
// A run scans repositories one after another. For each repository the loop
// reads its watermark W (the newest event id already processed), then pulls
// event pages newest first and handles every event until one of:
//
//   - an empty page (the end of the stream)
//   - the per-repository cap (WithMaxEvents, DefaultMaxEvents)
//   - the run-wide Governor reporting exhaustion
//   - an event id below W
//
// Each new event is classified by a Classifier, outside any transaction.
// The loop then claims the event id in the store: the claim and the fact
// share one transaction, so a Discard leaves nothing behind and a second
// process working the same store never derives the same event twice.
//
// When the scan stops cleanly the watermark moves to the greatest id seen.
// A scan that fails keeps the old watermark and returns a *RunError.
//
// RunContext carries the run id, governor and logger for one run. It is
// passed explicitly to every collaborator; there is no global run state.
package engine
