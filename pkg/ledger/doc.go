// Package ledger provides the durable record of completed downloads.
//
// Each finished transfer is recorded as a (creator, post, filename) triple
// in an append-only JSON-lines file under the output root:
//
//	<output root>/.kemonograb/ledger.jsonl
//
// The scheduler consults the ledger before dispatching a file and skips
// triples that already completed in this or any earlier run. Records are
// synced to disk before a success is reported, so an interrupted run never
// claims a download it did not durably record.
//
// Reads are lock-free and safe from any number of workers; appends are
// serialized internally. A record is never rewritten: retracting one (for
// example when the local file went missing) appends an invalidation record
// instead.
package ledger
