// Package checkpoint provides functionality for saving and resuming crawl progress.
//
// A checkpoint lets an interrupted run restart pagination at the page it
// stopped on instead of re-listing the whole creator. It tracks:
//   - The next page offset to request
//   - Pages fetched and posts seen so far
//   - Per-outcome counters for display on resume
//
// Checkpoints live next to the ledger in the output root's state directory,
// one file per target:
//
//	<output root>/.kemonograb/checkpoint-<target>.json
//
// Files are saved atomically (temp file, sync, rename) and deleted on clean
// completion. The ledger stays authoritative for which individual files
// completed; resuming from a stale or missing checkpoint is always safe,
// just slower.
package checkpoint
