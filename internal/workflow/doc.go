// Package workflow owns the per-record step state machine.
//
// Ownership boundary:
// - static step tables for the approve and extract workflows
// - control lookup by label with bounded retries
// - per-step diagnostic snapshots
// - the results-table scrape that closes the extract workflow
//
// Lifecycle order:
// - navigate -> settle -> ready -> steps -> scrape (extract only)
//
// - a step advances only once its await control has appeared.
//
// - snapshots are taken whether the step succeeded or failed.
//
// Workflow does not own batching or output files.
package workflow
