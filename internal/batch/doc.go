// Package batch owns one pass over the reconciled work list.
//
// Ownership boundary:
// - strict in-order, one-at-a-time record processing
// - per-record failure isolation
// - dry-run planning without page mutations
// - the one-row-per-attempt guarantee of the extract aggregate
//
// Batch does not own the browser session; it borrows the sequencer's driver
// for the length of Run.
package batch
