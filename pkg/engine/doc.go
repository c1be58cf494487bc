// Package engine orchestrates resumable processing sessions over the
// paginated remote dataset.
//
// A session is the larger of the two batch granularities: it strings
// together fixed-size remote-fetch pages until its record budget or the
// dataset is exhausted. The durable cursor advances page by page, with a
// snapshot commit after every page, so a crash, network failure, or
// manual stop is resumable at page granularity. Sessions end in one of
// three terminal states: Completed (dataset exhausted), Budgeted (record
// ceiling reached, more data remains), or Failed (structural error,
// surfaced to the invoker with the checkpoint intact).
package engine
