// Package progress owns the durable cursor into the remote dataset.
//
// A Snapshot is the single source of truth for resumption: the 1-based
// index of the last record attempted, the provider's declared total, and
// cumulative counters. The Store commits snapshots by writing a temp file,
// fsyncing, and renaming over the old one, so a crash at any point leaves
// a readable snapshot.
package progress
