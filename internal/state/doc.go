// Package state persists each tracker's dedup ledger: the ids already
// delivered (a bounded recency window, not an audit log) and the time of the
// last completed cycle.
//
// Drivers:
//   - "file" (default): one JSON file per tracker, the interchange format
//     other tools can read and seed
//   - "sqlite": single database file (requires the sqlite build tag)
package state
