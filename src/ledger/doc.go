// Package ledger implements the hash-chained ledger that parley agents
// replicate to decide who may speak, and how much.
//
// Each entry (Transaction) consumes an amount of a shared capacity. The budget
// is a sliding window: an entry counts against the capacity until it is Window
// old, then the capacity comes back by itself. A chain is valid when every
// entry links to its predecessor, carries the hash of its own fields, and keeps
// the window sum at or below the capacity at its own timestamp.
//
// Appends follow a try-commit, verify, rollback pattern: the entry is appended,
// the whole chain is revalidated, and the entry is popped again if the chain no
// longer holds.
package ledger
