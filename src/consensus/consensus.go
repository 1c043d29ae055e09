// Package consensus decides how a Ledger reacts to what other agents send.
//
// A broadcast Transaction is merged only when it extends the local tip. Anything
// else means the views diverged, and the caller falls back to pulling the
// sender's chain, which replaces the local one only when it is strictly longer
// and valid on its own. Equal-length forks stay unresolved until one side grows.
package consensus

import (
	"github.com/mosaicnetworks/parley/src/ledger"
)

// Relation is how an incoming Transaction relates to a Ledger.
type Relation int

const (
	// Extends means the Transaction links to the tip.
	Extends Relation = iota
	// Known means the Transaction is already in the Ledger.
	Known
	// Diverges means the Transaction belongs to a chain the Ledger does not
	// follow: a fork, or entries that were missed.
	Diverges
)

// String ...
func (r Relation) String() string {
	switch r {
	case Extends:
		return "Extends"
	case Known:
		return "Known"
	case Diverges:
		return "Diverges"
	default:
		return "Unknown"
	}
}

// Classify returns the Relation of tx to l.
func Classify(l *ledger.Ledger, tx ledger.Transaction) Relation {
	if l.Contains(tx.Hash) {
		return Known
	}
	if tx.PrevHash == l.Tip().Hash {
		return Extends
	}
	return Diverges
}

// MergeTransaction appends tx if it directly extends the tip. It returns false,
// without touching l, for any other relation or if the append is rejected.
func MergeTransaction(l *ledger.Ledger, tx ledger.Transaction) bool {
	if tx.PrevHash != l.Tip().Hash {
		return false
	}
	return l.Append(tx) == nil
}

// ResolveConflict applies the longest-chain rule: l is replaced by received
// only if received is strictly longer and valid end-to-end.
func ResolveConflict(l *ledger.Ledger, received []ledger.Transaction) bool {
	if len(received) <= l.Len() {
		return false
	}
	return l.Replace(received) == nil
}

// SelectLongest returns the longest of several candidate chains, the first one
// on ties, or nil when there are none.
func SelectLongest(chains [][]ledger.Transaction) []ledger.Transaction {
	var best []ledger.Transaction
	for _, c := range chains {
		if len(c) > len(best) {
			best = c
		}
	}
	return best
}
