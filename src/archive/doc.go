// Package archive keeps an audit trail of a parley ledger in a Badger
// database.
//
// The archive is written by the node, in ledger order, every time an entry is
// appended or the chain is replaced by a longer one. Entries that drop out of
// the chain on a replacement are kept as orphans, so the branches that lost a
// fork can be inspected later with the "parley archive" command.
//
// The archive is never read back by the node; a restarted agent rebuilds its
// ledger from its peers.
package archive
