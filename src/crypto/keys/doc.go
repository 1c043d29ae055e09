// Package keys manages the identity key of a parley agent.
//
// The key is only used to derive a stable libp2p peer ID across restarts. Ledger
// entries are not signed.
package keys
