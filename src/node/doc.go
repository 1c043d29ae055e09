// Package node implements the reactive component of a parley agent.
//
// This is the part of parley that keeps the local Ledger in line with the
// other agents'. The Core wraps the Ledger and is its only writer. Node
// implements a state machine where the states are defined in the state
// package.
//
// Gossip
//
// Every entry an agent appends through the Admission controller is published
// on the "transaction" topic of the transport. Receivers merge it when it
// extends their tip. When it does not, the views diverged (a fork, or entries
// that were missed) and the receiver pulls the whole chain of the sender over
// the /parley/chain/1.0.0 protocol. The pulled chain replaces the local one
// only if it is strictly longer and valid on its own, so all agents converge
// on the longest valid chain.
//
// Pulls are also started when a peer is identified, and on every tick of the
// ControlTimer, which picks a random peer. These pulls start with a probe of
// the peer's fingerprint (/parley/fingerprint/1.0.0), the Merkle root of its
// chain, and stop there when it matches the local one.
//
// CatchingUp
//
// A node starts in the CatchingUp state. It fetches the chains of all the
// peers it knows concurrently, adopts the longest one, and enters the
// Gossiping state.
//
// Companions
//
// On identification, agents also exchange their Profile over
// /parley/profile/1.0.0. The profiles of connected peers are kept in the
// Companions registry and removed when the peer disconnects.
package node
