// Package agent assembles a parley agent from its configuration.
//
// An Agent owns a transport (TCP or libp2p), an optional Badger archive, a
// Node that keeps the ledger in sync with the other agents, an optional HTTP
// service, and a Speaker. The Speaker takes the turns of the agent in the
// conversation: whenever the ledger changes, or when nothing happened for a
// while, it asks its Oracle whether to speak, and submits the answer to the
// admission controller of the Node like any other consumption.
package agent
