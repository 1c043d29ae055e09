// Package peers defines the concept of a parley peer and implements functions
// to manage collections of peers.
//
// A parley peer is another agent of the same conversation. Peers are identified
// by their network address, and optionaly a moniker which is a non-unique
// user-friendly name. With the TCP transport, the address is an ip:port pair.
// With libp2p, it is a full multiaddr ending with /p2p/<peer id>.
//
// Upon starting up, parley looks for a peers.json file in its data directory.
// It lists the peers that the agent should attempt to connect to, on top of
// the ones passed with the --bootstrap flag. The file is optional; with libp2p
// and mDNS, agents on the same network find each other without it.
package peers
