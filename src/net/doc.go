// Package net implements different transports to communicate between parley
// agents.
//
// A Transport offers two primitives: topic based publish/subscribe, used to
// gossip new ledger entries, and protocol streams, used to pull whole chains,
// fingerprints and profiles from a given peer. It also reports peers being
// identified or lost through PeerEvents. There are three implementations:
//
// - Inmem: in-memory transport used only for testing
//
// - TCP: communicating over plain TCP
//
// - Libp2p: a libp2p host with gossipsub topics
//
// TCP
//
// The TCP transport is suitable when agents are in the same local network, or
// when users are able to configure their connections appropriately to avoid NAT
// issues. Peers are static: the transport says hello to a list of bootstrap
// addresses (from the command line or peers.json) until they answer, and
// publishing fans a message out to every identified peer.
//
// To use a TCP transport, set the following configuration options in the parley
// Config object (cf config package):
//
// - BindAddr: the IP:PORT of the TCP socket that parley binds to.
//
// - AdvertiseAddr: (optional) The address that is advertised to other agents.
// If BindAddr is a local address not reachable by other peers, it is usefull to
// set AdvertiseAddr to the reachable public address.
//
// Libp2p
//
// The libp2p transport addresses peers by their peer ID. Bootstrap addresses
// are full multiaddrs such as /ip4/10.0.0.1/tcp/1337/p2p/<peer id>, and agents
// on the same local network can also find each other with mdns. The identity
// of the host is the key written by the keygen command.
package net
