package peers

// Peer is an agent that this agent tries to reach on startup. NetAddr is a TCP
// address:port or, with libp2p, a full multiaddr ending with /p2p/<peer id>.
type Peer struct {
	NetAddr string
	Moniker string
}

// NewPeer creates a new Peer
func NewPeer(netAddr, moniker string) *Peer {
	return &Peer{
		NetAddr: netAddr,
		Moniker: moniker,
	}
}

// ExcludePeer is used to exclude a single peer from a list of peers.
func ExcludePeer(peers []*Peer, peer string) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.NetAddr != peer {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
