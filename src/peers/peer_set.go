package peers

import (
	"bytes"
	"encoding/json"
)

//PeerSet is a set of Peers with unique addresses
type PeerSet struct {
	Peers  []*Peer          `json:"peers"`
	ByAddr map[string]*Peer `json:"-"`
}

/* Constructors */

//NewPeerSet creates a new PeerSet from a list of Peers. Duplicate addresses
//are dropped, and empty ones too.
func NewPeerSet(peers []*Peer) *PeerSet {
	peerSet := &PeerSet{
		Peers:  []*Peer{},
		ByAddr: make(map[string]*Peer),
	}

	for _, peer := range peers {
		if peer == nil || peer.NetAddr == "" {
			continue
		}
		if _, ok := peerSet.ByAddr[peer.NetAddr]; ok {
			continue
		}
		peerSet.ByAddr[peer.NetAddr] = peer
		peerSet.Peers = append(peerSet.Peers, peer)
	}

	return peerSet
}

//NewPeerSetFromAddresses creates a PeerSet from a list of addresses without
//monikers
func NewPeerSetFromAddresses(addrs []string) *PeerSet {
	peers := make([]*Peer, 0, len(addrs))
	for _, a := range addrs {
		peers = append(peers, NewPeer(a, ""))
	}
	return NewPeerSet(peers)
}

//WithNewPeer returns a new PeerSet with a list of peers including the new one.
func (peerSet *PeerSet) WithNewPeer(peer *Peer) *PeerSet {
	peers := append([]*Peer{}, peerSet.Peers...)
	return NewPeerSet(append(peers, peer))
}

//WithRemovedPeer returns a new PeerSet with a list of peers excluding the
//provided one
func (peerSet *PeerSet) WithRemovedPeer(peer *Peer) *PeerSet {
	_, peers := ExcludePeer(peerSet.Peers, peer.NetAddr)
	return NewPeerSet(peers)
}

//Merge returns a new PeerSet containing the peers of both sets. On duplicate
//addresses, the peers of the receiver win.
func (peerSet *PeerSet) Merge(other *PeerSet) *PeerSet {
	peers := append([]*Peer{}, peerSet.Peers...)
	if other != nil {
		peers = append(peers, other.Peers...)
	}
	return NewPeerSet(peers)
}

/* ToSlice Methods */

//Addresses returns the PeerSet's slice of network addresses
func (peerSet *PeerSet) Addresses() []string {
	res := []string{}

	for _, peer := range peerSet.Peers {
		res = append(res, peer.NetAddr)
	}

	return res
}

/* Utilities */

//Len returns the number of Peers in the PeerSet
func (peerSet *PeerSet) Len() int {
	return len(peerSet.ByAddr)
}

//Marshal marshals the peerset
func (peerSet *PeerSet) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(peerSet.Peers); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
