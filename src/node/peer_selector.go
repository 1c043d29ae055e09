package node

import (
	"math/rand"
)

// PeerSelector defines and interface for Peer Selectors
type PeerSelector interface {
	UpdateLast(peer string)
	Next() string
}

//+++++++++++++++++++++++++++++++++++++++
//RANDOM

// RandomPeerSelector picks a random peer among the ones returned by its
// source, avoiding the last one picked when it can.
type RandomPeerSelector struct {
	source func() []string
	self   string
	last   string
}

// NewRandomPeerSelector is a factory method that returns a new instance of
// RandomPeerSelector. source is usually the Peers method of a Transport.
func NewRandomPeerSelector(source func() []string, self string) *RandomPeerSelector {
	return &RandomPeerSelector{
		source: source,
		self:   self,
	}
}

// UpdateLast sets the last peer
func (ps *RandomPeerSelector) UpdateLast(peer string) {
	ps.last = peer
}

// Next returns the next peer, or "" when there are none.
func (ps *RandomPeerSelector) Next() string {
	selectablePeers := excludePeer(ps.source(), ps.self)

	if len(selectablePeers) == 0 {
		return ""
	}

	if len(selectablePeers) > 1 {
		selectablePeers = excludePeer(selectablePeers, ps.last)
	}

	i := rand.Intn(len(selectablePeers))

	return selectablePeers[i]
}

func excludePeer(peers []string, peer string) []string {
	res := make([]string, 0, len(peers))
	for _, p := range peers {
		if p != peer {
			res = append(res, p)
		}
	}
	return res
}
