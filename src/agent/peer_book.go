package agent

import (
	"sync"

	"github.com/mosaicnetworks/parley/src/peers"
	"github.com/sirupsen/logrus"
)

// peerBook implements node.PeerBook on top of peers.json, so that the peers
// met during a run are dialed again on the next one.
type peerBook struct {
	sync.Mutex

	peerSet *peers.PeerSet
	store   *peers.JSONPeerSet
	logger  *logrus.Entry
}

func newPeerBook(peerSet *peers.PeerSet, store *peers.JSONPeerSet, logger *logrus.Entry) *peerBook {
	return &peerBook{
		peerSet: peerSet,
		store:   store,
		logger:  logger,
	}
}

// Record adds the peer, or renames it, and writes peers.json when something
// changed.
func (b *peerBook) Record(addr string, moniker string) {
	b.Lock()
	defer b.Unlock()

	if known, ok := b.peerSet.ByAddr[addr]; ok && known.Moniker == moniker {
		return
	}

	b.peerSet = b.peerSet.
		WithRemovedPeer(peers.NewPeer(addr, "")).
		WithNewPeer(peers.NewPeer(addr, moniker))

	if err := b.store.Write(b.peerSet.Peers); err != nil {
		b.logger.WithError(err).Warn("Writing peers.json")
		return
	}

	b.logger.WithFields(logrus.Fields{
		"peer":    addr,
		"moniker": moniker,
	}).Debug("Recorded peer")
}

// PeerSet returns the recorded peers.
func (b *peerBook) PeerSet() *peers.PeerSet {
	b.Lock()
	defer b.Unlock()
	return b.peerSet
}
