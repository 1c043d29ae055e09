package node

import (
	"context"
	"fmt"
	"io"

	"github.com/mosaicnetworks/parley/src/consensus"
	"github.com/mosaicnetworks/parley/src/ledger"
	"github.com/mosaicnetworks/parley/src/net"
	"github.com/sirupsen/logrus"
)

const (
	// TransactionTopic is the topic new entries are gossiped on.
	TransactionTopic = "transaction"

	// ChainProtocol serves the whole chain as a JSON array.
	ChainProtocol = "/parley/chain/1.0.0"

	// FingerprintProtocol serves the hex Merkle root of the chain.
	FingerprintProtocol = "/parley/fingerprint/1.0.0"

	// ProfileProtocol serves the Profile of the agent.
	ProfileProtocol = "/parley/profile/1.0.0"

	// DefaultMaxChainBytes bounds the size of a pulled chain.
	DefaultMaxChainBytes = 32 << 20

	maxFingerprintBytes = 1024
)

// Syncer keeps the local chain in line with the peers'. New local entries are
// pushed on the transaction topic; when a gossiped entry cannot be merged, or
// a new peer shows up, the whole chain of the peer is pulled and the
// longest-chain rule decides.
type Syncer struct {
	core          *Core
	trans         net.Transport
	maxChainBytes int64
	logger        *logrus.Entry
}

// NewSyncer ...
func NewSyncer(core *Core, trans net.Transport, maxChainBytes int64, logger *logrus.Entry) *Syncer {
	if maxChainBytes <= 0 {
		maxChainBytes = DefaultMaxChainBytes
	}
	return &Syncer{
		core:          core,
		trans:         trans,
		maxChainBytes: maxChainBytes,
		logger:        logger,
	}
}

// Broadcast publishes tx on the transaction topic.
func Broadcast(pub net.Publisher, tx ledger.Transaction) error {
	data, err := tx.Marshal()
	if err != nil {
		return err
	}
	return pub.Publish(TransactionTopic, data)
}

// HandleChain writes the local chain to stream.
func (s *Syncer) HandleChain(from string, stream io.ReadWriteCloser) {
	data, err := ledger.MarshalChain(s.core.Transactions())
	if err != nil {
		s.logger.WithError(err).Error("Marshalling chain")
		return
	}

	if _, err := stream.Write(data); err != nil {
		s.logger.WithFields(logrus.Fields{
			"peer":  from,
			"error": err,
		}).Debug("Writing chain")
	}
}

// HandleFingerprint writes the Merkle root of the local chain to stream.
func (s *Syncer) HandleFingerprint(from string, stream io.ReadWriteCloser) {
	if _, err := stream.Write([]byte(s.core.Fingerprint())); err != nil {
		s.logger.WithFields(logrus.Fields{
			"peer":  from,
			"error": err,
		}).Debug("Writing fingerprint")
	}
}

// HandleTransaction merges a gossiped entry. It reports whether the sender's
// chain should be pulled, which is the case when the entry is neither known
// nor merged.
func (s *Syncer) HandleTransaction(msg net.Message) bool {
	var tx ledger.Transaction
	if err := tx.Unmarshal(msg.Data); err != nil {
		s.core.metrics.Rejected.WithLabelValues(ledger.Malformed.String()).Inc()
		s.logger.WithFields(logrus.Fields{
			"from":  msg.From,
			"error": err,
		}).Warn("Dropping malformed transaction")
		return false
	}

	rel, merged := s.core.Merge(tx)

	s.logger.WithFields(logrus.Fields{
		"from":     msg.From,
		"actor":    tx.ActorID,
		"hash":     tx.Hash,
		"relation": rel.String(),
		"merged":   merged,
	}).Debug("Gossiped transaction")

	return rel != consensus.Known && !merged
}

// Pull fetches the chain of peer and resolves it against the local one. With
// probe, the fingerprints are compared first and nothing is fetched when they
// are equal. It reports whether the local chain was replaced.
func (s *Syncer) Pull(ctx context.Context, peer string, probe bool) (bool, error) {
	if probe {
		root, err := s.fetch(ctx, peer, FingerprintProtocol, maxFingerprintBytes)
		if err != nil {
			s.core.metrics.Syncs.WithLabelValues(SyncError).Inc()
			return false, fmt.Errorf("fingerprint from %s: %w", peer, err)
		}
		if string(root) == s.core.Fingerprint() {
			s.core.metrics.Syncs.WithLabelValues(SyncUpToDate).Inc()
			return false, nil
		}
	}

	txs, err := s.FetchChain(ctx, peer)
	if err != nil {
		return false, err
	}

	if txs == nil {
		s.core.metrics.Syncs.WithLabelValues(SyncEmpty).Inc()
		return false, nil
	}

	if !s.core.Resolve(txs) {
		s.core.metrics.Syncs.WithLabelValues(SyncStale).Inc()
		return false, nil
	}

	s.core.metrics.Syncs.WithLabelValues(SyncReplaced).Inc()
	s.logger.WithFields(logrus.Fields{
		"peer":   peer,
		"length": len(txs),
	}).Debug("Chain replaced")

	return true, nil
}

// FetchChain reads and decodes the chain of peer. It returns nil when the peer
// has nothing to offer.
func (s *Syncer) FetchChain(ctx context.Context, peer string) ([]ledger.Transaction, error) {
	body, err := s.fetch(ctx, peer, ChainProtocol, s.maxChainBytes)
	if err != nil {
		s.core.metrics.Syncs.WithLabelValues(SyncError).Inc()
		return nil, fmt.Errorf("chain from %s: %w", peer, err)
	}

	if len(body) == 0 {
		return nil, nil
	}

	txs, err := ledger.UnmarshalChain(body)
	if err != nil {
		s.core.metrics.Syncs.WithLabelValues(SyncMalformed).Inc()
		return nil, fmt.Errorf("chain from %s: %w", peer, err)
	}

	return txs, nil
}

// fetch reads everything peer writes on a new stream for protocol, up to max
// bytes.
func (s *Syncer) fetch(ctx context.Context, peer string, protocol string, max int64) ([]byte, error) {
	stream, err := s.trans.Dial(ctx, peer, protocol)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	data, err := io.ReadAll(io.LimitReader(stream, max+1))
	if err != nil {
		return nil, err
	}

	if int64(len(data)) > max {
		return nil, fmt.Errorf("response exceeds %d bytes", max)
	}

	return data, nil
}
