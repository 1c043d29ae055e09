package node

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mosaicnetworks/parley/src/consensus"
	"github.com/mosaicnetworks/parley/src/ledger"
	"github.com/mosaicnetworks/parley/src/net"
	"github.com/mosaicnetworks/parley/src/node/state"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const maxProfileBytes = 64 * 1024

// Node defines a parley node
type Node struct {
	// The node runs the state machine of the state package.
	state.Manager

	conf   *Config
	logger *logrus.Entry

	core       *Core
	syncer     *Syncer
	admission  *Admission
	companions *Companions
	metrics    *Metrics

	trans        net.Transport
	peerSelector PeerSelector

	// dispatch tables, built by Init
	topicHandlers  map[string]func(net.Message)
	streamHandlers map[string]net.StreamHandler

	// inbox receives the messages of every subscribed topic
	inbox chan net.Message

	ctx        context.Context
	cancel     context.CancelFunc
	shutdownCh chan struct{}
	shutdownMu sync.Mutex

	controlTimer *ControlTimer

	start        time.Time
	syncRequests int64
	syncErrors   int64
}

// NewNode is a factory method that returns a Node instance. archive may be
// nil.
func NewNode(conf *Config, trans net.Transport, archive Archiver) *Node {
	metrics := NewMetrics()

	logger := conf.Logger.WithField("this_id", trans.LocalAddr())

	core := NewCore(conf.Params, conf.GenesisPayload, archive, metrics, logger)

	ctx, cancel := context.WithCancel(context.Background())

	node := Node{
		conf:         conf,
		logger:       logger,
		core:         core,
		syncer:       NewSyncer(core, trans, conf.MaxChainBytes, logger),
		admission:    NewAdmission(core, trans, logger),
		companions:   NewCompanions(),
		metrics:      metrics,
		trans:        trans,
		peerSelector: NewRandomPeerSelector(trans.Peers, trans.LocalAddr()),
		inbox:        make(chan net.Message, 64),
		ctx:          ctx,
		cancel:       cancel,
		shutdownCh:   make(chan struct{}),
		controlTimer: NewRandomControlTimer(),
		start:        time.Now(),
	}

	node.SetState(state.CatchingUp)

	return &node
}

// Init builds the dispatch tables, registers the stream handlers with the
// transport and subscribes to the topics.
func (n *Node) Init() error {
	n.topicHandlers = map[string]func(net.Message){
		TransactionTopic: n.onTransaction,
	}

	n.streamHandlers = map[string]net.StreamHandler{
		ChainProtocol:       n.syncer.HandleChain,
		FingerprintProtocol: n.syncer.HandleFingerprint,
		ProfileProtocol:     n.handleProfile,
	}

	for protocol, handler := range n.streamHandlers {
		n.trans.Handle(protocol, handler)
	}

	for topic := range n.topicHandlers {
		ch, err := n.trans.Subscribe(topic)
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		go n.forward(ch)
	}

	n.logger.WithFields(logrus.Fields{
		"capacity": n.conf.Params.Capacity,
		"window":   n.conf.Params.Window,
		"genesis":  n.core.Tip().Hash,
	}).Debug("Init")

	return nil
}

// forward copies the messages of one subscription into the inbox.
func (n *Node) forward(ch <-chan net.Message) {
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			select {
			case n.inbox <- msg:
			case <-n.shutdownCh:
				return
			}
		case <-n.shutdownCh:
			return
		}
	}
}

// RunAsync calls Run as a separate thread
func (n *Node) RunAsync() {
	n.logger.Debug("runasync")

	go n.Run()
}

// Run invokes the main loop of the node
func (n *Node) Run() {
	// Start the transport, which accepts connections and reaches out to the
	// bootstrap peers
	go n.trans.Listen()

	go n.controlTimer.Run(n.conf.HeartbeatTimeout)

	//Execute Node State Machine
	for {
		s := n.GetState()

		n.logger.WithField("state", s.String()).Debug("Run loop")

		switch s {
		case state.CatchingUp:
			n.catchUp()
		case state.Gossiping:
			n.gossip()
		case state.Shutdown:
			return
		}
	}
}

// catchUp pulls the chains of the peers known at startup.
func (n *Node) catchUp() {
	n.logger.Debug("CATCHING-UP")

	ctx, cancel := context.WithTimeout(n.ctx, n.conf.SyncTimeout)
	defer cancel()

	if err := n.SyncAll(ctx); err != nil {
		n.logger.WithError(err).Debug("SyncAll")
	}

	if n.GetState() != state.Shutdown {
		n.SetState(state.Gossiping)
	}
}

// gossip processes incoming messages and peer events, and periodically
// compares fingerprints with a random peer.
func (n *Node) gossip() {
	n.logger.Debug("GOSSIPING")

	for {
		select {
		case msg := <-n.inbox:
			if handler, ok := n.topicHandlers[msg.Topic]; ok {
				handler(msg)
			}
		case ev := <-n.trans.PeerEvents():
			n.onPeerEvent(ev)
		case <-n.controlTimer.tickCh:
			if peer := n.peerSelector.Next(); peer != "" {
				n.peerSelector.UpdateLast(peer)
				n.goFunc(func() { n.pull(peer, true) })
			}
			n.controlTimer.Reset(n.conf.HeartbeatTimeout)
		case <-n.shutdownCh:
			return
		}
	}
}

func (n *Node) goFunc(f func()) {
	if !n.GoFunc(f) {
		n.logger.Debug("Too many routines, dropping task")
	}
}

func (n *Node) onTransaction(msg net.Message) {
	if n.syncer.HandleTransaction(msg) {
		n.goFunc(func() { n.pull(msg.From, false) })
	}
}

func (n *Node) onPeerEvent(ev net.PeerEvent) {
	n.logger.WithFields(logrus.Fields{
		"peer":  ev.Peer,
		"event": ev.Type.String(),
	}).Debug("Peer event")

	n.metrics.Peers.Set(float64(len(n.trans.Peers())))

	switch ev.Type {
	case net.PeerIdentified:
		n.goFunc(func() { n.pull(ev.Peer, true) })
		if !n.companions.Has(ev.Peer) {
			n.goFunc(func() { n.requestProfile(ev.Peer) })
		}
	case net.PeerDisconnected:
		if n.companions.Remove(ev.Peer) {
			n.metrics.Companions.Set(float64(n.companions.Len()))
		}
	}
}

// pull runs one Pull bounded by SyncTimeout and records the result.
func (n *Node) pull(peer string, probe bool) {
	ctx, cancel := context.WithTimeout(n.ctx, n.conf.SyncTimeout)
	defer cancel()

	atomic.AddInt64(&n.syncRequests, 1)

	start := time.Now()
	replaced, err := n.syncer.Pull(ctx, peer, probe)
	elapsed := time.Since(start)

	if err != nil {
		atomic.AddInt64(&n.syncErrors, 1)
		n.logger.WithFields(logrus.Fields{
			"peer":  peer,
			"error": err,
		}).Debug("Pull failed")
		return
	}

	n.logger.WithFields(logrus.Fields{
		"peer":     peer,
		"probe":    probe,
		"replaced": replaced,
		"duration": elapsed.Nanoseconds(),
	}).Debug("Pull")

	if replaced {
		n.logStats()
	}
}

// SyncAll fetches the chains of every identified peer concurrently and
// resolves the longest one. It returns the first fetch error, after every
// fetch completed.
func (n *Node) SyncAll(ctx context.Context) error {
	peers := n.trans.Peers()
	if len(peers) == 0 {
		return nil
	}

	chains := make([][]ledger.Transaction, len(peers))

	var g errgroup.Group
	for i, p := range peers {
		i, p := i, p
		g.Go(func() error {
			atomic.AddInt64(&n.syncRequests, 1)
			txs, err := n.syncer.FetchChain(ctx, p)
			if err != nil {
				atomic.AddInt64(&n.syncErrors, 1)
				return err
			}
			chains[i] = txs
			return nil
		})
	}
	err := g.Wait()

	if best := consensus.SelectLongest(chains); best != nil {
		if n.core.Resolve(best) {
			n.metrics.Syncs.WithLabelValues(SyncReplaced).Inc()
			n.logger.WithField("length", len(best)).Debug("SyncAll replaced chain")
		} else {
			n.metrics.Syncs.WithLabelValues(SyncStale).Inc()
		}
	}

	return err
}

func (n *Node) handleProfile(from string, stream io.ReadWriteCloser) {
	data, err := n.conf.Profile.Marshal()
	if err != nil {
		n.logger.WithError(err).Error("Marshalling profile")
		return
	}
	if _, err := stream.Write(data); err != nil {
		n.logger.WithFields(logrus.Fields{
			"peer":  from,
			"error": err,
		}).Debug("Writing profile")
	}
}

func (n *Node) requestProfile(peer string) {
	ctx, cancel := context.WithTimeout(n.ctx, n.conf.SyncTimeout)
	defer cancel()

	data, err := n.syncer.fetch(ctx, peer, ProfileProtocol, maxProfileBytes)
	if err != nil {
		n.logger.WithFields(logrus.Fields{
			"peer":  peer,
			"error": err,
		}).Debug("Requesting profile")
		return
	}

	var p Profile
	if err := p.Unmarshal(data); err != nil {
		n.logger.WithFields(logrus.Fields{
			"peer":  peer,
			"error": err,
		}).Warn("Dropping malformed profile")
		return
	}

	n.companions.Set(peer, p)
	n.metrics.Companions.Set(float64(n.companions.Len()))

	if n.conf.PeerBook != nil {
		n.conf.PeerBook.Record(peer, p.Name)
	}

	n.logger.WithFields(logrus.Fields{
		"peer": peer,
		"name": p.Name,
	}).Debug("Companion joined")
}

// Consume asks the admission controller for capacity on behalf of actorID.
func (n *Node) Consume(actorID string, amount float64, payload string) Receipt {
	return n.admission.Consume(actorID, amount, payload)
}

// Shutdown shuts down the node
func (n *Node) Shutdown() {
	n.shutdownMu.Lock()
	defer n.shutdownMu.Unlock()

	if n.GetState() != state.Shutdown {
		n.logger.Debug("Shutdown")

		//Exit any non-shutdown state immediately
		n.SetState(state.Shutdown)

		//Stop and wait for concurrent operations
		n.cancel()
		close(n.shutdownCh)

		n.WaitRoutines()

		n.controlTimer.Shutdown()

		//transport and archive should only be closed once all concurrent
		//operations are finished
		n.trans.Close()

		if n.core.archive != nil {
			n.core.archive.Close()
		}
	}
}

// GetStats returns stats
func (n *Node) GetStats() map[string]string {
	timeElapsed := time.Since(n.start)
	tip := n.core.Tip()

	s := map[string]string{
		"ledger_length": strconv.Itoa(n.core.Len()),
		"available":     strconv.FormatFloat(ledger.Round2(n.core.Available()), 'f', 2, 64),
		"capacity":      strconv.FormatFloat(n.conf.Params.Capacity, 'f', 2, 64),
		"fingerprint":   n.core.Fingerprint(),
		"tip":           tip.Hash,
		"num_peers":     strconv.Itoa(len(n.trans.Peers())),
		"companions":    strconv.Itoa(n.companions.Len()),
		"sync_rate":     strconv.FormatFloat(n.SyncRate(), 'f', 2, 64),
		"uptime":        timeElapsed.Round(time.Second).String(),
		"id":            n.trans.LocalAddr(),
		"state":         n.GetState().String(),
		"moniker":       n.conf.Profile.Name,
	}
	return s
}

func (n *Node) logStats() {
	stats := n.GetStats()

	n.logger.WithFields(logrus.Fields{
		"ledger_length": stats["ledger_length"],
		"available":     stats["available"],
		"num_peers":     stats["num_peers"],
		"companions":    stats["companions"],
		"sync_rate":     stats["sync_rate"],
		"state":         stats["state"],
		"moniker":       stats["moniker"],
	}).Debug("Stats")
}

// SyncRate returns the Sync Rate
func (n *Node) SyncRate() float64 {
	var syncErrorRate float64

	requests := atomic.LoadInt64(&n.syncRequests)
	if requests != 0 {
		syncErrorRate = float64(atomic.LoadInt64(&n.syncErrors)) / float64(requests)
	}

	return 1 - syncErrorRate
}

// ID returns the address peers know this node by.
func (n *Node) ID() string {
	return n.trans.LocalAddr()
}

// Transactions returns a copy of the chain.
func (n *Node) Transactions() []ledger.Transaction {
	return n.core.Transactions()
}

// GetTransaction returns the entry at index.
func (n *Node) GetTransaction(index int) (ledger.Transaction, bool) {
	return n.core.Get(index)
}

// History ...
func (n *Node) History() []ledger.Utterance {
	return n.core.History()
}

// Available ...
func (n *Node) Available() float64 {
	return n.core.Available()
}

// Fingerprint ...
func (n *Node) Fingerprint() string {
	return n.core.Fingerprint()
}

// Params returns the budget parameters.
func (n *Node) Params() ledger.Params {
	return n.conf.Params
}

// Profile returns the profile of this agent.
func (n *Node) Profile() Profile {
	return n.conf.Profile
}

// Companions returns the profiles of the other agents.
func (n *Node) Companions() []Profile {
	return n.companions.All()
}

// Changes returns a channel signalled after the ledger changed.
func (n *Node) Changes() <-chan struct{} {
	return n.core.Changes()
}

// Metrics returns the prometheus collectors of the node.
func (n *Node) Metrics() *Metrics {
	return n.metrics
}

// Peers returns the addresses of the identified peers.
func (n *Node) Peers() []string {
	return n.trans.Peers()
}

// Validate checks the whole chain.
func (n *Node) Validate() error {
	return n.core.Validate()
}
