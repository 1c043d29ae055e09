package net

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	lcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/event"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"
)

// MDNSServiceName is the service tag agents look for on the local network.
const MDNSServiceName = "parley"

const libp2pDialTimeout = 10 * time.Second

// Libp2pConfig holds the options of a Libp2pTransport.
type Libp2pConfig struct {
	// ListenAddrs are multiaddrs such as /ip4/0.0.0.0/tcp/0.
	ListenAddrs []string

	// Bootstrap are full multiaddrs, including the /p2p/<id> part, of peers
	// to connect to on Listen.
	Bootstrap []string

	// MDNS enables local network discovery.
	MDNS bool

	// Identity is the host key. A fresh one is generated when nil.
	Identity lcrypto.PrivKey
}

// Libp2pTransport implements the Transport interface on top of a libp2p host.
// Messages go through gossipsub topics and streams are native libp2p streams.
// Peers are addressed by their peer ID.
type Libp2pTransport struct {
	conf   Libp2pConfig
	logger *logrus.Entry

	host   host.Host
	ps     *pubsub.PubSub
	ctx    context.Context
	cancel context.CancelFunc

	topicsLock sync.Mutex
	topics     map[string]*pubsub.Topic
	subs       *subscriptions

	peerEvents chan PeerEvent
	eventSub   event.Subscription
	mdns       mdns.Service

	shutdownLock sync.Mutex
	shutdown     bool
}

// NewLibp2pTransport creates the host and the gossipsub router. Connections
// to bootstrap peers and mdns discovery start with Listen.
func NewLibp2pTransport(conf Libp2pConfig, logger *logrus.Entry) (*Libp2pTransport, error) {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	if len(conf.ListenAddrs) == 0 {
		conf.ListenAddrs = []string{"/ip4/0.0.0.0/tcp/0"}
	}

	opts := []libp2p.Option{
		libp2p.ListenAddrStrings(conf.ListenAddrs...),
	}
	if conf.Identity != nil {
		opts = append(opts, libp2p.Identity(conf.Identity))
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating libp2p host: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		cancel()
		h.Close()
		return nil, fmt.Errorf("creating gossipsub: %w", err)
	}

	eventSub, err := h.EventBus().Subscribe([]interface{}{
		new(event.EvtPeerIdentificationCompleted),
		new(event.EvtPeerConnectednessChanged),
	})
	if err != nil {
		cancel()
		h.Close()
		return nil, fmt.Errorf("subscribing to host events: %w", err)
	}

	trans := &Libp2pTransport{
		conf:       conf,
		logger:     logger,
		host:       h,
		ps:         ps,
		ctx:        ctx,
		cancel:     cancel,
		topics:     make(map[string]*pubsub.Topic),
		subs:       newSubscriptions(),
		peerEvents: make(chan PeerEvent, peerEventBuffer),
		eventSub:   eventSub,
	}

	go trans.eventLoop()

	logger.WithFields(logrus.Fields{
		"id":    h.ID().String(),
		"addrs": h.Addrs(),
	}).Debug("libp2p host started")

	return trans, nil
}

// Listen connects to the bootstrap peers and starts mdns discovery. It
// returns once that is done; the host is already accepting connections.
func (l *Libp2pTransport) Listen() {
	for _, addr := range l.conf.Bootstrap {
		if err := l.Connect(addr); err != nil {
			l.logger.WithFields(logrus.Fields{
				"addr":  addr,
				"error": err,
			}).Warn("Failed to connect to bootstrap peer")
		}
	}

	if l.conf.MDNS {
		l.mdns = mdns.NewMdnsService(l.host, MDNSServiceName, l)
		if err := l.mdns.Start(); err != nil {
			l.logger.WithField("error", err).Warn("Failed to start mdns")
		}
	}
}

// Connect dials the peer at the full multiaddr addr.
func (l *Libp2pTransport) Connect(addr string) error {
	maddr, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return err
	}

	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return err
	}

	return l.connectInfo(*info)
}

func (l *Libp2pTransport) connectInfo(info peer.AddrInfo) error {
	if info.ID == l.host.ID() {
		return nil
	}

	ctx, cancel := context.WithTimeout(l.ctx, libp2pDialTimeout)
	defer cancel()

	return l.host.Connect(ctx, info)
}

// HandlePeerFound implements mdns.Notifee.
func (l *Libp2pTransport) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == l.host.ID() {
		return
	}
	if err := l.connectInfo(info); err != nil {
		l.logger.WithFields(logrus.Fields{
			"peer":  info.ID.String(),
			"error": err,
		}).Debug("Failed to connect to discovered peer")
	}
}

func (l *Libp2pTransport) eventLoop() {
	for {
		select {
		case e, ok := <-l.eventSub.Out():
			if !ok {
				return
			}
			switch ev := e.(type) {
			case event.EvtPeerIdentificationCompleted:
				emit(l.peerEvents, PeerEvent{Peer: ev.Peer.String(), Type: PeerIdentified})
			case event.EvtPeerConnectednessChanged:
				if ev.Connectedness == network.NotConnected {
					emit(l.peerEvents, PeerEvent{Peer: ev.Peer.String(), Type: PeerDisconnected})
				}
			}
		case <-l.ctx.Done():
			return
		}
	}
}

// LocalAddr implements the Transport interface. It returns the peer ID.
func (l *Libp2pTransport) LocalAddr() string {
	return l.host.ID().String()
}

// AdvertiseAddr implements the Transport interface. It returns the first
// listen address with the /p2p/<id> suffix, which other agents can use as a
// bootstrap address.
func (l *Libp2pTransport) AdvertiseAddr() string {
	addrs := l.FullAddrs()
	if len(addrs) == 0 {
		return ""
	}
	return addrs[0]
}

// FullAddrs returns every listen address with the /p2p/<id> suffix.
func (l *Libp2pTransport) FullAddrs() []string {
	res := []string{}
	for _, a := range l.host.Addrs() {
		res = append(res, fmt.Sprintf("%s/p2p/%s", a, l.host.ID()))
	}
	return res
}

func (l *Libp2pTransport) topic(name string) (*pubsub.Topic, error) {
	l.topicsLock.Lock()
	defer l.topicsLock.Unlock()

	if t, ok := l.topics[name]; ok {
		return t, nil
	}

	t, err := l.ps.Join(name)
	if err != nil {
		return nil, err
	}
	l.topics[name] = t
	return t, nil
}

// Publish implements the Transport interface.
func (l *Libp2pTransport) Publish(topic string, data []byte) error {
	if l.isShutdown() {
		return ErrTransportShutdown
	}

	t, err := l.topic(topic)
	if err != nil {
		return err
	}

	return t.Publish(l.ctx, data)
}

// Subscribe implements the Transport interface. Messages published by this
// host are filtered out.
func (l *Libp2pTransport) Subscribe(topic string) (<-chan Message, error) {
	ch, created, err := l.subs.subscribe(topic)
	if err != nil {
		return nil, err
	}
	if !created {
		return ch, nil
	}

	t, err := l.topic(topic)
	if err != nil {
		return nil, err
	}

	sub, err := t.Subscribe()
	if err != nil {
		return nil, err
	}

	go func() {
		defer sub.Cancel()
		for {
			msg, err := sub.Next(l.ctx)
			if err != nil {
				return
			}
			if msg.GetFrom() == l.host.ID() {
				continue
			}
			delivered := l.subs.deliver(Message{
				From:  msg.GetFrom().String(),
				Topic: topic,
				Data:  msg.Data,
			})
			if !delivered {
				l.logger.WithField("topic", topic).Debug("Dropped message, subscriber busy")
			}
		}
	}()

	return ch, nil
}

// Handle implements the Transport interface.
func (l *Libp2pTransport) Handle(proto string, handler StreamHandler) {
	l.host.SetStreamHandler(protocol.ID(proto), func(s network.Stream) {
		defer s.Close()
		handler(s.Conn().RemotePeer().String(), s)
	})
}

// Dial implements the Transport interface. target is a peer ID.
func (l *Libp2pTransport) Dial(ctx context.Context, target string, proto string) (io.ReadWriteCloser, error) {
	if l.isShutdown() {
		return nil, ErrTransportShutdown
	}

	id, err := peer.Decode(target)
	if err != nil {
		return nil, fmt.Errorf("failed to decode peer id %v: %w", target, ErrUnknownPeer)
	}

	s, err := l.host.NewStream(ctx, id, protocol.ID(proto))
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		s.SetDeadline(deadline)
	}

	return s, nil
}

// PeerEvents implements the Transport interface.
func (l *Libp2pTransport) PeerEvents() <-chan PeerEvent {
	return l.peerEvents
}

// Peers implements the Transport interface. It returns the connected peers.
func (l *Libp2pTransport) Peers() []string {
	set := make(map[string]bool)
	for _, p := range l.host.Network().Peers() {
		set[p.String()] = true
	}
	return sortedKeys(set, func(ok bool) bool { return ok })
}

func (l *Libp2pTransport) isShutdown() bool {
	l.shutdownLock.Lock()
	defer l.shutdownLock.Unlock()
	return l.shutdown
}

// Close implements the Transport interface.
func (l *Libp2pTransport) Close() error {
	l.shutdownLock.Lock()
	if l.shutdown {
		l.shutdownLock.Unlock()
		return nil
	}
	l.shutdown = true
	l.shutdownLock.Unlock()

	if l.mdns != nil {
		l.mdns.Close()
	}

	l.cancel()
	l.eventSub.Close()
	l.subs.close()

	l.topicsLock.Lock()
	for _, t := range l.topics {
		t.Close()
	}
	l.topicsLock.Unlock()

	return l.host.Close()
}
