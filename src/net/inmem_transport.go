package net

import (
	"context"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// NewInmemAddr returns a new in-memory addr with
// a randomly generate UUID as the ID.
func NewInmemAddr() string {
	return uuid.New().String()
}

// InmemTransport Implements the Transport interface, to allow parley to be
// tested in-memory without going over a network. Streams are synchronous
// net.Pipe pairs.
type InmemTransport struct {
	sync.RWMutex
	localAddr  string
	peers      map[string]*InmemTransport
	subs       *subscriptions
	handlers   *handlerRegistry
	peerEvents chan PeerEvent
	shutdown   bool
}

// NewInmemTransport is used to initialize a new transport
// and generates a random local address if none is specified
func NewInmemTransport(addr string) (string, *InmemTransport) {
	if addr == "" {
		addr = NewInmemAddr()
	}
	trans := &InmemTransport{
		localAddr:  addr,
		peers:      make(map[string]*InmemTransport),
		subs:       newSubscriptions(),
		handlers:   newHandlerRegistry(),
		peerEvents: make(chan PeerEvent, peerEventBuffer),
	}
	return addr, trans
}

// LocalAddr implements the Transport interface.
func (i *InmemTransport) LocalAddr() string {
	return i.localAddr
}

// AdvertiseAddr implements the Transport interface.
func (i *InmemTransport) AdvertiseAddr() string {
	return i.localAddr
}

// Publish implements the Transport interface.
func (i *InmemTransport) Publish(topic string, data []byte) error {
	i.RLock()
	if i.shutdown {
		i.RUnlock()
		return ErrTransportShutdown
	}
	peers := make([]*InmemTransport, 0, len(i.peers))
	for _, p := range i.peers {
		peers = append(peers, p)
	}
	i.RUnlock()

	for _, p := range peers {
		cp := make([]byte, len(data))
		copy(cp, data)
		p.subs.deliver(Message{From: i.localAddr, Topic: topic, Data: cp})
	}

	return nil
}

// Subscribe implements the Transport interface.
func (i *InmemTransport) Subscribe(topic string) (<-chan Message, error) {
	ch, _, err := i.subs.subscribe(topic)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Handle implements the Transport interface.
func (i *InmemTransport) Handle(protocol string, handler StreamHandler) {
	i.handlers.set(protocol, handler)
}

// Dial implements the Transport interface.
func (i *InmemTransport) Dial(ctx context.Context, target string, protocol string) (io.ReadWriteCloser, error) {
	i.RLock()
	peer, ok := i.peers[target]
	shutdown := i.shutdown
	i.RUnlock()

	if shutdown {
		return nil, ErrTransportShutdown
	}
	if !ok {
		return nil, fmt.Errorf("failed to connect to peer %v: %w", target, ErrUnknownPeer)
	}

	handler, ok := peer.handlers.get(protocol)
	if !ok {
		return nil, ErrNoHandler
	}

	local, remote := net.Pipe()
	if deadline, ok := ctx.Deadline(); ok {
		local.SetDeadline(deadline)
		remote.SetDeadline(deadline)
	}

	go func() {
		defer remote.Close()
		handler(i.localAddr, remote)
	}()

	return local, nil
}

// PeerEvents implements the Transport interface.
func (i *InmemTransport) PeerEvents() <-chan PeerEvent {
	return i.peerEvents
}

// Peers implements the Transport interface.
func (i *InmemTransport) Peers() []string {
	i.RLock()
	defer i.RUnlock()

	res := make([]string, 0, len(i.peers))
	for addr := range i.peers {
		res = append(res, addr)
	}
	sort.Strings(res)
	return res
}

// Connect is used to connect this transport to another transport for
// a given peer name. This allows for local routing. It emits a PeerIdentified
// event on this side only.
func (i *InmemTransport) Connect(peer string, t Transport) {
	trans := t.(*InmemTransport)
	i.Lock()
	i.peers[peer] = trans
	i.Unlock()

	emit(i.peerEvents, PeerEvent{Peer: peer, Type: PeerIdentified})
}

// Disconnect is used to remove the ability to route to a given peer.
func (i *InmemTransport) Disconnect(peer string) {
	i.Lock()
	_, ok := i.peers[peer]
	delete(i.peers, peer)
	i.Unlock()

	if ok {
		emit(i.peerEvents, PeerEvent{Peer: peer, Type: PeerDisconnected})
	}
}

// DisconnectAll is used to remove all routes to peers.
func (i *InmemTransport) DisconnectAll() {
	i.Lock()
	defer i.Unlock()
	i.peers = make(map[string]*InmemTransport)
}

// Close is used to permanently disable the transport
func (i *InmemTransport) Close() error {
	i.Lock()
	if i.shutdown {
		i.Unlock()
		return nil
	}
	i.shutdown = true
	i.Unlock()

	i.DisconnectAll()
	i.subs.close()
	return nil
}

// Listen is an empty function as there is no need to defer
// initialisation of the InMem service
func (i *InmemTransport) Listen() {
}
