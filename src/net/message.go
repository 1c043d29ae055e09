package net

import (
	"errors"
	"io"
)

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")

	// ErrUnknownPeer is returned when dialing a peer the transport cannot
	// route to.
	ErrUnknownPeer = errors.New("unknown peer")

	// ErrNoHandler is returned when the remote side does not handle the
	// requested protocol.
	ErrNoHandler = errors.New("protocol not supported")
)

// Message is a payload received on a topic.
type Message struct {
	// From is the address of the peer that published the message.
	From  string
	Topic string
	Data  []byte
}

// StreamHandler serves an inbound stream opened by the peer at from.
type StreamHandler func(from string, stream io.ReadWriteCloser)

// PeerEventType ...
type PeerEventType int

const (
	// PeerIdentified is emitted once a connection with a peer is established
	// and the peer's address is known.
	PeerIdentified PeerEventType = iota
	// PeerDisconnected is emitted when the last connection to a peer is lost.
	PeerDisconnected
)

// String ...
func (t PeerEventType) String() string {
	switch t {
	case PeerIdentified:
		return "PeerIdentified"
	case PeerDisconnected:
		return "PeerDisconnected"
	default:
		return "Unknown"
	}
}

// PeerEvent is a change in the connectivity of a peer.
type PeerEvent struct {
	Peer string
	Type PeerEventType
}

// peerEventBuffer is the capacity of the PeerEvents channels. Events that do
// not fit are dropped; peers are identified again on reconnection.
const peerEventBuffer = 64

// subscriptionBuffer is the capacity of the channels returned by Subscribe.
const subscriptionBuffer = 64
