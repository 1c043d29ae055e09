package net

import (
	"context"
	"io"
)

// Transport provides an interface for network transports
// to allow an agent to communicate with other agents.
type Transport interface {

	// Starts the transport listening. It blocks until the transport is closed
	// for the network transports, and returns immediately otherwise.
	Listen()

	// LocalAddr is used to return our local address, the one other peers use
	// to identify us.
	LocalAddr() string

	// AdvertiseAddr is used to return our advertise address where other peers
	// can reach us
	AdvertiseAddr() string

	// Publish sends data to every peer subscribed to topic. Delivery is best
	// effort and never loops back to the publisher.
	Publish(topic string, data []byte) error

	// Subscribe returns the channel of Messages published on topic by other
	// peers. Subscribing twice to the same topic returns the same channel.
	Subscribe(topic string) (<-chan Message, error)

	// Handle registers the handler of inbound streams for protocol. The
	// transport closes the stream when the handler returns.
	Handle(protocol string, handler StreamHandler)

	// Dial opens a stream to target for protocol.
	Dial(ctx context.Context, target string, protocol string) (io.ReadWriteCloser, error)

	// PeerEvents reports peers being identified or disconnected.
	PeerEvents() <-chan PeerEvent

	// Peers returns the addresses of the peers currently known.
	Peers() []string

	// Close permanently closes a transport, stopping
	// any associated goroutines and freeing other resources.
	Close() error
}

// Publisher is the part of a Transport needed to gossip.
type Publisher interface {
	Publish(topic string, data []byte) error
}
