package net

// HelloRequest announces the address under which the sender can be reached.
// It is the first request sent to a peer and identifies the sender to it.
type HelloRequest struct {
	From string
}

// HelloResponse carries the responder's own advertise address.
type HelloResponse struct {
	From string
}

// PublishRequest carries a gossip message for one topic.
type PublishRequest struct {
	From  string
	Topic string
	Data  []byte
}

// PublishResponse indicates whether the message was handed to a subscriber.
type PublishResponse struct {
	Delivered bool
}

// StreamRequest turns the connection into a raw stream for Protocol. After the
// responder acknowledges it, both sides read and write opaque bytes until one
// of them closes the connection.
type StreamRequest struct {
	From     string
	Protocol string
}
