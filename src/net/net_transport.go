package net

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

/*******************************************************************************
MOST OF THIS IS TAKEN FROM HASHICORP RAFT
*******************************************************************************/

const (
	rpcHello uint8 = iota
	rpcPublish
	rpcStream
)

const (
	bufSize = 64 * 1024
)

// errStreamDone ends the command loop of a connection that was handed over to
// a stream handler.
var errStreamDone = errors.New("stream done")

/*
NetworkTransport provides a network based transport that can be
used to communicate with parley agents on remote machines. It requires
an underlying stream layer to provide a stream abstraction, which can
be simple TCP, TLS, etc.

This transport is very simple and lightweight. Each request is
framed by sending a byte that indicates the message type, followed
by the json encoded request.

The response is an error string followed by the response object,
both are encoded using json. A stream request is acknowledged with the
error string alone, after which the connection carries raw bytes.

Peers are identified with a hello request. The transport keeps saying hello to
the bootstrap peers, and to every peer it lost, until they answer, so a peer
coming back is identified again.
*/
type NetworkTransport struct {
	logger *logrus.Entry

	connPool     map[string][]*netConn
	connPoolLock sync.Mutex
	maxPool      int

	subs       *subscriptions
	handlers   *handlerRegistry
	peerEvents chan PeerEvent

	peersLock  sync.RWMutex
	bootstrap  []string
	identified map[string]bool

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex

	stream StreamLayer

	timeout time.Duration
	retry   time.Duration
}

type netConn struct {
	target string
	conn   net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
	dec    *json.Decoder
	enc    *json.Encoder
}

// Release closes the underlying connection
func (n *netConn) Release() error {
	return n.conn.Close()
}

// streamConn is a connection handed over to a stream handler or returned by
// Dial. Reads drain what the json decoder already buffered first.
type streamConn struct {
	io.Reader
	conn net.Conn
}

func (s *streamConn) Write(p []byte) (int, error) {
	return s.conn.Write(p)
}

func (s *streamConn) Close() error {
	return s.conn.Close()
}

// rawReader returns the bytes that follow the last json value read by dec.
// The newline the json encoder writes after each value is dropped.
func rawReader(dec *json.Decoder, r *bufio.Reader) io.Reader {
	buffered, _ := io.ReadAll(dec.Buffered())
	if len(buffered) > 0 {
		if buffered[0] == '\n' {
			buffered = buffered[1:]
		}
	} else if b, err := r.Peek(1); err == nil && b[0] == '\n' {
		r.Discard(1)
	}
	return io.MultiReader(bytes.NewReader(buffered), r)
}

// NewNetworkTransport creates a new network transport with the given dialer
// and listener. The maxPool controls how many connections we will pool (per
// target). The timeout is used to apply I/O deadlines. Every retry interval,
// the transport says hello to the bootstrap peers and lost peers that are not
// identified.
func NewNetworkTransport(
	stream StreamLayer,
	maxPool int,
	timeout time.Duration,
	retry time.Duration,
	bootstrap []string,
	logger *logrus.Entry,
) *NetworkTransport {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	trans := &NetworkTransport{
		connPool:   make(map[string][]*netConn),
		subs:       newSubscriptions(),
		handlers:   newHandlerRegistry(),
		peerEvents: make(chan PeerEvent, peerEventBuffer),
		bootstrap:  bootstrap,
		identified: make(map[string]bool),
		logger:     logger,
		maxPool:    maxPool,
		shutdownCh: make(chan struct{}),
		stream:     stream,
		timeout:    timeout,
		retry:      retry,
	}

	return trans
}

// Close is used to stop the network transport.
func (n *NetworkTransport) Close() error {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	if !n.shutdown {
		close(n.shutdownCh)
		n.stream.Close()
		n.subs.close()

		n.connPoolLock.Lock()
		for target, conns := range n.connPool {
			for _, c := range conns {
				c.Release()
			}
			delete(n.connPool, target)
		}
		n.connPoolLock.Unlock()

		n.shutdown = true
	}
	return nil
}

// LocalAddr implements the Transport interface. Peers know each other by
// their advertise address.
func (n *NetworkTransport) LocalAddr() string {
	return n.stream.AdvertiseAddr()
}

// AdvertiseAddr implements the Transport interface.
func (n *NetworkTransport) AdvertiseAddr() string {
	return n.stream.AdvertiseAddr()
}

// IsShutdown is used to check if the transport is shutdown.
func (n *NetworkTransport) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

// PeerEvents implements the Transport interface.
func (n *NetworkTransport) PeerEvents() <-chan PeerEvent {
	return n.peerEvents
}

// Peers implements the Transport interface. It returns the identified peers.
func (n *NetworkTransport) Peers() []string {
	n.peersLock.RLock()
	defer n.peersLock.RUnlock()
	return sortedKeys(n.identified, func(ok bool) bool { return ok })
}

// unidentified returns the bootstrap and lost peers that need a hello.
func (n *NetworkTransport) unidentified() []string {
	n.peersLock.RLock()
	defer n.peersLock.RUnlock()

	self := n.AdvertiseAddr()
	res := sortedKeys(n.identified, func(ok bool) bool { return !ok })
	for _, b := range n.bootstrap {
		if _, ok := n.identified[b]; !ok && b != self {
			res = append(res, b)
		}
	}
	return res
}

func (n *NetworkTransport) markIdentified(addr string) {
	if addr == "" || addr == n.AdvertiseAddr() {
		return
	}

	n.peersLock.Lock()
	was := n.identified[addr]
	n.identified[addr] = true
	n.peersLock.Unlock()

	if !was {
		n.logger.WithField("peer", addr).Debug("Peer identified")
		emit(n.peerEvents, PeerEvent{Peer: addr, Type: PeerIdentified})
	}
}

func (n *NetworkTransport) markDisconnected(addr string) {
	n.peersLock.Lock()
	was := n.identified[addr]
	if was {
		n.identified[addr] = false
	}
	n.peersLock.Unlock()

	n.connPoolLock.Lock()
	for _, c := range n.connPool[addr] {
		c.Release()
	}
	delete(n.connPool, addr)
	n.connPoolLock.Unlock()

	if was {
		n.logger.WithField("peer", addr).Debug("Peer disconnected")
		emit(n.peerEvents, PeerEvent{Peer: addr, Type: PeerDisconnected})
	}
}

// getPooledConn is used to grab a pooled connection.
func (n *NetworkTransport) getPooledConn(target string) *netConn {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	conns, ok := n.connPool[target]
	if !ok || len(conns) == 0 {
		return nil
	}

	var conn *netConn
	num := len(conns)
	conn, conns[num-1] = conns[num-1], nil
	n.connPool[target] = conns[:num-1]
	return conn
}

// getConn is used to get a connection from the pool.
func (n *NetworkTransport) getConn(target string, timeout time.Duration) (*netConn, error) {
	// Check for a pooled conn
	if conn := n.getPooledConn(target); conn != nil {
		return conn, nil
	}

	return n.dialConn(target, timeout)
}

// dialConn opens a fresh, unpooled, connection.
func (n *NetworkTransport) dialConn(target string, timeout time.Duration) (*netConn, error) {
	conn, err := n.stream.Dial(target, timeout)
	if err != nil {
		return nil, err
	}

	// Wrap the conn
	netConn := &netConn{
		target: target,
		conn:   conn,
		r:      bufio.NewReaderSize(conn, bufSize),
		w:      bufio.NewWriterSize(conn, bufSize),
	}
	// Setup encoder/decoders
	netConn.dec = json.NewDecoder(netConn.r)
	netConn.enc = json.NewEncoder(netConn.w)

	return netConn, nil
}

// returnConn returns a connection back to the pool.
func (n *NetworkTransport) returnConn(conn *netConn) {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	key := conn.target
	conns := n.connPool[key]

	if !n.IsShutdown() && len(conns) < n.maxPool {
		conn.conn.SetDeadline(time.Time{})
		n.connPool[key] = append(conns, conn)
	} else {
		conn.Release()
	}
}

// Hello identifies this transport to target, and target to this transport.
func (n *NetworkTransport) Hello(target string) error {
	var resp HelloResponse
	if err := n.genericRPC(target, rpcHello, n.timeout, &HelloRequest{From: n.AdvertiseAddr()}, &resp); err != nil {
		return err
	}
	n.markIdentified(target)
	return nil
}

// Publish implements the Transport interface. The message is sent to every
// identified peer concurrently. A peer that cannot be reached is marked as
// disconnected.
func (n *NetworkTransport) Publish(topic string, data []byte) error {
	if n.IsShutdown() {
		return ErrTransportShutdown
	}

	req := &PublishRequest{
		From:  n.AdvertiseAddr(),
		Topic: topic,
		Data:  data,
	}

	var g errgroup.Group
	for _, target := range n.Peers() {
		target := target
		g.Go(func() error {
			var resp PublishResponse
			if err := n.genericRPC(target, rpcPublish, n.timeout, req, &resp); err != nil {
				n.logger.WithFields(logrus.Fields{
					"peer":  target,
					"topic": topic,
					"error": err,
				}).Debug("Publish failed")
				n.markDisconnected(target)
			}
			return nil
		})
	}

	return g.Wait()
}

// Subscribe implements the Transport interface.
func (n *NetworkTransport) Subscribe(topic string) (<-chan Message, error) {
	ch, _, err := n.subs.subscribe(topic)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Handle implements the Transport interface.
func (n *NetworkTransport) Handle(protocol string, handler StreamHandler) {
	n.handlers.set(protocol, handler)
}

// Dial implements the Transport interface. Each stream uses its own
// connection, which is never pooled.
func (n *NetworkTransport) Dial(ctx context.Context, target string, protocol string) (io.ReadWriteCloser, error) {
	if n.IsShutdown() {
		return nil, ErrTransportShutdown
	}

	deadline, hasDeadline := ctx.Deadline()
	timeout := n.timeout
	if hasDeadline {
		timeout = time.Until(deadline)
	}

	conn, err := n.dialConn(target, timeout)
	if err != nil {
		return nil, err
	}

	if hasDeadline {
		conn.conn.SetDeadline(deadline)
	} else if n.timeout > 0 {
		conn.conn.SetDeadline(time.Now().Add(n.timeout))
	}

	if err := sendRPC(conn, rpcStream, &StreamRequest{From: n.AdvertiseAddr(), Protocol: protocol}); err != nil {
		return nil, err
	}

	var rpcError string
	if err := conn.dec.Decode(&rpcError); err != nil {
		conn.Release()
		return nil, err
	}

	if rpcError != "" {
		conn.Release()
		if rpcError == ErrNoHandler.Error() {
			return nil, ErrNoHandler
		}
		return nil, errors.New(rpcError)
	}

	return &streamConn{
		Reader: rawReader(conn.dec, conn.r),
		conn:   conn.conn,
	}, nil
}

// genericRPC handles a simple request/response RPC.
func (n *NetworkTransport) genericRPC(target string, rpcType uint8, timeout time.Duration, args interface{}, resp interface{}) error {
	// Get a conn
	conn, err := n.getConn(target, timeout)
	if err != nil {
		return err
	}

	// Set a deadline
	if timeout > 0 {
		conn.conn.SetDeadline(time.Now().Add(timeout))
	}

	// Send the RPC
	if err = sendRPC(conn, rpcType, args); err != nil {
		return err
	}

	// Decode the response
	canReturn, err := decodeResponse(conn, resp)
	if canReturn {
		n.returnConn(conn)
	}

	return err
}

// sendRPC is used to encode and send the RPC.
func sendRPC(conn *netConn, rpcType uint8, args interface{}) error {
	// Write the request type
	if err := conn.w.WriteByte(rpcType); err != nil {
		conn.Release()
		return err
	}

	// Send the request
	if err := conn.enc.Encode(args); err != nil {
		conn.Release()
		return err
	}

	// Flush
	if err := conn.w.Flush(); err != nil {
		conn.Release()
		return err
	}
	return nil
}

// decodeResponse is used to decode an RPC response and reports whether
// the connection can be reused.
func decodeResponse(conn *netConn, resp interface{}) (bool, error) {
	// Decode the error if any
	var rpcError string
	if err := conn.dec.Decode(&rpcError); err != nil {
		conn.Release()
		return false, err
	}

	// Decode the response
	if err := conn.dec.Decode(resp); err != nil {
		conn.Release()
		return false, err
	}

	// Format an error if any
	if rpcError != "" {
		return true, errors.New(rpcError)
	}
	return true, nil
}

// Listen opens the stream and handles incoming connections. It also starts
// the loop that says hello to unidentified peers.
func (n *NetworkTransport) Listen() {
	go n.helloLoop()

	for {
		// Accept incoming connections
		conn, err := n.stream.Accept()
		if err != nil {
			if n.IsShutdown() {
				return
			}
			n.logger.WithField("error", err).Error("Failed to accept connection")
			continue
		}
		n.logger.WithFields(logrus.Fields{
			"node": conn.LocalAddr(),
			"from": conn.RemoteAddr(),
		}).Debug("accepted connection")

		// Handle the connection in dedicated routine
		go n.handleConn(conn)
	}
}

func (n *NetworkTransport) helloLoop() {
	for {
		for _, target := range n.unidentified() {
			if err := n.Hello(target); err != nil {
				n.logger.WithFields(logrus.Fields{
					"peer":  target,
					"error": err,
				}).Debug("Hello failed")
			}
		}

		if n.retry <= 0 {
			return
		}

		select {
		case <-time.After(n.retry):
		case <-n.shutdownCh:
			return
		}
	}
}

// handleConn is used to handle an inbound connection for its lifespan.
func (n *NetworkTransport) handleConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReaderSize(conn, bufSize)
	w := bufio.NewWriterSize(conn, bufSize)
	dec := json.NewDecoder(r)
	enc := json.NewEncoder(w)

	for {
		if err := n.handleCommand(conn, r, w, dec, enc); err != nil {
			switch {
			case err == errStreamDone:
			case err == ErrTransportShutdown:
				n.logger.WithField("error", err).Warn("Failed to decode incoming command")
			case err != io.EOF:
				n.logger.WithField("error", err).Error("Failed to decode incoming command")
			}
			return
		}
		if err := w.Flush(); err != nil {
			n.logger.WithField("error", err).Error("Failed to flush response")
			return
		}
	}
}

// handleCommand is used to decode and dispatch a single command.
func (n *NetworkTransport) handleCommand(conn net.Conn, r *bufio.Reader, w *bufio.Writer, dec *json.Decoder, enc *json.Encoder) error {
	// Get the rpc type
	rpcType, err := r.ReadByte()
	if err != nil {
		return err
	}

	if n.IsShutdown() {
		return ErrTransportShutdown
	}

	var resp interface{}
	var respErr error

	// Decode the command
	switch rpcType {
	case rpcHello:
		var req HelloRequest
		if err := dec.Decode(&req); err != nil {
			return err
		}
		n.markIdentified(req.From)
		resp = &HelloResponse{From: n.AdvertiseAddr()}
	case rpcPublish:
		var req PublishRequest
		if err := dec.Decode(&req); err != nil {
			return err
		}
		delivered := n.subs.deliver(Message{From: req.From, Topic: req.Topic, Data: req.Data})
		if !delivered {
			n.logger.WithFields(logrus.Fields{
				"from":  req.From,
				"topic": req.Topic,
			}).Debug("Dropped message, no subscriber or subscriber busy")
		}
		resp = &PublishResponse{Delivered: delivered}
	case rpcStream:
		var req StreamRequest
		if err := dec.Decode(&req); err != nil {
			return err
		}
		return n.serveStream(conn, r, w, dec, enc, req)
	default:
		return fmt.Errorf("unknown rpc type %d", rpcType)
	}

	// Send the error first
	errStr := ""
	if respErr != nil {
		errStr = respErr.Error()
	}
	if err := enc.Encode(errStr); err != nil {
		return err
	}

	// Send the response
	return enc.Encode(resp)
}

// serveStream acknowledges a StreamRequest and hands the connection over to
// the registered handler.
func (n *NetworkTransport) serveStream(conn net.Conn, r *bufio.Reader, w *bufio.Writer, dec *json.Decoder, enc *json.Encoder, req StreamRequest) error {
	handler, ok := n.handlers.get(req.Protocol)
	if !ok {
		enc.Encode(ErrNoHandler.Error())
		w.Flush()
		return errStreamDone
	}

	if err := enc.Encode(""); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if n.timeout > 0 {
		conn.SetDeadline(time.Now().Add(n.timeout))
	}

	handler(req.From, &streamConn{
		Reader: rawReader(dec, r),
		conn:   conn,
	})

	return errStreamDone
}
