package net

import (
	"testing"
	"time"

	"github.com/mosaicnetworks/parley/src/common"
	"github.com/stretchr/testify/require"
)

func TestTCPTransport_BadAddr(t *testing.T) {
	_, err := NewTCPTransport("0.0.0.0:0", "", 1, 0, 0, nil, common.NewTestEntry(t, common.TestLogLevel))
	if err != errNotAdvertisable {
		t.Fatalf("err: %v", err)
	}
}

func TestTCPTransport_WithAdvertise(t *testing.T) {
	trans, err := NewTCPTransport("0.0.0.0:0", "127.0.0.1:12345", 1, 0, 0, nil, common.NewTestEntry(t, common.TestLogLevel))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer trans.Close()
	if trans.LocalAddr() != "127.0.0.1:12345" {
		t.Fatalf("bad: %v", trans.LocalAddr())
	}
}

// The bootstrap peer is not listening yet when the transport starts. The
// hello loop keeps trying until it answers.
func TestTCPTransport_Bootstrap(t *testing.T) {
	logger := common.NewTestEntry(t, common.TestLogLevel)

	trans2, err := NewTCPTransport("127.0.0.1:0", "", 2, time.Second, 0, nil, logger)
	require.NoError(t, err)
	defer trans2.Close()

	trans1, err := NewTCPTransport("127.0.0.1:0", "", 2, time.Second, 50*time.Millisecond, []string{trans2.LocalAddr()}, logger)
	require.NoError(t, err)
	defer trans1.Close()
	go trans1.Listen()

	// trans2 accepts connections, but is not serving them
	time.Sleep(100 * time.Millisecond)
	go trans2.Listen()

	select {
	case ev := <-trans1.PeerEvents():
		require.Equal(t, PeerEvent{Peer: trans2.LocalAddr(), Type: PeerIdentified}, ev)
	case <-time.After(3 * time.Second):
		t.Fatal("bootstrap peer not identified")
	}

	select {
	case ev := <-trans2.PeerEvents():
		require.Equal(t, PeerEvent{Peer: trans1.LocalAddr(), Type: PeerIdentified}, ev)
	case <-time.After(3 * time.Second):
		t.Fatal("dialing peer not identified")
	}
}

func TestTCPTransport_Disconnect(t *testing.T) {
	logger := common.NewTestEntry(t, common.TestLogLevel)

	trans1, err := NewTCPTransport("127.0.0.1:0", "", 2, time.Second, 0, nil, logger)
	require.NoError(t, err)
	defer trans1.Close()
	go trans1.Listen()

	trans2, err := NewTCPTransport("127.0.0.1:0", "", 2, time.Second, 0, nil, logger)
	require.NoError(t, err)
	go trans2.Listen()

	require.NoError(t, trans1.Hello(trans2.LocalAddr()))
	ev := <-trans1.PeerEvents()
	require.Equal(t, PeerIdentified, ev.Type)

	trans2.Close()

	// the failed publish marks the peer as lost
	require.NoError(t, trans1.Publish("transaction", []byte("payload")))

	select {
	case ev := <-trans1.PeerEvents():
		require.Equal(t, PeerEvent{Peer: trans2.LocalAddr(), Type: PeerDisconnected}, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("no disconnect event")
	}
	require.Empty(t, trans1.Peers())
	require.Equal(t, []string{trans2.LocalAddr()}, trans1.unidentified())
}
