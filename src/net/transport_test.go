package net

import (
	"bufio"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/mosaicnetworks/parley/src/common"
	"github.com/stretchr/testify/require"
)

const (
	INMEM = iota
	TCP
	numTestTransports // NOTE: must be last
)

func NewTestTransport(ttype int, addr string, t *testing.T) Transport {
	switch ttype {
	case INMEM:
		_, it := NewInmemTransport(addr)
		return it
	case TCP:
		tt, err := NewTCPTransport(addr, "", 2, time.Second, 0, nil, common.NewTestEntry(t, common.TestLogLevel))
		if err != nil {
			t.Fatal(err)
		}
		go tt.Listen()
		return tt
	default:
		panic("Unknown transport type")
	}
}

// connectTestTransports makes a and b known to each other.
func connectTestTransports(t *testing.T, a, b Transport) {
	switch ta := a.(type) {
	case *InmemTransport:
		ta.Connect(b.LocalAddr(), b)
		b.(*InmemTransport).Connect(a.LocalAddr(), a)
	case *NetworkTransport:
		require.NoError(t, ta.Hello(b.LocalAddr()))
		require.Eventually(t, func() bool {
			return contains(b.Peers(), a.LocalAddr())
		}, 2*time.Second, 10*time.Millisecond)
	default:
		t.Fatalf("unknown transport %T", a)
	}
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}

func TestTransport_StartStop(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans := NewTestTransport(ttype, "127.0.0.1:0", t)
		if err := trans.Close(); err != nil {
			t.Fatalf("err: %v", err)
		}
	}
}

func TestTransport_PublishSubscribe(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1 := NewTestTransport(ttype, "127.0.0.1:0", t)
		defer trans1.Close()
		trans2 := NewTestTransport(ttype, "127.0.0.1:0", t)
		defer trans2.Close()

		sub, err := trans2.Subscribe("transaction")
		require.NoError(t, err)

		again, err := trans2.Subscribe("transaction")
		require.NoError(t, err)
		require.Equal(t, sub, again)

		connectTestTransports(t, trans1, trans2)

		require.NoError(t, trans1.Publish("transaction", []byte("payload")))

		select {
		case msg := <-sub:
			require.Equal(t, trans1.LocalAddr(), msg.From)
			require.Equal(t, "transaction", msg.Topic)
			require.Equal(t, []byte("payload"), msg.Data)
		case <-time.After(2 * time.Second):
			t.Fatalf("transport %d: message not delivered", ttype)
		}

		// no subscription on the other topic
		require.NoError(t, trans1.Publish("other", []byte("payload")))
		select {
		case msg := <-sub:
			t.Fatalf("transport %d: unexpected message %v", ttype, msg)
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestTransport_Stream(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1 := NewTestTransport(ttype, "127.0.0.1:0", t)
		defer trans1.Close()
		trans2 := NewTestTransport(ttype, "127.0.0.1:0", t)
		defer trans2.Close()

		fromCh := make(chan string, 1)
		trans2.Handle("/test/echo/1.0.0", func(from string, stream io.ReadWriteCloser) {
			fromCh <- from
			line, err := bufio.NewReader(stream).ReadString('\n')
			if err != nil {
				return
			}
			stream.Write([]byte("echo " + line))
		})

		connectTestTransports(t, trans1, trans2)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		stream, err := trans1.Dial(ctx, trans2.LocalAddr(), "/test/echo/1.0.0")
		require.NoError(t, err)

		_, err = stream.Write([]byte("ping\n"))
		require.NoError(t, err)

		body, err := io.ReadAll(stream)
		require.NoError(t, err)
		require.Equal(t, "echo ping\n", string(body))
		stream.Close()

		require.Equal(t, trans1.LocalAddr(), <-fromCh)
	}
}

func TestTransport_NoHandler(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1 := NewTestTransport(ttype, "127.0.0.1:0", t)
		defer trans1.Close()
		trans2 := NewTestTransport(ttype, "127.0.0.1:0", t)
		defer trans2.Close()

		connectTestTransports(t, trans1, trans2)

		_, err := trans1.Dial(context.Background(), trans2.LocalAddr(), "/test/none/1.0.0")
		if !errors.Is(err, ErrNoHandler) {
			t.Fatalf("transport %d: expected ErrNoHandler, got %v", ttype, err)
		}
	}
}

func TestTransport_PeerEvents(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1 := NewTestTransport(ttype, "127.0.0.1:0", t)
		defer trans1.Close()
		trans2 := NewTestTransport(ttype, "127.0.0.1:0", t)
		defer trans2.Close()

		connectTestTransports(t, trans1, trans2)

		for _, pair := range [][2]Transport{{trans1, trans2}, {trans2, trans1}} {
			select {
			case ev := <-pair[0].PeerEvents():
				require.Equal(t, PeerIdentified, ev.Type)
				require.Equal(t, pair[1].LocalAddr(), ev.Peer)
			case <-time.After(2 * time.Second):
				t.Fatalf("transport %d: no identify event", ttype)
			}
			require.Equal(t, []string{pair[1].LocalAddr()}, pair[0].Peers())
		}
	}
}

func TestInmemTransport_UnknownPeer(t *testing.T) {
	_, trans := NewInmemTransport("")
	defer trans.Close()

	_, err := trans.Dial(context.Background(), "nowhere", "/test/echo/1.0.0")
	if !errors.Is(err, ErrUnknownPeer) {
		t.Fatalf("expected ErrUnknownPeer, got %v", err)
	}
}

func TestInmemTransport_Disconnect(t *testing.T) {
	addr1, trans1 := NewInmemTransport("")
	addr2, trans2 := NewInmemTransport("")
	trans1.Connect(addr2, trans2)
	<-trans1.PeerEvents()

	trans1.Disconnect(addr2)

	ev := <-trans1.PeerEvents()
	if ev.Type != PeerDisconnected || ev.Peer != addr2 {
		t.Fatalf("bad event %v", ev)
	}

	// publishing to nobody is not an error
	if err := trans1.Publish("transaction", []byte(addr1)); err != nil {
		t.Fatalf("err: %v", err)
	}

	trans1.Close()
	if err := trans1.Publish("transaction", nil); err != ErrTransportShutdown {
		t.Fatalf("expected ErrTransportShutdown, got %v", err)
	}
}
