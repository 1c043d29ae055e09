package peers

import (
	"testing"
)

func TestExcludePeer(t *testing.T) {
	peers := []*Peer{
		NewPeer("a", ""),
		NewPeer("b", ""),
		NewPeer("c", ""),
	}

	index, others := ExcludePeer(peers, "b")
	if index != 1 {
		t.Fatalf("index should be 1, not %d", index)
	}
	if len(others) != 2 || others[0].NetAddr != "a" || others[1].NetAddr != "c" {
		t.Fatalf("bad remaining peers %v", others)
	}

	index, others = ExcludePeer(peers, "z")
	if index != -1 || len(others) != 3 {
		t.Fatalf("excluding an unknown peer should be a no-op")
	}
}

func TestPeerSetOps(t *testing.T) {
	ps := NewPeerSetFromAddresses([]string{"a", "b", "a", ""})
	if ps.Len() != 2 {
		t.Fatalf("expected 2 peers, got %d", ps.Len())
	}

	ps2 := ps.WithNewPeer(NewPeer("c", "carol"))
	if ps2.Len() != 3 || ps.Len() != 2 {
		t.Fatalf("WithNewPeer should not modify the receiver")
	}

	ps3 := ps2.WithRemovedPeer(NewPeer("a", ""))
	if got := ps3.Addresses(); len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("bad addresses %v", got)
	}

	merged := NewPeerSet([]*Peer{NewPeer("c", "first")}).Merge(ps2)
	if merged.Len() != 3 || merged.ByAddr["c"].Moniker != "first" {
		t.Fatalf("bad merge %v", merged.Addresses())
	}

	if _, err := merged.Marshal(); err != nil {
		t.Fatalf("err: %v", err)
	}
}
