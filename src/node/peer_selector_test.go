package node

import (
	"testing"
)

func TestRandomPeerSelector(t *testing.T) {
	peers := []string{"self", "a", "b"}
	ps := NewRandomPeerSelector(func() []string { return peers }, "self")

	for i := 0; i < 50; i++ {
		next := ps.Next()
		if next == "self" || next == "" {
			t.Fatalf("bad peer %q", next)
		}
		if next == ps.last {
			t.Fatalf("picked %q twice in a row", next)
		}
		ps.UpdateLast(next)
	}

	peers = []string{"self", "a"}
	ps.UpdateLast("a")
	if next := ps.Next(); next != "a" {
		t.Fatalf("the only peer should be picked, got %q", next)
	}

	peers = []string{"self"}
	if next := ps.Next(); next != "" {
		t.Fatalf("expected no peer, got %q", next)
	}
}

func TestCompanions(t *testing.T) {
	c := NewCompanions()
	c.Set("p2", Profile{ID: "b", Name: "Bob"})
	c.Set("p1", Profile{ID: "a", Name: "Alice"})

	all := c.All()
	if len(all) != 2 || all[0].Name != "Alice" || all[1].Name != "Bob" {
		t.Fatalf("bad companions %v", all)
	}

	if !c.Remove("p1") || c.Remove("p1") {
		t.Fatalf("Remove should report whether the peer was known")
	}
	if c.Has("p1") || !c.Has("p2") {
		t.Fatalf("bad registry state")
	}

	p := Profile{ID: "x", Name: "X", Personality: "calm", Story: "s", Sample: "hello"}
	data, err := p.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	var q Profile
	if err := q.Unmarshal(data); err != nil {
		t.Fatal(err)
	}
	if q != p {
		t.Fatalf("got %v, want %v", q, p)
	}
}
