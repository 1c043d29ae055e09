package consensus

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mosaicnetworks/parley/src/ledger"
)

type testClock struct {
	ms int64
}

func (c *testClock) Now() time.Time {
	return time.UnixMilli(c.ms)
}

func newPair(clock *testClock) (*ledger.Ledger, *ledger.Ledger) {
	params := ledger.Params{Capacity: 100, Window: 5 * time.Second, Clock: clock.Now}
	return ledger.New(params, "genesis"), ledger.New(params, "genesis")
}

func appendConsume(t *testing.T, l *ledger.Ledger, actor string, amount float64) ledger.Transaction {
	tx := l.NewConsume(actor, amount, actor+" speaks")
	if err := l.Append(tx); err != nil {
		t.Fatalf("Append: %v", err)
	}
	return tx
}

func TestMergeExtendingTransaction(t *testing.T) {
	clock := &testClock{ms: 1}
	a, b := newPair(clock)

	tx := appendConsume(t, a, "alice", 10)

	if r := Classify(b, tx); r != Extends {
		t.Fatalf("tx should extend b, got %s", r)
	}

	if !MergeTransaction(b, tx) {
		t.Fatalf("MergeTransaction should accept a direct extension")
	}

	if diff := cmp.Diff(a.All(), b.All()); diff != "" {
		t.Fatalf("ledgers differ (-a +b):\n%s", diff)
	}

	if r := Classify(b, tx); r != Known {
		t.Fatalf("tx should now be known, got %s", r)
	}
}

func TestMergeRejectsInvalidExtension(t *testing.T) {
	clock := &testClock{ms: 1}
	a, b := newPair(clock)

	appendConsume(t, b, "bob", 90)
	tx := a.NewConsume("alice", 50, "")
	tx.PrevHash = b.Tip().Hash
	tx.Hash = tx.ComputeHash()

	if MergeTransaction(b, tx) {
		t.Fatalf("MergeTransaction should reject an over-budget extension")
	}
	if b.Len() != 2 {
		t.Fatalf("b should be unchanged")
	}
}

// Scenarios C and D: a fork of equal length is left alone, and resolved once
// one side grows.
func TestForkResolution(t *testing.T) {
	clock := &testClock{ms: 1}
	a, b := newPair(clock)

	tx2 := appendConsume(t, a, "alice", 10)
	clock.ms = 2
	appendConsume(t, b, "bob", 20)

	if r := Classify(b, tx2); r != Diverges {
		t.Fatalf("tx2 should diverge from b, got %s", r)
	}
	if MergeTransaction(b, tx2) {
		t.Fatalf("MergeTransaction should refuse a non-extending tx")
	}

	bTip := b.Tip().Hash

	if ResolveConflict(b, a.All()) {
		t.Fatalf("ResolveConflict should refuse an equal-length chain")
	}
	if b.Tip().Hash != bTip {
		t.Fatalf("b should keep its own fork")
	}

	clock.ms = 3
	appendConsume(t, a, "alice", 10)

	if !ResolveConflict(b, a.All()) {
		t.Fatalf("ResolveConflict should adopt a longer valid chain")
	}

	if diff := cmp.Diff(a.All(), b.All()); diff != "" {
		t.Fatalf("ledgers differ (-a +b):\n%s", diff)
	}
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("fingerprints should match")
	}
}

func TestResolveConflictIdempotent(t *testing.T) {
	clock := &testClock{ms: 1}
	a, b := newPair(clock)

	appendConsume(t, b, "bob", 10)
	appendConsume(t, a, "alice", 10)
	before := b.All()

	for i := 0; i < 2; i++ {
		if ResolveConflict(b, a.All()) {
			t.Fatalf("call %d: a short chain should not replace b", i)
		}
		if diff := cmp.Diff(before, b.All()); diff != "" {
			t.Fatalf("call %d: b changed (-before +after):\n%s", i, diff)
		}
	}
}

func TestResolveConflictRejectsInvalidLongerChain(t *testing.T) {
	clock := &testClock{ms: 1}
	a, b := newPair(clock)

	appendConsume(t, a, "alice", 10)
	appendConsume(t, a, "alice", 10)

	chain := a.All()
	chain[1].Payload = "forged"

	if ResolveConflict(b, chain) {
		t.Fatalf("ResolveConflict should refuse a corrupt chain")
	}
	if b.Len() != 1 {
		t.Fatalf("b should be unchanged")
	}
}

func TestLongestChainConvergence(t *testing.T) {
	clock := &testClock{ms: 1}
	a, b := newPair(clock)

	for i := 0; i < 3; i++ {
		tx := appendConsume(t, a, "alice", 5)
		if !MergeTransaction(b, tx) {
			t.Fatalf("shared prefix should merge")
		}
	}
	for i := 0; i < 4; i++ {
		clock.ms += 100
		appendConsume(t, a, "alice", 5)
	}

	if !ResolveConflict(b, a.All()) {
		t.Fatalf("ResolveConflict should adopt the longer chain")
	}
	if diff := cmp.Diff(a.All(), b.All()); diff != "" {
		t.Fatalf("ledgers differ (-a +b):\n%s", diff)
	}
}

func TestSelectLongest(t *testing.T) {
	clock := &testClock{ms: 1}
	a, b := newPair(clock)
	appendConsume(t, a, "alice", 5)
	appendConsume(t, b, "bob", 5)
	appendConsume(t, b, "bob", 5)

	if SelectLongest(nil) != nil {
		t.Fatalf("no candidates should give nil")
	}

	best := SelectLongest([][]ledger.Transaction{a.All(), b.All(), nil})
	if len(best) != 3 || best[2].Hash != b.Tip().Hash {
		t.Fatalf("SelectLongest should pick b's chain")
	}

	tie := SelectLongest([][]ledger.Transaction{a.All(), b.All()[:2]})
	if tie[1].Hash != a.Tip().Hash {
		t.Fatalf("SelectLongest should keep the first candidate on ties")
	}
}
