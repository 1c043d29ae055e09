package ledger

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestGenesis(t *testing.T) {
	g := NewGenesis("hello")

	if !g.IsGenesis() {
		t.Fatalf("NewGenesis should produce a genesis entry")
	}
	if !ValidateHash(g) {
		t.Fatalf("genesis hash should validate")
	}
	if !ValidateLink(g, nil) {
		t.Fatalf("genesis should link to nothing")
	}

	if NewGenesis("hello").Hash != g.Hash {
		t.Fatalf("genesis should be deterministic")
	}
	if NewGenesis("bye").Hash == g.Hash {
		t.Fatalf("genesis payload should be part of the hash")
	}
}

func TestValidateLink(t *testing.T) {
	g := NewGenesis("")
	tx := NewTransaction("alice", Consume, 1, "", g.Hash, 1)

	if !ValidateLink(tx, &g) {
		t.Fatalf("tx should link to genesis")
	}
	if ValidateLink(tx, nil) {
		t.Fatalf("non-genesis tx should not be accepted at the genesis position")
	}

	other := NewTransaction("bob", Consume, 1, "", g.Hash, 1)
	if ValidateLink(tx, &other) {
		t.Fatalf("tx should not link to an unrelated entry")
	}
}

func TestHashSeparators(t *testing.T) {
	a := NewTransaction("a:b", Consume, 1, "c", "", 1)
	b := NewTransaction("a", Consume, 1, "b:c", "", 1)

	if a.Hash == b.Hash {
		t.Fatalf("fields containing separators should not collide")
	}
}

func TestWireRoundTrip(t *testing.T) {
	g := NewGenesis("")
	tx := NewTransaction("alice", Consume, 12.75, "こんにちは \"quoted\"", g.Hash, 1700000000123)

	data, err := tx.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	for _, field := range []string{"actorId", "kind", "amount", "payload", "timestamp", "prevHash", "hash"} {
		if !strings.Contains(string(data), "\""+field+"\"") {
			t.Fatalf("wire form should contain field %s: %s", field, data)
		}
	}

	var out Transaction
	if err := out.Unmarshal(data); err != nil {
		t.Fatal(err)
	}

	if out != tx {
		t.Fatalf("round trip mismatch: %#v != %#v", out, tx)
	}
	if !ValidateHash(out) || !ValidateLink(out, &g) {
		t.Fatalf("decoded tx should validate")
	}
}

func TestChainRoundTrip(t *testing.T) {
	clock := &testClock{ms: 5}
	l := newTestLedger(clock)
	consume(t, l, "alice", 10)
	consume(t, l, "bob", 20)

	data, err := MarshalChain(l.All())
	if err != nil {
		t.Fatal(err)
	}

	txs, err := UnmarshalChain(data)
	if err != nil {
		t.Fatal(err)
	}

	other := newTestLedger(clock)
	if err := other.Replace(txs); err != nil {
		t.Fatalf("decoded chain should validate: %v", err)
	}
	if other.Fingerprint() != l.Fingerprint() {
		t.Fatalf("fingerprints should match")
	}

	empty, err := MarshalChain(nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(empty) != "[]" {
		t.Fatalf("nil chain should encode as an empty array, got %s", empty)
	}
}

func TestUnmarshalMalformed(t *testing.T) {
	cases := []string{
		`not json`,
		`{"actorId":"a","kind":"STEAL","amount":1,"timestamp":1,"prevHash":"","hash":"x"}`,
		`{"actorId":"a","kind":"CONSUME","amount":1,"timestamp":1,"prevHash":""}`,
	}

	for _, c := range cases {
		var tx Transaction
		err := tx.Unmarshal([]byte(c))
		if !IsLedgerErr(err, Malformed) {
			t.Fatalf("Unmarshal(%s) should fail with Malformed, got %v", c, err)
		}
	}

	if _, err := UnmarshalChain([]byte(`[{"kind":"CONSUME"}]`)); !IsLedgerErr(err, Malformed) {
		t.Fatalf("UnmarshalChain should fail with Malformed, got %v", err)
	}
}

func TestCheckShapeText(t *testing.T) {
	tx := NewTransaction("alice", Consume, 1, "hi \xff", "", 1)
	if err := tx.checkShape(); err == nil {
		t.Fatalf("a payload that is not UTF-8 should be rejected")
	}

	tx = NewTransaction("alice", Consume, 1, "hi \ufffd", "", 1)
	if err := tx.checkShape(); err != nil {
		t.Fatalf("the replacement character is valid text: %v", err)
	}
}

func genTransaction(t *rapid.T) Transaction {
	return NewTransaction(
		rapid.String().Draw(t, "actor"),
		rapid.SampledFrom([]Kind{Consume, Release}).Draw(t, "kind"),
		rapid.Float64Range(0, 100).Draw(t, "amount"),
		rapid.String().Draw(t, "payload"),
		rapid.StringMatching(`[0-9a-f]{0,64}`).Draw(t, "prevHash"),
		rapid.Int64Range(0, 1<<45).Draw(t, "timestamp"),
	)
}

func TestHashDetectsTampering(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tx := genTransaction(t)

		if !ValidateHash(tx) {
			t.Fatalf("fresh tx should validate")
		}

		tampered := tx
		switch rapid.IntRange(0, 5).Draw(t, "field") {
		case 0:
			tampered.ActorID += "x"
		case 1:
			if tampered.Kind == Consume {
				tampered.Kind = Release
			} else {
				tampered.Kind = Consume
			}
		case 2:
			tampered.Amount += 1
		case 3:
			tampered.Payload += "x"
		case 4:
			tampered.Timestamp++
		case 5:
			tampered.PrevHash += "0"
		}

		if ValidateHash(tampered) {
			t.Fatalf("tampered tx should not validate: %#v", tampered)
		}
	})
}

func TestWireRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tx := genTransaction(t)

		data, err := tx.Marshal()
		if err != nil {
			t.Fatal(err)
		}

		var out Transaction
		if err := out.Unmarshal(data); err != nil {
			t.Fatal(err)
		}

		if !ValidateHash(out) {
			t.Fatalf("decoded tx should validate: %#v", out)
		}
	})
}
