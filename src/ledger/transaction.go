package ledger

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/mosaicnetworks/parley/src/crypto"
	"github.com/ugorji/go/codec"
)

// Kind tells whether a Transaction takes capacity from the window or gives it
// back.
type Kind string

const (
	// Consume counts the amount against the window.
	Consume Kind = "CONSUME"
	// Release gives the amount back to the window. Only the genesis entry
	// carries it in practice.
	Release Kind = "RELEASE"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == Consume || k == Release
}

// GenesisActor is the actor of every genesis entry.
const GenesisActor = "system"

// Transaction is an immutable ledger entry.
type Transaction struct {
	ActorID   string  `json:"actorId"`
	Kind      Kind    `json:"kind"`
	Amount    float64 `json:"amount"`
	Payload   string  `json:"payload"`
	Timestamp int64   `json:"timestamp"`
	PrevHash  string  `json:"prevHash"`
	Hash      string  `json:"hash"`
}

// NewTransaction creates a Transaction chained after prevHash and computes its
// hash.
func NewTransaction(actorID string,
	kind Kind,
	amount float64,
	payload string,
	prevHash string,
	timestamp int64) Transaction {

	tx := Transaction{
		ActorID:   actorID,
		Kind:      kind,
		Amount:    amount,
		Payload:   payload,
		Timestamp: timestamp,
		PrevHash:  prevHash,
	}
	tx.Hash = tx.ComputeHash()
	return tx
}

// NewGenesis creates the entry found at index 0 of every Ledger.
func NewGenesis(payload string) Transaction {
	return NewTransaction(GenesisActor, Release, 0, payload, "", 0)
}

// ComputeHash returns the hex SHA256 digest of the hashed fields. Strings are
// quoted so that separators inside a field cannot produce collisions.
func (t *Transaction) ComputeHash() string {
	data := fmt.Sprintf("%q:%q:%s:%q:%d:%q",
		t.ActorID,
		string(t.Kind),
		strconv.FormatFloat(t.Amount, 'g', -1, 64),
		t.Payload,
		t.Timestamp,
		t.PrevHash)
	return crypto.SHA256Hex([]byte(data))
}

// IsGenesis reports whether the transaction has the shape of a genesis entry.
func (t *Transaction) IsGenesis() bool {
	return t.PrevHash == "" &&
		t.Timestamp == 0 &&
		t.Kind == Release &&
		t.Amount == 0
}

// ValidateHash recomputes the digest and compares it with the stored one.
func ValidateHash(tx Transaction) bool {
	return tx.Hash == tx.ComputeHash()
}

// ValidateLink checks tx against its predecessor. A nil prev stands for the
// genesis position.
func ValidateLink(tx Transaction, prev *Transaction) bool {
	if prev == nil {
		return tx.PrevHash == ""
	}
	return tx.PrevHash == prev.Hash
}

// validAmount reports whether amount is finite and within [0, capacity].
func validAmount(amount float64, capacity float64) bool {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return false
	}
	return amount >= 0 && amount <= capacity+epsilon
}

// checkShape rejects decoded values that cannot be Transactions whatever their
// position in a chain.
func (t *Transaction) checkShape() error {
	if !t.Kind.Valid() {
		return fmt.Errorf("unknown kind %q", t.Kind)
	}
	if t.Hash == "" {
		return fmt.Errorf("missing hash")
	}
	if math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) {
		return fmt.Errorf("amount is not a finite number")
	}
	return checkText(t.ActorID, t.Payload)
}

// checkText rejects actors and payloads that are not valid UTF-8. The wire
// encoding replaces invalid bytes, so such an entry would not hash the same
// once received.
func checkText(actorID string, payload string) error {
	if !utf8.ValidString(actorID) {
		return fmt.Errorf("actorId is not valid UTF-8")
	}
	if !utf8.ValidString(payload) {
		return fmt.Errorf("payload is not valid UTF-8")
	}
	return nil
}

/*******************************************************************************
Wire
*******************************************************************************/

func jsonHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	return jh
}

// Marshal returns the JSON wire encoding of the Transaction.
func (t *Transaction) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, jsonHandle())

	if err := enc.Encode(t); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal decodes a Transaction from its wire encoding and checks its shape.
func (t *Transaction) Unmarshal(data []byte) error {
	dec := codec.NewDecoderBytes(data, jsonHandle())

	if err := dec.Decode(t); err != nil {
		return NewLedgerErr(Malformed, -1, err.Error())
	}

	if err := t.checkShape(); err != nil {
		return NewLedgerErr(Malformed, -1, err.Error())
	}

	return nil
}

// MarshalChain encodes a sequence of Transactions as a JSON array.
func MarshalChain(txs []Transaction) ([]byte, error) {
	if txs == nil {
		txs = []Transaction{}
	}

	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, jsonHandle())

	if err := enc.Encode(txs); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// UnmarshalChain decodes a JSON array of Transactions. Every element must pass
// the same shape check as a single Transaction.
func UnmarshalChain(data []byte) ([]Transaction, error) {
	var txs []Transaction

	dec := codec.NewDecoderBytes(data, jsonHandle())
	if err := dec.Decode(&txs); err != nil {
		return nil, NewLedgerErr(Malformed, -1, err.Error())
	}

	for i := range txs {
		if err := txs[i].checkShape(); err != nil {
			return nil, NewLedgerErr(Malformed, i, err.Error())
		}
	}

	return txs, nil
}
