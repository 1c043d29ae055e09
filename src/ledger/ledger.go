package ledger

import (
	"fmt"
	"math"
	"time"

	"github.com/mosaicnetworks/parley/src/merkle"
)

// epsilon absorbs float summation error. Every budget comparison goes through
// it so that local checks and chain validation agree.
const epsilon = 1e-9

// Default budget parameters.
const (
	DefaultCapacity = 100.0
	DefaultWindow   = 5000 * time.Millisecond
)

// Params are the budget parameters of a Ledger. All agents of a network must
// use the same Capacity and Window, otherwise they will disagree about which
// chains are valid.
type Params struct {
	// Capacity is the total amount that may be consumed within one Window.
	Capacity float64

	// Window is the recovery interval. A consumption stops counting once it is
	// Window old.
	Window time.Duration

	// Clock returns the current time. Nil means time.Now.
	Clock func() time.Time
}

// DefaultParams returns Params with DefaultCapacity and DefaultWindow.
func DefaultParams() Params {
	return Params{
		Capacity: DefaultCapacity,
		Window:   DefaultWindow,
	}
}

func (p Params) now() int64 {
	if p.Clock == nil {
		return time.Now().UnixMilli()
	}
	return p.Clock().UnixMilli()
}

func (p Params) windowMs() int64 {
	return p.Window.Milliseconds()
}

// Utterance is the display projection of a Transaction.
type Utterance struct {
	ActorID string `json:"actorId"`
	Payload string `json:"payload"`
}

// Ledger is one agent's view of the chain. Index 0 is always a genesis entry.
// A Ledger is not safe for concurrent use; callers serialize access.
type Ledger struct {
	params Params
	txs    []Transaction
	byHash map[string]int
	tree   *merkle.Tree
}

// New creates a Ledger that contains only the genesis entry.
func New(params Params, genesisPayload string) *Ledger {
	l := &Ledger{params: params}
	l.reset([]Transaction{NewGenesis(genesisPayload)})
	return l
}

func (l *Ledger) reset(txs []Transaction) {
	l.txs = txs
	l.byHash = make(map[string]int, len(txs))
	l.tree = merkle.New()
	for i, tx := range txs {
		l.byHash[tx.Hash] = i
		l.addLeaf(tx)
	}
}

func (l *Ledger) addLeaf(tx Transaction) {
	data, _ := tx.Marshal()
	l.tree.AddLeaf(data)
}

// Params returns the budget parameters.
func (l *Ledger) Params() Params {
	return l.params
}

// Tip returns the last entry.
func (l *Ledger) Tip() Transaction {
	return l.txs[len(l.txs)-1]
}

// Len returns the number of entries, genesis included.
func (l *Ledger) Len() int {
	return len(l.txs)
}

// All returns a copy of the entries.
func (l *Ledger) All() []Transaction {
	res := make([]Transaction, len(l.txs))
	copy(res, l.txs)
	return res
}

// Get returns the entry at index i.
func (l *Ledger) Get(i int) (Transaction, bool) {
	if i < 0 || i >= len(l.txs) {
		return Transaction{}, false
	}
	return l.txs[i], true
}

// Contains reports whether an entry with this hash is in the chain.
func (l *Ledger) Contains(hash string) bool {
	_, ok := l.byHash[hash]
	return ok
}

// History projects the entries onto (actor, payload) pairs.
func (l *Ledger) History() []Utterance {
	res := make([]Utterance, 0, len(l.txs))
	for _, tx := range l.txs {
		res = append(res, Utterance{ActorID: tx.ActorID, Payload: tx.Payload})
	}
	return res
}

// Fingerprint returns the hex Merkle root of the entries.
func (l *Ledger) Fingerprint() string {
	return l.tree.Hex()
}

// NextTimestamp is the timestamp for an entry created now. It never goes below
// the tip's, so that locally created entries keep timestamps non-decreasing.
func (l *Ledger) NextTimestamp() int64 {
	now := l.params.now()
	if tip := l.Tip(); tip.Timestamp > now {
		return tip.Timestamp
	}
	return now
}

// Available returns the capacity left in the window ending now.
func (l *Ledger) Available() float64 {
	return l.AvailableAt(l.params.now())
}

// AvailableAt returns the capacity left in the window ending at ts, clamped to
// [0, capacity].
func (l *Ledger) AvailableAt(ts int64) float64 {
	used := windowUsage(l.txs, len(l.txs)-1, ts, l.params.windowMs())
	return math.Max(0, math.Min(l.params.Capacity, l.params.Capacity-used))
}

// CanConsume reports whether an entry of this amount created now would be
// accepted.
func (l *Ledger) CanConsume(amount float64) bool {
	return l.CheckConsume(amount) == nil
}

// CheckConsume is CanConsume with the reason of a refusal, BadAmount or
// OverBudget.
func (l *Ledger) CheckConsume(amount float64) error {
	if !validAmount(amount, l.params.Capacity) {
		return NewLedgerErr(BadAmount, len(l.txs), fmt.Sprintf("%v", amount))
	}
	if available := l.AvailableAt(l.NextTimestamp()); amount > available+epsilon {
		return NewLedgerErr(OverBudget, len(l.txs), fmt.Sprintf("%v > %v", amount, available))
	}
	return nil
}

// NewConsume builds a CONSUME entry chained after the tip. It does not append
// it.
func (l *Ledger) NewConsume(actorID string, amount float64, payload string) Transaction {
	return NewTransaction(actorID, Consume, amount, payload, l.Tip().Hash, l.NextTimestamp())
}

// Append adds tx at the end of the chain. The entry must link to the tip and
// carry a correct hash. It is then committed and the whole chain is
// revalidated; if that fails the entry is popped again and the Ledger is left
// as it was.
func (l *Ledger) Append(tx Transaction) error {
	tip := l.Tip()
	idx := len(l.txs)

	if err := checkText(tx.ActorID, tx.Payload); err != nil {
		return NewLedgerErr(Malformed, idx, err.Error())
	}

	if !ValidateLink(tx, &tip) {
		return NewLedgerErr(BadLink, idx, fmt.Sprintf("prevHash %.8s does not match tip %.8s", tx.PrevHash, tip.Hash))
	}

	if !ValidateHash(tx) {
		return NewLedgerErr(BadHash, idx, "")
	}

	l.txs = append(l.txs, tx)

	if err := validateChain(l.params, l.txs); err != nil {
		l.txs = l.txs[:idx]
		return err
	}

	l.byHash[tx.Hash] = idx
	l.addLeaf(tx)

	return nil
}

// Validate checks every entry for hash and link integrity, amount bounds,
// timestamp order and the budget invariant.
func (l *Ledger) Validate() error {
	return validateChain(l.params, l.txs)
}

// Replace swaps the chain for txs if, and only if, txs is valid on its own.
func (l *Ledger) Replace(txs []Transaction) error {
	candidate := make([]Transaction, len(txs))
	copy(candidate, txs)

	if len(candidate) == 0 {
		return NewLedgerErr(Empty, -1, "")
	}

	scratch := &Ledger{params: l.params}
	scratch.reset(candidate)

	if err := scratch.Validate(); err != nil {
		return err
	}

	*l = *scratch

	return nil
}

// windowUsage sums the signed amounts of entries 1..upto whose timestamps fall
// within the window ending at ts. Entries after ts count fully. Timestamps are
// non-decreasing, so the scan stops at the first entry that aged out.
func windowUsage(txs []Transaction, upto int, ts int64, windowMs int64) float64 {
	used := 0.0
	for j := upto; j >= 1; j-- {
		if ts-txs[j].Timestamp >= windowMs {
			break
		}
		switch txs[j].Kind {
		case Consume:
			used += txs[j].Amount
		case Release:
			used -= txs[j].Amount
		}
	}
	return used
}

func validateChain(p Params, txs []Transaction) error {
	if len(txs) == 0 {
		return NewLedgerErr(Empty, -1, "")
	}

	for i := range txs {
		tx := txs[i]

		var prev *Transaction
		if i > 0 {
			prev = &txs[i-1]
		}

		if !ValidateLink(tx, prev) {
			return NewLedgerErr(BadLink, i, "")
		}

		if !ValidateHash(tx) {
			return NewLedgerErr(BadHash, i, "")
		}

		if err := checkText(tx.ActorID, tx.Payload); err != nil {
			return NewLedgerErr(Malformed, i, err.Error())
		}

		if i == 0 {
			if !tx.IsGenesis() {
				return NewLedgerErr(BadGenesis, i, "")
			}
			continue
		}

		if !tx.Kind.Valid() || !validAmount(tx.Amount, p.Capacity) {
			return NewLedgerErr(BadAmount, i, fmt.Sprintf("%v", tx.Amount))
		}

		if tx.Timestamp < prev.Timestamp {
			return NewLedgerErr(BadTimestamp, i, fmt.Sprintf("%d < %d", tx.Timestamp, prev.Timestamp))
		}

		if used := windowUsage(txs, i, tx.Timestamp, p.windowMs()); used > p.Capacity+epsilon {
			return NewLedgerErr(OverBudget, i, fmt.Sprintf("%v > %v", used, p.Capacity))
		}
	}

	return nil
}

// Round2 rounds v to two decimals, for display only.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
