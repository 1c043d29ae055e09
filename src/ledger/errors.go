package ledger

import "fmt"

// ErrType ...
type ErrType uint32

const (
	// BadLink is a prevHash that does not match the predecessor's hash.
	BadLink ErrType = iota
	// BadHash is a stored hash that does not match the recomputed one.
	BadHash
	// BadGenesis is an index 0 that is not a genesis entry.
	BadGenesis
	// BadAmount is an amount outside [0, capacity].
	BadAmount
	// BadTimestamp is a timestamp earlier than the predecessor's.
	BadTimestamp
	// OverBudget is an entry that makes the window exceed capacity.
	OverBudget
	// Empty is a chain with no genesis.
	Empty
	// Malformed is input that could not be decoded into Transactions, or text
	// that is not valid UTF-8.
	Malformed
)

// String ...
func (t ErrType) String() string {
	switch t {
	case BadLink:
		return "Bad Link"
	case BadHash:
		return "Bad Hash"
	case BadGenesis:
		return "Bad Genesis"
	case BadAmount:
		return "Bad Amount"
	case BadTimestamp:
		return "Bad Timestamp"
	case OverBudget:
		return "Over Budget"
	case Empty:
		return "Empty"
	case Malformed:
		return "Malformed"
	default:
		return "Unknown"
	}
}

// LedgerErr describes why a Transaction or a chain was rejected. Index is the
// position of the offending entry, or -1 when it does not apply.
type LedgerErr struct {
	errType ErrType
	index   int
	detail  string
}

// NewLedgerErr ...
func NewLedgerErr(errType ErrType, index int, detail string) LedgerErr {
	return LedgerErr{
		errType: errType,
		index:   index,
		detail:  detail,
	}
}

// Type returns the category of the error.
func (e LedgerErr) Type() ErrType {
	return e.errType
}

// Index returns the position of the offending entry.
func (e LedgerErr) Index() int {
	return e.index
}

// Error ...
func (e LedgerErr) Error() string {
	if e.detail == "" {
		return fmt.Sprintf("ledger, %d, %s", e.index, e.errType)
	}
	return fmt.Sprintf("ledger, %d, %s: %s", e.index, e.errType, e.detail)
}

// IsLedgerErr checks that an error is of type LedgerErr and that its code
// matches the provided ErrType.
func IsLedgerErr(err error, t ErrType) bool {
	ledgerErr, ok := err.(LedgerErr)
	return ok && ledgerErr.errType == t
}
