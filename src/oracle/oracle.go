package oracle

import (
	"context"
	"unicode/utf8"

	"github.com/mosaicnetworks/parley/src/ledger"
	"github.com/mosaicnetworks/parley/src/node"
)

// CostPerChar is the capacity consumed by every character of an utterance
// when no explicit amount is given.
const CostPerChar = 0.5

// Situation is what an agent knows when it considers speaking.
type Situation struct {
	Self       node.Profile
	Companions []node.Profile
	History    []ledger.Utterance
	Available  float64
	Capacity   float64
}

// LastSpeaker returns the actor of the last utterance, or "" when nobody spoke
// yet.
func (s Situation) LastSpeaker() string {
	if len(s.History) == 0 {
		return ""
	}
	return s.History[len(s.History)-1].ActorID
}

// Decision is the answer of an Oracle.
type Decision struct {
	Speak   bool    `json:"speak"`
	Amount  float64 `json:"amount"`
	Message string  `json:"message"`
}

// Oracle decides what an agent does next.
type Oracle interface {
	Decide(ctx context.Context, s Situation) (Decision, error)
}

// Cost returns the default amount of an utterance, CostPerChar per character,
// rounded to 2 decimals and clamped to [0, capacity].
func Cost(message string, capacity float64) float64 {
	return Clamp(ledger.Round2(float64(utf8.RuneCountInString(message))*CostPerChar), capacity)
}

// Clamp bounds amount to [0, capacity].
func Clamp(amount, capacity float64) float64 {
	if amount < 0 {
		return 0
	}
	if amount > capacity {
		return capacity
	}
	return amount
}

// normalize enforces the shape of a Decision: silent decisions carry nothing,
// and the amount of an utterance is positive and within capacity.
func normalize(d Decision, capacity float64) Decision {
	if !d.Speak || d.Message == "" {
		return Decision{}
	}
	d.Amount = Clamp(d.Amount, capacity)
	if d.Amount == 0 {
		d.Amount = Cost(d.Message, capacity)
	}
	if d.Amount == 0 {
		return Decision{}
	}
	return d
}
