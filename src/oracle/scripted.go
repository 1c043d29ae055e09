package oracle

import (
	"context"
	"sync"
)

// Scripted is a deterministic Oracle that says its lines in order, and starts
// over when it reaches the end. It waits when the next line costs more than
// what is available.
type Scripted struct {
	sync.Mutex
	lines []string
	next  int
}

// NewScripted ...
func NewScripted(lines []string) *Scripted {
	return &Scripted{
		lines: append([]string{}, lines...),
	}
}

// Decide implements the Oracle interface.
func (o *Scripted) Decide(ctx context.Context, s Situation) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	o.Lock()
	defer o.Unlock()

	if len(o.lines) == 0 {
		return Decision{}, nil
	}

	line := o.lines[o.next]
	cost := Cost(line, s.Capacity)
	if cost > s.Available {
		return Decision{}, nil
	}

	o.next = (o.next + 1) % len(o.lines)

	return normalize(Decision{
		Speak:   true,
		Amount:  cost,
		Message: line,
	}, s.Capacity), nil
}
