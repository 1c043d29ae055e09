package ledger

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

// Any interleaving of clock steps and consumption attempts keeps the ledger
// valid and the available budget within [0, capacity]. An attempt is accepted
// exactly when CanConsume said it would be.
func TestBudgetInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		clock := &testClock{ms: rapid.Int64Range(0, 10000).Draw(t, "start")}
		capacity := rapid.SampledFrom([]float64{1, 100}).Draw(t, "capacity")
		l := New(Params{
			Capacity: capacity,
			Window:   time.Duration(rapid.Int64Range(0, 10000).Draw(t, "window")) * time.Millisecond,
			Clock:    clock.Now,
		}, "")

		steps := rapid.IntRange(1, 50).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			clock.ms += rapid.Int64Range(0, 3000).Draw(t, "dt")
			amount := rapid.Float64Range(0, capacity*1.2).Draw(t, "amount")

			can := l.CanConsume(amount)
			err := l.Append(l.NewConsume("actor", amount, ""))

			if can && err != nil {
				t.Fatalf("CanConsume(%v) was true but Append failed: %v", amount, err)
			}
			if !can && err == nil {
				t.Fatalf("CanConsume(%v) was false but Append succeeded", amount)
			}

			if err := l.Validate(); err != nil {
				t.Fatalf("ledger should always validate: %v", err)
			}

			if a := l.Available(); a < 0 || a > capacity {
				t.Fatalf("available %v outside [0, %v]", a, capacity)
			}
		}
	})
}

// A chain that is a strict extension of another one is accepted by Replace and
// leaves both ledgers identical.
func TestReplaceConverges(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		clock := &testClock{ms: 1}
		l1 := New(Params{Capacity: 100, Window: time.Second, Clock: clock.Now}, "")
		l2 := New(Params{Capacity: 100, Window: time.Second, Clock: clock.Now}, "")

		n := rapid.IntRange(1, 20).Draw(t, "n")
		prefix := rapid.IntRange(0, n).Draw(t, "prefix")
		for i := 0; i < n; i++ {
			clock.ms += rapid.Int64Range(0, 500).Draw(t, "dt")
			amount := rapid.Float64Range(0, 30).Draw(t, "amount")
			tx := l2.NewConsume("actor", amount, "")
			if l2.Append(tx) == nil && i < prefix {
				if err := l1.Append(tx); err != nil {
					t.Fatalf("shared prefix should append: %v", err)
				}
			}
		}

		if l2.Len() <= l1.Len() {
			return
		}

		if err := l1.Replace(l2.All()); err != nil {
			t.Fatalf("Replace should accept a valid chain: %v", err)
		}
		if l1.Fingerprint() != l2.Fingerprint() || l1.Len() != l2.Len() {
			t.Fatalf("ledgers should be identical after Replace")
		}
	})
}
