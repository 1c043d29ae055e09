package agent

import (
	"context"
	"time"

	"github.com/mosaicnetworks/parley/src/ledger"
	"github.com/mosaicnetworks/parley/src/node"
	"github.com/mosaicnetworks/parley/src/oracle"
	"github.com/sirupsen/logrus"
)

// Conversation is the view of the Node the Speaker works with.
type Conversation interface {
	Profile() node.Profile
	Companions() []node.Profile
	History() []ledger.Utterance
	Available() float64
	Params() ledger.Params
	Changes() <-chan struct{}
	Consume(actorID string, amount float64, payload string) node.Receipt
}

// Speaker runs the turns of one actor. Turns never overlap: the next one
// starts after the previous decision was submitted.
type Speaker struct {
	conv     Conversation
	oracle   oracle.Oracle
	actor    string
	interval time.Duration
	timeout  time.Duration
	logger   *logrus.Entry
}

// NewSpeaker creates a Speaker for actor. interval is the longest time the
// Speaker waits without considering a turn. A positive timeout bounds every
// decision.
func NewSpeaker(conv Conversation,
	o oracle.Oracle,
	actor string,
	interval time.Duration,
	timeout time.Duration,
	logger *logrus.Entry) *Speaker {

	return &Speaker{
		conv:     conv,
		oracle:   o,
		actor:    actor,
		interval: interval,
		timeout:  timeout,
		logger:   logger.WithField("actor", actor),
	}
}

// Run takes turns until ctx is done.
func (s *Speaker) Run(ctx context.Context) {
	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.conv.Changes():
			s.Turn(ctx, false)
		case <-timer.C:
			s.Turn(ctx, true)
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.interval)
	}
}

// Situation returns what the actor knows right now.
func (s *Speaker) Situation() oracle.Situation {
	self := s.conv.Profile()
	self.ID = s.actor

	return oracle.Situation{
		Self:       self,
		Companions: s.conv.Companions(),
		History:    s.conv.History(),
		Available:  s.conv.Available(),
		Capacity:   s.conv.Params().Capacity,
	}
}

// Turn asks the oracle once and submits its decision. It reports whether the
// actor spoke. A turn triggered by a change is skipped when the actor spoke
// last. An idle turn, taken when nothing happened for a whole interval, always
// asks the oracle; it may extend one side of an equal-length fork, which
// resolves the fork.
func (s *Speaker) Turn(ctx context.Context, idle bool) bool {
	situation := s.Situation()
	if !idle && situation.LastSpeaker() == s.actor {
		return false
	}

	decideCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		decideCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	decision, err := s.oracle.Decide(decideCtx, situation)
	if err != nil {
		// stay quiet when the agent is stopping
		if ctx.Err() == nil {
			s.logger.WithError(err).Warn("Oracle")
		}
		return false
	}

	if !decision.Speak {
		return false
	}

	receipt := s.conv.Consume(s.actor, decision.Amount, decision.Message)

	s.logger.WithFields(logrus.Fields{
		"amount":    decision.Amount,
		"accepted":  receipt.Accepted,
		"available": ledger.Round2(receipt.AvailableAfter),
	}).Debug("Turn")

	return receipt.Accepted
}
