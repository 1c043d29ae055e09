package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mosaicnetworks/parley/src/common"
	"github.com/mosaicnetworks/parley/src/ledger"
	"github.com/mosaicnetworks/parley/src/node"
	"github.com/mosaicnetworks/parley/src/oracle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConversation is an in-memory Conversation with an unlimited budget.
type fakeConversation struct {
	sync.Mutex
	history []ledger.Utterance
	changes chan struct{}
}

func newFakeConversation() *fakeConversation {
	return &fakeConversation{changes: make(chan struct{}, 1)}
}

func (f *fakeConversation) Profile() node.Profile      { return node.Profile{Name: "tester"} }
func (f *fakeConversation) Companions() []node.Profile { return nil }
func (f *fakeConversation) Available() float64         { return 100 }
func (f *fakeConversation) Params() ledger.Params      { return ledger.DefaultParams() }
func (f *fakeConversation) Changes() <-chan struct{}   { return f.changes }

func (f *fakeConversation) History() []ledger.Utterance {
	f.Lock()
	defer f.Unlock()
	return append([]ledger.Utterance{}, f.history...)
}

func (f *fakeConversation) Consume(actorID string, amount float64, payload string) node.Receipt {
	f.say(actorID, payload)
	return node.Receipt{Accepted: true, AvailableAfter: 100}
}

func (f *fakeConversation) say(actorID, payload string) {
	f.Lock()
	f.history = append(f.history, ledger.Utterance{ActorID: actorID, Payload: payload})
	f.Unlock()
	select {
	case f.changes <- struct{}{}:
	default:
	}
}

type failingOracle struct{}

func (failingOracle) Decide(ctx context.Context, s oracle.Situation) (oracle.Decision, error) {
	return oracle.Decision{}, errors.New("unavailable")
}

func newTestSpeaker(t *testing.T, conv Conversation, o oracle.Oracle) *Speaker {
	return NewSpeaker(conv, o, "me", time.Hour, time.Second, common.NewTestEntry(t, common.TestLogLevel))
}

func TestTurn(t *testing.T) {
	conv := newFakeConversation()
	s := newTestSpeaker(t, conv, oracle.NewScripted([]string{"one", "two"}))
	ctx := context.Background()

	require.True(t, s.Turn(ctx, false))
	// does not answer itself
	require.False(t, s.Turn(ctx, false))

	conv.say("you", "and then?")
	require.True(t, s.Turn(ctx, false))

	// but breaks the silence
	require.True(t, s.Turn(ctx, true))

	assert.Equal(t, []ledger.Utterance{
		{ActorID: "me", Payload: "one"},
		{ActorID: "you", Payload: "and then?"},
		{ActorID: "me", Payload: "two"},
		{ActorID: "me", Payload: "one"},
	}, conv.History())
}

func TestTurnOracleFailure(t *testing.T) {
	conv := newFakeConversation()
	s := newTestSpeaker(t, conv, failingOracle{})

	assert.False(t, s.Turn(context.Background(), true))
	assert.Empty(t, conv.History())
}

func TestSituation(t *testing.T) {
	conv := newFakeConversation()
	conv.say("you", "hi")
	s := newTestSpeaker(t, conv, failingOracle{})

	sit := s.Situation()
	assert.Equal(t, "me", sit.Self.ID)
	assert.Equal(t, "tester", sit.Self.Name)
	assert.Equal(t, ledger.DefaultCapacity, sit.Capacity)
	assert.Equal(t, "you", sit.LastSpeaker())
}

// Run takes a turn every time the conversation changes.
func TestRunWakesOnChanges(t *testing.T) {
	conv := newFakeConversation()
	s := newTestSpeaker(t, conv, oracle.NewScripted([]string{"reply"}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		conv.say("you", "ping")
		require.Eventually(t, func() bool {
			h := conv.History()
			return h[len(h)-1].ActorID == "me"
		}, 2*time.Second, 10*time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run should return when the context is cancelled")
	}

	assert.Len(t, conv.History(), 6)
}
