package node

import (
	"math/rand"
	"time"
)

type timerFactory func(time.Duration) <-chan time.Time

// ControlTimer paces the anti-entropy probes. Each tick is followed by a reset
// from the node, so the interval is the one given to the last reset.
type ControlTimer struct {
	timerFactory timerFactory
	tickCh       chan struct{}      //sends a signal to listening process
	resetCh      chan time.Duration //receives instruction to reset the heartbeatTimer
	stopCh       chan struct{}      //receives instruction to stop the heartbeatTimer
	shutdownCh   chan struct{}      //receives instruction to exit Run loop
	set          bool
}

// NewControlTimer ...
func NewControlTimer(timerFactory timerFactory) *ControlTimer {
	return &ControlTimer{
		timerFactory: timerFactory,
		tickCh:       make(chan struct{}),
		resetCh:      make(chan time.Duration),
		stopCh:       make(chan struct{}),
		shutdownCh:   make(chan struct{}),
	}
}

// NewRandomControlTimer returns a ControlTimer whose ticks come between min
// and 2*min after a reset, so that agents do not probe in lockstep.
func NewRandomControlTimer() *ControlTimer {

	randomTimeout := func(min time.Duration) <-chan time.Time {
		if min == 0 {
			return nil
		}
		extra := (time.Duration(rand.Int63()) % min)
		return time.After(min + extra)
	}
	return NewControlTimer(randomTimeout)
}

// Run ...
func (c *ControlTimer) Run(init time.Duration) {

	setTimer := func(t time.Duration) <-chan time.Time {
		c.set = true
		return c.timerFactory(t)
	}

	timer := setTimer(init)
	for {
		select {
		case <-timer:
			c.set = false
			timer = nil
			select {
			case c.tickCh <- struct{}{}:
			case <-c.shutdownCh:
				return
			}
		case t := <-c.resetCh:
			timer = setTimer(t)
		case <-c.stopCh:
			timer = nil
			c.set = false
		case <-c.shutdownCh:
			c.set = false
			return
		}
	}
}

// Reset arms the timer for t, unless it is shutting down.
func (c *ControlTimer) Reset(t time.Duration) {
	select {
	case c.resetCh <- t:
	case <-c.shutdownCh:
	}
}

// Shutdown ...
func (c *ControlTimer) Shutdown() {
	close(c.shutdownCh)
}
