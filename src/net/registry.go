package net

import (
	"sort"
	"sync"
)

// subscriptions holds one channel per subscribed topic.
type subscriptions struct {
	sync.Mutex
	chans  map[string]chan Message
	closed bool
}

func newSubscriptions() *subscriptions {
	return &subscriptions{
		chans: make(map[string]chan Message),
	}
}

// subscribe returns the channel for topic, creating it if needed. created is
// false when the topic was already subscribed.
func (s *subscriptions) subscribe(topic string) (ch chan Message, created bool, err error) {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return nil, false, ErrTransportShutdown
	}

	if ch, ok := s.chans[topic]; ok {
		return ch, false, nil
	}

	ch = make(chan Message, subscriptionBuffer)
	s.chans[topic] = ch
	return ch, true, nil
}

// deliver hands msg to the topic's channel without blocking. It reports
// whether the message was accepted.
func (s *subscriptions) deliver(msg Message) bool {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return false
	}

	ch, ok := s.chans[msg.Topic]
	if !ok {
		return false
	}

	select {
	case ch <- msg:
		return true
	default:
		return false
	}
}

func (s *subscriptions) close() {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for _, ch := range s.chans {
		close(ch)
	}
}

// handlerRegistry maps protocol ids to stream handlers.
type handlerRegistry struct {
	sync.RWMutex
	handlers map[string]StreamHandler
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{
		handlers: make(map[string]StreamHandler),
	}
}

func (r *handlerRegistry) set(protocol string, handler StreamHandler) {
	r.Lock()
	defer r.Unlock()
	r.handlers[protocol] = handler
}

func (r *handlerRegistry) get(protocol string) (StreamHandler, bool) {
	r.RLock()
	defer r.RUnlock()
	h, ok := r.handlers[protocol]
	return h, ok
}

// emit sends ev without blocking and reports whether it fit in the channel.
func emit(ch chan PeerEvent, ev PeerEvent) bool {
	select {
	case ch <- ev:
		return true
	default:
		return false
	}
}

func sortedKeys(m map[string]bool, filter func(bool) bool) []string {
	res := []string{}
	for k, v := range m {
		if filter(v) {
			res = append(res, k)
		}
	}
	sort.Strings(res)
	return res
}
