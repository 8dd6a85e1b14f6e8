package net

import (
	"sync"
	"sync/atomic"
)

// Local is an in-process double-buffered Bus. Messages published while
// handlers run are queued and delivered by the next Flush, so one Flush
// moves the simulation forward by exactly one hop.
type Local struct {
	mu     sync.Mutex
	back   []*Msg
	subs   []*localSub
	nextID atomic.Uint64
	rr     map[string]int // queue group round robin cursor
}

type localSub struct {
	id      uint64
	pattern string
	queue   string
	h       Handler
	bus     *Local
}

func (s *localSub) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	for i, other := range s.bus.subs {
		if other.id == s.id {
			s.bus.subs = append(s.bus.subs[:i], s.bus.subs[i+1:]...)
			break
		}
	}
	return nil
}

func NewLocal() *Local {
	return &Local{
		back: make([]*Msg, 0, 64),
		rr:   make(map[string]int),
	}
}

func (l *Local) Publish(subject string, data []byte) error {
	return l.PublishMsg(&Msg{Subject: subject, Data: data})
}

func (l *Local) PublishMsg(msg *Msg) error {
	cp := &Msg{Subject: msg.Subject, Reply: msg.Reply, Data: append([]byte(nil), msg.Data...)}
	l.mu.Lock()
	l.back = append(l.back, cp)
	l.mu.Unlock()
	return nil
}

func (l *Local) Subscribe(pattern, queue string, h Handler) (Subscription, error) {
	s := &localSub{id: l.nextID.Add(1), pattern: pattern, queue: queue, h: h, bus: l}
	l.mu.Lock()
	l.subs = append(l.subs, s)
	l.mu.Unlock()
	return s, nil
}

// Pending returns the number of queued messages.
func (l *Local) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.back)
}

// Flush delivers every message queued before the call, in publish order,
// and returns how many were taken off the queue.
func (l *Local) Flush() int {
	l.mu.Lock()
	front := l.back
	l.back = make([]*Msg, 0, len(front))
	l.mu.Unlock()

	for _, msg := range front {
		for _, h := range l.targets(msg.Subject) {
			h(msg)
		}
	}
	return len(front)
}

// Drain flushes until the queue stays empty or maxRounds is reached.
// Returns the number of rounds that delivered something.
func (l *Local) Drain(maxRounds int) int {
	rounds := 0
	for rounds < maxRounds && l.Flush() > 0 {
		rounds++
	}
	return rounds
}

// targets picks the handlers for subject: every plain subscriber plus one
// member of each matching queue group.
func (l *Local) targets(subject string) []Handler {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Handler
	groups := make(map[string][]*localSub)
	var order []string
	for _, s := range l.subs {
		if !MatchSubject(s.pattern, subject) {
			continue
		}
		if s.queue == "" {
			out = append(out, s.h)
			continue
		}
		if _, seen := groups[s.queue]; !seen {
			order = append(order, s.queue)
		}
		groups[s.queue] = append(groups[s.queue], s)
	}
	for _, q := range order {
		members := groups[q]
		i := l.rr[q] % len(members)
		l.rr[q]++
		out = append(out, members[i].h)
	}
	return out
}
