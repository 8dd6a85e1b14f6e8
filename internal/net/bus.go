// Package net carries messages between actors. Bus is implemented by a NATS
// connection in production and by an in-process Local bus in tests and
// single-binary runs.
package net

import "strings"

// Msg is one message on the bus.
type Msg struct {
	Subject string
	Reply   string
	Data    []byte
}

// Handler consumes a delivered message.
type Handler func(msg *Msg)

// Subscription is an active interest in a subject pattern.
type Subscription interface {
	Unsubscribe() error
}

// Bus publishes and subscribes by subject. Subjects are dot separated;
// patterns may use "*" for one token and a trailing ">" for the rest.
type Bus interface {
	Publish(subject string, data []byte) error
	PublishMsg(msg *Msg) error
	// Subscribe registers h for pattern. A non-empty queue load balances
	// deliveries among subscribers sharing the same queue name.
	Subscribe(pattern, queue string, h Handler) (Subscription, error)
}

// Respond publishes data to the reply subject of msg, if it has one.
func Respond(b Bus, msg *Msg, data []byte) error {
	if msg.Reply == "" {
		return nil
	}
	return b.Publish(msg.Reply, data)
}

// MatchSubject reports whether subject matches pattern.
func MatchSubject(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, p := range pt {
		if p == ">" {
			return i == len(pt)-1 && len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if p != "*" && p != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}
