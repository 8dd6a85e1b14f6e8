package net

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/stacktrader/server/internal/config"
	"go.uber.org/zap"
)

// NATS is a Bus backed by a NATS connection. Each subscription's messages
// are delivered sequentially on their own goroutine.
type NATS struct {
	conn *nats.Conn
	log  *zap.Logger
}

// DialNATS connects to the configured server.
func DialNATS(cfg config.BusConfig, log *zap.Logger) (*NATS, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.ClientName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("bus disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("bus reconnected", zap.String("url", c.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			log.Error("bus error", zap.String("subject", subject), zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	return &NATS{conn: conn, log: log}, nil
}

func (n *NATS) Publish(subject string, data []byte) error {
	return n.conn.Publish(subject, data)
}

func (n *NATS) PublishMsg(msg *Msg) error {
	return n.conn.PublishMsg(&nats.Msg{Subject: msg.Subject, Reply: msg.Reply, Data: msg.Data})
}

func (n *NATS) Subscribe(pattern, queue string, h Handler) (Subscription, error) {
	cb := func(m *nats.Msg) {
		h(&Msg{Subject: m.Subject, Reply: m.Reply, Data: m.Data})
	}
	var (
		sub *nats.Subscription
		err error
	)
	if queue != "" {
		sub, err = n.conn.QueueSubscribe(pattern, queue, cb)
	} else {
		sub, err = n.conn.Subscribe(pattern, cb)
	}
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", pattern, err)
	}
	return sub, nil
}

// Close drains pending messages and closes the connection.
func (n *NATS) Close() error {
	return n.conn.Drain()
}
