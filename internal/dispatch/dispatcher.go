package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stacktrader/server/internal/component"
	"github.com/stacktrader/server/internal/net"
	"github.com/stacktrader/server/internal/resource"
	"go.uber.org/zap"
)

// Handlers is implemented by the actor behind the dispatcher.
type Handlers interface {
	HandleFrame(ctx context.Context, frame EntityFrame) error
	HandlePositionChange(ctx context.Context, msg PositionChange, pos PositionValues) error
	HandleTransponderRemoved(ctx context.Context, msg TransponderRemoved) error
	HandleTransponderChanged(ctx context.Context, msg TransponderChanged) error
}

// Registration is the registry ping reply.
type Registration struct {
	Name       string   `json:"name"`
	Framerate  uint32   `json:"framerate"`
	Components []string `json:"components"`
}

// Dispatcher routes bus messages to Handlers. It holds no state between
// messages.
type Dispatcher struct {
	parser   Parser
	bus      net.Bus
	handlers Handlers
	reg      Registration
	log      *zap.Logger
}

func NewDispatcher(parser Parser, bus net.Bus, handlers Handlers, reg Registration, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		parser:   parser,
		bus:      bus,
		handlers: handlers,
		reg:      reg,
		log:      log,
	}
}

// Dispatch parses msg.Subject and runs the matching handler. A panic in a
// handler is recovered and returned as an error so one bad message cannot
// take the subscription down.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *net.Msg) (err error) {
	m, err := d.parser.Parse(msg.Subject)
	if err != nil {
		return err
	}
	d.log.Debug("received message", zap.String("subject", msg.Subject), zap.Stringer("kind", m.Kind()))

	defer func() {
		if rec := recover(); rec != nil {
			d.log.Error("handler panic recovered",
				zap.String("subject", msg.Subject),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("handler panic on %s: %v", msg.Subject, rec)
		}
	}()

	switch m := m.(type) {
	case Health:
		return d.reply(msg, msg.Reply, nil)
	case RegistryPing:
		body, err := json.Marshal(d.reg)
		if err != nil {
			return fmt.Errorf("encode registration: %w", err)
		}
		to := msg.Reply
		if to == "" {
			to = d.parser.RegistryReplySubject()
		}
		return d.reply(msg, to, body)
	case Frame:
		var frame EntityFrame
		if err := json.Unmarshal(msg.Data, &frame); err != nil {
			return fmt.Errorf("%w: frame on %s: %v", ErrBadPayload, msg.Subject, err)
		}
		switch frame.Shard {
		case "":
			frame.Shard = m.Shard
		case m.Shard:
		default:
			return fmt.Errorf("%w: frame on %s names shard %q", ErrBadPayload, msg.Subject, frame.Shard)
		}
		if frame.EntityID == "" {
			return fmt.Errorf("%w: frame on %s has no entity_id", ErrBadPayload, msg.Subject)
		}
		return d.handlers.HandleFrame(ctx, frame)
	case PositionChange:
		var pos PositionValues
		if err := json.Unmarshal(msg.Data, &pos); err != nil {
			return fmt.Errorf("%w: position on %s: %v", ErrBadPayload, msg.Subject, err)
		}
		return d.handlers.HandlePositionChange(ctx, m, pos)
	case TransponderRemoved:
		return d.handlers.HandleTransponderRemoved(ctx, m)
	case TransponderChanged:
		return d.handlers.HandleTransponderChanged(ctx, m)
	}
	return fmt.Errorf("%w: %q", ErrUnrecognizedSubject, msg.Subject)
}

func (d *Dispatcher) reply(msg *net.Msg, to string, body []byte) error {
	if to == "" {
		return nil
	}
	if err := d.bus.Publish(to, body); err != nil {
		return fmt.Errorf("reply to %s for %s: %w", to, msg.Subject, err)
	}
	return nil
}

// Serve subscribes every subject the dispatcher understands. Frames use
// queue so several instances can share the load; position and transponder
// events are not queued because every instance keeps its own cache.
// Handler failures are logged; redelivery is left to the transport.
func (d *Dispatcher) Serve(ctx context.Context, queue string) ([]net.Subscription, error) {
	type binding struct {
		pattern string
		queue   string
	}
	bindings := []binding{
		{d.parser.HealthSubject(), ""},
		{d.parser.RegistrySubject(), ""},
		{d.parser.FramePattern(), queue},
		{d.parser.ComponentEventPattern(component.NamePosition, resource.EventChange), ""},
		{d.parser.ComponentEventPattern(component.NameTransponder, resource.EventDelete), ""},
		{d.parser.ComponentEventPattern(component.NameTransponder, resource.EventChange), ""},
	}
	subs := make([]net.Subscription, 0, len(bindings))
	for _, b := range bindings {
		sub, err := d.bus.Subscribe(b.pattern, b.queue, func(msg *net.Msg) {
			if err := d.Dispatch(ctx, msg); err != nil {
				d.log.Error("message rejected", zap.String("subject", msg.Subject), zap.Error(err))
			}
		})
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}
