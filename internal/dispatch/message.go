// Package dispatch turns inbound subjects into typed messages and routes
// them to the actor's handlers.
package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stacktrader/server/internal/component"
	"github.com/stacktrader/server/internal/resource"
)

// ErrUnrecognizedSubject rejects messages whose subject has no known shape.
// It matches resource.ErrMalformedSubject under errors.Is.
var ErrUnrecognizedSubject = fmt.Errorf("unrecognized subject: %w", resource.ErrMalformedSubject)

// ErrBadPayload is returned when a recognized subject carries an
// undecodable body.
var ErrBadPayload = errors.New("bad payload")

// Kind tags a parsed message.
type Kind int

const (
	KindHealth Kind = iota
	KindRegistryPing
	KindFrame
	KindPositionChange
	KindTransponderRemoved
	KindTransponderChanged
)

func (k Kind) String() string {
	switch k {
	case KindHealth:
		return "health"
	case KindRegistryPing:
		return "registry_ping"
	case KindFrame:
		return "frame"
	case KindPositionChange:
		return "position_change"
	case KindTransponderRemoved:
		return "transponder_removed"
	case KindTransponderChanged:
		return "transponder_changed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Message is one of Health, RegistryPing, Frame, PositionChange,
// TransponderRemoved or TransponderChanged.
type Message interface {
	Kind() Kind
}

type Health struct{}

type RegistryPing struct{}

// Frame is a tick for one entity, published on {ns}.frames.{shard}.{system}.
type Frame struct {
	Shard  string
	System string
}

// PositionChange is a position component update of one entity.
type PositionChange struct {
	Shard     string
	Entity    string
	EntityRID string
}

// TransponderRemoved reports that an entity's transponder was deleted.
type TransponderRemoved struct {
	Shard     string
	Entity    string
	EntityRID string
}

// TransponderChanged reports that an entity's transponder was set.
type TransponderChanged struct {
	Shard     string
	Entity    string
	EntityRID string
}

func (Health) Kind() Kind             { return KindHealth }
func (RegistryPing) Kind() Kind       { return KindRegistryPing }
func (Frame) Kind() Kind              { return KindFrame }
func (PositionChange) Kind() Kind     { return KindPositionChange }
func (TransponderRemoved) Kind() Kind { return KindTransponderRemoved }
func (TransponderChanged) Kind() Kind { return KindTransponderChanged }

// EntityFrame is the body of a frame message.
type EntityFrame struct {
	Shard     string `json:"shard"`
	EntityID  string `json:"entity_id"`
	ElapsedMS uint32 `json:"elapsed_ms"`
}

// PositionValues is the body of a position change event.
type PositionValues struct {
	Values component.Position `json:"values"`
}

// Parser recognizes the subjects of one system in one namespace.
type Parser struct {
	ns     string
	system string
}

func NewParser(ns, system string) Parser {
	return Parser{ns: ns, system: system}
}

// HealthSubject answers liveness probes.
func (p Parser) HealthSubject() string { return p.ns + ".system.health" }

// RegistrySubject receives registry pings.
func (p Parser) RegistrySubject() string { return p.ns + ".system.registry" }

// RegistryReplySubject is used when a ping carries no reply subject.
func (p Parser) RegistryReplySubject() string { return p.RegistrySubject() + ".replies" }

// FramePattern matches the system's frames in every shard.
func (p Parser) FramePattern() string { return p.ns + ".frames.*." + p.system }

// ComponentEventPattern matches one event of one component on any entity.
func (p Parser) ComponentEventPattern(comp, event string) string {
	return "event." + p.ns + ".components.*.*." + comp + "." + event
}

// Parse classifies subject.
func (p Parser) Parse(subject string) (Message, error) {
	switch subject {
	case p.HealthSubject():
		return Health{}, nil
	case p.RegistrySubject():
		return RegistryPing{}, nil
	}

	parts := strings.Split(subject, ".")
	for _, s := range parts {
		if s == "" {
			return nil, fmt.Errorf("%w: %q", ErrUnrecognizedSubject, subject)
		}
	}

	switch {
	case len(parts) == 4 && parts[0] == p.ns && parts[1] == "frames":
		if parts[3] != p.system {
			break
		}
		return Frame{Shard: parts[2], System: parts[3]}, nil
	case len(parts) == 7 && parts[0] == "event" && parts[1] == p.ns && parts[2] == "components":
		shard, entity := parts[3], parts[4]
		rid := resource.EntityRID(p.ns, shard, entity)
		switch parts[5] + "." + parts[6] {
		case component.NamePosition + "." + resource.EventChange:
			return PositionChange{Shard: shard, Entity: entity, EntityRID: rid}, nil
		case component.NameTransponder + "." + resource.EventDelete:
			return TransponderRemoved{Shard: shard, Entity: entity, EntityRID: rid}, nil
		case component.NameTransponder + "." + resource.EventChange:
			return TransponderChanged{Shard: shard, Entity: entity, EntityRID: rid}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnrecognizedSubject, subject)
}
