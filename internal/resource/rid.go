// Package resource implements the addressing and verb scheme used to reach
// components over the bus: resource ids, store keys, request subjects and
// the payloads exchanged with the gateway.
package resource

import (
	"fmt"
	"strings"
)

// componentsSegment is the fixed second segment of every component rid.
const componentsSegment = "components"

// EntityRID returns the dotted resource id of an entity.
func EntityRID(ns, shard, entity string) string {
	return ns + "." + componentsSegment + "." + shard + "." + entity
}

// ComponentRID appends a component (or collection) name to an entity rid.
func ComponentRID(entityRID, component string) string {
	return entityRID + "." + component
}

// ToKey converts a dotted resource id into the colon-joined store key.
func ToKey(rid string) string {
	return strings.ReplaceAll(rid, ".", ":")
}

// ToRID converts a colon-joined store key into a dotted resource id.
func ToRID(key string) string {
	return strings.ReplaceAll(key, ":", ".")
}

// Key returns the store key of one component of an entity.
func Key(ns, shard, entity, component string) string {
	return ns + ":" + componentsSegment + ":" + shard + ":" + entity + ":" + component
}

// ShardIndexKey is the store key of the collection listing every entity of
// a shard that has at least one component.
func ShardIndexKey(ns, shard string) string {
	return ns + ":shards:" + shard + ":entities"
}

// Address is a parsed component resource id of the form
// {ns}.components.{shard}.{entity}[.{component}[.{slot}]].
type Address struct {
	NS        string
	Shard     string
	Entity    string
	Component string // empty when the rid names the entity itself
	Slot      string // empty unless the rid names a collection member
}

// ParseAddress parses a dotted component rid.
func ParseAddress(rid string) (Address, error) {
	parts := strings.Split(rid, ".")
	if len(parts) < 4 || len(parts) > 6 || parts[1] != componentsSegment {
		return Address{}, fmt.Errorf("%w: %q is not a component rid", ErrMalformedSubject, rid)
	}
	for _, p := range parts {
		if !validToken(p) {
			return Address{}, fmt.Errorf("%w: %q has an empty or wildcard segment", ErrMalformedSubject, rid)
		}
	}
	a := Address{NS: parts[0], Shard: parts[2], Entity: parts[3]}
	if len(parts) > 4 {
		a.Component = parts[4]
	}
	if len(parts) > 5 {
		a.Slot = parts[5]
	}
	return a, nil
}

// EntityRID returns the rid of the addressed entity.
func (a Address) EntityRID() string {
	return EntityRID(a.NS, a.Shard, a.Entity)
}

// CollectionRID returns the rid of the collection a member address belongs to.
func (a Address) CollectionRID() string {
	return ComponentRID(a.EntityRID(), a.Component)
}

// RID rebuilds the dotted resource id.
func (a Address) RID() string {
	rid := a.EntityRID()
	if a.Component != "" {
		rid = ComponentRID(rid, a.Component)
	}
	if a.Slot != "" {
		rid += "." + a.Slot
	}
	return rid
}

func validToken(s string) bool {
	return s != "" && s != "*" && s != ">" && !strings.ContainsAny(s, ": \t\r\n")
}
