package resource

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedSubject is returned for subjects that do not follow the
// resource protocol. Such messages are rejected, never guessed at.
var ErrMalformedSubject = errors.New("malformed subject")

// Verb is a resource protocol request type.
type Verb int

const (
	VerbNew    Verb = iota // append to a collection; the gateway assigns the member id
	VerbDelete             // remove one member, identified by its own rid, from a collection
	VerbSet                // replace the value of one resource
	VerbGet                // read a resource
	VerbAccess             // capability query
)

func (v Verb) String() string {
	switch v {
	case VerbNew:
		return "new"
	case VerbDelete:
		return "delete"
	case VerbSet:
		return "set"
	case VerbGet:
		return "get"
	case VerbAccess:
		return "access"
	default:
		return fmt.Sprintf("Verb(%d)", int(v))
	}
}

// Request is one addressed verb. For New and Delete the RID is the
// collection, for the others it is the resource itself.
type Request struct {
	Verb Verb
	RID  string
}

// New builds a request appending to the collection rid.
func New(collectionRID string) Request { return Request{Verb: VerbNew, RID: collectionRID} }

// Delete builds a request removing a member from the collection rid.
func Delete(collectionRID string) Request { return Request{Verb: VerbDelete, RID: collectionRID} }

// Set builds a request replacing the value at rid.
func Set(rid string) Request { return Request{Verb: VerbSet, RID: rid} }

// Get builds a read request for rid.
func Get(rid string) Request { return Request{Verb: VerbGet, RID: rid} }

// Access builds a capability request for rid.
func Access(rid string) Request { return Request{Verb: VerbAccess, RID: rid} }

// Subject returns the bus subject the request is published on.
func (r Request) Subject() string {
	switch r.Verb {
	case VerbNew, VerbDelete, VerbSet:
		return "call." + r.RID + "." + r.Verb.String()
	case VerbGet:
		return "get." + r.RID
	case VerbAccess:
		return "access." + r.RID
	default:
		return ""
	}
}

func (r Request) String() string { return r.Subject() }

// ParseRequest decodes a request subject.
func ParseRequest(subject string) (Request, error) {
	parts := strings.Split(subject, ".")
	for _, p := range parts {
		if !validToken(p) {
			return Request{}, fmt.Errorf("%w: %q", ErrMalformedSubject, subject)
		}
	}
	switch parts[0] {
	case "call":
		if len(parts) < 3 {
			return Request{}, fmt.Errorf("%w: %q has no resource", ErrMalformedSubject, subject)
		}
		rid := strings.Join(parts[1:len(parts)-1], ".")
		switch parts[len(parts)-1] {
		case "new":
			return New(rid), nil
		case "delete":
			return Delete(rid), nil
		case "set":
			return Set(rid), nil
		}
		return Request{}, fmt.Errorf("%w: unknown method in %q", ErrMalformedSubject, subject)
	case "get":
		if len(parts) < 2 {
			return Request{}, fmt.Errorf("%w: %q has no resource", ErrMalformedSubject, subject)
		}
		return Get(strings.Join(parts[1:], ".")), nil
	case "access":
		if len(parts) < 2 {
			return Request{}, fmt.Errorf("%w: %q has no resource", ErrMalformedSubject, subject)
		}
		return Access(strings.Join(parts[1:], ".")), nil
	}
	return Request{}, fmt.Errorf("%w: %q", ErrMalformedSubject, subject)
}

// Event names emitted by the gateway.
const (
	EventChange = "change"
	EventAdd    = "add"
	EventRemove = "remove"
	EventDelete = "delete"
)

// EventSubject returns the subject an event about rid is published on.
func EventSubject(rid, event string) string {
	return "event." + rid + "." + event
}

// ResetSubject is where cache reset notices are published.
const ResetSubject = "system.reset"
