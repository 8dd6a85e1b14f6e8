// Package gateway owns the component store on the bus. It applies call
// requests, answers get and access requests and emits the resource events
// other actors subscribe to.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/ErikKalkoken/go-set"
	"github.com/google/uuid"
	"github.com/stacktrader/server/internal/component"
	"github.com/stacktrader/server/internal/net"
	"github.com/stacktrader/server/internal/resource"
	"github.com/stacktrader/server/internal/scripting"
	"github.com/stacktrader/server/internal/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Policy decides what a caller may do with a resource.
type Policy interface {
	Access(req scripting.AccessRequest) resource.AccessResult
}

// Service answers resource requests for one namespace.
type Service struct {
	store       *store.Client
	bus         net.Bus
	policy      Policy
	tokenHash   []byte
	collections set.Set[string]
	log         *zap.Logger
}

// NewService creates a gateway. An empty tokenHash disables the token
// check; a nil policy allows everything.
func NewService(st *store.Client, bus net.Bus, policy Policy, tokenHash string, log *zap.Logger) *Service {
	s := &Service{
		store:       st,
		bus:         bus,
		policy:      policy,
		collections: set.Of(component.NameRadarContacts),
		log:         log.Named("gateway"),
	}
	if tokenHash != "" {
		s.tokenHash = []byte(tokenHash)
	}
	return s
}

// Serve subscribes the request subjects of the namespace.
func (s *Service) Serve(ctx context.Context, queue string) ([]net.Subscription, error) {
	ns := s.store.Namespace()
	patterns := []string{
		"call." + ns + ".components.>",
		"get." + ns + ".components.>",
		"access." + ns + ".components.>",
	}
	subs := make([]net.Subscription, 0, len(patterns))
	for _, p := range patterns {
		sub, err := s.bus.Subscribe(p, queue, func(msg *net.Msg) {
			if err := s.Handle(ctx, msg); err != nil {
				s.log.Warn("request failed", zap.String("subject", msg.Subject), zap.Error(err))
			}
		})
		if err != nil {
			for _, sub := range subs {
				_ = sub.Unsubscribe()
			}
			return nil, fmt.Errorf("subscribe %s: %w", p, err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// Handle applies one request and replies when the message has a reply
// subject. The returned error is the one sent to the caller.
func (s *Service) Handle(ctx context.Context, msg *net.Msg) error {
	result, err := s.handle(ctx, msg)

	var body []byte
	if err != nil {
		var rerr *resource.Error
		if !errors.As(err, &rerr) {
			rerr = &resource.Error{Code: resource.CodeInternalError, Message: err.Error()}
		}
		body = resource.Fail(rerr.Code, rerr.Message)
	} else {
		var encErr error
		if body, encErr = resource.Result(result); encErr != nil {
			return fmt.Errorf("encode result: %w", encErr)
		}
	}
	if rerr := net.Respond(s.bus, msg, body); rerr != nil {
		s.log.Error("reply failed", zap.String("subject", msg.Subject), zap.Error(rerr))
	}
	return err
}

func (s *Service) handle(ctx context.Context, msg *net.Msg) (any, error) {
	req, err := resource.ParseRequest(msg.Subject)
	if err != nil {
		return nil, &resource.Error{Code: resource.CodeMethodNotFound, Message: err.Error()}
	}
	addr, err := resource.ParseAddress(req.RID)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	var call resource.Call
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &call); err != nil {
			return nil, invalidParams("decode request: %v", err)
		}
	}

	access := s.access(addr, call)
	switch req.Verb {
	case resource.VerbAccess:
		return access, nil
	case resource.VerbGet:
		if !access.Get {
			return nil, accessDenied(req.RID)
		}
		return s.get(ctx, addr)
	}
	if !allows(access.Call, req.Verb.String()) {
		return nil, accessDenied(req.RID)
	}
	switch req.Verb {
	case resource.VerbNew:
		return s.create(ctx, addr, call.Params)
	case resource.VerbSet:
		return nil, s.set(ctx, addr, call.Params)
	case resource.VerbDelete:
		return nil, s.delete(ctx, addr, call.Params)
	}
	return nil, &resource.Error{Code: resource.CodeMethodNotFound, Message: req.Verb.String()}
}

// access combines the script policy with the token check. A bad token
// keeps read access but loses every call method.
func (s *Service) access(addr resource.Address, call resource.Call) resource.AccessResult {
	res := resource.AccessResult{Get: true, Call: "*"}
	if s.policy != nil {
		res = s.policy.Access(scripting.AccessRequest{Addr: addr, CID: call.CID})
	}
	if s.tokenHash != nil && !s.validToken(call.Token) {
		res.Call = ""
	}
	return res
}

func (s *Service) validToken(raw json.RawMessage) bool {
	var token string
	if len(raw) == 0 || json.Unmarshal(raw, &token) != nil || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(s.tokenHash, []byte(token)) == nil
}

func allows(methods, method string) bool {
	if methods == "*" {
		return true
	}
	return slices.Contains(strings.Split(methods, ","), method)
}

func (s *Service) isCollection(addr resource.Address) bool {
	return addr.Slot == "" && s.collections.Contains(addr.Component)
}

func (s *Service) get(ctx context.Context, addr resource.Address) (any, error) {
	key := resource.ToKey(addr.RID())
	if s.isCollection(addr) {
		members, err := s.store.ListMembers(ctx, key)
		if err != nil {
			return nil, err
		}
		refs := make([]resource.Reference, 0, len(members))
		for _, m := range members {
			refs = append(refs, resource.Reference{RID: resource.ToRID(m)})
		}
		return resource.CollectionResult{Collection: refs}, nil
	}
	var model json.RawMessage
	found, err := s.store.GetKey(ctx, key, &model)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, notFound(addr.RID())
	}
	return resource.ModelResult{Model: model}, nil
}

// create stores params as a new member of the collection under a fresh
// slot and returns a reference to it.
func (s *Service) create(ctx context.Context, addr resource.Address, params json.RawMessage) (any, error) {
	if !s.isCollection(addr) {
		return nil, invalidParams("%s is not a collection", addr.RID())
	}
	if !isObject(params) {
		return nil, invalidParams("new %s: params must be an object", addr.RID())
	}
	member := addr
	member.Slot = uuid.NewString()
	memberKey := resource.ToKey(member.RID())
	collectionKey := resource.ToKey(addr.RID())

	if err := s.store.SetKey(ctx, memberKey, params); err != nil {
		return nil, err
	}
	idx, err := s.store.KV().AddMember(ctx, collectionKey, memberKey)
	if err != nil {
		return nil, fmt.Errorf("%w: add member %s: %v", store.ErrStoreUnavailable, memberKey, err)
	}
	ref := resource.Reference{RID: member.RID()}
	s.emit(resource.EventSubject(addr.RID(), resource.EventAdd), resource.AddEvent{Value: ref, Idx: idx})
	return ref, nil
}

func (s *Service) set(ctx context.Context, addr resource.Address, params json.RawMessage) error {
	if addr.Component == "" || s.isCollection(addr) {
		return invalidParams("%s cannot be set", addr.RID())
	}
	if !isObject(params) {
		return invalidParams("set %s: params must be an object", addr.RID())
	}
	if err := s.store.SetKey(ctx, resource.ToKey(addr.RID()), params); err != nil {
		return err
	}
	if err := s.index(ctx, addr); err != nil {
		return err
	}
	s.emit(resource.EventSubject(addr.RID(), resource.EventChange), resource.ChangeEvent{Values: params})
	return nil
}

// index records the entity in its shard's entity list so the frame
// scheduler can find it.
func (s *Service) index(ctx context.Context, addr resource.Address) error {
	key := resource.ShardIndexKey(addr.NS, addr.Shard)
	if _, err := s.store.KV().AddMember(ctx, key, addr.Entity); err != nil {
		return fmt.Errorf("%w: index %s: %v", store.ErrStoreUnavailable, addr.EntityRID(), err)
	}
	return nil
}

// delete removes a collection member named by params.rid, or the addressed
// component itself when no member is named.
func (s *Service) delete(ctx context.Context, addr resource.Address, params json.RawMessage) error {
	var p resource.DeleteParams
	if isObject(params) {
		if err := json.Unmarshal(params, &p); err != nil {
			return invalidParams("delete %s: %v", addr.RID(), err)
		}
	}
	if p.RID == "" {
		return s.deleteResource(ctx, addr)
	}

	member, err := resource.ParseAddress(p.RID)
	if err != nil || member.Slot == "" || member.CollectionRID() != addr.RID() {
		return invalidParams("%s is not a member of %s", p.RID, addr.RID())
	}
	memberKey := resource.ToKey(p.RID)
	idx, err := s.store.KV().RemoveMember(ctx, resource.ToKey(addr.RID()), memberKey)
	if err != nil {
		return fmt.Errorf("%w: remove member %s: %v", store.ErrStoreUnavailable, memberKey, err)
	}
	if idx < 0 {
		return notFound(p.RID)
	}
	if err := s.store.KV().Delete(ctx, memberKey); err != nil {
		return fmt.Errorf("%w: delete %s: %v", store.ErrStoreUnavailable, memberKey, err)
	}
	s.emit(resource.EventSubject(addr.RID(), resource.EventRemove), resource.RemoveEvent{Idx: idx})
	s.emit(resource.EventSubject(p.RID, resource.EventDelete), struct{}{})
	return nil
}

func (s *Service) deleteResource(ctx context.Context, addr resource.Address) error {
	if addr.Component == "" {
		return invalidParams("%s: entities are not deleted through the gateway", addr.RID())
	}
	key := resource.ToKey(addr.RID())
	ok, err := s.store.ExistsKey(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return notFound(addr.RID())
	}
	if err := s.store.KV().Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: delete %s: %v", store.ErrStoreUnavailable, key, err)
	}
	s.emit(resource.EventSubject(addr.RID(), resource.EventDelete), struct{}{})
	return nil
}

// emit publishes an event. The store write already happened, so a failed
// publish is logged rather than reported to the caller.
func (s *Service) emit(subject string, v any) {
	data, err := json.Marshal(v)
	if err == nil {
		err = s.bus.Publish(subject, data)
	}
	if err != nil {
		s.log.Error("emit event failed", zap.String("subject", subject), zap.Error(err))
	}
}

func isObject(raw json.RawMessage) bool {
	for _, c := range raw {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		case '{':
			return json.Valid(raw)
		}
		return false
	}
	return false
}

func notFound(rid string) *resource.Error {
	return &resource.Error{Code: resource.CodeNotFound, Message: rid + " not found"}
}

func accessDenied(rid string) *resource.Error {
	return &resource.Error{Code: resource.CodeAccessDenied, Message: "access denied to " + rid}
}

func invalidParams(format string, args ...any) *resource.Error {
	return &resource.Error{Code: resource.CodeInvalidParams, Message: fmt.Sprintf(format, args...)}
}
