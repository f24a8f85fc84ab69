// Package rpcsvc provides the service/method registry and the per-call
// Controller, a small hand-rolled analogue of protobuf's RpcChannel/
// MethodDescriptor/Closure machinery, scoped to exactly the lookup-by-name
// dispatch this runtime's wire codec needs.
package rpcsvc

import (
	"fmt"
	"sync"
	"time"

	"google.golang.org/protobuf/proto"
)

// MethodDesc is a per-method descriptor: fresh-message constructors for
// request and response prototypes, and the handler that implements the
// method. Deliberately hand-rolled rather than built on grpc's or
// gorilla/rpc's method tables — importing either wholesale would replace
// the reactor and codec this runtime exists to implement.
type MethodDesc struct {
	NewRequest  func() proto.Message
	NewResponse func() proto.Message
	Handler     func(req proto.Message) (proto.Message, error)
}

// Service exposes method-descriptor lookup by name.
type Service interface {
	Method(name string) (MethodDesc, bool)
}

// MethodTable is a ready-made Service backed by a plain map, the
// convenience implementation most registered services will embed.
type MethodTable map[string]MethodDesc

// Method implements Service.
func (t MethodTable) Method(name string) (MethodDesc, bool) {
	m, ok := t[name]
	return m, ok
}

// Registry maps a service name to a registered Service, with nested
// method lookup.
type Registry struct {
	mu       sync.RWMutex
	services map[string]Service
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]Service)}
}

// Register adds svc under name, replacing any previous registration.
func (r *Registry) Register(name string, svc Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[name] = svc
}

// Lookup finds the method named methodName under the service named
// serviceName, returning (desc, false, false) if the service is unknown
// and (desc, true, false) if the service is known but the method is not.
func (r *Registry) Lookup(serviceName, methodName string) (desc MethodDesc, serviceFound, methodFound bool) {
	r.mu.RLock()
	svc, ok := r.services[serviceName]
	r.mu.RUnlock()
	if !ok {
		return MethodDesc{}, false, false
	}
	d, ok := svc.Method(methodName)
	return d, true, ok
}

// Controller carries per-call failure state and an advisory timeout.
// Timeout is read-only plumbing; it is not enforced by the runtime itself,
// since that would require a calling convention for cancelling an
// in-flight dispatch that nothing here currently needs.
type Controller struct {
	failed    bool
	errorText string
	Timeout   time.Duration
}

// Failed reports whether SetFailed has been called on this controller.
func (c *Controller) Failed() bool { return c.failed }

// ErrorText returns the reason set via SetFailed, or "" if none.
func (c *Controller) ErrorText() string { return c.errorText }

// SetFailed marks the call failed with the given reason.
func (c *Controller) SetFailed(reason string) {
	c.failed = true
	c.errorText = reason
}

// Reset clears failure state so a Controller may be reused across calls.
func (c *Controller) Reset() {
	c.failed = false
	c.errorText = ""
}

func (c *Controller) String() string {
	if !c.failed {
		return "ok"
	}
	return fmt.Sprintf("failed: %s", c.errorText)
}
