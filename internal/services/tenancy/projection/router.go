package projection

import (
	"context"
	"fmt"

	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/event"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/storage"
)

type handler func(ctx context.Context, tx storage.ReadModelTx, evt event.Event) error

// Router dispatches events to typed handlers by kind. Kinds without a
// handler pass through untouched.
type Router struct {
	handlers map[event.Kind]handler
	kinds    []event.Kind
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{handlers: make(map[event.Kind]handler)}
}

// Handle registers fn for kind. The payload is asserted to P before the call.
func Handle[P event.Payload](r *Router, kind event.Kind, fn func(context.Context, storage.ReadModelTx, event.Event, P) error) {
	if _, dup := r.handlers[kind]; dup {
		panic(fmt.Sprintf("projection handler for %s registered twice", kind))
	}
	r.handlers[kind] = func(ctx context.Context, tx storage.ReadModelTx, evt event.Event) error {
		payload, ok := evt.Payload.(P)
		if !ok {
			return fmt.Errorf("%s: unexpected payload %T", kind, evt.Payload)
		}
		return fn(ctx, tx, evt, payload)
	}
	r.kinds = append(r.kinds, kind)
}

// Kinds returns the handled kinds in registration order.
func (r *Router) Kinds() []event.Kind {
	return append([]event.Kind(nil), r.kinds...)
}

// Route applies evt if a handler exists.
func (r *Router) Route(ctx context.Context, tx storage.ReadModelTx, evt event.Event) error {
	h, ok := r.handlers[evt.Kind]
	if !ok {
		return nil
	}
	return h(ctx, tx, evt)
}
