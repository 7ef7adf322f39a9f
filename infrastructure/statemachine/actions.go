package statemachine

import (
	"github.com/felixgeelhaar/statekit"
)

// DispatchPayload carries the number of requests in a DISPATCH event.
type DispatchPayload struct {
	Requests int
}

// countStep records a model round-trip.
// In statekit, actions receive a pointer to the context. Since our context is *Context,
// actions receive **Context.
func countStep(ctx **Context, _ statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	(*ctx).Step++
}

// countDispatch records the requests about to be executed.
func countDispatch(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	if payload, ok := event.Payload.(DispatchPayload); ok {
		(*ctx).Dispatched += payload.Requests
	}
}
