package statemachine

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/fsassist/infrastructure/logging"
)

// Interpreter wraps the statekit interpreter for one assistant request.
type Interpreter struct {
	interp *statekit.Interpreter[*Context]
	ctx    *Context
}

// NewInterpreter creates a new interpreter for the loop machine.
func NewInterpreter(machine *statekit.MachineConfig[*Context], ctx *Context) *Interpreter {
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **Context) {
		*c = ctx
	})
	return &Interpreter{
		interp: interp,
		ctx:    ctx,
	}
}

// Start enters the initial state.
func (i *Interpreter) Start() {
	i.interp.Start()
}

// Stop stops the interpreter.
func (i *Interpreter) Stop() {
	i.interp.Stop()
}

// State returns the current state.
func (i *Interpreter) State() statekit.StateID {
	return i.interp.State().Value
}

// Send delivers an event and logs the resulting state.
func (i *Interpreter) Send(eventType statekit.EventType, payload any) statekit.StateID {
	from := i.State()
	i.interp.Send(statekit.Event{Type: eventType, Payload: payload})
	to := i.State()
	if to != from {
		logging.Debug().
			Add(logging.State(string(to))).
			Add(logging.Step(i.ctx.Step)).
			Add(logging.Str("event", string(eventType))).
			Msg("loop transition")
	}
	return to
}

// Query moves into the querying state. It reports false once the step
// ceiling is reached.
func (i *Interpreter) Query() bool {
	return i.Send(EventQuery, nil) == StateQuerying
}

// Dispatch moves into the dispatching state for n requests.
func (i *Interpreter) Dispatch(n int) {
	i.Send(EventDispatch, DispatchPayload{Requests: n})
}

// Answer ends the request with an answer.
func (i *Interpreter) Answer() {
	i.Send(EventAnswer, nil)
}

// Empty records a response with neither content nor requests.
func (i *Interpreter) Empty() {
	i.Send(EventEmpty, nil)
}

// Exhaust ends the request at the step ceiling.
func (i *Interpreter) Exhaust() {
	i.Send(EventExhaust, nil)
}

// Fail ends the request with an error.
func (i *Interpreter) Fail() {
	i.Send(EventFail, nil)
}

// Context returns the interpreter context.
func (i *Interpreter) Context() *Context {
	return i.ctx
}

// Matches checks if the current state matches the given state ID.
func (i *Interpreter) Matches(stateID statekit.StateID) bool {
	return i.interp.Matches(stateID)
}
