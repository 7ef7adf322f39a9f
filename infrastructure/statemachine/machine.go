// Package statemachine provides the statekit chart that drives one
// assistant request through model queries and operation dispatch.
package statemachine

import (
	"github.com/felixgeelhaar/statekit"
)

// Context carries loop state through the state machine.
type Context struct {
	// Step counts model round-trips taken so far.
	Step int

	// MaxSteps is the hard ceiling on round-trips.
	MaxSteps int

	// Dispatched counts operation requests executed.
	Dispatched int
}

// NewContext creates a loop context with the given ceiling.
func NewContext(maxSteps int) *Context {
	return &Context{MaxSteps: maxSteps}
}

// Loop states.
const (
	StateIdle        statekit.StateID = "idle"
	StateQuerying    statekit.StateID = "querying"
	StateDispatching statekit.StateID = "dispatching"
	StateAnswered    statekit.StateID = "answered"
	StateExhausted   statekit.StateID = "exhausted"
	StateFailed      statekit.StateID = "failed"
)

// Loop events.
const (
	EventQuery    statekit.EventType = "QUERY"
	EventDispatch statekit.EventType = "DISPATCH"
	EventAnswer   statekit.EventType = "ANSWER"
	EventEmpty    statekit.EventType = "EMPTY"
	EventExhaust  statekit.EventType = "EXHAUST"
	EventFail     statekit.EventType = "FAIL"
)

// NewLoopMachine creates the tool-calling loop statechart.
func NewLoopMachine() (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context]("loop").
		WithInitial(StateIdle).
		WithContext(&Context{}).
		WithAction("countStep", countStep).
		WithAction("countDispatch", countDispatch).
		WithGuard("stepsRemaining", guardStepsRemaining).
		State(StateIdle).
			On(EventQuery).Target(StateQuerying).Guard("stepsRemaining").Do("countStep").
			On(EventExhaust).Target(StateExhausted).
			Done().
		State(StateQuerying).
			On(EventDispatch).Target(StateDispatching).Do("countDispatch").
			On(EventAnswer).Target(StateAnswered).
			On(EventEmpty).Target(StateIdle).
			On(EventFail).Target(StateFailed).
			Done().
		State(StateDispatching).
			On(EventQuery).Target(StateQuerying).Guard("stepsRemaining").Do("countStep").
			On(EventExhaust).Target(StateExhausted).
			On(EventFail).Target(StateFailed).
			Done().
		State(StateAnswered).
			Final().
			Done().
		State(StateExhausted).
			Final().
			Done().
		State(StateFailed).
			Final().
			Done().
		Build()
}
