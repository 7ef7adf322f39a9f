package statemachine

import (
	"github.com/felixgeelhaar/statekit"
)

// guardStepsRemaining allows another model query while under the ceiling.
// Guards receive the context by value; our context is *Context.
func guardStepsRemaining(ctx *Context, _ statekit.Event) bool {
	if ctx == nil {
		return false
	}
	return ctx.Step < ctx.MaxSteps
}
