// Package mcp connects the assistant to backend processes over the Model
// Context Protocol. The client side speaks newline-delimited JSON-RPC on a
// child's stdin/stdout; the server side wraps github.com/felixgeelhaar/mcp-go
// to expose a pack of tools.
package mcp

import (
	mcpgo "github.com/felixgeelhaar/mcp-go"
)

// Re-export the mcp-go types backend processes configure.
type (
	// ServeOption configures server behavior.
	ServeOption = mcpgo.ServeOption

	// Middleware is a function that wraps request handling.
	Middleware = mcpgo.Middleware
)

// Re-export the middleware constructors backend processes install.
var (
	// Recover turns handler panics into tool errors.
	Recover = mcpgo.Recover

	// RequestID tags each request with an identifier.
	RequestID = mcpgo.RequestID
)
