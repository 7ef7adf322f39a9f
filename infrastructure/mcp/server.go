package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/felixgeelhaar/fsassist/domain/pack"
	"github.com/felixgeelhaar/fsassist/domain/tool"
	"github.com/felixgeelhaar/fsassist/infrastructure/logging"
	mcpgo "github.com/felixgeelhaar/mcp-go"
)

// PackServer serves the tools of one pack over MCP.
type PackServer struct {
	srv     *mcpgo.Server
	pack    *pack.Pack
	info    mcpgo.ServerInfo
	schemas map[string]*jsonschema.Schema

	middleware []mcpgo.Middleware
}

// PackServerConfig configures a pack server.
type PackServerConfig struct {
	// Name is the server name. Defaults to the pack name.
	Name string

	// Version is the server version. Defaults to the pack version.
	Version string

	// Pack holds the tools to expose.
	Pack *pack.Pack
}

// NewPackServer creates an MCP server exposing every tool in the pack.
// Input schemas are compiled up front so a broken pack fails at startup.
func NewPackServer(cfg PackServerConfig) (*PackServer, error) {
	if cfg.Pack == nil {
		return nil, fmt.Errorf("%w: nil pack", pack.ErrInvalidPack)
	}
	if err := cfg.Pack.Validate(); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Pack.Name
	}
	if cfg.Version == "" {
		cfg.Version = cfg.Pack.Version
	}

	info := mcpgo.ServerInfo{
		Name:        cfg.Name,
		Version:     cfg.Version,
		Description: cfg.Pack.Description,
		Capabilities: mcpgo.Capabilities{
			Tools: true,
		},
	}

	var opts []mcpgo.Option
	if cfg.Pack.Instructions != "" {
		opts = append(opts, mcpgo.WithInstructions(cfg.Pack.Instructions))
	}

	ps := &PackServer{
		srv:     mcpgo.NewServer(info, opts...),
		pack:    cfg.Pack,
		info:    info,
		schemas: make(map[string]*jsonschema.Schema, len(cfg.Pack.Tools)),
	}

	for _, t := range cfg.Pack.Tools {
		schema, err := compileSchema(t)
		if err != nil {
			return nil, err
		}
		ps.schemas[t.Name()] = schema
		ps.registerTool(t)
	}
	return ps, nil
}

func compileSchema(t tool.Tool) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(t.InputSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema of %s: %w", t.Name(), err)
	}
	url := t.Name() + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("invalid schema for %s: %w", t.Name(), err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", t.Name(), err)
	}
	return schema, nil
}

func (s *PackServer) registerTool(t tool.Tool) {
	handler := func(ctx context.Context, input json.RawMessage) (string, error) {
		if err := s.validate(t.Name(), input); err != nil {
			return "", err
		}
		result, err := t.Execute(ctx, input)
		if err != nil {
			logging.Warn().
				Add(logging.Component("mcp-server")).
				Add(logging.ToolName(t.Name())).
				Add(logging.ErrorField(err)).
				Msg("tool failed")
			return "", err
		}
		if len(result.Output) == 0 {
			return "{}", nil
		}
		return string(result.Output), nil
	}

	s.srv.Tool(t.Name()).
		Description(describe(t)).
		Handler(handler)
}

// validate checks the input against the tool's compiled schema.
func (s *PackServer) validate(name string, input json.RawMessage) error {
	schema, ok := s.schemas[name]
	if !ok {
		return nil
	}
	var data any = map[string]any{}
	if len(input) > 0 && string(input) != "null" {
		if err := json.Unmarshal(input, &data); err != nil {
			return fmt.Errorf("%w: %v", tool.ErrInvalidInput, err)
		}
	}
	if err := schema.Validate(data); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("%w: %s", tool.ErrInvalidInput, flatten(verr))
		}
		return fmt.Errorf("%w: %v", tool.ErrInvalidInput, err)
	}
	return nil
}

// flatten renders the leaf causes of a validation error on one line.
func flatten(verr *jsonschema.ValidationError) string {
	if len(verr.Causes) == 0 {
		loc := verr.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return loc + ": " + verr.Message
	}
	parts := make([]string, 0, len(verr.Causes))
	for _, c := range verr.Causes {
		parts = append(parts, flatten(c))
	}
	return strings.Join(parts, "; ")
}

// describe appends the argument list to the description so clients that
// ignore schemas still see the parameter names.
func describe(t tool.Tool) string {
	props := t.InputSchema().PropertyNames()
	if len(props) == 0 {
		return t.Description()
	}
	return fmt.Sprintf("%s (args: %s)", t.Description(), strings.Join(props, ", "))
}

// Pack returns the served pack.
func (s *PackServer) Pack() *pack.Pack {
	return s.pack
}

// Info returns the advertised server info.
func (s *PackServer) Info() mcpgo.ServerInfo {
	return s.info
}

// Use adds middleware to the request chain of every later Serve call.
func (s *PackServer) Use(middlewares ...mcpgo.Middleware) {
	s.middleware = append(s.middleware, middlewares...)
}

func (s *PackServer) serveOptions(opts []mcpgo.ServeOption) []mcpgo.ServeOption {
	if len(s.middleware) == 0 {
		return opts
	}
	return append([]mcpgo.ServeOption{mcpgo.WithMiddleware(s.middleware...)}, opts...)
}

// ServeStdio runs the server over stdin/stdout until ctx is done or the
// client disconnects.
func (s *PackServer) ServeStdio(ctx context.Context, opts ...mcpgo.ServeOption) error {
	logging.Info().
		Add(logging.Component("mcp-server")).
		Add(logging.Str("pack", s.pack.Name)).
		Add(logging.Count("tools", len(s.pack.Tools))).
		Msg("serving over stdio")
	return mcpgo.ServeStdio(ctx, s.srv, s.serveOptions(opts)...)
}
