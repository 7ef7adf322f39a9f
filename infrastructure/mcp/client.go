package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
)

var (
	// ErrNotConnected indicates the client is not connected.
	ErrNotConnected = errors.New("client not connected")

	// ErrAlreadyConnected indicates the client is already connected.
	ErrAlreadyConnected = errors.New("client already connected")

	// ErrConnectionFailed indicates the connection to the server failed.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrConnectionLost indicates the server closed its output stream.
	ErrConnectionLost = errors.New("connection lost")
)

// ProtocolVersion is the MCP revision spoken by the client.
const ProtocolVersion = "2024-11-05"

// ToolDef represents a tool definition from an MCP server.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ToolCall represents a tool call request.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolResult represents the result of a tool call.
type ToolResult struct {
	Content           []Content       `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	IsError           bool            `json:"isError,omitempty"`
}

// Content represents content in an MCP response.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ServerInfo contains information about an MCP server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientConfig configures an MCP client.
type ClientConfig struct {
	// Name is the client name.
	Name string

	// Version is the client version.
	Version string

	// Command is the server command to run.
	Command []string

	// Env is appended to the inherited environment of the server process.
	Env []string

	// Stderr receives the server's stderr. Defaults to os.Stderr.
	Stderr io.Writer
}

// ClientOption configures a client.
type ClientOption func(*ClientConfig)

// WithClientName sets the client name.
func WithClientName(name string) ClientOption {
	return func(c *ClientConfig) {
		c.Name = name
	}
}

// WithClientVersion sets the client version.
func WithClientVersion(version string) ClientOption {
	return func(c *ClientConfig) {
		c.Version = version
	}
}

// WithServerCommand sets the server command.
func WithServerCommand(cmd ...string) ClientOption {
	return func(c *ClientConfig) {
		c.Command = cmd
	}
}

// WithEnv adds KEY=VALUE entries to the server environment.
func WithEnv(env ...string) ClientOption {
	return func(c *ClientConfig) {
		c.Env = append(c.Env, env...)
	}
}

// WithStderr redirects the server's stderr.
func WithStderr(w io.Writer) ClientOption {
	return func(c *ClientConfig) {
		c.Stderr = w
	}
}

// Client consumes tools from an MCP server over stdio.
type Client struct {
	config     ClientConfig
	serverInfo *ServerInfo
	connected  atomic.Bool
	mu         sync.Mutex

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	writeMu sync.Mutex
	encoder *json.Encoder
	done    chan struct{}

	reqID     atomic.Int64
	responses map[int64]chan *rpcResponse
	respMu    sync.Mutex
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RPCError is a JSON-RPC error answered by a live server.
type RPCError struct {
	Method  string
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s error %d: %s", e.Method, e.Code, e.Message)
}

type initParams struct {
	ProtocolVersion string     `json:"protocolVersion"`
	Capabilities    any        `json:"capabilities"`
	ClientInfo      ServerInfo `json:"clientInfo"`
}

type initResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ServerInfo      ServerInfo `json:"serverInfo"`
}

type listToolsRes struct {
	Tools      []ToolDef `json:"tools"`
	NextCursor string    `json:"nextCursor,omitempty"`
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// NewClient creates a new MCP client.
func NewClient(opts ...ClientOption) *Client {
	cfg := ClientConfig{
		Name:    "fsassist",
		Version: "1.0.0",
		Stderr:  os.Stderr,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return &Client{
		config:    cfg,
		responses: make(map[int64]chan *rpcResponse),
	}
}

// Connect starts the server process and performs the initialize handshake.
// The process outlives ctx; Close stops it.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected.Load() {
		return ErrAlreadyConnected
	}
	if len(c.config.Command) == 0 {
		return fmt.Errorf("%w: no command specified", ErrConnectionFailed)
	}

	cmd := exec.Command(c.config.Command[0], c.config.Command[1:]...)
	cmd.Env = append(os.Environ(), c.config.Env...)
	cmd.Stderr = c.config.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: stdin pipe: %v", ErrConnectionFailed, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return fmt.Errorf("%w: stdout pipe: %v", ErrConnectionFailed, err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return fmt.Errorf("%w: start command: %v", ErrConnectionFailed, err)
	}
	c.cmd = cmd

	return c.attach(ctx, stdout, stdin)
}

// ConnectStreams performs the handshake over existing streams, such as an
// in-memory pipe to a server running in the same process.
func (c *Client) ConnectStreams(ctx context.Context, r io.ReadCloser, w io.WriteCloser) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected.Load() {
		return ErrAlreadyConnected
	}
	return c.attach(ctx, r, w)
}

func (c *Client) attach(ctx context.Context, r io.ReadCloser, w io.WriteCloser) error {
	c.stdin = w
	c.stdout = r
	c.encoder = json.NewEncoder(w)
	c.done = make(chan struct{})
	c.connected.Store(true)

	go c.readResponses(r)

	if err := c.initialize(ctx); err != nil {
		_ = c.closeLocked()
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return nil
}

func (c *Client) readResponses(r io.Reader) {
	defer c.failPending()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil || resp.Method != "" {
			continue
		}

		var reqID int64
		switch id := resp.ID.(type) {
		case float64:
			reqID = int64(id)
		case string:
			if _, err := fmt.Sscan(id, &reqID); err != nil {
				continue
			}
		default:
			// Server-initiated requests and notifications are ignored.
			continue
		}

		c.respMu.Lock()
		if ch, exists := c.responses[reqID]; exists {
			ch <- &resp
			delete(c.responses, reqID)
		}
		c.respMu.Unlock()
	}
}

// failPending marks the client dead and releases every waiting caller.
func (c *Client) failPending() {
	c.connected.Store(false)
	c.respMu.Lock()
	for id, ch := range c.responses {
		close(ch)
		delete(c.responses, id)
	}
	c.respMu.Unlock()
	close(c.done)
}

func (c *Client) initialize(ctx context.Context) error {
	params := initParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo: ServerInfo{
			Name:    c.config.Name,
			Version: c.config.Version,
		},
	}

	resp, err := c.sendRequest(ctx, "initialize", params)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	var result initResult
	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("parse initialize result: %w", err)
	}
	c.serverInfo = &result.ServerInfo

	return c.write(rpcRequest{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
	})
}

func (c *Client) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.encoder.Encode(v)
}

func (c *Client) sendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !c.connected.Load() {
		return nil, ErrNotConnected
	}

	id := c.reqID.Add(1)

	paramsBytes, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	respCh := make(chan *rpcResponse, 1)
	c.respMu.Lock()
	c.responses[id] = respCh
	c.respMu.Unlock()

	forget := func() {
		c.respMu.Lock()
		delete(c.responses, id)
		c.respMu.Unlock()
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  paramsBytes,
	}
	if err := c.write(req); err != nil {
		forget()
		return nil, fmt.Errorf("%w: send %s: %v", ErrConnectionLost, method, err)
	}

	var (
		resp *rpcResponse
		ok   bool
	)
	select {
	case resp, ok = <-respCh:
	case <-c.done:
		select {
		case resp, ok = <-respCh:
		default:
			forget()
		}
	case <-ctx.Done():
		forget()
		return nil, ctx.Err()
	}

	if !ok || resp == nil {
		return nil, fmt.Errorf("%w: %s", ErrConnectionLost, method)
	}
	if resp.Error != nil {
		return nil, &RPCError{Method: method, Code: resp.Error.Code, Message: resp.Error.Message}
	}
	return resp.Result, nil
}

// Alive reports whether the connection is usable.
func (c *Client) Alive() bool {
	return c.connected.Load()
}

// Close closes the connection and stops the server process.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	c.connected.Store(false)

	var errs []error
	if c.stdin != nil {
		_ = c.stdin.Close()
		c.stdin = nil
	}
	if c.cmd != nil && c.cmd.Process != nil {
		if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, fmt.Errorf("kill server: %w", err))
		}
		_ = c.cmd.Wait()
		c.cmd = nil
	}
	if c.stdout != nil {
		_ = c.stdout.Close()
		c.stdout = nil
	}
	if c.done != nil {
		<-c.done
	}
	return errors.Join(errs...)
}

// ListTools returns the tools the server advertises, following pagination.
func (c *Client) ListTools(ctx context.Context) ([]ToolDef, error) {
	var (
		tools  []ToolDef
		cursor string
	)
	for {
		params := map[string]any{}
		if cursor != "" {
			params["cursor"] = cursor
		}

		resp, err := c.sendRequest(ctx, "tools/list", params)
		if err != nil {
			return nil, err
		}

		var result listToolsRes
		if err := json.Unmarshal(resp, &result); err != nil {
			return nil, fmt.Errorf("parse list tools result: %w", err)
		}
		tools = append(tools, result.Tools...)

		if result.NextCursor == "" {
			return tools, nil
		}
		cursor = result.NextCursor
	}
}

// CallTool calls a tool on the server.
func (c *Client) CallTool(ctx context.Context, req ToolCall) (*ToolResult, error) {
	params := callToolParams{
		Name:      req.Name,
		Arguments: req.Arguments,
	}

	resp, err := c.sendRequest(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}

	var result ToolResult
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("parse call tool result: %w", err)
	}

	return &result, nil
}

// ServerInfo returns information about the connected server.
func (c *Client) ServerInfo() *ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}
