package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/felixgeelhaar/fsassist/domain/capability"
	"github.com/felixgeelhaar/fsassist/domain/config"
	"github.com/felixgeelhaar/fsassist/domain/conversation"
	"github.com/felixgeelhaar/fsassist/infrastructure/backends"
	"github.com/felixgeelhaar/fsassist/infrastructure/model"
	"github.com/felixgeelhaar/fsassist/infrastructure/registry"
	"github.com/felixgeelhaar/fsassist/infrastructure/resilience"
	"github.com/felixgeelhaar/fsassist/infrastructure/session"
	"github.com/felixgeelhaar/fsassist/pack/localfs"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestAssistant(t *testing.T, provider model.Provider, cat Catalog, opts ...Option) *Assistant {
	t.Helper()

	opts = append([]Option{
		WithProvider(provider),
		WithCatalog(cat),
		WithExecutor(newTestExecutor()),
	}, opts...)
	a, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func toolTurns(turns []conversation.Turn) []conversation.Turn {
	var out []conversation.Turn
	for _, t := range turns {
		if t.Role == conversation.RoleTool {
			out = append(out, t)
		}
	}
	return out
}

func lastMessage(req model.CompletionRequest) model.Message {
	if len(req.Messages) == 0 {
		return model.Message{}
	}
	return req.Messages[len(req.Messages)-1]
}

func TestNew(t *testing.T) {
	t.Parallel()

	cat := newTestRegistry(t)
	provider := model.NewScriptedProvider()

	tests := []struct {
		name    string
		opts    []Option
		wantErr error
	}{
		{"missing provider", []Option{WithCatalog(cat)}, ErrNoProvider},
		{"missing catalog", []Option{WithProvider(provider)}, ErrNoCatalog},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := New(tt.opts...); !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := New(WithProvider(provider), WithCatalog(cat), WithMaxSteps(0)); err == nil {
		t.Error("New() with zero max steps should fail")
	}

	a, err := New(WithProvider(provider), WithCatalog(cat))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if a.settings.MaxSteps != config.DefaultMaxSteps || a.settings.FallbackMessage != config.DefaultFallbackMessage {
		t.Errorf("defaults not applied: %+v", a.settings)
	}
	if a.SessionID() == "" {
		t.Error("SessionID() is empty")
	}
	history := a.History()
	if len(history) != 1 || history[0].Role != conversation.RoleSystem || history[0].Content != config.DefaultSystemPrompt {
		t.Errorf("history = %+v", history)
	}
}

func TestHandle_DocumentsScenario(t *testing.T) {
	t.Parallel()

	local := newStubBackend("local", func(context.Context, string, map[string]any) (any, error) {
		return json.RawMessage(`["a.txt","b.txt"]`), nil
	}, descriptor("list_files", true, "directory", "file_type"))

	provider := model.NewScriptedProvider(
		model.Call("list_files", `{"directory":"Documents"}`),
		model.ScriptStep{
			Content: "Documents contains a.txt and b.txt.",
			Condition: func(req model.CompletionRequest) bool {
				last := lastMessage(req)
				return last.Role == model.RoleTool && last.Content == `["a.txt","b.txt"]`
			},
		},
	)
	a := newTestAssistant(t, provider, newTestRegistry(t, local))

	answer, err := a.Handle(context.Background(), "list files in Documents")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if answer != "Documents contains a.txt and b.txt." {
		t.Errorf("answer = %q", answer)
	}

	calls := local.Calls()
	if len(calls) != 1 {
		t.Fatalf("backend calls = %+v", calls)
	}
	if diff := cmp.Diff(map[string]any{"directory": "Documents"}, calls[0].Args); diff != "" {
		t.Errorf("arguments mismatch (-want +got):\n%s", diff)
	}

	history := a.History()
	roles := make([]conversation.Role, 0, len(history))
	for _, turn := range history {
		roles = append(roles, turn.Role)
	}
	wantRoles := []conversation.Role{
		conversation.RoleSystem,
		conversation.RoleUser,
		conversation.RoleAssistant,
		conversation.RoleTool,
		conversation.RoleAssistant,
	}
	if diff := cmp.Diff(wantRoles, roles); diff != "" {
		t.Errorf("roles mismatch (-want +got):\n%s", diff)
	}
	if history[3].RequestID != history[2].Requests[0].ID {
		t.Errorf("tool turn answers %q, want %q", history[3].RequestID, history[2].Requests[0].ID)
	}

	requests := provider.Requests()
	if len(requests) != 2 {
		t.Fatalf("model queries = %d, want 2", len(requests))
	}
	if len(requests[0].Tools) != 1 || requests[0].Tools[0].Name != "list_files" {
		t.Errorf("tools offered = %+v", requests[0].Tools)
	}
	if requests[0].Messages[0].Role != model.RoleSystem {
		t.Errorf("first message role = %s, want system", requests[0].Messages[0].Role)
	}
}

func TestHandle_ResultOrdering(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		concurrency int
	}{
		{"sequential", 1},
		{"concurrent", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Later requests finish first so concurrent dispatch completes
			// out of order.
			echo := newStubBackend("local", func(_ context.Context, _ string, args map[string]any) (any, error) {
				n, _ := args["n"].(float64)
				time.Sleep(time.Duration(5-int(n)) * 5 * time.Millisecond)
				return map[string]any{"n": n}, nil
			}, descriptor("echo", true, "n"))

			calls := make([]model.ToolCall, 0, 4)
			for i := 1; i <= 4; i++ {
				calls = append(calls, model.ToolCall{
					ID:        fmt.Sprintf("call_%d", i),
					Name:      "echo",
					Arguments: fmt.Sprintf(`{"n":%d}`, i),
				})
			}
			provider := model.NewScriptedProvider(
				model.ScriptStep{ToolCalls: calls},
				model.Reply("done"),
			)
			a := newTestAssistant(t, provider, newTestRegistry(t, echo), WithToolConcurrency(tt.concurrency))

			if _, err := a.Handle(context.Background(), "echo four times"); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			turns := toolTurns(a.History())
			if len(turns) != len(calls) {
				t.Fatalf("tool turns = %d, want %d", len(turns), len(calls))
			}
			for i, turn := range turns {
				if turn.RequestID != calls[i].ID {
					t.Errorf("turn %d answers %s, want %s", i, turn.RequestID, calls[i].ID)
				}
				if want := fmt.Sprintf(`{"n":%d}`, i+1); turn.Content != want {
					t.Errorf("turn %d content = %s, want %s", i, turn.Content, want)
				}
			}
		})
	}
}

func TestHandle_ConcurrencyAboveDefaultBulkhead(t *testing.T) {
	t.Parallel()

	const width = 12

	var inFlight, peak atomic.Int32
	slow := newStubBackend("local", func(_ context.Context, _ string, args map[string]any) (any, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		return map[string]any{"n": args["n"]}, nil
	}, descriptor("slow", true, "n"))

	calls := make([]model.ToolCall, 0, width)
	for i := 1; i <= width; i++ {
		calls = append(calls, model.ToolCall{
			ID:        fmt.Sprintf("call_%d", i),
			Name:      "slow",
			Arguments: fmt.Sprintf(`{"n":%d}`, i),
		})
	}
	provider := model.NewScriptedProvider(
		model.ScriptStep{ToolCalls: calls},
		model.Reply("done"),
	)

	// No executor supplied: the default one is sized to the tool concurrency.
	a, err := New(
		WithProvider(provider),
		WithCatalog(newTestRegistry(t, slow)),
		WithToolConcurrency(width),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	if _, err := a.Handle(context.Background(), "run them all"); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	turns := toolTurns(a.History())
	if len(turns) != width {
		t.Fatalf("tool turns = %d, want %d", len(turns), width)
	}
	for i, turn := range turns {
		if want := fmt.Sprintf(`{"n":%d}`, i+1); turn.Content != want {
			t.Errorf("turn %d content = %s, want %s", i, turn.Content, want)
		}
	}
	if got := peak.Load(); got <= 10 {
		t.Errorf("peak in-flight calls = %d, want more than 10", got)
	}
}

func TestNew_RejectsNarrowExecutor(t *testing.T) {
	t.Parallel()

	_, err := New(
		WithProvider(model.NewScriptedProvider()),
		WithCatalog(newTestRegistry(t)),
		WithExecutor(resilience.NewExecutorWithOptions(resilience.WithMaxConcurrent(2))),
		WithToolConcurrency(4),
	)
	if !errors.Is(err, ErrConcurrencyLimit) {
		t.Fatalf("New() error = %v, want ErrConcurrencyLimit", err)
	}

	a, err := New(
		WithProvider(model.NewScriptedProvider()),
		WithCatalog(newTestRegistry(t)),
		WithExecutor(resilience.NewExecutorWithOptions(
			resilience.WithMaxConcurrent(2),
			resilience.WithMinConcurrent(4),
		)),
		WithToolConcurrency(4),
	)
	if err != nil {
		t.Fatalf("New() with widened executor error = %v", err)
	}
	_ = a.Shutdown(context.Background())
}

func TestHandle_UnknownOperation(t *testing.T) {
	t.Parallel()

	provider := model.NewScriptedProvider(
		model.Call("rename_cloud_file", `{"file_id":"1","new_name":"x"}`),
		model.Reply("That operation is not available."),
	)
	a := newTestAssistant(t, provider, newTestRegistry(t))

	answer, err := a.Handle(context.Background(), "rename it")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if answer != "That operation is not available." {
		t.Errorf("answer = %q", answer)
	}

	turns := toolTurns(a.History())
	if len(turns) != 1 || turns[0].Content != `{"error":"tool 'rename_cloud_file' not found"}` {
		t.Errorf("tool turns = %+v", turns)
	}
}

func TestHandle_InvalidArguments(t *testing.T) {
	t.Parallel()

	local := newStubBackend("local", nil, descriptor("list_files", true, "directory"))
	provider := model.NewScriptedProvider(
		model.Call("list_files", `{"directory":`),
		model.Reply("ok"),
	)
	a := newTestAssistant(t, provider, newTestRegistry(t, local))

	if _, err := a.Handle(context.Background(), "list"); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(local.Calls()) != 0 {
		t.Error("backend called with unparsable arguments")
	}
	turns := toolTurns(a.History())
	if len(turns) != 1 || !strings.HasPrefix(turns[0].Content, `{"error":"invalid arguments: `) {
		t.Errorf("tool turns = %+v", turns)
	}
}

func TestHandle_StepCeiling(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response model.Message
	}{
		{
			name: "always requests operations",
			response: model.Message{
				Role:      model.RoleAssistant,
				ToolCalls: []model.ToolCall{{ID: "loop", Name: "list_files", Arguments: `{}`}},
			},
		},
		{
			name:     "always empty",
			response: model.Message{Role: model.RoleAssistant},
		},
		{
			name:     "whitespace only",
			response: model.Message{Role: model.RoleAssistant, Content: "  \n"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			local := newStubBackend("local", nil, descriptor("list_files", true))
			provider := model.NewScriptedProvider().OnExhausted(func(model.CompletionRequest) (model.CompletionResponse, error) {
				return model.CompletionResponse{Message: tt.response}, nil
			})
			a := newTestAssistant(t, provider, newTestRegistry(t, local), WithMaxSteps(3))

			answer, err := a.Handle(context.Background(), "loop forever")
			if err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			if answer != config.DefaultFallbackMessage {
				t.Errorf("answer = %q, want fallback", answer)
			}
			if got := len(provider.Requests()); got != 3 {
				t.Errorf("model queries = %d, want 3", got)
			}
		})
	}
}

func TestHandle_EmptyThenAnswer(t *testing.T) {
	t.Parallel()

	provider := model.NewScriptedProvider(model.Reply(""), model.Reply("hello"))
	a := newTestAssistant(t, provider, newTestRegistry(t))

	answer, err := a.Handle(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if answer != "hello" {
		t.Errorf("answer = %q", answer)
	}
	if got := len(provider.Requests()); got != 2 {
		t.Errorf("model queries = %d, want 2", got)
	}
}

func TestHandle_ModelError(t *testing.T) {
	t.Parallel()

	errUnreachable := errors.New("connection refused")
	provider := model.NewScriptedProvider(
		model.ScriptStep{Err: errUnreachable},
		model.Reply("recovered"),
	)
	a := newTestAssistant(t, provider, newTestRegistry(t))

	if _, err := a.Handle(context.Background(), "first"); !errors.Is(err, errUnreachable) {
		t.Fatalf("Handle() error = %v, want %v", err, errUnreachable)
	}

	answer, err := a.Handle(context.Background(), "second")
	if err != nil || answer != "recovered" {
		t.Errorf("Handle() after model error = %q, %v", answer, err)
	}
}

func TestHandle_RootConfinement(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := localfs.New(localfs.WithRoot(root))
	if err != nil {
		t.Fatal(err)
	}
	local := backends.NewInProcess("local", p)

	provider := model.NewScriptedProvider(
		model.Call("delete_file", `{"path":"/etc/passwd"}`),
		model.ScriptStep{
			Content: "I can't delete files outside your home folder.",
			Condition: func(req model.CompletionRequest) bool {
				return strings.Contains(lastMessage(req).Content, "path outside root")
			},
		},
	)
	a := newTestAssistant(t, provider, newTestRegistry(t, local))

	answer, err := a.Handle(context.Background(), "delete /etc/passwd")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if answer != "I can't delete files outside your home folder." {
		t.Errorf("answer = %q", answer)
	}

	turns := toolTurns(a.History())
	if len(turns) != 1 || !strings.HasPrefix(turns[0].Content, `{"error":"tool execution error: `) {
		t.Errorf("tool turns = %+v", turns)
	}
	if _, err := os.Stat(filepath.Join(root, "notes.txt")); err != nil {
		t.Errorf("root contents disturbed: %v", err)
	}
}

func TestHandle_OnlyLocalBackendStarted(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	cfg := &config.Config{
		Backends: []config.BackendConfig{
			{Tag: "local", Kind: config.KindLocalFS, Root: root},
			{Tag: "gdrive", Kind: config.KindGDrive},
			{Tag: "nas", Kind: config.KindSynology},
		},
	}
	inProcess := &session.InProcessLauncher{}
	launcher := session.LauncherFunc(func(ctx context.Context, b config.BackendConfig) (capability.Backend, error) {
		if b.Tag != "local" {
			return nil, fmt.Errorf("handshake with %s failed", b.Tag)
		}
		return inProcess.Launch(ctx, b)
	})
	sess, err := session.Start(context.Background(), cfg,
		session.WithLauncher(launcher),
		session.WithProbe(func(context.Context, config.BackendConfig) backends.Availability {
			return backends.Availability{Available: true}
		}),
	)
	if err != nil {
		t.Fatalf("session.Start() error = %v", err)
	}

	if diff := cmp.Diff([]string{"local"}, sess.Backends()); diff != "" {
		t.Fatalf("backends mismatch (-want +got):\n%s", diff)
	}

	provider := model.NewScriptedProvider(
		model.Call("download_file", `{"file_id":"abc"}`),
		model.Reply("Google Drive is not connected."),
	)
	a, err := New(WithProvider(provider), WithSession(sess), WithExecutor(newTestExecutor()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, d := range a.Tools() {
		if d.Name == "download_file" {
			t.Errorf("cloud-only operation %s in catalog", d.Name)
		}
	}

	answer, err := a.Handle(context.Background(), "download abc")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if answer != "Google Drive is not connected." {
		t.Errorf("answer = %q", answer)
	}
	turns := toolTurns(a.History())
	if len(turns) != 1 || turns[0].Content != `{"error":"tool 'download_file' not found"}` {
		t.Errorf("tool turns = %+v", turns)
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if len(sess.Backends()) != 0 {
		t.Errorf("backends after shutdown = %v", sess.Backends())
	}
	if _, err := a.Handle(context.Background(), "again"); !errors.Is(err, ErrShutdown) {
		t.Errorf("Handle() after Shutdown error = %v, want ErrShutdown", err)
	}
}

type closingCatalog struct {
	*registry.Registry
	closes atomic.Int32
}

var _ SessionCatalog = (*closingCatalog)(nil)

func (c *closingCatalog) Close() error {
	c.closes.Add(1)
	return nil
}

func TestShutdown_Once(t *testing.T) {
	t.Parallel()

	cat := &closingCatalog{Registry: newTestRegistry(t)}
	a, err := New(WithProvider(model.NewScriptedProvider()), WithSession(cat))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for range 3 {
		if err := a.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	}
	if got := cat.closes.Load(); got != 1 {
		t.Errorf("session closed %d times, want 1", got)
	}
}

// exclusiveProvider fails if two completions overlap.
type exclusiveProvider struct {
	inFlight atomic.Int32
	overlap  atomic.Bool
}

func (p *exclusiveProvider) Name() string { return "exclusive" }

func (p *exclusiveProvider) Complete(context.Context, model.CompletionRequest) (model.CompletionResponse, error) {
	if p.inFlight.Add(1) > 1 {
		p.overlap.Store(true)
	}
	time.Sleep(5 * time.Millisecond)
	p.inFlight.Add(-1)
	return model.CompletionResponse{Message: model.Message{Role: model.RoleAssistant, Content: "ok"}}, nil
}

func TestHandle_Serialized(t *testing.T) {
	t.Parallel()

	provider := &exclusiveProvider{}
	a := newTestAssistant(t, provider, newTestRegistry(t))

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.Handle(context.Background(), fmt.Sprintf("prompt %d", i)); err != nil {
				t.Errorf("Handle() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if provider.overlap.Load() {
		t.Error("model queries overlapped")
	}
	// system + 8 × (user, assistant)
	if got := len(a.History()); got != 17 {
		t.Errorf("history length = %d, want 17", got)
	}
}
