package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/felixgeelhaar/fsassist/infrastructure/logging"
)

// writeFile writes content under dir and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// scriptedConfig writes a config with a scripted model and one localfs
// backend rooted at a directory holding two files.
func scriptedConfig(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "files")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, root, "report.pdf", "pdf")
	writeFile(t, root, "notes.txt", "notes")

	scriptPath := writeFile(t, dir, "script.yaml", script)
	return writeFile(t, dir, "config.yaml", fmt.Sprintf(`
name: cli-test
model:
  provider: scripted
  script: %s
backends:
  - tag: local
    kind: localfs
    root: %s
logging:
  level: error
`, scriptPath, root))
}

const listThenAnswer = `- tool_calls:
    - name: list_files
      arguments: '{"folder":"."}'
- content: Two files are in your folder.
`

func TestApp_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{"version"})
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "fsassist version "+Version) {
		t.Errorf("version output missing 'fsassist version', got: %s", output)
	}
}

func TestApp_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{"--help"})
	if err != nil {
		t.Fatalf("help command failed: %v", err)
	}

	output := stdout.String()
	for _, want := range []string{"Natural-language assistant", "chat", "ask", "tools", "validate", "auth"} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q, got: %s", want, output)
		}
	}
	if strings.Contains(output, "backend <tag>") {
		t.Errorf("help output lists hidden backend command: %s", output)
	}
}

func TestApp_Validate(t *testing.T) {
	content := `
name: home
assistant:
  max_steps: 6
backends:
  - tag: local
    kind: localfs
    root: ~/Documents
  - tag: nas
    kind: synology
    host: nas.lan
    disabled: true
`
	configPath := writeFile(t, t.TempDir(), "config.yaml", content)

	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{"validate", "-c", configPath})
	if err != nil {
		t.Fatalf("validate command failed: %v", err)
	}

	output := stdout.String()
	for _, want := range []string{
		"Configuration is valid",
		"Name: home",
		"Max steps: 6",
		"local (localfs, enabled)",
		"nas (synology, disabled)",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("validate output missing %q, got: %s", want, output)
		}
	}
}

func TestApp_ValidateProbe(t *testing.T) {
	dir := t.TempDir()
	content := fmt.Sprintf(`
backends:
  - tag: local
    kind: localfs
    root: %s
  - tag: gone
    kind: localfs
    root: %s
`, dir, filepath.Join(dir, "missing"))
	configPath := writeFile(t, dir, "config.yaml", content)

	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{"validate", "--probe", "-c", configPath})
	if err != nil {
		t.Fatalf("validate --probe failed: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "local (localfs, enabled): available") {
		t.Errorf("probe output missing available backend, got: %s", output)
	}
	if !strings.Contains(output, "gone (localfs, enabled): unavailable") {
		t.Errorf("probe output missing unavailable backend, got: %s", output)
	}
}

func TestApp_ValidateInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "unknown kind",
			content: `
backends:
  - tag: x
    kind: floppy
`,
		},
		{
			name: "duplicate tag",
			content: `
backends:
  - tag: local
    kind: localfs
    root: /tmp
  - tag: local
    kind: localfs
    root: /srv
`,
		},
		{
			name: "max steps out of range",
			content: `
assistant:
  max_steps: 500
`,
		},
		{
			name: "scripted without script",
			content: `
model:
  provider: scripted
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeFile(t, t.TempDir(), "config.yaml", tt.content)

			var stdout, stderr bytes.Buffer
			app := New().WithOutput(&stdout, &stderr)

			err := app.ExecuteWithArgs(context.Background(), []string{"validate", "-c", configPath})
			if err == nil {
				t.Fatalf("validate should fail, output: %s", stdout.String())
			}
		})
	}
}

func TestApp_ValidateStrictEnv(t *testing.T) {
	content := `
backends:
  - tag: nas
    kind: synology
    host: nas.lan
    password: ${FSASSIST_TEST_UNSET_PASSWORD}
`
	configPath := writeFile(t, t.TempDir(), "config.yaml", content)

	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)
	if err := app.ExecuteWithArgs(context.Background(), []string{"validate", "--strict", "-c", configPath}); err == nil {
		t.Error("strict validation should fail on an unset variable")
	}

	stdout.Reset()
	app = New().WithOutput(&stdout, &stderr)
	if err := app.ExecuteWithArgs(context.Background(), []string{"validate", "-c", configPath}); err != nil {
		t.Errorf("lenient validation failed: %v", err)
	}
}

func TestApp_ValidateMissingFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{"validate", "-c", "/nonexistent/config.yaml"})
	if err == nil {
		t.Fatal("validate should fail for a missing file")
	}
}

func TestApp_Ask(t *testing.T) {
	configPath := scriptedConfig(t, listThenAnswer)

	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{
		"ask", "--in-process", "--plain", "-c", configPath, "what", "is", "in", "my", "folder?",
	})
	if err != nil {
		t.Fatalf("ask failed: %v (stderr: %s)", err, stderr.String())
	}

	if got, want := stdout.String(), "Two files are in your folder.\n"; got != want {
		t.Errorf("ask output = %q, want %q", got, want)
	}
}

func TestApp_AskRequiresPrompt(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	if err := app.ExecuteWithArgs(context.Background(), []string{"ask"}); err == nil {
		t.Error("ask without a prompt should fail")
	}
}

func TestApp_Chat(t *testing.T) {
	configPath := scriptedConfig(t, listThenAnswer)

	var stdout, stderr bytes.Buffer
	app := New().
		WithOutput(&stdout, &stderr).
		WithInput(strings.NewReader("/help\n/tools\n\n/bogus\nwhat is in my folder?\n"))

	err := app.ExecuteWithArgs(context.Background(), []string{"chat", "--in-process", "--plain", "-c", configPath})
	if err != nil {
		t.Fatalf("chat failed: %v (stderr: %s)", err, stderr.String())
	}

	output := stdout.String()
	for _, want := range []string{
		"operations available",
		"Commands: /tools, /help, /quit",
		"list_files",
		"unknown command /bogus",
		"Two files are in your folder.",
		"bye",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("chat output missing %q, got: %s", want, output)
		}
	}
}

func TestApp_ChatQuit(t *testing.T) {
	configPath := scriptedConfig(t, listThenAnswer)

	var stdout, stderr bytes.Buffer
	app := New().
		WithOutput(&stdout, &stderr).
		WithInput(strings.NewReader("/quit\nwhat is in my folder?\n"))

	err := app.ExecuteWithArgs(context.Background(), []string{"chat", "--in-process", "--plain", "-c", configPath})
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}

	output := stdout.String()
	if strings.Contains(output, "Two files") {
		t.Errorf("prompt after /quit was answered: %s", output)
	}
	if !strings.HasSuffix(output, "bye\n") {
		t.Errorf("chat output should end with bye, got: %s", output)
	}
}

func TestApp_ToolsJSON(t *testing.T) {
	configPath := scriptedConfig(t, listThenAnswer)

	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{"tools", "--in-process", "--json", "-c", configPath})
	if err != nil {
		t.Fatalf("tools failed: %v", err)
	}

	var entries []toolEntry
	if err := json.Unmarshal(stdout.Bytes(), &entries); err != nil {
		t.Fatalf("tools --json output is not JSON: %v\n%s", err, stdout.String())
	}

	byName := make(map[string]toolEntry, len(entries))
	for _, e := range entries {
		byName[e.Name] = e
	}
	list, ok := byName["list_files"]
	if !ok {
		t.Fatalf("list_files missing from %v", entries)
	}
	if list.Backend != "local" || !list.ReadOnly {
		t.Errorf("list_files = %+v, want backend local, read-only", list)
	}
	if del, ok := byName["delete_file"]; !ok || del.ReadOnly {
		t.Errorf("delete_file = %+v, %v, want a mutating operation", del, ok)
	}
}

func TestApp_ToolsUnavailable(t *testing.T) {
	dir := t.TempDir()
	content := fmt.Sprintf(`
backends:
  - tag: gone
    kind: localfs
    root: %s
`, filepath.Join(dir, "missing"))
	configPath := writeFile(t, dir, "config.yaml", content)

	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{"tools", "--in-process", "-c", configPath})
	if err != nil {
		t.Fatalf("tools failed: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "No backends available.") {
		t.Errorf("tools output missing empty notice, got: %s", output)
	}
	if !strings.Contains(output, "Unavailable backends:") || !strings.Contains(output, "gone:") {
		t.Errorf("tools output missing unavailable backend, got: %s", output)
	}
}

func TestApp_BackendUnknownTag(t *testing.T) {
	configPath := scriptedConfig(t, listThenAnswer)

	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{"backend", "-c", configPath, "nope"})
	if err == nil || !strings.Contains(err.Error(), `no backend tagged "nope"`) {
		t.Errorf("backend nope error = %v", err)
	}
}

// urlWriter captures what authorizeLoopback prints.
type urlWriter struct {
	lines chan string
}

func (w *urlWriter) Write(p []byte) (int, error) {
	select {
	case w.lines <- string(p):
	default:
	}
	return len(p), nil
}

// consentURL waits for the printed authorization URL.
func consentURL(t *testing.T, w *urlWriter) *url.URL {
	t.Helper()
	select {
	case text := <-w.lines:
		for _, field := range strings.Fields(text) {
			if strings.HasPrefix(field, "http") {
				u, err := url.Parse(field)
				if err != nil {
					t.Fatalf("parse consent URL: %v", err)
				}
				return u
			}
		}
		t.Fatalf("no URL in %q", text)
	case <-time.After(5 * time.Second):
		t.Fatal("consent URL was never printed")
	}
	return nil
}

func newTokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/token" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"drive-token","token_type":"Bearer","refresh_token":"refresh","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAuthorizeLoopback(t *testing.T) {
	srv := newTokenServer(t)
	oauthCfg := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"},
		Scopes:       []string{"drive"},
	}

	tests := []struct {
		name    string
		query   func(state string) url.Values
		wantErr error
	}{
		{
			name: "success",
			query: func(state string) url.Values {
				return url.Values{"state": {state}, "code": {"good-code"}}
			},
		},
		{
			name: "state mismatch",
			query: func(string) url.Values {
				return url.Values{"state": {"forged"}, "code": {"good-code"}}
			},
			wantErr: ErrStateMismatch,
		},
		{
			name: "consent denied",
			query: func(state string) url.Values {
				return url.Values{"state": {state}, "error": {"access_denied"}}
			},
			wantErr: ErrAuthDenied,
		},
		{
			name: "missing code",
			query: func(state string) url.Values {
				return url.Values{"state": {state}}
			},
			wantErr: ErrAuthDenied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			out := &urlWriter{lines: make(chan string, 4)}
			type result struct {
				tok *oauth2.Token
				err error
			}
			done := make(chan result, 1)
			go func() {
				tok, err := authorizeLoopback(ctx, oauthCfg, out)
				done <- result{tok, err}
			}()

			consent := consentURL(t, out)
			params := consent.Query()
			if params.Get("access_type") != "offline" {
				t.Errorf("consent URL missing offline access: %s", consent)
			}
			redirect := params.Get("redirect_uri")
			if !strings.HasPrefix(redirect, "http://127.0.0.1:") {
				t.Fatalf("redirect_uri = %q, want loopback", redirect)
			}

			resp, err := http.Get(redirect + "?" + tt.query(params.Get("state")).Encode())
			if err != nil {
				t.Fatalf("callback request failed: %v", err)
			}
			_ = resp.Body.Close()

			res := <-done
			if tt.wantErr != nil {
				if !errors.Is(res.err, tt.wantErr) {
					t.Errorf("error = %v, want %v", res.err, tt.wantErr)
				}
				if resp.StatusCode != http.StatusBadRequest {
					t.Errorf("callback status = %d, want 400", resp.StatusCode)
				}
				return
			}
			if res.err != nil {
				t.Fatalf("authorizeLoopback error = %v", res.err)
			}
			if res.tok.AccessToken != "drive-token" || res.tok.RefreshToken != "refresh" {
				t.Errorf("token = %+v", res.tok)
			}
		})
	}
}

func TestAuthorizeLoopback_Timeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := authorizeLoopback(ctx, &oauth2.Config{}, &urlWriter{lines: make(chan string, 1)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestGDriveBackend(t *testing.T) {
	configPath := writeFile(t, t.TempDir(), "config.yaml", `
backends:
  - tag: local
    kind: localfs
    root: /tmp
  - tag: personal
    kind: gdrive
  - tag: work
    kind: gdrive
`)

	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)
	app.opts.configPath = configPath
	cfg, _, err := app.loadConfig(logging.DefaultConfig())
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if b, err := gdriveBackend(cfg, ""); err != nil || b.Tag != "personal" {
		t.Errorf("default gdrive backend = %q, %v", b.Tag, err)
	}
	if b, err := gdriveBackend(cfg, "work"); err != nil || b.Tag != "work" {
		t.Errorf("tagged gdrive backend = %q, %v", b.Tag, err)
	}
	if _, err := gdriveBackend(cfg, "local"); err == nil {
		t.Error("non-gdrive tag should fail")
	}
}
