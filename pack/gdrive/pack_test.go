package gdrive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

type fakeDrive struct {
	mu      sync.Mutex
	queries []string
	files   map[string]File
	content map[string]string
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{
		files: map[string]File{
			"f1": {ID: "f1", Name: "report.pdf", MimeType: "application/pdf"},
		},
		content: map[string]string{"f1": "pdf-bytes"},
	}
}

func (d *fakeDrive) List(_ context.Context, q string) ([]File, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queries = append(d.queries, q)
	out := make([]File, 0, len(d.files))
	for _, f := range d.files {
		out = append(out, f)
	}
	return out, nil
}

func (d *fakeDrive) Rename(_ context.Context, id, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.files[id]
	if !ok {
		return errors.New("file not found")
	}
	f.Name = name
	d.files[id] = f
	return nil
}

func (d *fakeDrive) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.files[id]; !ok {
		return errors.New("file not found")
	}
	delete(d.files, id)
	return nil
}

func (d *fakeDrive) Download(_ context.Context, id string, w io.Writer) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.files[id]
	if !ok {
		return "", errors.New("file not found")
	}
	_, err := io.WriteString(w, d.content[id])
	return f.Name, err
}

func (d *fakeDrive) Upload(_ context.Context, name, parent string, r io.Reader) (File, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, err := io.ReadAll(r)
	if err != nil {
		return File{}, err
	}
	f := File{ID: "new-" + parent, Name: name, MimeType: "text/plain"}
	d.files[f.ID] = f
	d.content[f.ID] = string(data)
	return f, nil
}

func exec(t *testing.T, d Drive, dir, name, input string) (json.RawMessage, error) {
	t.Helper()
	p, err := New(d, WithDownloadDir(dir))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	tl, ok := p.GetTool(name)
	if !ok {
		t.Fatalf("tool %s not found", name)
	}
	res, err := tl.Execute(context.Background(), json.RawMessage(input))
	return res.Output, err
}

func TestListAndSearchQueries(t *testing.T) {
	t.Parallel()

	d := newFakeDrive()
	if _, err := exec(t, d, t.TempDir(), "list_files", `{}`); err != nil {
		t.Fatalf("list_files error = %v", err)
	}
	if _, err := exec(t, d, t.TempDir(), "search_files", `{"query":"Bob's"}`); err != nil {
		t.Fatalf("search_files error = %v", err)
	}

	want := []string{
		"'root' in parents and trashed=false",
		`name contains 'Bob\'s' and trashed=false`,
	}
	for i, q := range want {
		if d.queries[i] != q {
			t.Errorf("query[%d] = %q, want %q", i, d.queries[i], q)
		}
	}
}

func TestRenameDelete(t *testing.T) {
	t.Parallel()

	d := newFakeDrive()
	if _, err := exec(t, d, t.TempDir(), "rename_file", `{"file_id":"f1","new_name":"q1.pdf"}`); err != nil {
		t.Fatalf("rename_file error = %v", err)
	}
	if d.files["f1"].Name != "q1.pdf" {
		t.Errorf("name = %s, want q1.pdf", d.files["f1"].Name)
	}
	if _, err := exec(t, d, t.TempDir(), "delete_file", `{"file_id":"f1"}`); err != nil {
		t.Fatalf("delete_file error = %v", err)
	}
	if _, err := exec(t, d, t.TempDir(), "delete_file", `{"file_id":"f1"}`); err == nil {
		t.Error("deleting a missing file should fail")
	}
}

func TestDownloadUpload(t *testing.T) {
	t.Parallel()

	d := newFakeDrive()
	dir := t.TempDir()

	out, err := exec(t, d, dir, "download_file", `{"file_id":"f1"}`)
	if err != nil {
		t.Fatalf("download_file error = %v", err)
	}
	var res map[string]string
	_ = json.Unmarshal(out, &res)
	if res["path"] != filepath.Join(dir, "report.pdf") {
		t.Errorf("path = %s", res["path"])
	}
	data, _ := os.ReadFile(res["path"])
	if string(data) != "pdf-bytes" {
		t.Errorf("downloaded content = %q", data)
	}

	local := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(local, []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}
	input, _ := json.Marshal(map[string]string{"local_path": local})
	if _, err := exec(t, d, dir, "upload_file", string(input)); err != nil {
		t.Fatalf("upload_file error = %v", err)
	}
	if d.content["new-root"] != "hello" {
		t.Errorf("uploaded content = %q", d.content["new-root"])
	}
}

func TestUnconfigured(t *testing.T) {
	t.Parallel()

	_, err := exec(t, nil, t.TempDir(), "list_files", `{}`)
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("list_files error = %v, want ErrNotConfigured", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "token.json")
	if _, err := LoadToken(path); !errors.Is(err, ErrNoToken) {
		t.Errorf("LoadToken(missing) error = %v, want ErrNoToken", err)
	}

	if err := SaveToken(path, &oauth2.Token{AccessToken: "abc", RefreshToken: "def"}); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}
	tok, err := LoadToken(path)
	if err != nil {
		t.Fatalf("LoadToken() error = %v", err)
	}
	if tok.AccessToken != "abc" || tok.RefreshToken != "def" {
		t.Errorf("token = %+v", tok)
	}

	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0o600 {
		t.Errorf("token mode = %v, want 0600", info.Mode().Perm())
	}

	if _, err := OAuthConfig(""); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("OAuthConfig(empty) error = %v, want ErrNoCredentials", err)
	}
}

func TestServiceList(t *testing.T) {
	t.Parallel()

	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/files") {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"files":[{"id":"1","name":"a.txt","mimeType":"text/plain"}]}`))
	}))
	defer srv.Close()

	svc, err := NewServiceWithOptions(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("NewServiceWithOptions() error = %v", err)
	}

	files, err := svc.List(context.Background(), "'root' in parents")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(files) != 1 || files[0].Name != "a.txt" {
		t.Errorf("List() = %+v", files)
	}
	if gotQuery != "'root' in parents" {
		t.Errorf("q = %q", gotQuery)
	}
}

func TestQuote(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"root": "'root'",
		"it's": `'it\'s'`,
		`a\b`:  `'a\\b'`,
		"":     "''",
	}
	for in, want := range tests {
		if got := quote(in); got != want {
			t.Errorf("quote(%q) = %q, want %q", in, got, want)
		}
	}
}
