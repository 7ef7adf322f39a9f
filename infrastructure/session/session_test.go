package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/felixgeelhaar/fsassist/domain/capability"
	"github.com/felixgeelhaar/fsassist/domain/config"
	"github.com/felixgeelhaar/fsassist/infrastructure/backends"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeBackend struct {
	tag      string
	ops      []string
	closeErr error

	mu     sync.Mutex
	closed bool
	order  *[]string
}

func (f *fakeBackend) Tag() string { return f.tag }

func (f *fakeBackend) Capabilities(context.Context) ([]capability.Descriptor, error) {
	out := make([]capability.Descriptor, 0, len(f.ops))
	for _, op := range f.ops {
		out = append(out, capability.NewDescriptor(op, "", nil))
	}
	return out, nil
}

func (f *fakeBackend) Call(context.Context, string, map[string]any) (any, error) {
	return map[string]any{"backend": f.tag}, nil
}

func (f *fakeBackend) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	if f.order != nil {
		*f.order = append(*f.order, f.tag)
	}
	return f.closeErr
}

func alwaysAvailable(context.Context, config.BackendConfig) backends.Availability {
	return backends.Availability{Available: true}
}

type recordingLauncher struct {
	mu       sync.Mutex
	launched []string
	started  map[string]*fakeBackend
	fail     map[string]error
	hook     func(tag string)
	order    []string
}

func newRecordingLauncher() *recordingLauncher {
	return &recordingLauncher{started: map[string]*fakeBackend{}, fail: map[string]error{}}
}

func (l *recordingLauncher) Launch(_ context.Context, b config.BackendConfig) (capability.Backend, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launched = append(l.launched, b.Tag)
	if l.hook != nil {
		l.hook(b.Tag)
	}
	if err := l.fail[b.Tag]; err != nil {
		return nil, err
	}
	fb := &fakeBackend{tag: b.Tag, ops: []string{b.Tag + "_op", "shared"}, order: &l.order}
	l.started[b.Tag] = fb
	return fb, nil
}

func testConfig(tags ...string) *config.Config {
	cfg := &config.Config{}
	for _, tag := range tags {
		cfg.Backends = append(cfg.Backends, config.BackendConfig{Tag: tag, Kind: config.KindCommand, Command: []string{tag}})
	}
	return cfg
}

func TestStart_OrderAndCollisions(t *testing.T) {
	l := newRecordingLauncher()
	s, err := Start(context.Background(), testConfig("local", "gdrive", "icloud"),
		WithLauncher(l), WithProbe(alwaysAvailable))
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Close()

	if diff := cmp.Diff([]string{"local", "gdrive", "icloud"}, s.Backends()); diff != "" {
		t.Errorf("Backends() mismatch (-want +got):\n%s", diff)
	}
	owner, ok := s.OwnerOf("shared")
	if !ok || owner.Tag() != "local" {
		t.Errorf("OwnerOf(shared) = %v, %v; want local", owner, ok)
	}
	if got := len(s.Catalog()); got != 4 {
		t.Errorf("catalog size = %d, want 4", got)
	}
}

func TestStart_ExcludesFailingBackends(t *testing.T) {
	l := newRecordingLauncher()
	l.fail["gdrive"] = errors.New("handshake failed")
	probe := func(_ context.Context, b config.BackendConfig) backends.Availability {
		if b.Tag == "syno" {
			return backends.Availability{Reason: "NAS login failed"}
		}
		return backends.Availability{Available: true}
	}

	s, err := Start(context.Background(), testConfig("local", "gdrive", "syno", "icloud"),
		WithLauncher(l), WithProbe(probe))
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Close()

	if diff := cmp.Diff([]string{"local", "icloud"}, s.Backends()); diff != "" {
		t.Errorf("Backends() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"local", "gdrive", "icloud"}, l.launched); diff != "" {
		t.Errorf("launched mismatch (-want +got):\n%s", diff)
	}
	excluded := s.Excluded()
	if !strings.Contains(excluded["gdrive"], "handshake failed") {
		t.Errorf("gdrive reason = %q", excluded["gdrive"])
	}
	if !strings.Contains(excluded["syno"], "NAS login failed") {
		t.Errorf("syno reason = %q", excluded["syno"])
	}
}

func TestStart_OnlyEnabledBackends(t *testing.T) {
	cfg := testConfig("local", "gdrive", "icloud", "syno")
	for i := 1; i < len(cfg.Backends); i++ {
		cfg.Backends[i].Disabled = true
	}

	l := newRecordingLauncher()
	s, err := Start(context.Background(), cfg, WithLauncher(l), WithProbe(alwaysAvailable))
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Close()

	if diff := cmp.Diff([]string{"local"}, l.launched); diff != "" {
		t.Errorf("launched mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"local"}, s.registry.Backends()); diff != "" {
		t.Errorf("registry backends mismatch (-want +got):\n%s", diff)
	}
}

func TestStart_RollbackOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := newRecordingLauncher()
	l.fail["gdrive"] = errors.New("interrupted")
	l.hook = func(tag string) {
		if tag == "gdrive" {
			cancel()
		}
	}

	s, err := Start(ctx, testConfig("local", "gdrive", "icloud"), WithLauncher(l), WithProbe(alwaysAvailable))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Start() error = %v, want context.Canceled", err)
	}
	if s != nil {
		t.Error("Start() returned a session after cancellation")
	}
	if l.started["local"].Alive() {
		t.Error("local backend was not rolled back")
	}
	if diff := cmp.Diff([]string{"local", "gdrive"}, l.launched); diff != "" {
		t.Errorf("launched mismatch (-want +got):\n%s", diff)
	}
}

func TestClose(t *testing.T) {
	l := newRecordingLauncher()
	s, err := Start(context.Background(), testConfig("local", "gdrive", "icloud"),
		WithLauncher(l), WithProbe(alwaysAvailable))
	if err != nil {
		t.Fatal(err)
	}
	l.started["gdrive"].closeErr = errors.New("broken pipe")

	err = s.Close()
	if err == nil || !strings.Contains(err.Error(), "gdrive: broken pipe") {
		t.Fatalf("Close() error = %v", err)
	}
	if diff := cmp.Diff([]string{"icloud", "gdrive", "local"}, l.order); diff != "" {
		t.Errorf("close order mismatch (-want +got):\n%s", diff)
	}
	for tag, b := range l.started {
		if b.Alive() {
			t.Errorf("%s still alive", tag)
		}
	}

	if _, ok := s.OwnerOf("local_op"); ok {
		t.Error("OwnerOf succeeded after Close")
	}
	if len(s.Catalog()) != 0 {
		t.Error("Catalog not empty after Close")
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestInProcessLauncher(t *testing.T) {
	root := t.TempDir()
	cfg := &config.Config{Backends: []config.BackendConfig{
		{Tag: "local", Kind: config.KindLocalFS, Root: root},
		{Tag: "extra", Kind: config.KindCommand, Command: []string{"srv"}},
	}}

	s, err := Start(context.Background(), cfg,
		WithLauncher(&InProcessLauncher{}), WithProbe(alwaysAvailable))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if diff := cmp.Diff([]string{"local"}, s.Backends()); diff != "" {
		t.Errorf("Backends() mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(s.Excluded()["extra"], backends.ErrNotBuiltIn.Error()) {
		t.Errorf("extra reason = %q", s.Excluded()["extra"])
	}
	d, ok := s.Describe("list_files")
	if !ok || !d.ReadOnly {
		t.Errorf("Describe(list_files) = %+v, %v", d, ok)
	}
}

func TestProcessLauncherCommand(t *testing.T) {
	l := &ProcessLauncher{Executable: "/usr/bin/fsassist", ConfigPath: "/etc/fsassist.yaml"}

	tests := []struct {
		name string
		cfg  config.BackendConfig
		want []string
	}{
		{"built in", config.BackendConfig{Tag: "local", Kind: config.KindLocalFS},
			[]string{"/usr/bin/fsassist", "backend", "local", "--config", "/etc/fsassist.yaml"}},
		{"external", config.BackendConfig{Tag: "extra", Kind: config.KindCommand, Command: []string{"srv", "--stdio"}},
			[]string{"srv", "--stdio"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.command(tt.cfg)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("command mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if diff := cmp.Diff([]string{"A=1", "B=2"}, envList(map[string]string{"B": "2", "A": "1"})); diff != "" {
		t.Errorf("envList mismatch (-want +got):\n%s", diff)
	}
}
