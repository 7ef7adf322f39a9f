package backends

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/felixgeelhaar/fsassist/domain/config"
	cfgloader "github.com/felixgeelhaar/fsassist/infrastructure/config"
	"github.com/felixgeelhaar/fsassist/pack/gdrive"
)

// DefaultProbeTimeout bounds probes that reach the network.
const DefaultProbeTimeout = 10 * time.Second

// Availability reports whether a backend's preconditions are met.
type Availability struct {
	Available bool
	Reason    string
}

func available() Availability {
	return Availability{Available: true}
}

func unavailable(format string, args ...any) Availability {
	return Availability{Reason: fmt.Sprintf(format, args...)}
}

// Probe checks a backend's preconditions without launching it.
func Probe(ctx context.Context, b config.BackendConfig) Availability {
	switch b.Kind {
	case config.KindLocalFS, config.KindSyncFolder:
		return probeDir(b.Root)

	case config.KindGDrive:
		return probeGDrive(b)

	case config.KindSynology:
		if b.Host == "" || b.Username == "" || b.Password == "" {
			return unavailable("NAS host, username and password are required")
		}
		ctx, cancel := context.WithTimeout(ctx, DefaultProbeTimeout)
		defer cancel()
		client := SynologyClient(b)
		if err := client.Login(ctx); err != nil {
			return unavailable("NAS login failed: %v", err)
		}
		_ = client.Logout(ctx)
		return available()

	case config.KindObjectStore:
		ctx, cancel := context.WithTimeout(ctx, DefaultProbeTimeout)
		defer cancel()
		store, err := NewStore(ctx, b)
		if err != nil {
			return unavailable("%v", err)
		}
		defer store.Close()
		ok, err := store.Exists(ctx)
		if err != nil {
			return unavailable("%v", err)
		}
		if !ok {
			return unavailable("bucket %s does not exist", store.Bucket())
		}
		return available()

	case config.KindCommand:
		if len(b.Command) == 0 {
			return unavailable("no command configured")
		}
		if _, err := exec.LookPath(b.Command[0]); err != nil {
			return unavailable("command %s not found", b.Command[0])
		}
		return available()

	default:
		return unavailable("unknown kind %s", b.Kind)
	}
}

func probeDir(root string) Availability {
	dir := cfgloader.ExpandHome(root)
	info, err := os.Stat(dir)
	if err != nil {
		return unavailable("%s not found", dir)
	}
	if !info.IsDir() {
		return unavailable("%s is not a directory", dir)
	}
	return available()
}

func probeGDrive(b config.BackendConfig) Availability {
	if b.CredentialsFile == "" {
		return unavailable("no Google client secret configured")
	}
	creds := cfgloader.ExpandHome(b.CredentialsFile)
	if _, err := os.Stat(creds); err != nil {
		return unavailable("client secret %s not found", creds)
	}
	token := cfgloader.ExpandHome(b.TokenFile)
	if _, err := gdrive.LoadToken(token); err != nil {
		return unavailable("no stored token; run fsassist auth gdrive")
	}
	return available()
}
