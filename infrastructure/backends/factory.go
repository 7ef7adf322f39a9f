// Package backends turns backend configuration into tool packs: the ones the
// fsassist binary serves itself over stdio, the descriptor hints the
// assistant merges into what a server advertises, and availability probes.
package backends

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/felixgeelhaar/fsassist/domain/config"
	"github.com/felixgeelhaar/fsassist/domain/pack"
	cfgloader "github.com/felixgeelhaar/fsassist/infrastructure/config"
	"github.com/felixgeelhaar/fsassist/infrastructure/logging"
	"github.com/felixgeelhaar/fsassist/pack/gdrive"
	"github.com/felixgeelhaar/fsassist/pack/localfs"
	"github.com/felixgeelhaar/fsassist/pack/objectstore"
	"github.com/felixgeelhaar/fsassist/pack/synology"
	"github.com/felixgeelhaar/fsassist/pack/syncfolder"
)

var (
	// ErrNotBuiltIn indicates the kind is served by an external command.
	ErrNotBuiltIn = errors.New("backend kind is not built in")

	// ErrUnknownProvider indicates an unsupported object store provider.
	ErrUnknownProvider = errors.New("unknown object store provider")
)

// Object store providers.
const (
	ProviderS3     = "s3"
	ProviderGCS    = "gcs"
	ProviderAzure  = "azure"
	ProviderMemory = "memory"
)

// AzureConnectionStringEnv names the variable holding an Azure storage
// connection string.
const AzureConnectionStringEnv = "AZURE_STORAGE_CONNECTION_STRING"

// Instance is a built pack plus the clients it holds.
type Instance struct {
	Pack    *pack.Pack
	closers []func() error
}

// Close releases the clients behind the pack.
func (i *Instance) Close() error {
	var errs []error
	for _, c := range i.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build constructs the pack for a built-in backend, connecting to remote
// services as needed.
func Build(ctx context.Context, b config.BackendConfig) (*Instance, error) {
	switch b.Kind {
	case config.KindLocalFS:
		p, err := localfs.New(localfs.WithRoot(b.Root))
		return wrap(p, err)

	case config.KindSyncFolder:
		p, err := syncfolder.New(syncfolder.WithRoot(b.Root))
		return wrap(p, err)

	case config.KindGDrive:
		svc, err := gdrive.NewService(ctx, gdrive.ServiceConfig{
			CredentialsFile: cfgloader.ExpandHome(b.CredentialsFile),
			TokenFile:       cfgloader.ExpandHome(b.TokenFile),
		})
		if err != nil {
			return nil, fmt.Errorf("google drive: %w", err)
		}
		p, err := gdrive.New(svc, gdrive.WithDownloadDir(cfgloader.ExpandHome(b.DownloadDir)))
		return wrap(p, err)

	case config.KindSynology:
		return buildSynology(ctx, b)

	case config.KindObjectStore:
		store, err := NewStore(ctx, b)
		if err != nil {
			return nil, err
		}
		p, err := objectstore.New(store)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		return &Instance{Pack: p, closers: []func() error{store.Close}}, nil

	case config.KindCommand:
		return nil, fmt.Errorf("%w: %s", ErrNotBuiltIn, b.Kind)

	default:
		return nil, fmt.Errorf("%w: %s", pack.ErrUnknownKind, b.Kind)
	}
}

func wrap(p *pack.Pack, err error) (*Instance, error) {
	if err != nil {
		return nil, err
	}
	return &Instance{Pack: p}, nil
}

// SynologyClient builds a DSM client from configuration.
func SynologyClient(b config.BackendConfig) *synology.Client {
	return synology.NewClient(synology.ClientConfig{
		Host:               b.Host,
		Port:               b.Port,
		Username:           b.Username,
		Password:           b.Password,
		Secure:             b.Secure,
		InsecureSkipVerify: b.InsecureSkipVerify,
	})
}

// buildSynology logs in up front. A NAS that rejects the login still gets a
// pack whose tools report it as not connected.
func buildSynology(ctx context.Context, b config.BackendConfig) (*Instance, error) {
	client := SynologyClient(b)
	if err := client.Login(ctx); err != nil {
		logging.Warn().
			Add(logging.Backend(b.Tag)).
			Add(logging.ErrorField(err)).
			Msg("NAS login failed")
		p, err := synology.New(nil)
		return wrap(p, err)
	}

	p, err := synology.New(client)
	if err != nil {
		return nil, err
	}
	logout := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return client.Logout(ctx)
	}
	return &Instance{Pack: p, closers: []func() error{logout}}, nil
}

// NewStore opens the object store a backend points at.
func NewStore(ctx context.Context, b config.BackendConfig) (objectstore.Store, error) {
	switch b.Provider {
	case ProviderS3:
		return objectstore.NewS3Store(ctx, objectstore.S3Config{
			Bucket:   b.Bucket,
			Region:   b.Region,
			Endpoint: b.Endpoint,
		})
	case ProviderGCS:
		return objectstore.NewGCSStore(ctx, objectstore.GCSConfig{
			Bucket:          b.Bucket,
			CredentialsFile: cfgloader.ExpandHome(b.CredentialsFile),
			Endpoint:        b.Endpoint,
		})
	case ProviderAzure:
		return objectstore.NewAzureStore(objectstore.AzureConfig{
			Container:        b.Bucket,
			AccountURL:       b.AccountURL,
			ConnectionString: os.Getenv(AzureConnectionStringEnv),
		})
	case ProviderMemory, "":
		bucket := b.Bucket
		if bucket == "" {
			bucket = b.Tag
		}
		return objectstore.NewMemoryStore(bucket), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, b.Provider)
	}
}
