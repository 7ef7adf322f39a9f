package backends

import (
	"github.com/felixgeelhaar/fsassist/domain/capability"
	"github.com/felixgeelhaar/fsassist/domain/config"
	"github.com/felixgeelhaar/fsassist/domain/pack"
	"github.com/felixgeelhaar/fsassist/pack/gdrive"
	"github.com/felixgeelhaar/fsassist/pack/localfs"
	"github.com/felixgeelhaar/fsassist/pack/objectstore"
	"github.com/felixgeelhaar/fsassist/pack/synology"
	"github.com/felixgeelhaar/fsassist/pack/syncfolder"
)

// Descriptors converts a pack's tools into capability descriptors.
func Descriptors(p *pack.Pack) []capability.Descriptor {
	out := make([]capability.Descriptor, 0, len(p.Tools))
	for _, t := range p.Tools {
		d := capability.NewDescriptor(t.Name(), t.Description(), t.InputSchema().Raw())
		d.ReadOnly = t.Annotations().ReadOnly
		out = append(out, d)
	}
	return out
}

// Hints returns the descriptors a built-in backend serves without connecting
// to anything. External commands have none.
func Hints(b config.BackendConfig) ([]capability.Descriptor, error) {
	var (
		p   *pack.Pack
		err error
	)
	switch b.Kind {
	case config.KindLocalFS:
		p, err = localfs.New(localfs.WithRoot(b.Root))
	case config.KindSyncFolder:
		p, err = syncfolder.New(syncfolder.WithRoot(b.Root))
	case config.KindGDrive:
		p, err = gdrive.New(nil)
	case config.KindSynology:
		p, err = synology.New(nil)
	case config.KindObjectStore:
		p, err = objectstore.New(nil)
	case config.KindCommand:
		return nil, nil
	default:
		return nil, pack.ErrUnknownKind
	}
	if err != nil {
		return nil, err
	}
	return Descriptors(p), nil
}
