package storkit

import (
	"context"
	"fmt"
	"sync"
)

// Factory constructs a live provider from a validated config.
type Factory func(ctx context.Context, cfg Config, opts ...Option) (Provider, error)

var (
	factoryMu sync.RWMutex
	factories = make(map[Family]Factory)
)

// RegisterFactory registers the constructor for a provider family.
// Implementations register themselves from an init function; consumers pull
// them in with a blank import:
//
//	import (
//	    "github.com/filecove/storkit"
//	    _ "github.com/filecove/storkit/internal/s3"
//	    _ "github.com/filecove/storkit/internal/docstore"
//	)
func RegisterFactory(f Family, fn Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[f] = fn
}

// HasFactory reports whether a constructor is registered for the family.
// Validation accepts any registered family, so out-of-tree providers work
// through the registry and manager without touching this package.
func HasFactory(f Family) bool {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	_, ok := factories[f]
	return ok
}

// NewProvider constructs a provider for cfg.Provider. The config must
// already pass ValidateConfig.
func NewProvider(ctx context.Context, cfg Config, opts ...Option) (Provider, error) {
	factoryMu.RLock()
	fn, ok := factories[cfg.Provider]
	factoryMu.RUnlock()
	if !ok {
		return nil, &StorageError{
			Op:  "new_provider",
			Err: fmt.Errorf("%w: no implementation registered for family %q", ErrUnsupported, cfg.Provider),
		}
	}
	return fn(ctx, cfg, opts...)
}
