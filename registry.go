package storkit

import (
	"fmt"
	"sort"
	"sync"
)

// ConfigRegistry holds named provider configurations and enforces the
// single-default invariant: at most one active config has Default set at any
// time. All mutations take the registry lock, so the clear-then-set sequence
// in SetDefault cannot interleave with concurrent mutation.
type ConfigRegistry struct {
	mu      sync.RWMutex
	configs map[string]Config
}

// NewConfigRegistry returns an empty registry.
func NewConfigRegistry() *ConfigRegistry {
	return &ConfigRegistry{configs: make(map[string]Config)}
}

// Add validates and stores a config under id. Adding the first active config
// makes it the default. If the incoming config claims Default, every other
// config's flag is cleared first.
func (r *ConfigRegistry) Add(id string, cfg Config) error {
	if id == "" {
		return &ValidationError{Field: "id", Message: "cannot be empty"}
	}
	cfg.Settings = DefaultSettings().Merge(cfg.Settings)
	if err := ValidateConfig(cfg); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.configs[id]; exists {
		return &ValidationError{Field: "id", Message: fmt.Sprintf("config %q already registered", id)}
	}

	if cfg.Default {
		r.clearDefaultLocked()
	} else if cfg.Active && !r.hasDefaultLocked() {
		cfg.Default = true
	}
	r.configs[id] = cfg
	return nil
}

// Get returns the config stored under id.
func (r *ConfigRegistry) Get(id string) (Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[id]
	return cfg, ok
}

// Update shallow-merges the supplied operational settings onto an existing
// config and revalidates. Connection parameters are replaced wholesale.
func (r *ConfigRegistry) Update(id string, cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.configs[id]
	if !ok {
		return &StorageError{Op: "update_config", Key: id, Err: ErrNotFound}
	}

	cfg.Settings = prev.Settings.Merge(cfg.Settings)
	if err := ValidateConfig(cfg); err != nil {
		return err
	}

	if cfg.Default {
		r.clearDefaultLocked()
	}
	r.configs[id] = cfg
	return nil
}

// Remove deletes the config stored under id.
func (r *ConfigRegistry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.configs[id]; !ok {
		return &StorageError{Op: "remove_config", Key: id, Err: ErrNotFound}
	}
	delete(r.configs, id)
	return nil
}

// List returns all config ids in sorted order.
func (r *ConfigRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.configs))
	for id := range r.configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ListActive returns ids of active configs in sorted order.
func (r *ConfigRegistry) ListActive() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.configs))
	for id, cfg := range r.configs {
		if cfg.Active {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ListByFamily returns ids of configs in the given family, sorted. The three
// S3-compatible identities are distinct families here; use
// Family.IsS3Compatible to group them.
func (r *ConfigRegistry) ListByFamily(f Family) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.configs))
	for id, cfg := range r.configs {
		if cfg.Provider == f {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Default returns the id and config of the current default. ok is false when
// no config is both active and default.
func (r *ConfigRegistry) Default() (id string, cfg Config, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, cfg := range r.configs {
		if cfg.Active && cfg.Default {
			return id, cfg, true
		}
	}
	return "", Config{}, false
}

// SetDefault marks id as the default, clearing the flag on every other
// config first. The target must exist and be active.
func (r *ConfigRegistry) SetDefault(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, ok := r.configs[id]
	if !ok {
		return &StorageError{Op: "set_default", Key: id, Err: ErrNotFound}
	}
	if !cfg.Active {
		return &ValidationError{Field: "id", Message: fmt.Sprintf("config %q is not active", id)}
	}

	r.clearDefaultLocked()
	cfg.Default = true
	r.configs[id] = cfg
	return nil
}

// Len returns the number of stored configs.
func (r *ConfigRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.configs)
}

func (r *ConfigRegistry) hasDefaultLocked() bool {
	for _, cfg := range r.configs {
		if cfg.Active && cfg.Default {
			return true
		}
	}
	return false
}

func (r *ConfigRegistry) clearDefaultLocked() {
	for id, cfg := range r.configs {
		if cfg.Default {
			cfg.Default = false
			r.configs[id] = cfg
		}
	}
}
