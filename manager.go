package storkit

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Manager owns the configuration registry and the live provider instances.
// It routes every data operation to an explicit or default provider,
// aggregates statistics and health across providers, and performs
// best-effort cross-provider migration.
//
// The provider map is mutated only by AddProvider/RemoveProvider/
// SetDefaultProvider; in-flight routing reads a consistent snapshot under
// the same lock.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]Provider

	registry *ConfigRegistry
	opts     []Option
	logger   Logger
}

// ProviderInfo is the admin/observability view of one provider slot.
type ProviderInfo struct {
	ID     string
	Config Config
	Stats  Stats
}

// ProviderHealth pairs a provider id with a health snapshot.
type ProviderHealth struct {
	ID     string
	Health Health
}

// MigrationResult reports the outcome for one migrated key.
type MigrationResult struct {
	StorageKey string
	NewKey     string
	Success    bool
	Error      string
}

// NewManager returns a Manager with an empty registry. The supplied options
// are passed to every provider it constructs.
func NewManager(opts ...Option) *Manager {
	resolved := ResolveOptions(opts...)
	return &Manager{
		providers: make(map[string]Provider),
		registry:  NewConfigRegistry(),
		opts:      opts,
		logger:    resolved.Logger(),
	}
}

// Registry exposes the configuration registry for read access.
func (m *Manager) Registry() *ConfigRegistry { return m.registry }

// AddProvider validates cfg, instantiates the provider, performs one health
// check, and only on success registers it as active and stores its config.
// A failing health check leaves the registry and the provider map untouched.
// The first active provider becomes the default.
func (m *Manager) AddProvider(ctx context.Context, id string, cfg Config) error {
	if id == "" {
		return &ValidationError{Field: "id", Message: "cannot be empty"}
	}
	cfg.Settings = DefaultSettings().Merge(cfg.Settings)
	if err := ValidateConfig(cfg); err != nil {
		return err
	}

	m.mu.Lock()
	if _, exists := m.providers[id]; exists {
		m.mu.Unlock()
		return &ValidationError{Field: "id", Message: fmt.Sprintf("provider %q already registered", id)}
	}
	m.mu.Unlock()

	provider, err := NewProvider(ctx, cfg, m.opts...)
	if err != nil {
		return err
	}

	health := CheckWithRetry(ctx, provider, cfg.Settings.RetryAttempts, 200*time.Millisecond)
	if !health.Healthy {
		_ = provider.Close(ctx)
		return &StorageError{
			Op:       "add_provider",
			Provider: cfg.Name,
			Err:      fmt.Errorf("health check failed: %v", health.Errors),
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.providers[id]; exists {
		_ = provider.Close(ctx)
		return &ValidationError{Field: "id", Message: fmt.Sprintf("provider %q already registered", id)}
	}
	if err := m.registry.Add(id, cfg); err != nil {
		_ = provider.Close(ctx)
		return err
	}
	m.providers[id] = provider

	m.logger.Info("provider registered",
		"id", id, "family", string(cfg.Provider), "latency", health.Latency.String())
	return nil
}

// RemoveProvider closes the provider's backend resources and removes it from
// both maps. If it was the default, an arbitrary remaining active provider
// is promoted; if none remain, no default is left.
func (m *Manager) RemoveProvider(ctx context.Context, id string) error {
	m.mu.Lock()
	provider, ok := m.providers[id]
	if !ok {
		m.mu.Unlock()
		return &StorageError{Op: "remove_provider", Key: id, Err: ErrNotFound}
	}

	wasDefault := false
	if defID, _, hasDefault := m.registry.Default(); hasDefault && defID == id {
		wasDefault = true
	}

	delete(m.providers, id)
	_ = m.registry.Remove(id)

	if wasDefault {
		if active := m.registry.ListActive(); len(active) > 0 {
			_ = m.registry.SetDefault(active[0])
			m.logger.Info("default provider promoted", "id", active[0])
		}
	}
	m.mu.Unlock()

	if err := provider.Close(ctx); err != nil {
		m.logger.Warn("provider close failed", "id", id, "error", err)
		return err
	}
	m.logger.Info("provider removed", "id", id)
	return nil
}

// SetDefaultProvider marks id as the routing default.
func (m *Manager) SetDefaultProvider(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[id]; !ok {
		return &StorageError{Op: "set_default", Key: id, Err: ErrNotFound}
	}
	return m.registry.SetDefault(id)
}

// Provider resolves an explicit provider id, or the default when id is
// empty. Fails with ErrNoProvider when no default is set.
func (m *Manager) Provider(id string) (Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resolveLocked(id)
}

func (m *Manager) resolveLocked(id string) (Provider, error) {
	if id == "" {
		defID, _, ok := m.registry.Default()
		if !ok {
			return nil, &StorageError{Op: "route", Err: ErrNoProvider}
		}
		id = defID
	}
	p, ok := m.providers[id]
	if !ok {
		return nil, &StorageError{Op: "route", Key: id, Err: fmt.Errorf("%w: provider %q not registered", ErrNoProvider, id)}
	}
	return p, nil
}

// Upload routes an upload to the given or default provider.
func (m *Manager) Upload(ctx context.Context, data []byte, opts UploadOptions, providerID string) (UploadResult, error) {
	p, err := m.Provider(providerID)
	if err != nil {
		return UploadResult{}, err
	}
	return p.Upload(ctx, data, opts)
}

// Download routes a download to the given or default provider.
func (m *Manager) Download(ctx context.Context, opts DownloadOptions, providerID string) (*DownloadResult, error) {
	p, err := m.Provider(providerID)
	if err != nil {
		return nil, err
	}
	return p.Download(ctx, opts)
}

// Delete routes a delete to the given or default provider.
func (m *Manager) Delete(ctx context.Context, opts DeleteOptions, providerID string) error {
	p, err := m.Provider(providerID)
	if err != nil {
		return err
	}
	return p.Delete(ctx, opts)
}

// Copy routes a within-provider copy to the given or default provider.
func (m *Manager) Copy(ctx context.Context, opts CopyOptions, providerID string) error {
	p, err := m.Provider(providerID)
	if err != nil {
		return err
	}
	return p.Copy(ctx, opts)
}

// Move routes a move to the given or default provider.
func (m *Manager) Move(ctx context.Context, fromKey, toKey string, providerID string) error {
	p, err := m.Provider(providerID)
	if err != nil {
		return err
	}
	return p.Move(ctx, fromKey, toKey)
}

// Exists routes an existence check to the given or default provider.
func (m *Manager) Exists(ctx context.Context, storageKey string, providerID string) (bool, error) {
	p, err := m.Provider(providerID)
	if err != nil {
		return false, err
	}
	return p.Exists(ctx, storageKey)
}

// FileInfo routes a metadata lookup to the given or default provider.
func (m *Manager) FileInfo(ctx context.Context, storageKey string, providerID string) (FileInfo, error) {
	p, err := m.Provider(providerID)
	if err != nil {
		return FileInfo{}, err
	}
	return p.FileInfo(ctx, storageKey)
}

// CheckHealth runs the retrying health check against the given or default
// provider.
func (m *Manager) CheckHealth(ctx context.Context, providerID string) (Health, error) {
	p, err := m.Provider(providerID)
	if err != nil {
		return Health{}, err
	}

	attempts := 1
	m.mu.RLock()
	if cfg, ok := m.configForLocked(p); ok {
		attempts = cfg.Settings.RetryAttempts
	}
	m.mu.RUnlock()

	return CheckWithRetry(ctx, p, attempts, 200*time.Millisecond), nil
}

func (m *Manager) configForLocked(p Provider) (Config, bool) {
	for id, prov := range m.providers {
		if prov == p {
			return m.registry.Get(id)
		}
	}
	return Config{}, false
}

// CheckAllProvidersHealth probes every registered provider. One provider's
// failure never raises; the result is a structured per-provider report.
func (m *Manager) CheckAllProvidersHealth(ctx context.Context) []ProviderHealth {
	m.mu.RLock()
	ids := make([]string, 0, len(m.providers))
	for id := range m.providers {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)

	out := make([]ProviderHealth, 0, len(ids))
	for _, id := range ids {
		p, err := m.Provider(id)
		if err != nil {
			continue // removed while iterating
		}
		out = append(out, ProviderHealth{ID: id, Health: p.TestConnection(ctx)})
	}
	return out
}

// ListProviders returns the admin view of every slot: id, config, stats.
func (m *Manager) ListProviders() []ProviderInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ProviderInfo, 0, len(m.providers))
	for id, p := range m.providers {
		cfg, _ := m.registry.Get(id)
		out = append(out, ProviderInfo{ID: id, Config: cfg, Stats: p.Stats()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AggregatedStats merges every live provider's stats: counts and sizes by
// summation, rate and per-file size metrics by simple averaging. The
// averaged fields are approximate - a plain mean of per-provider values, not
// weighted by volume. That is documented behavior, not a bug to fix.
func (m *Manager) AggregatedStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agg := Stats{Bandwidth: Bandwidth{Period: "ring-buffer"}}
	if len(m.providers) == 0 {
		return agg
	}

	var avgSizeSum int64
	var rateSum float64
	for _, p := range m.providers {
		s := p.Stats()
		agg.TotalFiles += s.TotalFiles
		agg.TotalSize += s.TotalSize
		agg.ErrorCount += s.ErrorCount
		agg.Bandwidth.UploadBytes += s.Bandwidth.UploadBytes
		agg.Bandwidth.DownloadBytes += s.Bandwidth.DownloadBytes
		avgSizeSum += s.AvgFileSize
		rateSum += s.SuccessRate
	}
	n := int64(len(m.providers))
	agg.AvgFileSize = avgSizeSum / n
	agg.SuccessRate = rateSum / float64(n)
	return agg
}

// SubscribeOperations attaches a listener to the given or default provider's
// operation stream for live dashboards.
func (m *Manager) SubscribeOperations(providerID string, fn func(Operation)) (cancel func(), err error) {
	p, err := m.Provider(providerID)
	if err != nil {
		return nil, err
	}
	return p.Subscribe(fn), nil
}

// MigrateFiles migrates the given keys from one provider to another,
// key by key: full download from the source, re-upload to the destination.
// Each key succeeds or fails independently; one failure never aborts the
// batch. The destination assigns a new storage key - callers holding a
// persisted reference to the old key must update it themselves.
func (m *Manager) MigrateFiles(ctx context.Context, fromID, toID string, keys []string) []MigrationResult {
	results := make([]MigrationResult, 0, len(keys))

	src, err := m.Provider(fromID)
	if err != nil {
		for _, key := range keys {
			results = append(results, MigrationResult{StorageKey: key, Error: err.Error()})
		}
		return results
	}
	dst, err := m.Provider(toID)
	if err != nil {
		for _, key := range keys {
			results = append(results, MigrationResult{StorageKey: key, Error: err.Error()})
		}
		return results
	}

	for _, key := range keys {
		res := m.migrateOne(ctx, src, dst, key)
		if res.Success {
			m.logger.Debug("migrated object", "from", fromID, "to", toID, "key", key, "new_key", res.NewKey)
		} else {
			m.logger.Warn("migration failed for object", "from", fromID, "to", toID, "key", key, "error", res.Error)
		}
		results = append(results, res)
	}
	return results
}

func (m *Manager) migrateOne(ctx context.Context, src, dst Provider, key string) MigrationResult {
	res := MigrationResult{StorageKey: key}

	dl, err := src.Download(ctx, DownloadOptions{StorageKey: key})
	if err != nil {
		res.Error = err.Error()
		return res
	}
	data, err := io.ReadAll(dl.Body)
	dl.Body.Close()
	if err != nil {
		res.Error = err.Error()
		return res
	}

	up, err := dst.Upload(ctx, data, UploadOptions{
		Filename: migrationFilename(key),
		MimeType: dl.MimeType,
		Metadata: anyMetadata(dl.Metadata),
	})
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.NewKey = up.StorageKey
	res.Success = true
	return res
}

// migrationFilename recovers a filename-ish tail from a storage key so the
// destination key stays recognizable.
func migrationFilename(key string) string {
	tail := key
	if idx := strings.LastIndexByte(key, '/'); idx >= 0 {
		tail = key[idx+1:]
	}
	if tail == "" {
		tail = key
	}
	return tail
}

// anyMetadata converts stored metadata back to upload metadata, dropping
// the pipeline-internal keys so the destination stamps its own.
func anyMetadata(in map[string]string) map[string]any {
	if len(in) == 0 {
		return nil
	}
	internal := map[string]bool{
		MetaContentHash: true, MetaOriginalSize: true, MetaCompressed: true,
		MetaEncrypted: true, MetaMimeType: true, MetaTags: true, MetaPublic: true,
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if internal[k] {
			continue
		}
		out[k] = v
	}
	return out
}

// Close releases every provider's backend resources. Used by the fx
// lifecycle and by standalone consumers on shutdown.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	providers := m.providers
	m.providers = make(map[string]Provider)
	m.mu.Unlock()

	var firstErr error
	for id, p := range providers {
		if err := p.Close(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close provider %q: %w", id, err)
		}
	}
	return firstErr
}
