package storkit_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecove/storkit"
	"github.com/filecove/storkit/internal/testutil"
)

func init() {
	testutil.Register()
}

func mockConfig(name string) storkit.Config {
	return storkit.Config{
		Provider: testutil.Family,
		Name:     name,
		Active:   true,
	}
}

func TestManagerAddProvider_FirstBecomesDefault(t *testing.T) {
	ctx := context.Background()
	mgr := storkit.NewManager()
	defer mgr.Close(ctx)

	require.NoError(t, mgr.AddProvider(ctx, "main", mockConfig("main")))

	id, cfg, ok := mgr.Registry().Default()
	require.True(t, ok, "first active provider should become the default")
	assert.Equal(t, "main", id)
	assert.True(t, cfg.Default)
}

func TestManagerAddProvider_UnhealthyNotRegistered(t *testing.T) {
	ctx := context.Background()
	mgr := storkit.NewManager()
	defer mgr.Close(ctx)

	testutil.OnNew = func(p *testutil.MockProvider) { p.FailHealth = true }
	defer func() { testutil.OnNew = nil }()

	cfg := mockConfig("broken")
	cfg.Settings.RetryAttempts = 1
	err := mgr.AddProvider(ctx, "broken", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check failed")

	// No partial registration: the registry has no config and routing has
	// no default to fall back to.
	assert.Equal(t, 0, mgr.Registry().Len())
	_, err = mgr.Provider("")
	assert.ErrorIs(t, err, storkit.ErrNoProvider)
}

func TestManagerAddProvider_DuplicateID(t *testing.T) {
	ctx := context.Background()
	mgr := storkit.NewManager()
	defer mgr.Close(ctx)

	require.NoError(t, mgr.AddProvider(ctx, "main", mockConfig("main")))
	err := mgr.AddProvider(ctx, "main", mockConfig("other"))
	assert.True(t, storkit.IsValidation(err), "duplicate id should fail validation, got %v", err)
}

func TestManagerRouting(t *testing.T) {
	ctx := context.Background()
	mgr := storkit.NewManager()
	defer mgr.Close(ctx)

	require.NoError(t, mgr.AddProvider(ctx, "a", mockConfig("a")))
	require.NoError(t, mgr.AddProvider(ctx, "b", mockConfig("b")))

	// Empty id routes to the default (a); explicit id routes to b.
	resA, err := mgr.Upload(ctx, []byte("to-default"), storkit.UploadOptions{Filename: "a.txt"}, "")
	require.NoError(t, err)
	resB, err := mgr.Upload(ctx, []byte("to-explicit"), storkit.UploadOptions{Filename: "b.txt"}, "b")
	require.NoError(t, err)

	dl, err := mgr.Download(ctx, storkit.DownloadOptions{StorageKey: resA.StorageKey}, "a")
	require.NoError(t, err)
	data, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	dl.Body.Close()
	assert.Equal(t, "to-default", string(data))

	// Objects do not leak across providers.
	_, err = mgr.Download(ctx, storkit.DownloadOptions{StorageKey: resB.StorageKey}, "a")
	assert.ErrorIs(t, err, storkit.ErrNotFound)

	_, err = mgr.Upload(ctx, []byte("x"), storkit.UploadOptions{Filename: "x"}, "nope")
	assert.ErrorIs(t, err, storkit.ErrNoProvider)
}

func TestManagerRemoveProvider_PromotesDefault(t *testing.T) {
	ctx := context.Background()
	mgr := storkit.NewManager()
	defer mgr.Close(ctx)

	var instances []*testutil.MockProvider
	testutil.OnNew = func(p *testutil.MockProvider) { instances = append(instances, p) }
	defer func() { testutil.OnNew = nil }()

	require.NoError(t, mgr.AddProvider(ctx, "a", mockConfig("a")))
	require.NoError(t, mgr.AddProvider(ctx, "b", mockConfig("b")))

	require.NoError(t, mgr.RemoveProvider(ctx, "a"))

	id, _, ok := mgr.Registry().Default()
	require.True(t, ok, "remaining active provider should be promoted")
	assert.Equal(t, "b", id)

	require.Len(t, instances, 2)
	assert.Equal(t, 1, instances[0].Closed, "removed provider should be closed")

	err := mgr.RemoveProvider(ctx, "a")
	assert.ErrorIs(t, err, storkit.ErrNotFound)
}

func TestManagerSetDefaultProvider(t *testing.T) {
	ctx := context.Background()
	mgr := storkit.NewManager()
	defer mgr.Close(ctx)

	require.NoError(t, mgr.AddProvider(ctx, "a", mockConfig("a")))
	require.NoError(t, mgr.AddProvider(ctx, "b", mockConfig("b")))

	require.NoError(t, mgr.SetDefaultProvider("b"))
	res, err := mgr.Upload(ctx, []byte("routed"), storkit.UploadOptions{Filename: "r.txt"}, "")
	require.NoError(t, err)

	ok, err := mgr.Exists(ctx, res.StorageKey, "b")
	require.NoError(t, err)
	assert.True(t, ok, "default routing should now hit b")

	assert.ErrorIs(t, mgr.SetDefaultProvider("missing"), storkit.ErrNotFound)
}

// Exercises the documented end-to-end flow: a single provider is added and
// becomes the default, a small text upload round-trips, and removing the
// provider leaves routing with nothing to fall back to.
func TestManagerSingleProviderLifecycle(t *testing.T) {
	ctx := context.Background()
	mgr := storkit.NewManager()
	defer mgr.Close(ctx)

	require.NoError(t, mgr.AddProvider(ctx, "only", mockConfig("only")))

	res, err := mgr.Upload(ctx, []byte("0123456789"), storkit.UploadOptions{Filename: "test.txt"}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.Size)
	assert.Len(t, res.ContentHash, 64)
	assert.True(t, strings.HasSuffix(res.StorageKey, "test.txt"), "key %q should end with the filename", res.StorageKey)

	require.NoError(t, mgr.RemoveProvider(ctx, "only"))
	_, err = mgr.Upload(ctx, []byte("x"), storkit.UploadOptions{Filename: "x"}, "")
	assert.ErrorIs(t, err, storkit.ErrNoProvider)
}

func TestManagerCheckAllProvidersHealth(t *testing.T) {
	ctx := context.Background()
	mgr := storkit.NewManager()
	defer mgr.Close(ctx)

	var instances []*testutil.MockProvider
	testutil.OnNew = func(p *testutil.MockProvider) { instances = append(instances, p) }
	defer func() { testutil.OnNew = nil }()

	require.NoError(t, mgr.AddProvider(ctx, "a", mockConfig("a")))
	require.NoError(t, mgr.AddProvider(ctx, "b", mockConfig("b")))

	// One provider going unhealthy after registration must not hide the
	// other's report.
	instances[1].FailHealth = true

	report := mgr.CheckAllProvidersHealth(ctx)
	require.Len(t, report, 2)
	assert.Equal(t, "a", report[0].ID)
	assert.True(t, report[0].Health.Healthy)
	assert.Equal(t, "b", report[1].ID)
	assert.False(t, report[1].Health.Healthy)
}

func TestManagerAggregatedStats(t *testing.T) {
	ctx := context.Background()
	mgr := storkit.NewManager()
	defer mgr.Close(ctx)

	require.NoError(t, mgr.AddProvider(ctx, "a", mockConfig("a")))
	require.NoError(t, mgr.AddProvider(ctx, "b", mockConfig("b")))

	_, err := mgr.Upload(ctx, make([]byte, 100), storkit.UploadOptions{Filename: "a.bin"}, "a")
	require.NoError(t, err)
	_, err = mgr.Upload(ctx, make([]byte, 300), storkit.UploadOptions{Filename: "b.bin"}, "b")
	require.NoError(t, err)

	agg := mgr.AggregatedStats()
	assert.Equal(t, int64(2), agg.TotalFiles)
	assert.Equal(t, int64(400), agg.TotalSize)
	assert.Equal(t, int64(400), agg.Bandwidth.UploadBytes)
	// Per-file and rate metrics are plain means across providers.
	assert.Equal(t, int64(200), agg.AvgFileSize)
	assert.InDelta(t, 100.0, agg.SuccessRate, 0.01)
}

func TestManagerListProviders(t *testing.T) {
	ctx := context.Background()
	mgr := storkit.NewManager()
	defer mgr.Close(ctx)

	require.NoError(t, mgr.AddProvider(ctx, "b", mockConfig("b")))
	require.NoError(t, mgr.AddProvider(ctx, "a", mockConfig("a")))

	infos := mgr.ListProviders()
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].ID)
	assert.Equal(t, "b", infos[1].ID)
	assert.Equal(t, "a", infos[0].Config.Name)
}

func TestManagerSubscribeOperations(t *testing.T) {
	ctx := context.Background()
	mgr := storkit.NewManager()
	defer mgr.Close(ctx)

	require.NoError(t, mgr.AddProvider(ctx, "a", mockConfig("a")))

	var seen []storkit.Operation
	cancel, err := mgr.SubscribeOperations("a", func(op storkit.Operation) { seen = append(seen, op) })
	require.NoError(t, err)
	defer cancel()

	_, err = mgr.Upload(ctx, []byte("x"), storkit.UploadOptions{Filename: "x.txt"}, "a")
	require.NoError(t, err)

	require.Len(t, seen, 1)
	assert.Equal(t, storkit.OpUpload, seen[0].Type)
	assert.True(t, seen[0].Success)
}

func TestManagerMigrateFiles(t *testing.T) {
	ctx := context.Background()
	mgr := storkit.NewManager()
	defer mgr.Close(ctx)

	var instances []*testutil.MockProvider
	testutil.OnNew = func(p *testutil.MockProvider) { instances = append(instances, p) }
	defer func() { testutil.OnNew = nil }()

	require.NoError(t, mgr.AddProvider(ctx, "src", mockConfig("src")))
	require.NoError(t, mgr.AddProvider(ctx, "dst", mockConfig("dst")))

	up1, err := mgr.Upload(ctx, []byte("first"), storkit.UploadOptions{Filename: "one.txt"}, "src")
	require.NoError(t, err)
	up2, err := mgr.Upload(ctx, []byte("second"), storkit.UploadOptions{Filename: "two.txt"}, "src")
	require.NoError(t, err)

	keys := []string{up1.StorageKey, "missing-key", up2.StorageKey}
	results := mgr.MigrateFiles(ctx, "src", "dst", keys)

	// One failure must not abort the batch: exactly one result per key.
	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.NotEmpty(t, results[0].NewKey)
	assert.NotEqual(t, up1.StorageKey, results[0].NewKey, "destination assigns a new key")
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Error, "not found")
	assert.True(t, results[2].Success)

	// The two migrated objects landed on the destination.
	assert.Equal(t, 2, instances[1].Len())

	dl, err := mgr.Download(ctx, storkit.DownloadOptions{StorageKey: results[0].NewKey}, "dst")
	require.NoError(t, err)
	data, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	dl.Body.Close()
	assert.Equal(t, "first", string(data))
}

func TestManagerMigrateFiles_UnknownProviders(t *testing.T) {
	ctx := context.Background()
	mgr := storkit.NewManager()
	defer mgr.Close(ctx)

	results := mgr.MigrateFiles(ctx, "ghost", "also-ghost", []string{"k1", "k2"})
	require.Len(t, results, 2)
	for _, res := range results {
		assert.False(t, res.Success)
		assert.NotEmpty(t, res.Error)
	}
}

func TestManagerClose(t *testing.T) {
	ctx := context.Background()
	mgr := storkit.NewManager()

	var instances []*testutil.MockProvider
	testutil.OnNew = func(p *testutil.MockProvider) { instances = append(instances, p) }
	defer func() { testutil.OnNew = nil }()

	require.NoError(t, mgr.AddProvider(ctx, "a", mockConfig("a")))
	require.NoError(t, mgr.AddProvider(ctx, "b", mockConfig("b")))

	require.NoError(t, mgr.Close(ctx))
	for _, p := range instances {
		assert.Equal(t, 1, p.Closed)
	}

	_, err := mgr.Provider("a")
	assert.ErrorIs(t, err, storkit.ErrNoProvider)
}
