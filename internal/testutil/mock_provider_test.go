package testutil_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecove/storkit"
	"github.com/filecove/storkit/internal/testutil"
)

func mockCfg() storkit.Config {
	return storkit.Config{
		Provider: testutil.Family,
		Name:     "mock",
		Active:   true,
		Settings: storkit.DefaultSettings(),
	}
}

func TestMockProvider_BasicOperations(t *testing.T) {
	p := testutil.NewMockProvider(mockCfg())
	ctx := context.Background()

	t.Run("Upload and Download", func(t *testing.T) {
		data := []byte("hello world")
		res, err := p.Upload(ctx, data, storkit.UploadOptions{Filename: "file.txt", MimeType: "text/plain"})
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), res.Size)
		assert.Equal(t, storkit.ContentHash(data), res.ContentHash)

		dl, err := p.Download(ctx, storkit.DownloadOptions{StorageKey: res.StorageKey})
		require.NoError(t, err)
		defer dl.Body.Close()

		got, err := io.ReadAll(dl.Body)
		require.NoError(t, err)
		assert.Equal(t, data, got)
		assert.Equal(t, "text/plain", dl.MimeType)
	})

	t.Run("Download missing", func(t *testing.T) {
		_, err := p.Download(ctx, storkit.DownloadOptions{StorageKey: "ghost"})
		assert.ErrorIs(t, err, storkit.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		res, err := p.Upload(ctx, []byte("bye"), storkit.UploadOptions{Filename: "bye.txt"})
		require.NoError(t, err)
		require.NoError(t, p.Delete(ctx, storkit.DeleteOptions{StorageKey: res.StorageKey}))
		assert.ErrorIs(t, p.Delete(ctx, storkit.DeleteOptions{StorageKey: res.StorageKey}), storkit.ErrNotFound)
	})

	t.Run("Copy and Move", func(t *testing.T) {
		res, err := p.Upload(ctx, []byte("dup me"), storkit.UploadOptions{Filename: "src.txt"})
		require.NoError(t, err)

		require.NoError(t, p.Copy(ctx, storkit.CopyOptions{FromKey: res.StorageKey, ToKey: "copy.txt"}))
		exists, err := p.Exists(ctx, "copy.txt")
		require.NoError(t, err)
		assert.True(t, exists)

		require.NoError(t, p.Move(ctx, res.StorageKey, "moved.txt"))
		exists, err = p.Exists(ctx, res.StorageKey)
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestMockProvider_PipelineRoundtrip(t *testing.T) {
	cfg := mockCfg()
	cfg.Settings.EnableCompression = true
	cfg.Settings.EnableEncryption = true
	cfg.EncryptionSecret = "test-secret"
	p := testutil.NewMockProvider(cfg)
	ctx := context.Background()

	data := []byte("processed payload")
	res, err := p.Upload(ctx, data, storkit.UploadOptions{
		Filename: "sealed.bin",
		Compress: true,
		Encrypt:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "true", res.Metadata[storkit.MetaEncrypted])

	dl, err := p.Download(ctx, storkit.DownloadOptions{StorageKey: res.StorageKey})
	require.NoError(t, err)
	defer dl.Body.Close()
	got, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestMockProvider_Deduplication(t *testing.T) {
	cfg := mockCfg()
	cfg.Settings.EnableDeduplication = true
	p := testutil.NewMockProvider(cfg)
	ctx := context.Background()

	data := []byte("same content")
	first, err := p.Upload(ctx, data, storkit.UploadOptions{Filename: "a.txt"})
	require.NoError(t, err)
	second, err := p.Upload(ctx, data, storkit.UploadOptions{Filename: "b.txt"})
	require.NoError(t, err)

	assert.Equal(t, first.StorageKey, second.StorageKey)
	assert.Equal(t, 1, p.Len(), "dedup hit must not store a second object")
}

func TestMockProvider_HealthAndClose(t *testing.T) {
	p := testutil.NewMockProvider(mockCfg())
	ctx := context.Background()

	assert.True(t, p.TestConnection(ctx).Healthy)
	p.FailHealth = true
	assert.False(t, p.TestConnection(ctx).Healthy)

	require.NoError(t, p.Close(ctx))
	assert.Equal(t, 1, p.Closed)
}

func TestMockProvider_MultipartUnsupported(t *testing.T) {
	p := testutil.NewMockProvider(mockCfg())
	_, _, err := p.StartMultipartUpload(context.Background(), storkit.UploadOptions{Filename: "x"})
	assert.ErrorIs(t, err, storkit.ErrUnsupported)
}
