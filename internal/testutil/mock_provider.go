// Package testutil provides a thread-safe in-memory Provider used by
// manager and fx tests.
package testutil

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/filecove/storkit"
)

// Family is the provider family the mock registers under.
const Family = storkit.Family("mock")

// OnNew, when set, observes every provider the registered factory creates.
// Tests use it to capture instances or to pre-set FailHealth.
var OnNew func(*MockProvider)

// Register installs the mock factory so configs with Provider "mock" work
// through the manager. Call it from TestMain or the top of a test.
func Register() {
	storkit.RegisterFactory(Family, func(_ context.Context, cfg storkit.Config, opts ...storkit.Option) (storkit.Provider, error) {
		p := NewMockProvider(cfg, opts...)
		if OnNew != nil {
			OnNew(p)
		}
		return p, nil
	})
}

type mockObject struct {
	data     []byte
	mimeType string
	metadata map[string]string
	modified time.Time
}

// MockProvider is a thread-safe in-memory Provider implementation.
type MockProvider struct {
	mu      sync.RWMutex
	objects map[string]*mockObject

	cfg      storkit.Config
	kb       *storkit.KeyBuilder
	recorder *storkit.Recorder
	clock    func() time.Time

	// FailHealth makes TestConnection report unhealthy; used to exercise
	// the manager's no-partial-registration path.
	FailHealth bool

	// Closed counts Close calls.
	Closed int
}

// NewMockProvider builds an empty mock for cfg.
func NewMockProvider(cfg storkit.Config, opts ...storkit.Option) *MockProvider {
	resolved := storkit.ResolveOptions(opts...)
	return &MockProvider{
		objects:  make(map[string]*mockObject),
		cfg:      cfg,
		kb:       resolved.KeyBuilder(),
		recorder: storkit.NewRecorder(),
		clock:    resolved.Clock(),
	}
}

func (m *MockProvider) Name() string         { return m.cfg.Name }
func (m *MockProvider) Kind() storkit.Family { return Family }

func (m *MockProvider) record(typ storkit.OperationType, key string, size int64, err error) {
	op := storkit.Operation{
		Type:       typ,
		StorageKey: key,
		Size:       size,
		Success:    err == nil,
		Timestamp:  m.clock(),
	}
	if err != nil {
		op.Error = err.Error()
	}
	m.recorder.Record(op)
}

func (m *MockProvider) Upload(ctx context.Context, data []byte, opts storkit.UploadOptions) (storkit.UploadResult, error) {
	payload, err := storkit.PrepareUpload(data, opts, m.cfg.Settings, m.cfg.EncryptionSecret, m.kb)
	if err != nil {
		m.record(storkit.OpUpload, "", 0, err)
		return storkit.UploadResult{}, err
	}

	m.mu.Lock()
	if m.cfg.Settings.EnableDeduplication {
		for key, obj := range m.objects {
			if obj.metadata[storkit.MetaContentHash] == payload.Hash {
				m.mu.Unlock()
				m.record(storkit.OpUpload, key, payload.OriginalSize, nil)
				return storkit.UploadResult{
					StorageKey:  key,
					Size:        payload.OriginalSize,
					ContentHash: payload.Hash,
					Metadata:    obj.metadata,
				}, nil
			}
		}
	}
	m.objects[payload.StorageKey] = &mockObject{
		data:     append([]byte(nil), payload.Data...),
		mimeType: opts.MimeType,
		metadata: payload.Metadata,
		modified: m.clock(),
	}
	m.mu.Unlock()

	m.record(storkit.OpUpload, payload.StorageKey, payload.OriginalSize, nil)
	return storkit.UploadResult{
		StorageKey:  payload.StorageKey,
		Size:        payload.OriginalSize,
		ContentHash: payload.Hash,
		Metadata:    payload.Metadata,
	}, nil
}

func (m *MockProvider) Download(ctx context.Context, opts storkit.DownloadOptions) (*storkit.DownloadResult, error) {
	m.mu.RLock()
	obj, ok := m.objects[opts.StorageKey]
	m.mu.RUnlock()
	if !ok {
		err := &storkit.StorageError{Op: "download", Key: opts.StorageKey, Err: storkit.ErrNotFound}
		m.record(storkit.OpDownload, opts.StorageKey, 0, err)
		return nil, err
	}

	data := obj.data
	if storkit.NeedsRestore(obj.metadata) {
		restored, err := storkit.RestoreDownload(data, obj.metadata, m.cfg.EncryptionSecret)
		if err != nil {
			m.record(storkit.OpDownload, opts.StorageKey, 0, err)
			return nil, err
		}
		data = restored
	}
	data = storkit.SliceRange(data, opts)

	m.record(storkit.OpDownload, opts.StorageKey, int64(len(data)), nil)
	return &storkit.DownloadResult{
		Body:     io.NopCloser(bytes.NewReader(data)),
		Size:     int64(len(data)),
		MimeType: obj.mimeType,
		Metadata: obj.metadata,
	}, nil
}

func (m *MockProvider) Delete(ctx context.Context, opts storkit.DeleteOptions) error {
	m.mu.Lock()
	obj, ok := m.objects[opts.StorageKey]
	if ok {
		delete(m.objects, opts.StorageKey)
	}
	m.mu.Unlock()

	if !ok {
		err := &storkit.StorageError{Op: "delete", Key: opts.StorageKey, Err: storkit.ErrNotFound}
		m.record(storkit.OpDelete, opts.StorageKey, 0, err)
		return err
	}
	m.record(storkit.OpDelete, opts.StorageKey, int64(len(obj.data)), nil)
	return nil
}

func (m *MockProvider) Copy(ctx context.Context, opts storkit.CopyOptions) error {
	m.mu.Lock()
	src, ok := m.objects[opts.FromKey]
	if ok {
		dup := &mockObject{
			data:     append([]byte(nil), src.data...),
			mimeType: src.mimeType,
			metadata: src.metadata,
			modified: m.clock(),
		}
		if opts.Metadata != nil {
			dup.metadata = opts.Metadata
		}
		m.objects[opts.ToKey] = dup
	}
	m.mu.Unlock()

	if !ok {
		err := &storkit.StorageError{Op: "copy", Key: opts.FromKey, Err: storkit.ErrNotFound}
		m.record(storkit.OpCopy, opts.FromKey, 0, err)
		return err
	}
	m.record(storkit.OpCopy, opts.ToKey, 0, nil)
	return nil
}

func (m *MockProvider) Move(ctx context.Context, fromKey, toKey string) error {
	if err := m.Copy(ctx, storkit.CopyOptions{FromKey: fromKey, ToKey: toKey}); err != nil {
		return err
	}
	return m.Delete(ctx, storkit.DeleteOptions{StorageKey: fromKey, Permanent: true})
}

func (m *MockProvider) Exists(ctx context.Context, storageKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[storageKey]
	return ok, nil
}

func (m *MockProvider) FileInfo(ctx context.Context, storageKey string) (storkit.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[storageKey]
	if !ok {
		return storkit.FileInfo{}, &storkit.StorageError{Op: "file_info", Key: storageKey, Err: storkit.ErrNotFound}
	}
	return storkit.FileInfo{
		StorageKey:   storageKey,
		Size:         int64(len(obj.data)),
		MimeType:     obj.mimeType,
		Metadata:     obj.metadata,
		LastModified: obj.modified,
	}, nil
}

func (m *MockProvider) TestConnection(ctx context.Context) storkit.Health {
	return storkit.Health{
		Healthy:   !m.FailHealth,
		CheckedAt: m.clock(),
		Version:   string(Family),
	}
}

func (m *MockProvider) StartMultipartUpload(_ context.Context, _ storkit.UploadOptions) (string, string, error) {
	return "", "", &storkit.StorageError{Op: "start_multipart", Err: storkit.ErrUnsupported}
}

func (m *MockProvider) UploadChunk(_ context.Context, _, _ string, _ int32, _ []byte) (storkit.ChunkInfo, error) {
	return storkit.ChunkInfo{}, &storkit.StorageError{Op: "upload_chunk", Err: storkit.ErrUnsupported}
}

func (m *MockProvider) CompleteMultipartUpload(_ context.Context, _, _ string, _ []storkit.ChunkInfo) (storkit.UploadResult, error) {
	return storkit.UploadResult{}, &storkit.StorageError{Op: "complete_multipart", Err: storkit.ErrUnsupported}
}

func (m *MockProvider) AbortMultipartUpload(_ context.Context, _, _ string) error {
	return &storkit.StorageError{Op: "abort_multipart", Err: storkit.ErrUnsupported}
}

func (m *MockProvider) Stats() storkit.Stats { return m.recorder.Stats() }

func (m *MockProvider) Operations(limit int) []storkit.Operation {
	return m.recorder.Operations(limit)
}

func (m *MockProvider) Subscribe(fn func(storkit.Operation)) func() {
	return m.recorder.Subscribe(fn)
}

func (m *MockProvider) Close(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed++
	return nil
}

// Len returns the number of stored objects.
func (m *MockProvider) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
