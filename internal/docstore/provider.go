// Package docstore implements the document-database blob provider on
// MongoDB GridFS. Object bytes are stored as a size-chunked stream keyed by
// the storage key; content-hash metadata enables deduplication.
package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/filecove/storkit"
)

const bucketName = "storkit_blobs"

func init() {
	storkit.RegisterFactory(storkit.FamilyDocstore, func(ctx context.Context, cfg storkit.Config, opts ...storkit.Option) (storkit.Provider, error) {
		return New(ctx, cfg, opts...)
	})
}

// Provider stores blobs in a GridFS bucket. Unlike the S3 family, the
// backend client is not request-scoped: the connection is opened lazily on
// first use and closed exactly once by Close.
type Provider struct {
	cfg      storkit.Config
	kb       *storkit.KeyBuilder
	logger   storkit.Logger
	recorder *storkit.Recorder
	inst     *storkit.Instrumenter
	clock    func() time.Time

	connMu    sync.Mutex
	client    *mongo.Client
	bucket    *mongo.GridFSBucket
	closeOnce sync.Once
}

// fileDoc mirrors the GridFS files collection fields this provider reads.
type fileDoc struct {
	ID         bson.ObjectID     `bson:"_id"`
	Name       string            `bson:"filename"`
	Length     int64             `bson:"length"`
	UploadDate time.Time         `bson:"uploadDate"`
	Metadata   map[string]string `bson:"metadata"`
}

// New constructs the provider for a validated docstore config. No network
// traffic happens here; the connection is established on first use.
func New(_ context.Context, cfg storkit.Config, opts ...storkit.Option) (*Provider, error) {
	if err := storkit.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	resolved := storkit.ResolveOptions(opts...)

	return &Provider{
		cfg:      cfg,
		kb:       resolved.KeyBuilder(),
		logger:   resolved.Logger(),
		recorder: storkit.NewRecorder(),
		inst:     resolved.Instrumenter(),
		clock:    resolved.Clock(),
	}, nil
}

func (p *Provider) Name() string         { return p.cfg.Name }
func (p *Provider) Kind() storkit.Family { return storkit.FamilyDocstore }

// ensureBucket opens the connection and GridFS bucket on first use. The
// handle is reused for the provider's lifetime.
func (p *Provider) ensureBucket(ctx context.Context) (*mongo.GridFSBucket, error) {
	p.connMu.Lock()
	defer p.connMu.Unlock()

	if p.bucket != nil {
		return p.bucket, nil
	}

	client, err := mongo.Connect(options.Client().ApplyURI(p.cfg.URI))
	if err != nil {
		return nil, &storkit.StorageError{Op: "connect", Provider: p.cfg.Name, Err: err}
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, &storkit.StorageError{Op: "connect", Provider: p.cfg.Name, Err: err}
	}

	bucketOpts := options.GridFSBucket().SetName(bucketName)
	if p.cfg.Settings.ChunkSizeBytes > 0 {
		bucketOpts = bucketOpts.SetChunkSizeBytes(int32(p.cfg.Settings.ChunkSizeBytes))
	}

	p.client = client
	p.bucket = client.Database(p.cfg.Database).GridFSBucket(bucketOpts)
	p.logger.Info("docstore connection opened", "provider", p.cfg.Name, "database", p.cfg.Database)
	return p.bucket, nil
}

func (p *Provider) record(ctx context.Context, typ storkit.OperationType, key string, fn func(ctx context.Context) (int64, error)) error {
	start := p.clock()
	var size int64
	err := p.inst.TraceOperation(ctx, p.cfg.Name, string(typ), key, func(ctx context.Context) error {
		var innerErr error
		size, innerErr = fn(ctx)
		return innerErr
	})

	op := storkit.Operation{
		Type:       typ,
		StorageKey: key,
		Size:       size,
		Duration:   p.clock().Sub(start),
		Success:    err == nil,
		Timestamp:  start,
	}
	if err != nil {
		op.Error = err.Error()
	} else {
		p.inst.RecordSize(ctx, p.cfg.Name, string(typ), size)
	}
	p.recorder.Record(op)
	return err
}

// Upload stores data as a chunked GridFS file. With deduplication enabled,
// an existing file with the same content hash short-circuits the write: the
// result points at the existing storage key and a successful upload
// operation is still recorded, so callers see a plain upload event.
func (p *Provider) Upload(ctx context.Context, data []byte, opts storkit.UploadOptions) (storkit.UploadResult, error) {
	payload, err := storkit.PrepareUpload(data, opts, p.cfg.Settings, p.cfg.EncryptionSecret, p.kb)
	if err != nil {
		p.recorder.Record(storkit.Operation{
			Type: storkit.OpUpload, Success: false, Error: err.Error(), Timestamp: p.clock(),
		})
		return storkit.UploadResult{}, err
	}

	if ms := p.cfg.Settings.UploadTimeoutMs; ms > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
		defer cancel()
	}

	var res storkit.UploadResult
	err = p.record(ctx, storkit.OpUpload, payload.StorageKey, func(ctx context.Context) (int64, error) {
		bucket, err := p.ensureBucket(ctx)
		if err != nil {
			return 0, err
		}

		if p.cfg.Settings.EnableDeduplication {
			if existing, ok, err := p.findByHash(ctx, bucket, payload.Hash); err == nil && ok {
				res = storkit.UploadResult{
					StorageKey:  existing.Name,
					Size:        payload.OriginalSize,
					ContentHash: payload.Hash,
					Metadata:    existing.Metadata,
				}
				p.logger.Debug("dedup hit, skipping write",
					"provider", p.cfg.Name, "key", existing.Name, "hash", payload.Hash)
				return payload.OriginalSize, nil
			} else if err != nil {
				return 0, err
			}
		}

		uploadOpts := options.GridFSUpload().SetMetadata(payload.Metadata)
		if _, err := bucket.UploadFromStream(ctx, payload.StorageKey, bytes.NewReader(payload.Data), uploadOpts); err != nil {
			return 0, p.mapError(err, "upload", payload.StorageKey)
		}

		res = storkit.UploadResult{
			StorageKey:  payload.StorageKey,
			Size:        payload.OriginalSize,
			ContentHash: payload.Hash,
			Metadata:    payload.Metadata,
		}
		return payload.OriginalSize, nil
	})
	if err != nil {
		return storkit.UploadResult{}, err
	}
	return res, nil
}

func (p *Provider) findByHash(ctx context.Context, bucket *mongo.GridFSBucket, hash string) (fileDoc, bool, error) {
	cursor, err := bucket.Find(ctx, bson.D{{Key: "metadata." + storkit.MetaContentHash, Value: hash}},
		options.GridFSFind().SetLimit(1))
	if err != nil {
		return fileDoc{}, false, p.mapError(err, "dedup_lookup", "")
	}
	defer cursor.Close(ctx)

	if !cursor.Next(ctx) {
		return fileDoc{}, false, cursor.Err()
	}
	var doc fileDoc
	if err := cursor.Decode(&doc); err != nil {
		return fileDoc{}, false, p.mapError(err, "dedup_lookup", "")
	}
	return doc, true, nil
}

func (p *Provider) findByName(ctx context.Context, bucket *mongo.GridFSBucket, key string) (fileDoc, error) {
	cursor, err := bucket.Find(ctx, bson.D{{Key: "filename", Value: key}},
		options.GridFSFind().SetLimit(1))
	if err != nil {
		return fileDoc{}, p.mapError(err, "lookup", key)
	}
	defer cursor.Close(ctx)

	if !cursor.Next(ctx) {
		if err := cursor.Err(); err != nil {
			return fileDoc{}, p.mapError(err, "lookup", key)
		}
		return fileDoc{}, &storkit.StorageError{Op: "lookup", Provider: p.cfg.Name, Key: key, Err: storkit.ErrNotFound}
	}
	var doc fileDoc
	if err := cursor.Decode(&doc); err != nil {
		return fileDoc{}, p.mapError(err, "lookup", key)
	}
	return doc, nil
}

// Download streams a stored blob. Raw blobs honor ranges by skipping into
// the chunk stream; processed blobs are restored first and sliced in memory.
func (p *Provider) Download(ctx context.Context, opts storkit.DownloadOptions) (*storkit.DownloadResult, error) {
	var result *storkit.DownloadResult

	err := p.record(ctx, storkit.OpDownload, opts.StorageKey, func(ctx context.Context) (int64, error) {
		bucket, err := p.ensureBucket(ctx)
		if err != nil {
			return 0, err
		}

		doc, err := p.findByName(ctx, bucket, opts.StorageKey)
		if err != nil {
			return 0, err
		}

		stream, err := bucket.OpenDownloadStream(ctx, doc.ID)
		if err != nil {
			return 0, p.mapError(err, "download", opts.StorageKey)
		}

		if storkit.NeedsRestore(doc.Metadata) {
			defer stream.Close()
			stored, err := io.ReadAll(stream)
			if err != nil {
				return 0, p.mapError(err, "download", opts.StorageKey)
			}
			plain, err := storkit.RestoreDownload(stored, doc.Metadata, p.cfg.EncryptionSecret)
			if err != nil {
				return 0, &storkit.StorageError{Op: "download", Provider: p.cfg.Name, Key: opts.StorageKey, Err: err}
			}
			plain = storkit.SliceRange(plain, opts)
			result = &storkit.DownloadResult{
				Body:     io.NopCloser(bytes.NewReader(plain)),
				Size:     int64(len(plain)),
				MimeType: doc.Metadata[storkit.MetaMimeType],
				Metadata: doc.Metadata,
			}
			return result.Size, nil
		}

		size := doc.Length
		var body io.ReadCloser = stream
		if opts.HasRange() {
			if _, err := stream.Skip(opts.Offset); err != nil {
				stream.Close()
				return 0, p.mapError(err, "download", opts.StorageKey)
			}
			size = doc.Length - opts.Offset
			if opts.Length > 0 && opts.Length < size {
				size = opts.Length
				body = &limitedStream{r: io.LimitReader(stream, size), c: stream}
			}
		}

		result = &storkit.DownloadResult{
			Body:     body,
			Size:     size,
			MimeType: doc.Metadata[storkit.MetaMimeType],
			Metadata: doc.Metadata,
		}
		return size, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type limitedStream struct {
	r io.Reader
	c io.Closer
}

func (l *limitedStream) Read(b []byte) (int, error) { return l.r.Read(b) }
func (l *limitedStream) Close() error               { return l.c.Close() }

// Delete removes a blob and its chunks. An absent key fails with
// ErrNotFound.
func (p *Provider) Delete(ctx context.Context, opts storkit.DeleteOptions) error {
	return p.record(ctx, storkit.OpDelete, opts.StorageKey, func(ctx context.Context) (int64, error) {
		bucket, err := p.ensureBucket(ctx)
		if err != nil {
			return 0, err
		}
		doc, err := p.findByName(ctx, bucket, opts.StorageKey)
		if err != nil {
			return 0, err
		}
		if err := bucket.Delete(ctx, doc.ID); err != nil {
			return 0, p.mapError(err, "delete", opts.StorageKey)
		}
		return doc.Length, nil
	})
}

// Copy re-reads the source blob and writes it under the destination key.
// GridFS has no server-side copy, so the bytes pass through this process.
func (p *Provider) Copy(ctx context.Context, opts storkit.CopyOptions) error {
	return p.record(ctx, storkit.OpCopy, opts.ToKey, func(ctx context.Context) (int64, error) {
		bucket, err := p.ensureBucket(ctx)
		if err != nil {
			return 0, err
		}

		doc, err := p.findByName(ctx, bucket, opts.FromKey)
		if err != nil {
			return 0, err
		}

		stream, err := bucket.OpenDownloadStream(ctx, doc.ID)
		if err != nil {
			return 0, p.mapError(err, "copy", opts.FromKey)
		}
		defer stream.Close()

		metadata := doc.Metadata
		if opts.Metadata != nil {
			metadata = opts.Metadata
		}
		uploadOpts := options.GridFSUpload().SetMetadata(metadata)
		if _, err := bucket.UploadFromStream(ctx, opts.ToKey, stream, uploadOpts); err != nil {
			return 0, p.mapError(err, "copy", opts.ToKey)
		}
		return doc.Length, nil
	})
}

// Move overrides the copy-then-delete default with a GridFS rename, which
// relocates the file without touching its chunks.
func (p *Provider) Move(ctx context.Context, fromKey, toKey string) error {
	return p.record(ctx, storkit.OpMove, toKey, func(ctx context.Context) (int64, error) {
		bucket, err := p.ensureBucket(ctx)
		if err != nil {
			return 0, err
		}
		doc, err := p.findByName(ctx, bucket, fromKey)
		if err != nil {
			return 0, err
		}
		if err := bucket.Rename(ctx, doc.ID, toKey); err != nil {
			return 0, p.mapError(err, "move", fromKey)
		}
		return doc.Length, nil
	})
}

// Exists reports whether the key resolves to a stored blob.
func (p *Provider) Exists(ctx context.Context, storageKey string) (bool, error) {
	bucket, err := p.ensureBucket(ctx)
	if err != nil {
		return false, err
	}
	_, err = p.findByName(ctx, bucket, storageKey)
	if err != nil {
		if storkit.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// FileInfo returns blob metadata without the payload.
func (p *Provider) FileInfo(ctx context.Context, storageKey string) (storkit.FileInfo, error) {
	bucket, err := p.ensureBucket(ctx)
	if err != nil {
		return storkit.FileInfo{}, err
	}
	doc, err := p.findByName(ctx, bucket, storageKey)
	if err != nil {
		return storkit.FileInfo{}, err
	}
	return storkit.FileInfo{
		StorageKey:   storageKey,
		Size:         doc.Length,
		MimeType:     doc.Metadata[storkit.MetaMimeType],
		Metadata:     doc.Metadata,
		LastModified: doc.UploadDate,
	}, nil
}

// TestConnection looks up a key that cannot exist; an empty result over a
// live connection is evidence of health.
func (p *Provider) TestConnection(ctx context.Context) storkit.Health {
	start := p.clock()
	health := storkit.Health{
		CheckedAt: p.clock(),
		Version:   string(storkit.FamilyDocstore),
	}

	bucket, err := p.ensureBucket(ctx)
	if err != nil {
		health.Latency = p.clock().Sub(start)
		health.Errors = append(health.Errors, err.Error())
		return health
	}

	probe := fmt.Sprintf("storkit-probe-%d", start.UnixNano())
	cursor, err := bucket.Find(ctx, bson.D{{Key: "filename", Value: probe}}, options.GridFSFind().SetLimit(1))
	health.Latency = p.clock().Sub(start)
	if err != nil {
		health.Errors = append(health.Errors, err.Error())
		return health
	}
	cursor.Close(ctx)
	health.Healthy = true
	return health
}

// StartMultipartUpload is not supported: GridFS streams chunks internally,
// and emulating part bookkeeping here would silently buffer. Callers detect
// the capability gap via ErrUnsupported.
func (p *Provider) StartMultipartUpload(_ context.Context, _ storkit.UploadOptions) (string, string, error) {
	return "", "", p.unsupported("start_multipart")
}

func (p *Provider) UploadChunk(_ context.Context, storageKey, _ string, _ int32, _ []byte) (storkit.ChunkInfo, error) {
	return storkit.ChunkInfo{}, p.unsupported("upload_chunk")
}

func (p *Provider) CompleteMultipartUpload(_ context.Context, storageKey, _ string, _ []storkit.ChunkInfo) (storkit.UploadResult, error) {
	return storkit.UploadResult{}, p.unsupported("complete_multipart")
}

func (p *Provider) AbortMultipartUpload(_ context.Context, _, _ string) error {
	return p.unsupported("abort_multipart")
}

func (p *Provider) unsupported(op string) error {
	return &storkit.StorageError{Op: op, Provider: p.cfg.Name, Err: storkit.ErrUnsupported}
}

func (p *Provider) Stats() storkit.Stats { return p.recorder.Stats() }

func (p *Provider) Operations(limit int) []storkit.Operation { return p.recorder.Operations(limit) }

func (p *Provider) Subscribe(fn func(storkit.Operation)) func() { return p.recorder.Subscribe(fn) }

// Close disconnects the backend client exactly once.
func (p *Provider) Close(ctx context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		p.connMu.Lock()
		defer p.connMu.Unlock()
		if p.client != nil {
			err = p.client.Disconnect(ctx)
			p.client = nil
			p.bucket = nil
			p.logger.Info("docstore connection closed", "provider", p.cfg.Name)
		}
	})
	return err
}

func (p *Provider) mapError(err error, op, key string) error {
	if err == nil {
		return nil
	}
	wrap := func(inner error) error {
		return &storkit.StorageError{Op: op, Provider: p.cfg.Name, Key: key, Err: inner}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return wrap(storkit.ErrTimeout)
	case errors.Is(err, mongo.ErrFileNotFound), errors.Is(err, mongo.ErrNoDocuments):
		return wrap(storkit.ErrNotFound)
	case strings.Contains(strings.ToLower(err.Error()), "not found"):
		return wrap(storkit.ErrNotFound)
	}
	return wrap(err)
}
