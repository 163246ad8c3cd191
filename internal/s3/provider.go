package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/filecove/storkit"
)

// Provider serves the S3-compatible family (S3, R2, Wasabi) through one
// implementation.
type Provider struct {
	cfg      storkit.Config
	client   *s3.Client
	kb       *storkit.KeyBuilder
	logger   storkit.Logger
	recorder *storkit.Recorder
	inst     *storkit.Instrumenter
	clock    func() time.Time
}

// New constructs the provider for a validated S3-compatible config.
func New(ctx context.Context, cfg storkit.Config, opts ...storkit.Option) (*Provider, error) {
	if err := storkit.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	options := storkit.ResolveOptions(opts...)

	client, err := newClient(ctx, cfg, options.Logger())
	if err != nil {
		return nil, &storkit.StorageError{Op: "new_provider", Provider: cfg.Name, Err: err}
	}

	return &Provider{
		cfg:      cfg,
		client:   client,
		kb:       options.KeyBuilder(),
		logger:   options.Logger(),
		recorder: storkit.NewRecorder(),
		inst:     options.Instrumenter(),
		clock:    options.Clock(),
	}, nil
}

func (p *Provider) Name() string         { return p.cfg.Name }
func (p *Provider) Kind() storkit.Family { return p.cfg.Provider }

// record runs fn under instrumentation and appends one telemetry record,
// success or failure. fn reports the payload size it moved.
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

// Upload stores data under a freshly generated storage key. The shared
// pipeline hashes the original bytes, then compresses, then encrypts.
func (p *Provider) Upload(ctx context.Context, data []byte, opts storkit.UploadOptions) (storkit.UploadResult, error) {
	payload, err := storkit.PrepareUpload(data, opts, p.cfg.Settings, p.cfg.EncryptionSecret, p.kb)
	if err != nil {
		// Validation failures still count against the success rate so
		// operators can see misconfiguration as elevated error rates.
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

	err = p.record(ctx, storkit.OpUpload, payload.StorageKey, func(ctx context.Context) (int64, error) {
		input := &s3.PutObjectInput{
			Bucket:   aws.String(p.cfg.Bucket),
			Key:      aws.String(payload.StorageKey),
			Body:     bytes.NewReader(payload.Data),
			Metadata: payload.Metadata,
		}
		if opts.MimeType != "" {
			input.ContentType = aws.String(opts.MimeType)
		}
		if opts.IsPublic {
			input.ACL = types.ObjectCannedACLPublicRead
		}
		_, putErr := p.client.PutObject(ctx, input)
		return payload.OriginalSize, mapError(putErr, "upload", p.cfg.Name, payload.StorageKey)
	})
	if err != nil {
		return storkit.UploadResult{}, err
	}

	res := storkit.UploadResult{
		StorageKey:  payload.StorageKey,
		Size:        payload.OriginalSize,
		ContentHash: payload.Hash,
		Metadata:    payload.Metadata,
	}
	if opts.IsPublic {
		res.URL = p.publicURL(payload.StorageKey)
	}

	p.logger.Debug("object uploaded",
		"provider", p.cfg.Name, "key", payload.StorageKey,
		"size", payload.OriginalSize, "compressed", payload.Compressed, "encrypted", payload.Encrypted)
	return res, nil
}

// Download streams an object. Raw objects honor byte ranges via backend
// range headers; compressed/encrypted objects are restored in memory first
// and the range is applied to the restored bytes.
func (p *Provider) Download(ctx context.Context, opts storkit.DownloadOptions) (*storkit.DownloadResult, error) {
	var result *storkit.DownloadResult

	err := p.record(ctx, storkit.OpDownload, opts.StorageKey, func(ctx context.Context) (int64, error) {
		head, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(p.cfg.Bucket),
			Key:    aws.String(opts.StorageKey),
		})
		if err != nil {
			return 0, mapError(err, "download", p.cfg.Name, opts.StorageKey)
		}

		if storkit.NeedsRestore(head.Metadata) {
			result, err = p.downloadRestored(ctx, opts, head.Metadata)
			if err != nil {
				return 0, err
			}
			return result.Size, nil
		}

		input := &s3.GetObjectInput{
			Bucket: aws.String(p.cfg.Bucket),
			Key:    aws.String(opts.StorageKey),
		}
		if opts.HasRange() {
			input.Range = aws.String(rangeHeader(opts))
		}

		out, err := p.client.GetObject(ctx, input)
		if err != nil {
			return 0, mapError(err, "download", p.cfg.Name, opts.StorageKey)
		}

		result = &storkit.DownloadResult{
			Body:     out.Body,
			Size:     aws.ToInt64(out.ContentLength),
			MimeType: aws.ToString(out.ContentType),
			Metadata: out.Metadata,
		}
		return result.Size, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (p *Provider) downloadRestored(ctx context.Context, opts storkit.DownloadOptions, metadata map[string]string) (*storkit.DownloadResult, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(opts.StorageKey),
	})
	if err != nil {
		return nil, mapError(err, "download", p.cfg.Name, opts.StorageKey)
	}
	defer out.Body.Close()

	stored, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &storkit.StorageError{Op: "download", Provider: p.cfg.Name, Key: opts.StorageKey, Err: err}
	}

	plain, err := storkit.RestoreDownload(stored, metadata, p.cfg.EncryptionSecret)
	if err != nil {
		return nil, &storkit.StorageError{Op: "download", Provider: p.cfg.Name, Key: opts.StorageKey, Err: err}
	}
	plain = storkit.SliceRange(plain, opts)

	return &storkit.DownloadResult{
		Body:     io.NopCloser(bytes.NewReader(plain)),
		Size:     int64(len(plain)),
		MimeType: metadata[storkit.MetaMimeType],
		Metadata: metadata,
	}, nil
}

// Delete removes an object. An absent key fails with ErrNotFound: S3's
// DeleteObject is silent for missing keys, so existence is probed first.
func (p *Provider) Delete(ctx context.Context, opts storkit.DeleteOptions) error {
	return p.record(ctx, storkit.OpDelete, opts.StorageKey, func(ctx context.Context) (int64, error) {
		head, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(p.cfg.Bucket),
			Key:    aws.String(opts.StorageKey),
		})
		if err != nil {
			return 0, mapError(err, "delete", p.cfg.Name, opts.StorageKey)
		}

		_, err = p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(p.cfg.Bucket),
			Key:    aws.String(opts.StorageKey),
		})
		return aws.ToInt64(head.ContentLength), mapError(err, "delete", p.cfg.Name, opts.StorageKey)
	})
}

// Copy duplicates an object server-side; the payload never passes through
// this process.
func (p *Provider) Copy(ctx context.Context, opts storkit.CopyOptions) error {
	return p.record(ctx, storkit.OpCopy, opts.ToKey, func(ctx context.Context) (int64, error) {
		input := &s3.CopyObjectInput{
			Bucket:     aws.String(p.cfg.Bucket),
			CopySource: aws.String(p.cfg.Bucket + "/" + opts.FromKey),
			Key:        aws.String(opts.ToKey),
		}
		if opts.Metadata != nil {
			input.Metadata = opts.Metadata
			input.MetadataDirective = types.MetadataDirectiveReplace
		}
		_, err := p.client.CopyObject(ctx, input)
		return 0, mapError(err, "copy", p.cfg.Name, opts.FromKey)
	})
}

// Move is copy-then-permanent-delete. A crash between the steps leaves the
// object under both keys, never lost.
func (p *Provider) Move(ctx context.Context, fromKey, toKey string) error {
	return p.record(ctx, storkit.OpMove, toKey, func(ctx context.Context) (int64, error) {
		input := &s3.CopyObjectInput{
			Bucket:     aws.String(p.cfg.Bucket),
			CopySource: aws.String(p.cfg.Bucket + "/" + fromKey),
			Key:        aws.String(toKey),
		}
		if _, err := p.client.CopyObject(ctx, input); err != nil {
			return 0, mapError(err, "move", p.cfg.Name, fromKey)
		}
		_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(p.cfg.Bucket),
			Key:    aws.String(fromKey),
		})
		return 0, mapError(err, "move", p.cfg.Name, fromKey)
	})
}

// Exists reports whether the key resolves to an object.
func (p *Provider) Exists(ctx context.Context, storageKey string) (bool, error) {
	_, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(storageKey),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, mapError(err, "exists", p.cfg.Name, storageKey)
	}
	return true, nil
}

// FileInfo returns object metadata without the payload. Size reported is
// the original size when the pipeline recorded one.
func (p *Provider) FileInfo(ctx context.Context, storageKey string) (storkit.FileInfo, error) {
	out, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(storageKey),
	})
	if err != nil {
		return storkit.FileInfo{}, mapError(err, "file_info", p.cfg.Name, storageKey)
	}

	info := storkit.FileInfo{
		StorageKey: storageKey,
		Size:       aws.ToInt64(out.ContentLength),
		MimeType:   aws.ToString(out.ContentType),
		Metadata:   out.Metadata,
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	if info.MimeType == "" {
		info.MimeType = out.Metadata[storkit.MetaMimeType]
	}
	return info, nil
}

// TestConnection heads a key that cannot exist. A NotFound answer proves
// connectivity and credentials; anything else marks the provider unhealthy.
func (p *Provider) TestConnection(ctx context.Context) storkit.Health {
	probe := "storkit-probe/" + uuid.NewString()
	start := p.clock()

	_, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(probe),
	})

	health := storkit.Health{
		Latency:   p.clock().Sub(start),
		CheckedAt: p.clock(),
		Version:   string(p.cfg.Provider),
	}
	if err == nil || isNotFound(err) {
		health.Healthy = true
		return health
	}
	health.Errors = append(health.Errors, err.Error())
	return health
}

// StartMultipartUpload begins a chunked session. Multipart payloads bypass
// the compression/encryption pipeline; chunks are stored verbatim.
func (p *Provider) StartMultipartUpload(ctx context.Context, opts storkit.UploadOptions) (string, string, error) {
	if strings.TrimSpace(opts.Filename) == "" {
		return "", "", &storkit.ValidationError{Field: "filename", Message: "cannot be empty"}
	}

	storageKey := p.kb.BuildKey(opts.UserID, opts.Filename)
	input := &s3.CreateMultipartUploadInput{
		Bucket:   aws.String(p.cfg.Bucket),
		Key:      aws.String(storageKey),
		Metadata: storkit.SanitizeMetadata(opts.Metadata),
	}
	if opts.MimeType != "" {
		input.ContentType = aws.String(opts.MimeType)
	}

	out, err := p.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return "", "", mapError(err, "start_multipart", p.cfg.Name, storageKey)
	}
	return aws.ToString(out.UploadId), storageKey, nil
}

// UploadChunk uploads one part of an open session.
func (p *Provider) UploadChunk(ctx context.Context, storageKey, uploadID string, partNumber int32, chunk []byte) (storkit.ChunkInfo, error) {
	out, err := p.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(p.cfg.Bucket),
		Key:           aws.String(storageKey),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          bytes.NewReader(chunk),
		ContentLength: aws.Int64(int64(len(chunk))),
	})
	if err != nil {
		return storkit.ChunkInfo{}, mapError(err, "upload_chunk", p.cfg.Name, storageKey)
	}
	return storkit.ChunkInfo{PartNumber: partNumber, ETag: aws.ToString(out.ETag)}, nil
}

// CompleteMultipartUpload finalizes a session and records an upload
// operation for the assembled object.
func (p *Provider) CompleteMultipartUpload(ctx context.Context, storageKey, uploadID string, parts []storkit.ChunkInfo) (storkit.UploadResult, error) {
	completed := make([]types.CompletedPart, 0, len(parts))
	for _, part := range parts {
		completed = append(completed, types.CompletedPart{
			ETag:       aws.String(part.ETag),
			PartNumber: aws.Int32(part.PartNumber),
		})
	}

	var size int64
	err := p.record(ctx, storkit.OpUpload, storageKey, func(ctx context.Context) (int64, error) {
		_, err := p.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
			Bucket:          aws.String(p.cfg.Bucket),
			Key:             aws.String(storageKey),
			UploadId:        aws.String(uploadID),
			MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
		})
		if err != nil {
			return 0, mapError(err, "complete_multipart", p.cfg.Name, storageKey)
		}

		head, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(p.cfg.Bucket),
			Key:    aws.String(storageKey),
		})
		if err != nil {
			return 0, mapError(err, "complete_multipart", p.cfg.Name, storageKey)
		}
		size = aws.ToInt64(head.ContentLength)
		return size, nil
	})
	if err != nil {
		return storkit.UploadResult{}, err
	}

	return storkit.UploadResult{StorageKey: storageKey, Size: size}, nil
}

// AbortMultipartUpload cancels a session and releases its parts.
func (p *Provider) AbortMultipartUpload(ctx context.Context, storageKey, uploadID string) error {
	_, err := p.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(p.cfg.Bucket),
		Key:      aws.String(storageKey),
		UploadId: aws.String(uploadID),
	})
	return mapError(err, "abort_multipart", p.cfg.Name, storageKey)
}

func (p *Provider) Stats() storkit.Stats { return p.recorder.Stats() }

func (p *Provider) Operations(limit int) []storkit.Operation { return p.recorder.Operations(limit) }

func (p *Provider) Subscribe(fn func(storkit.Operation)) func() { return p.recorder.Subscribe(fn) }

// Close is a no-op: the SDK client holds no connection that outlives its
// requests.
func (p *Provider) Close(_ context.Context) error { return nil }

func (p *Provider) publicURL(key string) string {
	if p.cfg.PublicBaseURL != "" {
		return strings.TrimSuffix(p.cfg.PublicBaseURL, "/") + "/" + key
	}
	if endpoint, _ := resolveEndpoint(p.cfg); endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(endpoint, "/"), p.cfg.Bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", p.cfg.Bucket, p.cfg.Region, key)
}

func rangeHeader(opts storkit.DownloadOptions) string {
	if opts.Length > 0 {
		return fmt.Sprintf("bytes=%d-%d", opts.Offset, opts.Offset+opts.Length-1)
	}
	return fmt.Sprintf("bytes=%d-", opts.Offset)
}
