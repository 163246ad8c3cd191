package storkit

import (
	"context"
	"io"
	"time"
)

// Family identifies a provider implementation family. The R2 and Wasabi
// identities are configuration variants of the S3-compatible family; they
// share one implementation and differ only in endpoint resolution.
type Family string

const (
	FamilyS3       Family = "s3"
	FamilyR2       Family = "r2"
	FamilyWasabi   Family = "wasabi"
	FamilyDocstore Family = "docstore"
)

// IsS3Compatible reports whether the family is served by the S3-compatible
// implementation.
func (f Family) IsS3Compatible() bool {
	return f == FamilyS3 || f == FamilyR2 || f == FamilyWasabi
}

// Valid reports whether the family names a known implementation.
func (f Family) Valid() bool {
	return f.IsS3Compatible() || f == FamilyDocstore
}

// UploadOptions configures a single upload call. It is consumed once and
// never persisted.
type UploadOptions struct {
	// Filename is the client-supplied name. It must be non-empty; it is
	// sanitized before it becomes part of the storage key.
	Filename string

	// MimeType is the content type stored alongside the object.
	MimeType string

	// UserID, when set, prefixes the storage key so a lexicographic listing
	// partitions by owner.
	UserID string

	// Metadata contains user-defined pairs. Values are stringified before
	// they reach a backend that only accepts string metadata.
	Metadata map[string]any

	// Tags are free-form labels stored in the object metadata.
	Tags []string

	// IsPublic requests a public-read ACL where the backend supports one.
	IsPublic bool

	// Encrypt requests at-rest encryption. Honored only when the provider's
	// operational settings also enable encryption.
	Encrypt bool

	// Compress requests gzip compression. Honored only when the provider's
	// operational settings also enable compression. Compression is always
	// applied before encryption.
	Compress bool
}

// UploadResult describes a stored object. StorageKey is the only durable
// handle a caller needs to retain; its format is provider-specific.
type UploadResult struct {
	StorageKey  string
	Size        int64
	ContentHash string
	URL         string
	Metadata    map[string]string
}

// DownloadOptions selects an object and an optional byte range.
type DownloadOptions struct {
	StorageKey string

	// Offset and Length select a partial range when set.
	// Length < 0 means "from Offset to the end".
	Offset int64
	Length int64
}

// HasRange reports whether a partial range was requested.
func (o DownloadOptions) HasRange() bool {
	return o.Offset > 0 || o.Length != 0
}

// DownloadResult carries a lazy byte stream plus object metadata. The caller
// owns Body and must close it.
type DownloadResult struct {
	Body     io.ReadCloser
	Size     int64
	MimeType string
	Metadata map[string]string
}

// DeleteOptions selects an object for deletion. Permanent requests that the
// backend skip any soft-delete/versioning machinery it may have.
type DeleteOptions struct {
	StorageKey string
	Permanent  bool
}

// CopyOptions describes a within-provider copy. Metadata, when non-nil,
// replaces the destination object's metadata.
type CopyOptions struct {
	FromKey  string
	ToKey    string
	Metadata map[string]string
}

// FileInfo describes a stored object without its payload.
type FileInfo struct {
	StorageKey   string
	Size         int64
	MimeType     string
	Metadata     map[string]string
	LastModified time.Time
}

// Health is a transient connectivity snapshot produced on demand.
type Health struct {
	Healthy   bool
	Latency   time.Duration
	CheckedAt time.Time
	Errors    []string
	Version   string
}

// OperationType labels a telemetry record.
type OperationType string

const (
	OpUpload   OperationType = "upload"
	OpDownload OperationType = "download"
	OpDelete   OperationType = "delete"
	OpCopy     OperationType = "copy"
	OpMove     OperationType = "move"
)

// Operation is one telemetry record. Records live in a bounded in-memory
// ring buffer per provider instance; they are observability, not an audit
// log, and do not survive the process.
type Operation struct {
	Type       OperationType
	StorageKey string
	Size       int64
	Duration   time.Duration
	Success    bool
	Error      string
	Timestamp  time.Time
}

// Bandwidth summarizes transfer volume over the ring-buffer window.
type Bandwidth struct {
	UploadBytes   int64
	DownloadBytes int64
	Period        string
}

// Stats is derived from the operation ring buffer on every recorded
// operation. SuccessRate windows to the buffered operations (last 1000),
// not all-time.
type Stats struct {
	TotalFiles  int64
	TotalSize   int64
	AvgFileSize int64
	ErrorCount  int64
	SuccessRate float64
	Bandwidth   Bandwidth
}

// ChunkInfo identifies one uploaded part of a multipart session.
type ChunkInfo struct {
	PartNumber int32
	ETag       string
}

// Provider is the capability contract every backend implements.
//
// The multipart operations are optional capabilities: a provider that cannot
// serve them fails with ErrUnsupported rather than buffering, so callers can
// detect the gap before committing to a chunked flow.
type Provider interface {
	// Name returns the configured provider name.
	Name() string

	// Kind returns the provider family identity (s3, r2, wasabi, docstore).
	Kind() Family

	// Upload stores data and returns the durable storage key. Compression is
	// applied before encryption when both are enabled; the content hash is
	// computed over the original, unprocessed bytes.
	Upload(ctx context.Context, data []byte, opts UploadOptions) (UploadResult, error)

	// Download returns a lazy stream, honoring a partial byte range where
	// the backend supports it. Fails with ErrNotFound for an absent key.
	Download(ctx context.Context, opts DownloadOptions) (*DownloadResult, error)

	// Delete removes an object. Fails with ErrNotFound if the key does not
	// exist at deletion time; there is no silent no-op.
	Delete(ctx context.Context, opts DeleteOptions) error

	// Copy duplicates an object within the provider, server-side where the
	// backend supports it.
	Copy(ctx context.Context, opts CopyOptions) error

	// Move relocates an object. The default behavior is copy then permanent
	// delete: a crash between the steps leaves the object duplicated under
	// both keys, never lost.
	Move(ctx context.Context, fromKey, toKey string) error

	// Exists reports whether the key resolves to a stored object.
	Exists(ctx context.Context, storageKey string) (bool, error)

	// FileInfo returns object metadata without the payload.
	FileInfo(ctx context.Context, storageKey string) (FileInfo, error)

	// TestConnection is a cheap, idempotent probe. A NotFound response to
	// the probe is evidence of healthy connectivity, not a failure.
	TestConnection(ctx context.Context) Health

	// StartMultipartUpload begins a chunked upload session.
	StartMultipartUpload(ctx context.Context, opts UploadOptions) (uploadID string, storageKey string, err error)

	// UploadChunk uploads one part of an open session.
	UploadChunk(ctx context.Context, storageKey, uploadID string, partNumber int32, chunk []byte) (ChunkInfo, error)

	// CompleteMultipartUpload finalizes a session.
	CompleteMultipartUpload(ctx context.Context, storageKey, uploadID string, parts []ChunkInfo) (UploadResult, error)

	// AbortMultipartUpload cancels a session and releases its parts.
	AbortMultipartUpload(ctx context.Context, storageKey, uploadID string) error

	// Stats returns statistics derived from the operation ring buffer.
	Stats() Stats

	// Operations returns the most recent telemetry records, oldest first.
	// limit <= 0 returns the full buffer.
	Operations(limit int) []Operation

	// Subscribe registers a listener invoked for every recorded operation.
	// The returned function cancels the subscription.
	Subscribe(fn func(Operation)) (cancel func())

	// Close releases backend connection resources. It is safe to call once;
	// the manager calls it on RemoveProvider and shutdown.
	Close(ctx context.Context) error
}
