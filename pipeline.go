package storkit

import (
	"fmt"
	"strconv"
	"strings"
)

// Metadata keys stamped onto every stored object. They drive the download
// restore path, so both provider families write and read the same set.
const (
	MetaContentHash  = "content-hash"
	MetaOriginalSize = "original-size"
	MetaCompressed   = "compressed"
	MetaEncrypted    = "encrypted"
	MetaMimeType     = "mime-type"
	MetaTags         = "tags"
	MetaPublic       = "public"
)

// Payload is the result of the shared upload pipeline: the bytes to hand to
// the backend plus the stamped metadata and the properties of the original
// data.
type Payload struct {
	// Data is what the backend stores: original bytes, possibly compressed,
	// possibly encrypted (always in that order).
	Data []byte

	// StorageKey is the generated durable handle.
	StorageKey string

	// Hash is the SHA-256 hex of the original, unprocessed bytes.
	Hash string

	// OriginalSize is len of the unprocessed bytes.
	OriginalSize int64

	// Metadata is string-only, safe for any backend.
	Metadata map[string]string

	Compressed bool
	Encrypted  bool
}

// PrepareUpload runs the shared upload pipeline: argument validation,
// metadata stringification, content hashing, then compression and
// encryption. Compression runs before encryption when both apply;
// compressing ciphertext wastes cycles and gains nothing.
//
// A zero-byte payload is valid. An empty filename is not.
func PrepareUpload(data []byte, opts UploadOptions, settings OperationalSettings, secret string, kb *KeyBuilder) (Payload, error) {
	if strings.TrimSpace(opts.Filename) == "" {
		return Payload{}, &ValidationError{Field: "filename", Message: "cannot be empty"}
	}

	p := Payload{
		Data:         data,
		StorageKey:   kb.BuildKey(opts.UserID, opts.Filename),
		Hash:         ContentHash(data),
		OriginalSize: int64(len(data)),
		Metadata:     SanitizeMetadata(opts.Metadata),
	}

	if opts.Compress && settings.EnableCompression {
		compressed, err := Compress(p.Data)
		if err != nil {
			return Payload{}, err
		}
		p.Data = compressed
		p.Compressed = true
	}

	if opts.Encrypt && settings.EnableEncryption {
		encrypted, err := Encrypt(p.Data, secret)
		if err != nil {
			return Payload{}, err
		}
		p.Data = encrypted
		p.Encrypted = true
	}

	p.Metadata[MetaContentHash] = p.Hash
	p.Metadata[MetaOriginalSize] = strconv.FormatInt(p.OriginalSize, 10)
	p.Metadata[MetaCompressed] = strconv.FormatBool(p.Compressed)
	p.Metadata[MetaEncrypted] = strconv.FormatBool(p.Encrypted)
	if opts.MimeType != "" {
		p.Metadata[MetaMimeType] = opts.MimeType
	}
	if len(opts.Tags) > 0 {
		p.Metadata[MetaTags] = strings.Join(opts.Tags, ",")
	}
	if opts.IsPublic {
		p.Metadata[MetaPublic] = "true"
	}
	return p, nil
}

// RestoreDownload reverses the upload pipeline using the stored metadata
// flags: decrypt first, then decompress.
func RestoreDownload(data []byte, metadata map[string]string, secret string) ([]byte, error) {
	out := data
	if metadata[MetaEncrypted] == "true" {
		plain, err := Decrypt(out, secret)
		if err != nil {
			return nil, err
		}
		out = plain
	}
	if metadata[MetaCompressed] == "true" {
		plain, err := Decompress(out)
		if err != nil {
			return nil, err
		}
		out = plain
	}
	return out, nil
}

// NeedsRestore reports whether the stored bytes differ from the original
// payload. When true, byte ranges cannot be served from the backend
// directly; the provider restores first and slices in memory.
func NeedsRestore(metadata map[string]string) bool {
	return metadata[MetaEncrypted] == "true" || metadata[MetaCompressed] == "true"
}

// SliceRange applies DownloadOptions range semantics to in-memory data.
func SliceRange(data []byte, opts DownloadOptions) []byte {
	if !opts.HasRange() {
		return data
	}
	start := opts.Offset
	if start < 0 {
		start = 0
	}
	if start > int64(len(data)) {
		return nil
	}
	end := int64(len(data))
	if opts.Length > 0 && start+opts.Length < end {
		end = start + opts.Length
	}
	return data[start:end]
}

// SanitizeMetadata stringifies user metadata values for backends that only
// accept string metadata. Keys are lowercased; nil maps yield an empty map.
func SanitizeMetadata(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "" {
			continue
		}
		switch t := v.(type) {
		case string:
			out[key] = t
		case fmt.Stringer:
			out[key] = t.String()
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprintf("%v", t)
		}
	}
	return out
}
