package storkit

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// OperationalSettings tunes per-provider behavior. Immutable defaults are
// merged with overrides at config-creation time; later updates are
// shallow-merged field by field.
type OperationalSettings struct {
	// UploadTimeoutMs bounds a single upload; exceeding it fails the
	// operation with ErrTimeout.
	UploadTimeoutMs int `mapstructure:"upload_timeout_ms" yaml:"upload_timeout_ms"`

	// RetryAttempts bounds health-check retries. Data operations are never
	// retried inside this layer.
	RetryAttempts int `mapstructure:"retry_attempts" yaml:"retry_attempts"`

	// ChunkSizeBytes is the multipart part size (S3) and GridFS chunk size
	// (docstore).
	ChunkSizeBytes int64 `mapstructure:"chunk_size_bytes" yaml:"chunk_size_bytes"`

	EnableCompression   bool `mapstructure:"enable_compression" yaml:"enable_compression"`
	EnableEncryption    bool `mapstructure:"enable_encryption" yaml:"enable_encryption"`
	EnableVersioning    bool `mapstructure:"enable_versioning" yaml:"enable_versioning"`
	EnableDeduplication bool `mapstructure:"enable_deduplication" yaml:"enable_deduplication"`
	AutoCleanup         bool `mapstructure:"auto_cleanup" yaml:"auto_cleanup"`

	CleanupRetentionDays int `mapstructure:"cleanup_retention_days" yaml:"cleanup_retention_days"`
}

// DefaultSettings returns the immutable operational defaults.
func DefaultSettings() OperationalSettings {
	return OperationalSettings{
		UploadTimeoutMs:      300_000, // 5 minutes
		RetryAttempts:        3,
		ChunkSizeBytes:       8 << 20, // 8MB
		EnableCompression:    false,
		EnableEncryption:     false,
		EnableVersioning:     false,
		EnableDeduplication:  false,
		AutoCleanup:          false,
		CleanupRetentionDays: 30,
	}
}

// Merge shallow-merges non-zero override fields onto s and returns the
// result. Boolean overrides always apply.
func (s OperationalSettings) Merge(o OperationalSettings) OperationalSettings {
	out := s
	if o.UploadTimeoutMs > 0 {
		out.UploadTimeoutMs = o.UploadTimeoutMs
	}
	if o.RetryAttempts > 0 {
		out.RetryAttempts = o.RetryAttempts
	}
	if o.ChunkSizeBytes > 0 {
		out.ChunkSizeBytes = o.ChunkSizeBytes
	}
	if o.CleanupRetentionDays > 0 {
		out.CleanupRetentionDays = o.CleanupRetentionDays
	}
	out.EnableCompression = o.EnableCompression
	out.EnableEncryption = o.EnableEncryption
	out.EnableVersioning = o.EnableVersioning
	out.EnableDeduplication = o.EnableDeduplication
	out.AutoCleanup = o.AutoCleanup
	return out
}

// Config holds one provider's connection and operational settings. Values
// arrive already resolved from the caller's configuration layer; storkit
// never reads the process environment itself.
type Config struct {
	// Provider selects the implementation family (s3, r2, wasabi, docstore).
	Provider Family `mapstructure:"provider" yaml:"provider"`

	// Name is a human-readable label used in logs and health results.
	Name string `mapstructure:"name" yaml:"name"`

	// Active marks the config as eligible for use. Only active configs can
	// be the default.
	Active bool `mapstructure:"active" yaml:"active"`

	// Default marks the config as the routing default. The registry
	// enforces that at most one active config is default.
	Default bool `mapstructure:"default" yaml:"default"`

	// S3-compatible connection parameters.
	Endpoint     string `mapstructure:"endpoint" yaml:"endpoint"`
	Region       string `mapstructure:"region" yaml:"region"`
	Bucket       string `mapstructure:"bucket" yaml:"bucket"`
	AccessKey    string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey    string `mapstructure:"secret_key" yaml:"secret_key"`
	SessionToken string `mapstructure:"session_token" yaml:"session_token"`

	// AccountID derives the endpoint for the R2 variant
	// (https://{account}.r2.cloudflarestorage.com).
	AccountID string `mapstructure:"account_id" yaml:"account_id"`

	// UsePathStyle forces path-style addressing (MinIO-style endpoints).
	UsePathStyle bool `mapstructure:"use_path_style" yaml:"use_path_style"`

	// RoleARN optionally assumes a role via STS using the static or SDK
	// default credentials as the source.
	RoleARN    string `mapstructure:"role_arn" yaml:"role_arn"`
	ExternalID string `mapstructure:"external_id" yaml:"external_id"`

	// Document-database connection parameters.
	URI      string `mapstructure:"uri" yaml:"uri"`
	Database string `mapstructure:"database" yaml:"database"`

	// PublicBaseURL, when set, is used to derive public object URLs.
	PublicBaseURL string `mapstructure:"public_base_url" yaml:"public_base_url"`

	// EncryptionSecret is the passphrase for at-rest encryption. Required
	// when Settings.EnableEncryption is true.
	EncryptionSecret string `mapstructure:"encryption_secret" yaml:"encryption_secret"`

	// Settings are the operational knobs, pre-merged with defaults by
	// NewConfig/the registry.
	Settings OperationalSettings `mapstructure:"settings" yaml:"settings"`
}

// NewConfig builds a Config with operational defaults merged under the
// supplied overrides.
func NewConfig(family Family, name string, overrides OperationalSettings) Config {
	return Config{
		Provider: family,
		Name:     name,
		Active:   true,
		Settings: DefaultSettings().Merge(overrides),
	}
}

// String returns a safe representation; credentials are redacted.
func (c Config) String() string {
	return fmt.Sprintf("Config{Provider:%s, Name:%s, Active:%v, Default:%v, Bucket:%s, Region:%s, Endpoint:%s, Database:%s}",
		c.Provider, c.Name, c.Active, c.Default, c.Bucket, c.Region, c.Endpoint, c.Database)
}

// EndpointURL returns the scheme-qualified endpoint, defaulting to https.
func (c Config) EndpointURL() string {
	if c.Endpoint == "" {
		return ""
	}
	if strings.HasPrefix(c.Endpoint, "http://") || strings.HasPrefix(c.Endpoint, "https://") {
		return c.Endpoint
	}
	return "https://" + c.Endpoint
}

// ConfigsFromViper unmarshals a map of provider id to Config from the
// "storage.providers" key of an already-populated viper instance and merges
// operational defaults into each. The caller owns reading files or the
// environment into v; storkit only binds the resolved values.
func ConfigsFromViper(v *viper.Viper) (map[string]Config, error) {
	raw := map[string]Config{}
	if err := v.UnmarshalKey("storage.providers", &raw); err != nil {
		return nil, fmt.Errorf("bind storage.providers: %w", err)
	}

	out := make(map[string]Config, len(raw))
	for id, cfg := range raw {
		cfg.Settings = DefaultSettings().Merge(cfg.Settings)
		if cfg.Name == "" {
			cfg.Name = id
		}
		if err := ValidateConfig(cfg); err != nil {
			return nil, fmt.Errorf("provider %q: %w", id, err)
		}
		out[id] = cfg
	}
	return out, nil
}
