package storkit

import "fmt"

// ValidateConfig performs provider-family-specific validation. A config that
// fails validation is rejected before it is stored; the registry never
// persists a half-valid config.
func ValidateConfig(cfg Config) error {
	if cfg.Provider == "" {
		return &ValidationError{Field: "provider", Message: "cannot be empty"}
	}
	if !cfg.Provider.Valid() && !HasFactory(cfg.Provider) {
		return &ValidationError{
			Field:   "provider",
			Message: fmt.Sprintf("unsupported family %q", cfg.Provider),
		}
	}
	if cfg.Name == "" {
		return &ValidationError{Field: "name", Message: "cannot be empty"}
	}

	if cfg.Settings.EnableEncryption && cfg.EncryptionSecret == "" {
		return &ValidationError{Field: "encryption_secret", Message: "required when encryption is enabled"}
	}
	if cfg.Settings.UploadTimeoutMs < 0 {
		return &ValidationError{Field: "settings.upload_timeout_ms", Message: "must not be negative"}
	}
	if cfg.Settings.RetryAttempts < 0 {
		return &ValidationError{Field: "settings.retry_attempts", Message: "must not be negative"}
	}

	switch {
	case cfg.Provider.IsS3Compatible():
		return validateS3Config(cfg)
	case cfg.Provider == FamilyDocstore:
		return validateDocstoreConfig(cfg)
	}
	return nil
}

func validateS3Config(cfg Config) error {
	if cfg.AccessKey == "" {
		return &ValidationError{Field: "access_key", Message: "required for S3-compatible providers"}
	}
	if cfg.SecretKey == "" {
		return &ValidationError{Field: "secret_key", Message: "required for S3-compatible providers"}
	}
	if cfg.Bucket == "" {
		return &ValidationError{Field: "bucket", Message: "required for S3-compatible providers"}
	}

	switch cfg.Provider {
	case FamilyR2:
		// R2 derives its endpoint from the account id; region is fixed to
		// "auto" by the backend.
		if cfg.AccountID == "" && cfg.Endpoint == "" {
			return &ValidationError{Field: "account_id", Message: "required for R2 when no endpoint is set"}
		}
	default:
		if cfg.Region == "" {
			return &ValidationError{Field: "region", Message: "required for S3-compatible providers"}
		}
	}
	return nil
}

func validateDocstoreConfig(cfg Config) error {
	if cfg.Database == "" {
		return &ValidationError{Field: "database", Message: "required for document-database providers"}
	}
	if cfg.URI == "" {
		return &ValidationError{Field: "uri", Message: "required for document-database providers"}
	}
	return nil
}
