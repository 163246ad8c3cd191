package s3

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/filecove/storkit"
)

// mapError converts SDK failures to domain errors, preserving the original
// message through the error chain.
func mapError(err error, op, provider, key string) error {
	if err == nil {
		return nil
	}

	wrap := func(inner error) error {
		return &storkit.StorageError{Op: op, Provider: provider, Key: key, Err: inner}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return wrap(storkit.ErrTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return wrap(err)
	}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	switch {
	case errors.As(err, &noSuchKey), errors.As(err, &notFound):
		return wrap(storkit.ErrNotFound)
	case errors.As(err, &noSuchBucket):
		return wrap(storkit.ErrNotFound)
	}

	// Variant backends (R2, Wasabi, MinIO) do not always return the modeled
	// error types; fall back to the generic API error code and HTTP status.
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404", "NoSuchBucket":
			return wrap(storkit.ErrNotFound)
		case "RequestTimeout":
			return wrap(storkit.ErrTimeout)
		case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
			return wrap(storkit.ErrConflict)
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusNotFound:
			return wrap(storkit.ErrNotFound)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return wrap(storkit.ErrTimeout)
		case http.StatusConflict:
			return wrap(storkit.ErrConflict)
		}
	}

	// Last resort: string matching for SDKs that surface bare messages.
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "not found") || strings.Contains(msg, "nosuchkey") {
		return wrap(storkit.ErrNotFound)
	}

	return wrap(err)
}

// isNotFound reports whether err maps to an absent object.
func isNotFound(err error) bool {
	return storkit.IsNotFound(mapError(err, "probe", "", ""))
}
