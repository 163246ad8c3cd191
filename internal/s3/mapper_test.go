package s3

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/filecove/storkit"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil passes through", nil, nil},
		{"deadline exceeded", context.DeadlineExceeded, storkit.ErrTimeout},
		{"modeled NoSuchKey", &types.NoSuchKey{}, storkit.ErrNotFound},
		{"modeled NotFound", &types.NotFound{}, storkit.ErrNotFound},
		{"modeled NoSuchBucket", &types.NoSuchBucket{}, storkit.ErrNotFound},
		{
			"generic api error code",
			&smithy.GenericAPIError{Code: "NoSuchKey", Message: "not here"},
			storkit.ErrNotFound,
		},
		{
			"generic timeout code",
			&smithy.GenericAPIError{Code: "RequestTimeout", Message: "slow"},
			storkit.ErrTimeout,
		},
		{
			"http 404 response",
			&smithyhttp.ResponseError{
				Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusNotFound}},
				Err:      errors.New("NotFound"),
			},
			storkit.ErrNotFound,
		},
		{
			"http 409 response",
			&smithyhttp.ResponseError{
				Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusConflict}},
				Err:      errors.New("conflict"),
			},
			storkit.ErrConflict,
		},
		{"bare message fallback", errors.New("object not found"), storkit.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "op", "prov", "key")
			if tt.want == nil {
				if got != nil {
					t.Fatalf("mapError(nil) = %v", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Fatalf("mapError(%v) = %v, want wrapped %v", tt.err, got, tt.want)
			}
			var se *storkit.StorageError
			if !errors.As(got, &se) {
				t.Fatalf("mapError should wrap in StorageError, got %T", got)
			}
			if se.Op != "op" || se.Provider != "prov" || se.Key != "key" {
				t.Fatalf("context lost: %+v", se)
			}
		})
	}
}

func TestMapErrorPreservesUnknownErrors(t *testing.T) {
	orig := errors.New("access denied")
	got := mapError(orig, "upload", "prov", "key")
	if !errors.Is(got, orig) {
		t.Fatalf("unknown errors must stay reachable through the chain: %v", got)
	}
}
