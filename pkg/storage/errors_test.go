package storage

import (
	"errors"
	"net/http"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"blob not found", &azcore.ResponseError{ErrorCode: "BlobNotFound", StatusCode: http.StatusNotFound}, ErrNotFound},
		{"throttled", &azcore.ResponseError{ErrorCode: "ServerBusy", StatusCode: http.StatusTooManyRequests}, ErrUnavailable},
		{"server error", &azcore.ResponseError{ErrorCode: "InternalError", StatusCode: http.StatusInternalServerError}, ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify("download", "docs/a.pdf", tt.err); !errors.Is(got, tt.want) {
				t.Errorf("classify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyPassthrough(t *testing.T) {
	cause := errors.New("connection refused")
	got := classify("upload", "docs/a.pdf", cause)
	if !errors.Is(got, cause) {
		t.Fatalf("classify = %v, want wrapped %v", got, cause)
	}
	if errors.Is(got, ErrUnavailable) || errors.Is(got, ErrNotFound) {
		t.Errorf("transport error classified as sentinel: %v", got)
	}
}
