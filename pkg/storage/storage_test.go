package storage_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/JaimeStill/recognition/pkg/storage"
)

func TestConfigFinalize(t *testing.T) {
	t.Setenv("TEST_STORAGE_URL", "https://acct.blob.core.windows.net")

	cfg := storage.Config{}
	if err := cfg.Finalize(&storage.Env{AccountURL: "TEST_STORAGE_URL"}); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if cfg.ContainerName != "recognitions" {
		t.Errorf("container = %q, want recognitions", cfg.ContainerName)
	}
	if cfg.AccountURL != "https://acct.blob.core.windows.net" {
		t.Errorf("account url = %q", cfg.AccountURL)
	}

	empty := storage.Config{}
	if err := empty.Finalize(nil); err == nil {
		t.Error("expected error without connection string or account url")
	}
}

func TestConfigMerge(t *testing.T) {
	cfg := storage.Config{ContainerName: "a", ConnectionString: "base"}
	cfg.Merge(&storage.Config{ContainerName: "b"})

	if cfg.ContainerName != "b" || cfg.ConnectionString != "base" {
		t.Errorf("merge = %+v", cfg)
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemory()

	if err := m.Upload(ctx, "recognitions/1/a.pdf", strings.NewReader("pdf"), "application/pdf"); err != nil {
		t.Fatalf("upload: %v", err)
	}

	ok, err := m.Exists(ctx, "recognitions/1/a.pdf")
	if err != nil || !ok {
		t.Fatalf("exists = %v, %v", ok, err)
	}

	rc, err := m.Download(ctx, "recognitions/1/a.pdf")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "pdf" {
		t.Errorf("data = %q, want pdf", data)
	}
	if ct := m.ContentType("recognitions/1/a.pdf"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}

	if err := m.Delete(ctx, "recognitions/1/a.pdf"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := m.Delete(ctx, "recognitions/1/a.pdf"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

func TestKeyValidation(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemory()

	tests := []struct {
		name string
		key  string
		want error
	}{
		{"empty", "", storage.ErrEmptyKey},
		{"traversal", "recognitions/../secrets", storage.ErrInvalidKey},
		{"dots in name", "recognitions/1/scan..v2.pdf", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.Upload(ctx, tt.key, strings.NewReader("x"), "text/plain")
			if !errors.Is(err, tt.want) {
				t.Errorf("Upload(%q) = %v, want %v", tt.key, err, tt.want)
			}
		})
	}
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{storage.ErrNotFound, http.StatusNotFound},
		{storage.ErrEmptyKey, http.StatusBadRequest},
		{storage.ErrInvalidKey, http.StatusBadRequest},
		{fmt.Errorf("upload: %w", storage.ErrUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := storage.MapHTTPStatus(tt.err); got != tt.want {
			t.Errorf("MapHTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
