package masterdata_test

import (
	"testing"
	"time"

	"github.com/JaimeStill/recognition/internal/masterdata"
)

func TestConfigDefaults(t *testing.T) {
	cfg := &masterdata.Config{}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatal(err)
	}

	if cfg.SuccessCode != 200 || cfg.ChunkSize != 500 || cfg.Concurrency != 1 {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.TimeoutDuration() != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", cfg.TimeoutDuration())
	}
}

func TestConfigEnv(t *testing.T) {
	t.Setenv("TEST_MD_URL", "https://md.example.com")
	t.Setenv("TEST_MD_CHUNK", "100")
	t.Setenv("TEST_MD_CONCURRENCY", "4")
	t.Setenv("TEST_MD_ARCHIVE", "true")

	cfg := &masterdata.Config{}
	env := &masterdata.Env{
		BaseURL:     "TEST_MD_URL",
		ChunkSize:   "TEST_MD_CHUNK",
		Concurrency: "TEST_MD_CONCURRENCY",
		Archive:     "TEST_MD_ARCHIVE",
	}
	if err := cfg.Finalize(env); err != nil {
		t.Fatal(err)
	}

	if cfg.BaseURL != "https://md.example.com" || cfg.ChunkSize != 100 || cfg.Concurrency != 4 || !cfg.Archive {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  masterdata.Config
	}{
		{"relative url", masterdata.Config{BaseURL: "md.local/api"}},
		{"bad success code", masterdata.Config{SuccessCode: 42}},
		{"negative chunk", masterdata.Config{ChunkSize: -5}},
		{"negative concurrency", masterdata.Config{Concurrency: -1}},
		{"bad timeout", masterdata.Config{Timeout: "soon"}},
		{"zero timeout", masterdata.Config{Timeout: "0s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Finalize(nil); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestConfigMerge(t *testing.T) {
	base := &masterdata.Config{BaseURL: "https://a.example.com", ChunkSize: 100, Timeout: "10s"}
	base.Merge(&masterdata.Config{ChunkSize: 50, Archive: true})

	if base.BaseURL != "https://a.example.com" || base.ChunkSize != 50 || base.Timeout != "10s" || !base.Archive {
		t.Errorf("merged = %+v", base)
	}
}
