package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTPPort != "3000" {
		t.Errorf("HTTPPort = %q, want 3000", cfg.HTTPPort)
	}
	if cfg.BibTeXFile != "/data/input.bib" {
		t.Errorf("BibTeXFile = %q", cfg.BibTeXFile)
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Errorf("MaxUploadBytes = %d, want 10 MiB", cfg.MaxUploadBytes)
	}
	if cfg.RateLimitRequests != 100 || cfg.RateLimitWindow != 15*time.Minute {
		t.Errorf("rate limit = %d per %s", cfg.RateLimitRequests, cfg.RateLimitWindow)
	}
	if !reflect.DeepEqual(cfg.CORSAllowedOrigins, []string{"*"}) {
		t.Errorf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
	if cfg.PersistenceEnabled() || cfg.ArchiveEnabled() {
		t.Error("persistence and archive should be off by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("BIBTEX_FILE", "/tmp/pubs.bib")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("RATE_LIMIT_WINDOW", "1m")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "bib")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "pubs")
	t.Setenv("S3_URL", "https://s3.example")
	t.Setenv("S3_BUCKET", "bibs")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTPPort != "8080" || cfg.BibTeXFile != "/tmp/pubs.bib" {
		t.Errorf("cfg = %+v", cfg)
	}
	if want := []string{"https://a.example", "https://b.example"}; !reflect.DeepEqual(cfg.CORSAllowedOrigins, want) {
		t.Errorf("CORSAllowedOrigins = %v, want %v", cfg.CORSAllowedOrigins, want)
	}
	if cfg.RateLimitWindow != time.Minute {
		t.Errorf("RateLimitWindow = %s", cfg.RateLimitWindow)
	}
	if !cfg.PersistenceEnabled() || !cfg.ArchiveEnabled() {
		t.Error("persistence and archive should be on")
	}
	if want := "host=db user=bib password=secret dbname=pubs port=5432 sslmode=disable"; cfg.DSN() != want {
		t.Errorf("DSN() = %q, want %q", cfg.DSN(), want)
	}
}

func TestLoad_RejectsInvalidLimits(t *testing.T) {
	t.Setenv("MAX_UPLOAD_BYTES", "0")
	if _, err := Load(); err == nil {
		t.Error("Load() should reject a zero upload limit")
	}
}
