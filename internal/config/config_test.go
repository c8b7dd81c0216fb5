package config

import (
	"testing"
	"time"
)

func TestLoadIncludesBulkDefaults(t *testing.T) {
	t.Setenv("SESSION_TTL", "")
	t.Setenv("BULK_PREVIEW_ROWS", "")
	t.Setenv("SQL_UPLOAD_TABLE", "")
	t.Setenv("RESULTS_TABLE_NAME", "")
	t.Setenv("POSTGRES_DSN", "")

	cfg := Load()
	if cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("expected default session ttl 30m, got %s", cfg.SessionTTL)
	}
	if cfg.BulkPreviewRows != 5 {
		t.Fatalf("expected default preview rows 5, got %d", cfg.BulkPreviewRows)
	}
	if cfg.SQLUploadTable != "loan_data" {
		t.Fatalf("expected default sql upload table loan_data, got %q", cfg.SQLUploadTable)
	}
	if cfg.ResultsTableName != "loan_predictions" {
		t.Fatalf("expected default results table loan_predictions, got %q", cfg.ResultsTableName)
	}
	if cfg.HistoryEnabled() {
		t.Fatalf("expected history disabled without POSTGRES_DSN")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("SESSION_TTL", "5m")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("BREAKER_ENABLED", "false")
	t.Setenv("MAX_UPLOAD_BYTES", "1024")
	t.Setenv("SQL_SCRIPT_TIMEOUT", "2s")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/loans")

	cfg := Load()
	if cfg.SessionTTL != 5*time.Minute {
		t.Fatalf("expected session ttl 5m, got %s", cfg.SessionTTL)
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected rate limit 2.5, got %v", cfg.APIRateLimitRPS)
	}
	if cfg.BreakerEnabled {
		t.Fatalf("expected breaker disabled")
	}
	if cfg.MaxUploadBytes != 1024 {
		t.Fatalf("expected max upload 1024, got %d", cfg.MaxUploadBytes)
	}
	if cfg.SQLScriptTimeout != 2*time.Second {
		t.Fatalf("expected sql script timeout 2s, got %s", cfg.SQLScriptTimeout)
	}
	if !cfg.HistoryEnabled() {
		t.Fatalf("expected history enabled with POSTGRES_DSN")
	}
}

func TestLoadFallsBackOnMalformedValues(t *testing.T) {
	t.Setenv("SESSION_TTL", "soon")
	t.Setenv("REDIS_DB", "first")

	cfg := Load()
	if cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("expected fallback session ttl, got %s", cfg.SessionTTL)
	}
	if cfg.RedisDB != 0 {
		t.Fatalf("expected fallback redis db 0, got %d", cfg.RedisDB)
	}
}
