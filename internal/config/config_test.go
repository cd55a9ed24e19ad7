package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NATS_INGEST_SUBJECT", "")
	t.Setenv("NATS_QUERY_SUBJECT", "")
	t.Setenv("VISION_ENABLED", "")
	t.Setenv("EMBED_REQUESTS_PER_SECOND", "")
	t.Setenv("INGEST_CONCURRENCY", "")

	cfg := Load()
	if cfg.NATSIngestSubject != "documents.ingest" {
		t.Fatalf("expected default ingest subject, got %q", cfg.NATSIngestSubject)
	}
	if cfg.NATSQuerySubject != "queries.execute" {
		t.Fatalf("expected default query subject, got %q", cfg.NATSQuerySubject)
	}
	if !cfg.VisionEnabled {
		t.Fatalf("expected vision enabled by default")
	}
	if cfg.EmbedRequestsPerSecond != 5 {
		t.Fatalf("expected default embed rate 5, got %d", cfg.EmbedRequestsPerSecond)
	}
	if cfg.IngestConcurrency != 1 {
		t.Fatalf("expected single-document ingestion by default, got %d", cfg.IngestConcurrency)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("VISION_ENABLED", "false")
	t.Setenv("QUERY_CONCURRENCY", "8")
	t.Setenv("CHAT_TIMEOUT_SECONDS", "120")
	t.Setenv("CHAT_TIMEOUT_SECONDS_BAD", "nope")

	cfg := Load()
	if cfg.VisionEnabled {
		t.Fatalf("expected vision disabled")
	}
	if cfg.QueryConcurrency != 8 {
		t.Fatalf("expected query concurrency 8, got %d", cfg.QueryConcurrency)
	}
	if cfg.ChatTimeoutSeconds != 120 {
		t.Fatalf("expected chat timeout 120, got %d", cfg.ChatTimeoutSeconds)
	}
}

func TestLoadFallsBackOnMalformedInt(t *testing.T) {
	t.Setenv("EMBED_TIMEOUT_SECONDS", "not-a-number")

	cfg := Load()
	if cfg.EmbedTimeoutSeconds != 30 {
		t.Fatalf("expected fallback embed timeout 30, got %d", cfg.EmbedTimeoutSeconds)
	}
}
