package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr/nip19"
)

const testPubkey = "669ebbcccf409ee0467a33660ae88fd17e5379e646e41d7c236ff4963f3c36b6"

func validConfig() *Config {
	cfg := Default()
	cfg.Identity.Author = testPubkey
	cfg.Relays.Seeds = []string{"wss://relay.test"}
	cfg.Webhook.URL = "http://127.0.0.1:8090/cyber_herd"
	return cfg
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "herdwatch.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
identity:
  author: `+testPubkey+`
relays:
  seeds: ["wss://relay.test"]
webhook:
  url: http://localhost:8090/cyber_herd
enrichment:
  validate_lud16: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Watch.Tags[0] != "CyberHerd" {
		t.Errorf("expected default tag CyberHerd, got %v", cfg.Watch.Tags)
	}
	if cfg.Watch.ReconnectBackoff() != 30*time.Second {
		t.Errorf("expected 30s backoff, got %v", cfg.Watch.ReconnectBackoff())
	}
	if cfg.Webhook.Timeout() != 10*time.Second {
		t.Errorf("expected 10s webhook timeout, got %v", cfg.Webhook.Timeout())
	}
	if cfg.Enrichment.MinZapSats != 10 {
		t.Errorf("expected min zap 10, got %d", cfg.Enrichment.MinZapSats)
	}
	if cfg.Enrichment.ValidateLUD16 {
		t.Error("expected validate_lud16 to be overridden to false")
	}
	if cfg.Decoder.Mode != "auto" {
		t.Errorf("expected decoder mode auto, got %s", cfg.Decoder.Mode)
	}
}

func TestLoadKeepsExplicitZeroMinZap(t *testing.T) {
	path := writeConfig(t, `
identity:
  author: `+testPubkey+`
relays:
  seeds: ["wss://relay.test"]
webhook:
  url: http://localhost:8090/cyber_herd
enrichment:
  min_zap_sats: 0
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Enrichment.MinZapSats != 0 {
		t.Errorf("expected min zap 0 to be kept, got %d", cfg.Enrichment.MinZapSats)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
identity:
  author: `+testPubkey+`
relays:
  seeds: ["wss://relay.test"]
webhook:
  url: http://localhost:8090/cyber_herd
`)

	t.Setenv("HERDWATCH_WEBHOOK_URL", "https://scores.test/herd")
	t.Setenv("HERDWATCH_RELAYS", "wss://a.test, wss://b.test")
	t.Setenv("HERDWATCH_DECODER_API_KEY", "secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Webhook.URL != "https://scores.test/herd" {
		t.Errorf("webhook override not applied: %s", cfg.Webhook.URL)
	}
	if len(cfg.Relays.Seeds) != 2 || cfg.Relays.Seeds[1] != "wss://b.test" {
		t.Errorf("relay override not applied: %v", cfg.Relays.Seeds)
	}
	if cfg.Decoder.APIKey != "secret" {
		t.Errorf("api key override not applied")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "missing author",
			mutate:  func(c *Config) { c.Identity.Author = "" },
			wantErr: "identity.author is required",
		},
		{
			name:    "bad author",
			mutate:  func(c *Config) { c.Identity.Author = "not-a-key" },
			wantErr: "identity.author",
		},
		{
			name:    "no tags",
			mutate:  func(c *Config) { c.Watch.Tags = nil },
			wantErr: "watch tag",
		},
		{
			name:    "no relays",
			mutate:  func(c *Config) { c.Relays.Seeds = nil },
			wantErr: "relay seed is required",
		},
		{
			name:    "http relay",
			mutate:  func(c *Config) { c.Relays.Seeds = []string{"https://relay.test"} },
			wantErr: "ws:// or wss://",
		},
		{
			name:    "missing webhook",
			mutate:  func(c *Config) { c.Webhook.URL = "" },
			wantErr: "webhook.url is required",
		},
		{
			name:    "non-http webhook",
			mutate:  func(c *Config) { c.Webhook.URL = "ftp://x" },
			wantErr: "http(s)",
		},
		{
			name:    "api decoder without url",
			mutate:  func(c *Config) { c.Decoder.Mode = "api" },
			wantErr: "decoder.url",
		},
		{
			name:    "unknown decoder mode",
			mutate:  func(c *Config) { c.Decoder.Mode = "magic" },
			wantErr: "invalid decoder mode",
		},
		{
			name:    "zero backoff",
			mutate:  func(c *Config) { c.Watch.ReconnectBackoffMs = 0 },
			wantErr: "reconnect_backoff_ms must be positive",
		},
		{
			name:    "unknown timezone",
			mutate:  func(c *Config) { c.Watch.Timezone = "Mars/Olympus_Mons" },
			wantErr: "invalid watch.timezone",
		},
		{
			name:   "named timezone",
			mutate: func(c *Config) { c.Watch.Timezone = "UTC" },
		},
		{
			name:   "zero min zap",
			mutate: func(c *Config) { c.Enrichment.MinZapSats = 0 },
		},
		{
			name:    "bad stats schedule",
			mutate:  func(c *Config) { c.Ops.StatsSchedule = "sometimes" },
			wantErr: "ops.stats_schedule",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestIdentityPubkeys(t *testing.T) {
	npub, err := nip19.EncodePublicKey(testPubkey)
	if err != nil {
		t.Fatalf("failed to encode npub: %v", err)
	}

	id := Identity{Author: npub}
	author, err := id.AuthorPubkey()
	if err != nil {
		t.Fatalf("AuthorPubkey() error = %v", err)
	}
	if author != testPubkey {
		t.Errorf("expected %s, got %s", testPubkey, author)
	}

	self, err := id.SelfPubkey()
	if err != nil {
		t.Fatalf("SelfPubkey() error = %v", err)
	}
	if self != testPubkey {
		t.Errorf("self should default to author, got %s", self)
	}
}

func TestGetExampleConfig(t *testing.T) {
	data, err := GetExampleConfig()
	if err != nil {
		t.Fatalf("GetExampleConfig() error = %v", err)
	}
	if !strings.Contains(string(data), "webhook:") {
		t.Error("example config should document the webhook section")
	}
}
