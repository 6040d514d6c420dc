package config

import (
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

//go:embed example.yaml
var exampleConfig embed.FS

// Config represents the complete herdwatch configuration
type Config struct {
	Identity   Identity   `yaml:"identity"`
	Watch      Watch      `yaml:"watch"`
	Relays     Relays     `yaml:"relays"`
	Webhook    Webhook    `yaml:"webhook"`
	Decoder    Decoder    `yaml:"decoder"`
	Enrichment Enrichment `yaml:"enrichment"`
	Ops        Ops        `yaml:"ops"`
	Tracing    Tracing    `yaml:"tracing"`
	Logging    Logging    `yaml:"logging"`
}

// Identity contains the Nostr identities the watcher works for
type Identity struct {
	Author string `yaml:"author"` // npub or hex; root notes are only taken from this key
	Self   string `yaml:"self"`   // npub or hex; never attributed. Defaults to Author
}

// AuthorPubkey returns the hex pubkey of the watched author
func (i *Identity) AuthorPubkey() (string, error) {
	return decodePubkey(i.Author)
}

// SelfPubkey returns the hex pubkey excluded from attribution
func (i *Identity) SelfPubkey() (string, error) {
	if i.Self == "" {
		return decodePubkey(i.Author)
	}
	return decodePubkey(i.Self)
}

// Watch contains root note subscription settings
type Watch struct {
	Tags               []string `yaml:"tags"`
	ReconnectBackoffMs int      `yaml:"reconnect_backoff_ms"`
	Timezone           string   `yaml:"timezone"` // Location used to compute the daily cutoff
}

// ReconnectBackoff returns the wait between root resubscriptions
func (w *Watch) ReconnectBackoff() time.Duration {
	return time.Duration(w.ReconnectBackoffMs) * time.Millisecond
}

// Location resolves the configured timezone. Validate rejects unknown
// zones, so local time is only used when none is set.
func (w *Watch) Location() *time.Location {
	if w.Timezone == "" || strings.EqualFold(w.Timezone, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Relays contains relay configuration
type Relays struct {
	Seeds  []string    `yaml:"seeds"`
	Policy RelayPolicy `yaml:"policy"`
}

// RelayPolicy contains relay connection policies
type RelayPolicy struct {
	ConnectTimeoutMs int `yaml:"connect_timeout_ms"`
}

// Webhook contains the downstream scorekeeping endpoint
type Webhook struct {
	URL       string `yaml:"url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// Timeout returns the delivery timeout
func (w *Webhook) Timeout() time.Duration {
	return time.Duration(w.TimeoutMs) * time.Millisecond
}

// Decoder contains bolt11 decoding settings
type Decoder struct {
	Mode      string `yaml:"mode"` // api|offline|auto
	URL       string `yaml:"url"`  // Base URL of an LNbits-compatible API
	APIKey    string `yaml:"api_key"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// Timeout returns the decode request timeout
func (d *Decoder) Timeout() time.Duration {
	return time.Duration(d.TimeoutMs) * time.Millisecond
}

// Enrichment contains attribution policy settings
type Enrichment struct {
	MinZapSats      int  `yaml:"min_zap_sats"`
	ValidateLUD16   bool `yaml:"validate_lud16"`
	VerifyNIP05     bool `yaml:"verify_nip05"`
	LookupTimeoutMs int  `yaml:"lookup_timeout_ms"`
}

// LookupTimeout returns the per-call timeout for profile and address lookups
func (e *Enrichment) LookupTimeout() time.Duration {
	return time.Duration(e.LookupTimeoutMs) * time.Millisecond
}

// Ops contains the operational HTTP surface and periodic reporting
type Ops struct {
	Listen        string `yaml:"listen"` // empty disables the ops server
	StatsSchedule string `yaml:"stats_schedule"`
}

// Tracing contains OpenTelemetry export settings
type Tracing struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// Logging contains logging configuration
type Logging struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // text|json
}

// applyDefaults fills in missing configuration fields with sensible defaults
func applyDefaults(cfg *Config) {
	defaults := Default()

	if len(cfg.Watch.Tags) == 0 {
		cfg.Watch.Tags = defaults.Watch.Tags
	}
	if cfg.Relays.Policy.ConnectTimeoutMs == 0 {
		cfg.Relays.Policy.ConnectTimeoutMs = defaults.Relays.Policy.ConnectTimeoutMs
	}
	if cfg.Webhook.TimeoutMs == 0 {
		cfg.Webhook.TimeoutMs = defaults.Webhook.TimeoutMs
	}
	if cfg.Decoder.Mode == "" {
		cfg.Decoder.Mode = defaults.Decoder.Mode
	}
	if cfg.Decoder.TimeoutMs == 0 {
		cfg.Decoder.TimeoutMs = defaults.Decoder.TimeoutMs
	}
	if cfg.Enrichment.LookupTimeoutMs == 0 {
		cfg.Enrichment.LookupTimeoutMs = defaults.Enrichment.LookupTimeoutMs
	}
	if cfg.Ops.StatsSchedule == "" {
		cfg.Ops.StatsSchedule = defaults.Ops.StatsSchedule
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = defaults.Tracing.ServiceName
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}
}

// Load reads and parses a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Defaults first so that booleans left out of the file keep their default
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(cfg)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies HERDWATCH_ environment variable overrides to config
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("HERDWATCH_AUTHOR"); v != "" {
		cfg.Identity.Author = v
	}
	if v := os.Getenv("HERDWATCH_SELF"); v != "" {
		cfg.Identity.Self = v
	}
	if v := os.Getenv("HERDWATCH_RELAYS"); v != "" {
		cfg.Relays.Seeds = splitList(v)
	}
	if v := os.Getenv("HERDWATCH_TAGS"); v != "" {
		cfg.Watch.Tags = splitList(v)
	}
	if v := os.Getenv("HERDWATCH_WEBHOOK_URL"); v != "" {
		cfg.Webhook.URL = v
	}
	if v := os.Getenv("HERDWATCH_DECODER_URL"); v != "" {
		cfg.Decoder.URL = v
	}
	// The API key is the one secret in the file; prefer keeping it in the environment
	if v := os.Getenv("HERDWATCH_DECODER_API_KEY"); v != "" {
		cfg.Decoder.APIKey = v
	}
	if v := os.Getenv("HERDWATCH_OPS_LISTEN"); v != "" {
		cfg.Ops.Listen = v
	}
	if v := os.Getenv("HERDWATCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("HERDWATCH_VALIDATE_LUD16"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("HERDWATCH_VALIDATE_LUD16: %w", err)
		}
		cfg.Enrichment.ValidateLUD16 = b
	}
	if v := os.Getenv("HERDWATCH_TRACING_ENDPOINT"); v != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Endpoint = v
	}

	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// GetExampleConfig returns the embedded example configuration
func GetExampleConfig() ([]byte, error) {
	return exampleConfig.ReadFile("example.yaml")
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Watch: Watch{
			Tags:               []string{"CyberHerd"},
			ReconnectBackoffMs: 30000,
			Timezone:           "Local",
		},
		Relays: Relays{
			Seeds: []string{},
			Policy: RelayPolicy{
				ConnectTimeoutMs: 5000,
			},
		},
		Webhook: Webhook{
			TimeoutMs: 10000,
		},
		Decoder: Decoder{
			Mode:      "auto",
			TimeoutMs: 10000,
		},
		Enrichment: Enrichment{
			MinZapSats:      10,
			ValidateLUD16:   true,
			VerifyNIP05:     false,
			LookupTimeoutMs: 15000,
		},
		Ops: Ops{
			Listen:        "",
			StatsSchedule: "@every 5m",
		},
		Tracing: Tracing{
			Enabled:     false,
			Endpoint:    "localhost:4318",
			ServiceName: "herdwatch",
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// validLogLevels defines allowed log levels
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validDecoderModes defines allowed bolt11 decoder modes
var validDecoderModes = map[string]bool{
	"api":     true,
	"offline": true,
	"auto":    true,
}

// Validate checks if a configuration is valid
func Validate(cfg *Config) error {
	if cfg.Identity.Author == "" {
		return fmt.Errorf("identity.author is required")
	}
	if _, err := cfg.Identity.AuthorPubkey(); err != nil {
		return fmt.Errorf("identity.author: %w", err)
	}
	if _, err := cfg.Identity.SelfPubkey(); err != nil {
		return fmt.Errorf("identity.self: %w", err)
	}

	if len(cfg.Watch.Tags) == 0 {
		return fmt.Errorf("at least one watch tag is required")
	}
	if cfg.Watch.ReconnectBackoffMs <= 0 {
		return fmt.Errorf("watch.reconnect_backoff_ms must be positive")
	}
	if cfg.Watch.Timezone != "" && !strings.EqualFold(cfg.Watch.Timezone, "local") {
		if _, err := time.LoadLocation(cfg.Watch.Timezone); err != nil {
			return fmt.Errorf("invalid watch.timezone %q: %w", cfg.Watch.Timezone, err)
		}
	}

	if len(cfg.Relays.Seeds) == 0 {
		return fmt.Errorf("at least one relay seed is required")
	}
	for _, seed := range cfg.Relays.Seeds {
		if !strings.HasPrefix(seed, "wss://") && !strings.HasPrefix(seed, "ws://") {
			return fmt.Errorf("relay seed must start with ws:// or wss://: %s", seed)
		}
	}

	if cfg.Webhook.URL == "" {
		return fmt.Errorf("webhook.url is required")
	}
	if u, err := url.Parse(cfg.Webhook.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("webhook.url must be an http(s) URL: %s", cfg.Webhook.URL)
	}

	if !validDecoderModes[cfg.Decoder.Mode] {
		return fmt.Errorf("invalid decoder mode: %s (must be one of: api, offline, auto)", cfg.Decoder.Mode)
	}
	if cfg.Decoder.Mode == "api" && cfg.Decoder.URL == "" {
		return fmt.Errorf("decoder.url is required when decoder.mode is api")
	}

	if cfg.Enrichment.MinZapSats < 0 {
		return fmt.Errorf("enrichment.min_zap_sats must not be negative")
	}

	if cfg.Ops.StatsSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Ops.StatsSchedule); err != nil {
			return fmt.Errorf("invalid ops.stats_schedule %q: %w", cfg.Ops.StatsSchedule, err)
		}
	}

	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", cfg.Logging.Level)
	}

	return nil
}

// decodePubkey accepts either an npub or a 64-char hex public key
func decodePubkey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if strings.HasPrefix(key, "npub1") {
		prefix, value, err := nip19.Decode(key)
		if err != nil {
			return "", fmt.Errorf("failed to decode npub: %w", err)
		}
		if prefix != "npub" {
			return "", fmt.Errorf("expected npub, got %s", prefix)
		}
		return value.(string), nil
	}

	if len(key) != 64 {
		return "", fmt.Errorf("pubkey must be an npub or 64 hex characters")
	}
	if _, err := hex.DecodeString(key); err != nil {
		return "", fmt.Errorf("pubkey is not valid hex: %w", err)
	}
	return strings.ToLower(key), nil
}
