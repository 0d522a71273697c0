// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// DefaultConfig tests
// ---------------------------------------------------------------------------

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"ListenAddr", cfg.ListenAddr, ":8080"},
		{"Network", cfg.Network, "mainnet"},
		{"LogLevel", cfg.LogLevel, "info"},
		{"LogFile", cfg.LogFile, ""},
		{"TrustDomain", cfg.TrustDomain, ""},
		{"StoreTimeout", cfg.StoreTimeout, 10 * time.Second},
		{"MaxUploadSize", cfg.MaxUploadSize, DefaultMaxUploadSize},
		{"AnchorInterval", cfg.AnchorInterval, time.Duration(0)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("got %v, want %v", tc.got, tc.want)
			}
		})
	}

	// DataDir depends on the home directory; only check it is set.
	if cfg.DataDir == "" {
		t.Error("DataDir should not be empty")
	}
	if filepath.Dir(cfg.TrustedKeyFile) != cfg.DataDir {
		t.Errorf("TrustedKeyFile = %q, want it inside %q", cfg.TrustedKeyFile, cfg.DataDir)
	}
}

// ---------------------------------------------------------------------------
// SaveConfig / LoadConfig round-trip tests
// ---------------------------------------------------------------------------

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")

	original := Config{
		DataDir:        "/tmp/test-custody",
		ListenAddr:     ":9000",
		Network:        "testnet",
		LogLevel:       "debug",
		LogFile:        "/tmp/custody.log",
		TrustDomain:    "example.org",
		DNSUpstream:    "1.1.1.1:53",
		StoreTimeout:   3 * time.Second,
		MaxUploadSize:  1024,
		AnchorInterval: 10 * time.Minute,
		AnchorFeeRate:  50,
	}

	if err := SaveConfig(path, original); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"DataDir", loaded.DataDir, original.DataDir},
		{"ListenAddr", loaded.ListenAddr, original.ListenAddr},
		{"Network", loaded.Network, original.Network},
		{"LogLevel", loaded.LogLevel, original.LogLevel},
		{"LogFile", loaded.LogFile, original.LogFile},
		{"TrustedKeyFile", loaded.TrustedKeyFile, original.TrustedKeyFile},
		{"TrustDomain", loaded.TrustDomain, original.TrustDomain},
		{"DNSUpstream", loaded.DNSUpstream, original.DNSUpstream},
		{"StoreTimeout", loaded.StoreTimeout, original.StoreTimeout},
		{"MaxUploadSize", loaded.MaxUploadSize, original.MaxUploadSize},
		{"AnchorInterval", loaded.AnchorInterval, original.AnchorInterval},
		{"AnchorFeeRate", loaded.AnchorFeeRate, original.AnchorFeeRate},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("got %v, want %v", tc.got, tc.want)
			}
		})
	}
}

func TestSaveConfigCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subdir", "config")

	cfg := DefaultConfig()
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig should create parent dirs: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("Config file not created: %v", err)
	}
}

// ---------------------------------------------------------------------------
// LoadConfig error tests
// ---------------------------------------------------------------------------

func TestLoadConfigNotFound(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/config")
	if !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("LoadConfig nonexistent: got %v, want ErrConfigNotFound", err)
	}
}

func TestLoadConfigInvalidLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")

	content := "this-is-not-key-value\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := LoadConfig(path)
	if !errors.Is(err, ErrInvalidConfigLine) {
		t.Errorf("LoadConfig bad line: got %v, want ErrInvalidConfigLine", err)
	}
}

func TestLoadConfigLineForms(t *testing.T) {
	tests := []struct {
		name    string
		content string
		check   func(Config) bool
	}{
		{
			name:    "comments_and_blanks",
			content: "# trust\n\ntrustdomain = custody.example.org\n",
			check:   func(c Config) bool { return c.TrustDomain == "custody.example.org" && c.ListenAddr == ":8080" },
		},
		{
			name:    "value_keeps_later_equals",
			content: "trustedkey=/keys/validator=prod.pub\n",
			check:   func(c Config) bool { return c.TrustedKeyFile == "/keys/validator=prod.pub" },
		},
		{
			name:    "padded_line",
			content: "  dnsupstream =  9.9.9.9:53  \n",
			check:   func(c Config) bool { return c.DNSUpstream == "9.9.9.9:53" },
		},
		{
			name:    "empty_value_clears",
			content: "trustedkey=\n",
			check:   func(c Config) bool { return c.TrustedKeyFile == "" },
		},
		{
			name:    "unknown_keys_ignored",
			content: "replicas = 3\nnetwork = regtest\n",
			check:   func(c Config) bool { return c.Network == "regtest" },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config")
			if err := os.WriteFile(path, []byte(tc.content), 0600); err != nil {
				t.Fatal(err)
			}
			cfg, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("LoadConfig: %v", err)
			}
			if !tc.check(cfg) {
				t.Errorf("LoadConfig(%q) = %+v", tc.content, cfg)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// ValidateConfig tests
// ---------------------------------------------------------------------------

func TestValidateConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("ValidateConfig(DefaultConfig()) = %v, want nil", err)
	}
}

func TestValidateConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{
			name:    "empty_datadir",
			modify:  func(c *Config) { c.DataDir = "" },
			wantErr: ErrEmptyDataDir,
		},
		{
			name:    "bad_network",
			modify:  func(c *Config) { c.Network = "devnet" },
			wantErr: ErrInvalidNetwork,
		},
		{
			name:    "empty_network",
			modify:  func(c *Config) { c.Network = "" },
			wantErr: ErrInvalidNetwork,
		},
		{
			name:    "bad_listen_addr",
			modify:  func(c *Config) { c.ListenAddr = "not-a-valid-addr" },
			wantErr: ErrInvalidListenAddr,
		},
		{
			name:    "empty_listen_addr",
			modify:  func(c *Config) { c.ListenAddr = "" },
			wantErr: ErrInvalidListenAddr,
		},
		{
			name:    "bad_loglevel",
			modify:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: ErrInvalidLogLevel,
		},
		{
			name:    "no_trust_source",
			modify:  func(c *Config) { c.TrustedKeyFile = ""; c.TrustDomain = "" },
			wantErr: ErrNoTrustSource,
		},
		{
			name:    "bad_dns_upstream",
			modify:  func(c *Config) { c.DNSUpstream = "8.8.8.8" },
			wantErr: ErrInvalidListenAddr,
		},
		{
			name:    "zero_store_timeout",
			modify:  func(c *Config) { c.StoreTimeout = 0 },
			wantErr: ErrInvalidLimit,
		},
		{
			name:    "zero_max_upload",
			modify:  func(c *Config) { c.MaxUploadSize = 0 },
			wantErr: ErrInvalidLimit,
		},
		{
			name:    "negative_anchor_interval",
			modify:  func(c *Config) { c.AnchorInterval = -time.Second },
			wantErr: ErrInvalidLimit,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			err := ValidateConfig(cfg)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("ValidateConfig: got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidateConfigAccepts(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"regtest", func(c *Config) { c.Network = "regtest" }},
		{"testnet", func(c *Config) { c.Network = "testnet" }},
		{"mixed_case_loglevel", func(c *Config) { c.LogLevel = "Debug" }},
		{"ipv6_listen", func(c *Config) { c.ListenAddr = "[::1]:8443" }},
		{"dns_trust_only", func(c *Config) { c.TrustedKeyFile = ""; c.TrustDomain = "custody.example.org" }},
		{"anchoring_disabled", func(c *Config) { c.AnchorInterval = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			if err := ValidateConfig(cfg); err != nil {
				t.Errorf("ValidateConfig: %v", err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Paths and saved output
// ---------------------------------------------------------------------------

func TestConfigPath(t *testing.T) {
	got := ConfigPath("/srv/custody")
	want := filepath.Join("/srv/custody", "config")
	if got != want {
		t.Errorf("ConfigPath = %q, want %q", got, want)
	}
	if dir := DefaultDataDir(); !strings.HasSuffix(dir, ".custody") {
		t.Errorf("DefaultDataDir() = %q, want suffix %q", dir, ".custody")
	}
}

func TestSaveConfigWritesEveryKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	if err := SaveConfig(path, DefaultConfig()); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	content := string(data)

	want := []string{
		"datadir", "listen", "network", "loglevel", "logfile", "trustedkey",
		"trustdomain", "dnsupstream", "storetimeout", "maxupload",
		"anchorinterval", "anchorfeerate",
	}
	for _, key := range want {
		if !strings.Contains(content, key+" = ") {
			t.Errorf("saved config should contain key %q", key)
		}
	}
}

// ---------------------------------------------------------------------------
// Typed values and environment overrides
// ---------------------------------------------------------------------------

func TestLoadConfig_TypedValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")

	content := "storetimeout = 250ms\nmaxupload = 2048\nanchorinterval = 1h\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.StoreTimeout != 250*time.Millisecond {
		t.Errorf("StoreTimeout = %v, want 250ms", cfg.StoreTimeout)
	}
	if cfg.MaxUploadSize != 2048 {
		t.Errorf("MaxUploadSize = %d, want 2048", cfg.MaxUploadSize)
	}
	if cfg.AnchorInterval != time.Hour {
		t.Errorf("AnchorInterval = %v, want 1h", cfg.AnchorInterval)
	}
}

func TestLoadConfig_InvalidTypedValue(t *testing.T) {
	for _, content := range []string{"storetimeout = soon\n", "maxupload = big\n", "anchorfeerate = -1\n"} {
		t.Run(strings.TrimSpace(content), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config")
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				t.Fatal(err)
			}
			_, err := LoadConfig(path)
			if !errors.Is(err, ErrInvalidConfigValue) {
				t.Errorf("LoadConfig: got %v, want ErrInvalidConfigValue", err)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	env := map[string]string{
		"CUSTODY_LISTEN":        "127.0.0.1:9999",
		"CUSTODY_TRUST_DOMAIN":  "custody.example",
		"CUSTODY_STORE_TIMEOUT": "2s",
		"CUSTODY_LOGLEVEL":      "",
		"UNRELATED":             "x",
	}
	if err := ApplyEnv(&cfg, env); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9999" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.TrustDomain != "custody.example" {
		t.Errorf("TrustDomain = %q", cfg.TrustDomain)
	}
	if cfg.StoreTimeout != 2*time.Second {
		t.Errorf("StoreTimeout = %v", cfg.StoreTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("empty variable should not override: LogLevel = %q", cfg.LogLevel)
	}
}

func TestApplyEnv_InvalidValue(t *testing.T) {
	cfg := DefaultConfig()
	err := ApplyEnv(&cfg, map[string]string{"CUSTODY_MAX_UPLOAD": "lots"})
	if !errors.Is(err, ErrInvalidConfigValue) {
		t.Errorf("ApplyEnv: got %v, want ErrInvalidConfigValue", err)
	}
	if !strings.Contains(err.Error(), "CUSTODY_MAX_UPLOAD") {
		t.Errorf("error should name the variable: %v", err)
	}
}

func TestEnviron(t *testing.T) {
	t.Setenv("CUSTODY_TEST_ENVIRON", "a=b")
	env := Environ()
	if env["CUSTODY_TEST_ENVIRON"] != "a=b" {
		t.Errorf("Environ()[CUSTODY_TEST_ENVIRON] = %q, want %q", env["CUSTODY_TEST_ENVIRON"], "a=b")
	}
}
