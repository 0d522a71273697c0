// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

// Package config loads the custody daemon configuration from a key = value
// file with CUSTODY_* environment overrides.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the daemon settings. Secrets (token secret, anchor key, RPC
// credentials) are never read from the file.
type Config struct {
	DataDir        string
	ListenAddr     string
	Network        string
	LogLevel       string
	LogFile        string
	TrustedKeyFile string
	TrustDomain    string
	DNSUpstream    string
	StoreTimeout   time.Duration
	MaxUploadSize  int64
	AnchorInterval time.Duration // zero disables anchoring
	AnchorFeeRate  uint64        // sat/KB
}

// Defaults for the numeric settings.
const (
	DefaultStoreTimeout  = 10 * time.Second
	DefaultMaxUploadSize = int64(64 << 20)
	DefaultAnchorFeeRate = uint64(1)
)

// DefaultDataDir returns ~/.custody, or .custody when the home directory is
// unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".custody"
	}
	return filepath.Join(home, ".custody")
}

// DefaultConfig returns the settings used for keys missing from the file.
func DefaultConfig() Config {
	dataDir := DefaultDataDir()
	return Config{
		DataDir:        dataDir,
		ListenAddr:     ":8080",
		Network:        "mainnet",
		LogLevel:       "info",
		TrustedKeyFile: filepath.Join(dataDir, "validator.pub"),
		StoreTimeout:   DefaultStoreTimeout,
		MaxUploadSize:  DefaultMaxUploadSize,
		AnchorFeeRate:  DefaultAnchorFeeRate,
	}
}

// ConfigPath returns the config file location inside dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(filepath.Clean(dataDir), "config")
}

// keys maps file keys to setters. Order is the SaveConfig output order.
var keys = []struct {
	name string
	set  func(*Config, string) error
	get  func(Config) string
}{
	{"datadir", func(c *Config, v string) error { c.DataDir = v; return nil }, func(c Config) string { return c.DataDir }},
	{"listen", func(c *Config, v string) error { c.ListenAddr = v; return nil }, func(c Config) string { return c.ListenAddr }},
	{"network", func(c *Config, v string) error { c.Network = v; return nil }, func(c Config) string { return c.Network }},
	{"loglevel", func(c *Config, v string) error { c.LogLevel = v; return nil }, func(c Config) string { return c.LogLevel }},
	{"logfile", func(c *Config, v string) error { c.LogFile = v; return nil }, func(c Config) string { return c.LogFile }},
	{"trustedkey", func(c *Config, v string) error { c.TrustedKeyFile = v; return nil }, func(c Config) string { return c.TrustedKeyFile }},
	{"trustdomain", func(c *Config, v string) error { c.TrustDomain = v; return nil }, func(c Config) string { return c.TrustDomain }},
	{"dnsupstream", func(c *Config, v string) error { c.DNSUpstream = v; return nil }, func(c Config) string { return c.DNSUpstream }},
	{"storetimeout", durationSetter(func(c *Config) *time.Duration { return &c.StoreTimeout }), func(c Config) string { return c.StoreTimeout.String() }},
	{"maxupload", func(c *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		c.MaxUploadSize = n
		return nil
	}, func(c Config) string { return strconv.FormatInt(c.MaxUploadSize, 10) }},
	{"anchorinterval", durationSetter(func(c *Config) *time.Duration { return &c.AnchorInterval }), func(c Config) string { return c.AnchorInterval.String() }},
	{"anchorfeerate", func(c *Config, v string) error {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return err
		}
		c.AnchorFeeRate = n
		return nil
	}, func(c Config) string { return strconv.FormatUint(c.AnchorFeeRate, 10) }},
}

func durationSetter(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		if v == "" {
			*field(c) = 0
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

// set applies value to the setting named key. Unknown keys are ignored.
func set(cfg *Config, key, value string) error {
	for _, k := range keys {
		if k.name != key {
			continue
		}
		if err := k.set(cfg, value); err != nil {
			return fmt.Errorf("%w: %s = %q: %w", ErrInvalidConfigValue, key, value, err)
		}
		return nil
	}
	return nil
}

// LoadConfig reads path on top of DefaultConfig. Blank lines and lines
// starting with # are skipped; unknown keys are ignored.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}
	if err != nil {
		return cfg, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := parseKeyValue(line)
		if !ok {
			return cfg, fmt.Errorf("%w: line %d: %q", ErrInvalidConfigLine, lineNo, line)
		}
		if err := set(&cfg, key, value); err != nil {
			return cfg, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	return cfg, nil
}

// parseKeyValue splits "key = value" on the first '='.
func parseKeyValue(line string) (string, string, bool) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", false
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return "", "", false
	}
	return key, strings.TrimSpace(value), true
}

// SaveConfig writes cfg to path, creating parent directories.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	var b strings.Builder
	b.WriteString("# Custody Configuration\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "%s = %s\n", k.name, k.get(cfg))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Environment variables read by ApplyEnv, keyed by the file key they override.
var envKeys = map[string]string{
	"CUSTODY_DATADIR":         "datadir",
	"CUSTODY_LISTEN":          "listen",
	"CUSTODY_NETWORK":         "network",
	"CUSTODY_LOGLEVEL":        "loglevel",
	"CUSTODY_LOGFILE":         "logfile",
	"CUSTODY_TRUSTED_KEY":     "trustedkey",
	"CUSTODY_TRUST_DOMAIN":    "trustdomain",
	"CUSTODY_DNS_UPSTREAM":    "dnsupstream",
	"CUSTODY_STORE_TIMEOUT":   "storetimeout",
	"CUSTODY_MAX_UPLOAD":      "maxupload",
	"CUSTODY_ANCHOR_INTERVAL": "anchorinterval",
	"CUSTODY_ANCHOR_FEE_RATE": "anchorfeerate",
}

// ApplyEnv overrides cfg with non-empty CUSTODY_* variables from env.
func ApplyEnv(cfg *Config, env map[string]string) error {
	for name, key := range envKeys {
		v, ok := env[name]
		if !ok || v == "" {
			continue
		}
		if err := set(cfg, key, v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Environ returns the process environment as a map for ApplyEnv.
func Environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}
