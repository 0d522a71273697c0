// Command custodyd runs the file custody service.
//
// Usage:
//
//	custodyd [-datadir dir] [-config file] [-listen addr]   serve the HTTP API
//	custodyd -init                                          write a default config
//	custodyd -bootstrap -key validator.pem                  write the genesis block
//	custodyd -issue-token -key validator.pem [-ttl 24h]     print a bearer token
//	custodyd -print-dns-record -key validator.pem           print the trust TXT record
//
// Secrets are read from the environment only: CUSTODY_TOKEN_SECRET signs and
// verifies bearer tokens, CUSTODY_ANCHOR_KEY funds tip anchoring and
// CUSTODY_RPC_URL/USER/PASS reach the node.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"

	"github.com/bitfsorg/custody-go/anchor"
	"github.com/bitfsorg/custody-go/authority"
	"github.com/bitfsorg/custody-go/config"
	"github.com/bitfsorg/custody-go/custody"
	"github.com/bitfsorg/custody-go/httpapi"
	"github.com/bitfsorg/custody-go/index"
	"github.com/bitfsorg/custody-go/ledger"
	"github.com/bitfsorg/custody-go/network"
	"github.com/bitfsorg/custody-go/storage"
	"github.com/bitfsorg/custody-go/token"
)

const (
	envTokenSecret = "CUSTODY_TOKEN_SECRET"
	envAnchorKey   = "CUSTODY_ANCHOR_KEY"
)

type options struct {
	dataDir    string
	configFile string
	listen     string
	logLevel   string
	keyFile    string
	subject    string
	ttl        time.Duration

	initConfig     bool
	bootstrap      bool
	issueToken     bool
	printDNSRecord bool
}

func main() {
	var o options
	flag.StringVar(&o.dataDir, "datadir", config.DefaultDataDir(), "data directory")
	flag.StringVar(&o.configFile, "config", "", "config file (default <datadir>/config)")
	flag.StringVar(&o.listen, "listen", "", "HTTP listen address, overrides the config")
	flag.StringVar(&o.logLevel, "loglevel", "", "log level, overrides the config")
	flag.StringVar(&o.keyFile, "key", "", "validator private key (PEM or OpenSSH)")
	flag.StringVar(&o.subject, "subject", "operator", "subject of an issued token")
	flag.DurationVar(&o.ttl, "ttl", 24*time.Hour, "lifetime of an issued token")
	flag.BoolVar(&o.initConfig, "init", false, "write a default config file and exit")
	flag.BoolVar(&o.bootstrap, "bootstrap", false, "write the genesis block and exit")
	flag.BoolVar(&o.issueToken, "issue-token", false, "print a bearer token for -key and exit")
	flag.BoolVar(&o.printDNSRecord, "print-dns-record", false, "print the validator TXT record for -key and exit")
	flag.Parse()

	if err := run(o, config.Environ()); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func run(o options, env map[string]string) error {
	configFile := o.configFile
	if configFile == "" {
		configFile = config.ConfigPath(o.dataDir)
	}

	if o.initConfig {
		cfg := config.DefaultConfig()
		cfg.DataDir = o.dataDir
		cfg.TrustedKeyFile = filepath.Join(o.dataDir, "validator.pub")
		if err := config.SaveConfig(configFile, cfg); err != nil {
			return err
		}
		pterm.Success.Printfln("Wrote %s", configFile)
		return nil
	}

	switch {
	case o.issueToken:
		return issueToken(o, env)
	case o.printDNSRecord:
		return printDNSRecord(o)
	}

	cfg, err := loadConfig(o, configFile, env)
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := openDaemon(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.close()

	if o.bootstrap {
		return bootstrap(ctx, d.ledger, o.keyFile, logger)
	}
	return serve(ctx, cfg, d, env, logger)
}

// loadConfig layers defaults, the config file, CUSTODY_* variables and
// flags, then validates the result.
func loadConfig(o options, path string, env map[string]string) (config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if errors.Is(err, config.ErrConfigNotFound) {
		cfg = config.DefaultConfig()
		cfg.DataDir = o.dataDir
		cfg.TrustedKeyFile = filepath.Join(o.dataDir, "validator.pub")
	} else if err != nil {
		return cfg, err
	}
	if err := config.ApplyEnv(&cfg, env); err != nil {
		return cfg, err
	}
	if o.listen != "" {
		cfg.ListenAddr = o.listen
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var logLevels = map[string]pterm.LogLevel{
	"debug": pterm.LogLevelDebug,
	"info":  pterm.LogLevelInfo,
	"warn":  pterm.LogLevelWarn,
	"error": pterm.LogLevelError,
}

// newLogger builds the pterm-backed slog logger. With a log file configured,
// output goes to both stderr and the file.
func newLogger(cfg config.Config) (*slog.Logger, func(), error) {
	var w io.Writer = os.Stderr
	closeFn := func() {}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closeFn = func() { _ = f.Close() }
	}
	plogger := pterm.DefaultLogger.
		WithLevel(logLevels[strings.ToLower(cfg.LogLevel)]).
		WithWriter(w)
	logger := slog.New(pterm.NewSlogHandler(plogger))
	slog.SetDefault(logger)
	return logger, closeFn, nil
}

// daemon holds the opened stores and the services built on them.
type daemon struct {
	blocks *ledger.BoltStore
	index  *index.LevelIndex
	blobs  *storage.FileStore
	ledger *ledger.Ledger
}

func openDaemon(ctx context.Context, cfg config.Config, logger *slog.Logger) (*daemon, error) {
	d := &daemon{}
	var err error
	if d.blocks, err = ledger.OpenBoltStore(filepath.Join(cfg.DataDir, "ledger.db")); err != nil {
		return nil, err
	}
	if d.index, err = index.OpenLevelIndex(filepath.Join(cfg.DataDir, "index")); err != nil {
		d.close()
		return nil, err
	}
	if d.blobs, err = storage.NewFileStore(filepath.Join(cfg.DataDir, "blobs"), cfg.MaxUploadSize); err != nil {
		d.close()
		return nil, err
	}

	policy, err := authority.NewSingleValidator(ctx, trustStore(cfg))
	if err != nil {
		d.close()
		return nil, fmt.Errorf("load trusted validator key: %w", err)
	}
	logger.Info("trusted validator key loaded", "source", trustSource(cfg))

	d.ledger, err = ledger.New(d.blocks, d.index, policy,
		ledger.WithStoreTimeout(cfg.StoreTimeout),
		ledger.WithLogger(logger))
	if err != nil {
		d.close()
		return nil, err
	}
	return d, nil
}

func (d *daemon) close() {
	if d.index != nil {
		_ = d.index.Close()
	}
	if d.blocks != nil {
		_ = d.blocks.Close()
	}
}

func trustStore(cfg config.Config) authority.TrustStore {
	if cfg.TrustDomain != "" {
		return authority.NewDNSTrustStore(cfg.TrustDomain, authority.NewDNSSECResolver(cfg.DNSUpstream))
	}
	return authority.NewFileTrustStore(cfg.TrustedKeyFile)
}

func trustSource(cfg config.Config) string {
	if cfg.TrustDomain != "" {
		return "dns:" + authority.RecordName(cfg.TrustDomain)
	}
	return "file:" + cfg.TrustedKeyFile
}

func readKeyFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("-key is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read key: %w", err)
	}
	return string(data), nil
}

func bootstrap(ctx context.Context, l *ledger.Ledger, keyFile string, logger *slog.Logger) error {
	key, err := readKeyFile(keyFile)
	if err != nil {
		return err
	}
	receipt, err := l.Bootstrap(ctx, key)
	if err != nil {
		return err
	}
	logger.Info("genesis block written", "block_hash", receipt.Hash, "outcome", receipt.Outcome.String())
	pterm.Success.Printfln("Genesis block %s", receipt.Hash)
	return nil
}

func issueToken(o options, env map[string]string) error {
	secret := env[envTokenSecret]
	if secret == "" {
		return fmt.Errorf("%s is not set", envTokenSecret)
	}
	key, err := readKeyFile(o.keyFile)
	if err != nil {
		return err
	}
	if _, err := authority.ParsePrivateKey(key); err != nil {
		return err
	}
	tok, err := token.Issue([]byte(secret), key, o.subject, o.ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

func printDNSRecord(o options) error {
	key, err := readKeyFile(o.keyFile)
	if err != nil {
		return err
	}
	pub, err := authority.DerivePublicKey(key)
	if err != nil {
		return err
	}
	record, err := authority.FormatValidatorRecord(pub)
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%s\n", authority.ValidatorRecordPrefix+".<domain>", record)
	return nil
}

func serve(ctx context.Context, cfg config.Config, d *daemon, env map[string]string, logger *slog.Logger) error {
	secret := env[envTokenSecret]
	if secret == "" {
		return fmt.Errorf("%s is not set", envTokenSecret)
	}
	verifier, err := token.NewHMACVerifier([]byte(secret), 30*time.Second)
	if err != nil {
		return err
	}
	svc, err := custody.New(d.ledger, d.index, d.blobs, verifier, logger)
	if err != nil {
		return err
	}

	apiOpts := []httpapi.Option{
		httpapi.WithMaxUploadSize(cfg.MaxUploadSize),
		httpapi.WithLogger(logger),
	}
	anchorer, err := newAnchorer(cfg, d.ledger, env, logger)
	if err != nil {
		return err
	}
	if anchorer != nil {
		apiOpts = append(apiOpts, httpapi.WithAnchors(anchorer))
		go func() {
			if err := anchorer.Run(ctx, cfg.AnchorInterval); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("anchoring stopped", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpapi.New(svc, d.ledger, apiOpts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	pterm.Info.Printfln("Custody service listening on %s", cfg.ListenAddr)
	logger.Info("http server started", "addr", cfg.ListenAddr, "datadir", cfg.DataDir)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newAnchorer returns nil when anchoring is disabled.
func newAnchorer(cfg config.Config, l *ledger.Ledger, env map[string]string, logger *slog.Logger) (*anchor.Anchorer, error) {
	if cfg.AnchorInterval == 0 {
		return nil, nil
	}
	rawKey := env[envAnchorKey]
	if rawKey == "" {
		logger.Warn("anchoring disabled: no funding key", "env", envAnchorKey)
		return nil, nil
	}
	key, err := anchor.ParseKey(rawKey)
	if err != nil {
		return nil, err
	}
	rpcCfg, err := network.ResolveConfig(nil, env, cfg.Network)
	if err != nil {
		return nil, err
	}
	a, err := anchor.NewAnchorer(l, network.NewRPCClient(*rpcCfg), key,
		anchor.WithFeeRate(cfg.AnchorFeeRate),
		anchor.WithMainnet(cfg.Network == "mainnet"),
		anchor.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	logger.Info("anchoring enabled", "address", a.Address(), "network", cfg.Network, "interval", cfg.AnchorInterval)
	return a, nil
}
