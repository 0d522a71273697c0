package network

import (
	"fmt"
	"time"
)

// Environment variables read by ResolveConfig.
const (
	EnvRPCURL  = "CUSTODY_RPC_URL"
	EnvRPCUser = "CUSTODY_RPC_USER"
	EnvRPCPass = "CUSTODY_RPC_PASS"
)

// RPCConfig holds the connection parameters for a node's JSON-RPC interface.
type RPCConfig struct {
	URL      string        `json:"url"`
	User     string        `json:"user"`
	Password string        `json:"password"`
	Network  string        `json:"network"`
	Timeout  time.Duration `json:"timeout"`
}

// NetworkPresets holds local-node defaults. Mainnet has none on purpose.
var NetworkPresets = map[string]RPCConfig{
	"regtest": {URL: "http://localhost:18332", User: "custody", Password: "custody"},
	"testnet": {URL: "http://localhost:18333", User: "custody", Password: "custody"},
}

// ResolveConfig layers presets < environment < flags and requires a URL.
func ResolveConfig(flags *RPCConfig, env map[string]string, network string) (*RPCConfig, error) {
	result := RPCConfig{Network: network}
	if preset, ok := NetworkPresets[network]; ok {
		result = preset
		result.Network = network
	}

	if v := env[EnvRPCURL]; v != "" {
		result.URL = v
	}
	if v := env[EnvRPCUser]; v != "" {
		result.User = v
	}
	if v := env[EnvRPCPass]; v != "" {
		result.Password = v
	}

	if flags != nil {
		if flags.URL != "" {
			result.URL = flags.URL
		}
		if flags.User != "" {
			result.User = flags.User
		}
		if flags.Password != "" {
			result.Password = flags.Password
		}
		if flags.Timeout > 0 {
			result.Timeout = flags.Timeout
		}
	}

	if result.URL == "" {
		return nil, fmt.Errorf("%w: %s needs %s or an explicit URL", ErrNotConfigured, network, EnvRPCURL)
	}
	return &result, nil
}
