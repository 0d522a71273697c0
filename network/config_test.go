package network

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetworkPresets(t *testing.T) {
	for _, name := range []string{"regtest", "testnet"} {
		preset, ok := NetworkPresets[name]
		require.True(t, ok, name)
		assert.NotEmpty(t, preset.URL)
	}
	_, ok := NetworkPresets["mainnet"]
	assert.False(t, ok, "mainnet should not have a default preset")
}

func TestResolveConfig_Layers(t *testing.T) {
	env := map[string]string{EnvRPCURL: "http://env:18332", EnvRPCUser: "envuser"}

	cfg, err := ResolveConfig(nil, env, "regtest")
	require.NoError(t, err)
	assert.Equal(t, "http://env:18332", cfg.URL)
	assert.Equal(t, "envuser", cfg.User)
	assert.Equal(t, "custody", cfg.Password, "preset fills what env leaves out")
	assert.Equal(t, "regtest", cfg.Network)

	flags := &RPCConfig{URL: "http://flag:1", Password: "flagpass", Timeout: 5 * time.Second}
	cfg, err = ResolveConfig(flags, env, "regtest")
	require.NoError(t, err)
	assert.Equal(t, "http://flag:1", cfg.URL)
	assert.Equal(t, "envuser", cfg.User)
	assert.Equal(t, "flagpass", cfg.Password)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestResolveConfig_MainnetRequiresURL(t *testing.T) {
	_, err := ResolveConfig(nil, nil, "mainnet")
	assert.ErrorIs(t, err, ErrNotConfigured)

	cfg, err := ResolveConfig(nil, map[string]string{EnvRPCURL: "http://node:8332"}, "mainnet")
	require.NoError(t, err)
	assert.Equal(t, "http://node:8332", cfg.URL)
	assert.Empty(t, cfg.User)
}
