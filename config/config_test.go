package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/nullspace/ledger"
	"github.com/blockberries/nullspace/types"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsFillGaps(t *testing.T) {
	path := writeFile(t, "config.toml", `
listen_address = "0.0.0.0:7000"

[mempool]
max_backlog = 8

[rate_limit]
per_second = 2.5
burst = 4

[uploader]
max_retries = 3
initial_interval = "50ms"

[[uploader.sinks]]
name = "indexer"
url = "http://127.0.0.1:8080/blocks"
timeout = "2s"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:7000", cfg.ListenAddress)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "nullspace-data"), cfg.DataDir)
	assert.Equal(t, 8, cfg.Mempool.MaxBacklog)
	assert.Equal(t, Default().Mempool.MaxTransactions, cfg.Mempool.MaxTransactions)

	lc := cfg.LedgerConfig()
	assert.Equal(t, 2.5, lc.RateLimit.PerSecond)
	assert.Equal(t, 4, lc.RateLimit.Burst)
	assert.Equal(t, ledger.DefaultMaxBlockTxs, lc.MaxBlockTxs)

	uc := cfg.UploaderConfig()
	assert.Equal(t, uint64(3), uc.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, uc.InitialInterval)
	require.Len(t, cfg.Uploader.Sinks, 1)
	assert.Equal(t, 2*time.Second, cfg.Uploader.Sinks[0].Timeout)

	assert.Equal(t, "info", cfg.LoggingOptions().Level)
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeFile(t, "config.toml", "listen_adress = \"127.0.0.1:1\"\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen_adress")
}

func TestLoad_Invalid(t *testing.T) {
	path := writeFile(t, "config.toml", `
listen_address = "nope"

[[uploader.sinks]]
name = "a"
url = "ftp://x"

[[uploader.sinks]]
name = "a"
url = "http://x"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen_address")
	assert.Contains(t, err.Error(), "absolute http(s) URL")
	assert.Contains(t, err.Error(), "duplicate name")
}

func TestWrite_RoundTripAndNoOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "home", "config.toml")
	require.NoError(t, Write(path, Default()))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Uploader.MaxInterval, cfg.Uploader.MaxInterval)
	assert.Equal(t, Default().ListenAddress, cfg.ListenAddress)

	require.Error(t, Write(path, Default()))
}

const genesisYAML = `
chain_id: nullspace-test
genesis_time: 2024-01-01T00:00:00Z
config:
  casino_enabled: true
  staking_enabled: false
  liquidity_enabled: true
  max_deposit: 5000
  epoch_length: 10
  amm_fee_bps: 30
accounts:
  - public_key: 0x0101010101010101010101010101010101010101010101010101010101010101
    chips: 1000
    vusdt: 250
pool:
  reserve_chips: 100000
  reserve_vusdt: 100000
`

func TestParseGenesis(t *testing.T) {
	doc, err := ParseGenesis([]byte(genesisYAML))
	require.NoError(t, err)

	assert.Equal(t, "nullspace-test", doc.ChainID)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix(), doc.GenesisTime.Seconds)
	assert.False(t, doc.Config.StakingEnabled)
	assert.Equal(t, uint64(5000), doc.Config.MaxDeposit)
	require.Len(t, doc.Accounts, 1)
	assert.Equal(t, byte(1), doc.Accounts[0].Public[31])
	assert.Equal(t, uint64(250), doc.Accounts[0].VUSDT)
	require.NotNil(t, doc.Pool)
	assert.Equal(t, uint64(100000), doc.Pool.ReserveChips)

	again, err := MarshalGenesis(doc)
	require.NoError(t, err)
	back, err := ParseGenesis(again)
	require.NoError(t, err)
	assert.Equal(t, doc, back)
}

func TestParseGenesis_Defaults(t *testing.T) {
	doc, err := ParseGenesis([]byte("chain_id: x\ngenesis_time: 2024-01-01T00:00:00Z\n"))
	require.NoError(t, err)
	assert.Equal(t, types.DefaultChainConfig(), doc.Config)
	assert.Nil(t, doc.Pool)
}

func TestParseGenesis_PartialConfigKeepsDefaults(t *testing.T) {
	doc, err := ParseGenesis([]byte("chain_id: x\ngenesis_time: 2024-01-01T00:00:00Z\nconfig:\n  staking_enabled: false\n"))
	require.NoError(t, err)

	want := types.DefaultChainConfig()
	want.StakingEnabled = false
	assert.Equal(t, want, doc.Config)
	assert.True(t, doc.Config.CasinoEnabled)
	assert.Equal(t, uint64(1_000_000), doc.Config.MaxDeposit)
}

func TestParseGenesis_Errors(t *testing.T) {
	cases := map[string]string{
		"fee above scale": "chain_id: x\ngenesis_time: 2024-01-01T00:00:00Z\nconfig:\n  amm_fee_bps: 20000\n",
		"tax above scale": "chain_id: x\ngenesis_time: 2024-01-01T00:00:00Z\nconfig:\n  sell_tax_bps: 10001\n",
		"missing chain id": "genesis_time: 2024-01-01T00:00:00Z\n",
		"missing time":     "chain_id: x\n",
		"short key":        "chain_id: x\ngenesis_time: 2024-01-01T00:00:00Z\naccounts:\n  - public_key: abcd\n",
		"unknown field":    "chain_id: x\ngenesis_time: 2024-01-01T00:00:00Z\nvalidators: []\n",
		"duplicate key": "chain_id: x\ngenesis_time: 2024-01-01T00:00:00Z\naccounts:\n" +
			"  - public_key: 0101010101010101010101010101010101010101010101010101010101010101\n" +
			"  - public_key: 0x0101010101010101010101010101010101010101010101010101010101010101\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseGenesis([]byte(body))
			require.Error(t, err)
		})
	}
}

func TestLoadGenesis_File(t *testing.T) {
	doc, err := LoadGenesis(writeFile(t, "genesis.yaml", genesisYAML))
	require.NoError(t, err)
	assert.Equal(t, "nullspace-test", doc.ChainID)

	_, err = LoadGenesis(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
