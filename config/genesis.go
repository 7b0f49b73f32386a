package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/blockberries/nullspace/types"
)

// genesisFile is the YAML layout of a genesis document.
type genesisFile struct {
	ChainID     string             `yaml:"chain_id"`
	GenesisTime time.Time          `yaml:"genesis_time"`
	Config      *types.ChainConfig `yaml:"config"`
	Accounts    []genesisAccount   `yaml:"accounts"`
	Pool        *genesisPool       `yaml:"pool"`
}

type genesisAccount struct {
	PublicKey string `yaml:"public_key"`
	Chips     uint64 `yaml:"chips"`
	VUSDT     uint64 `yaml:"vusdt"`
}

type genesisPool struct {
	ReserveChips uint64 `yaml:"reserve_chips"`
	ReserveVUSDT uint64 `yaml:"reserve_vusdt"`
}

// LoadGenesis reads the YAML genesis document at path.
func LoadGenesis(path string) (types.GenesisDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.GenesisDoc{}, fmt.Errorf("read genesis: %w", err)
	}
	doc, err := ParseGenesis(data)
	if err != nil {
		return types.GenesisDoc{}, fmt.Errorf("genesis %s: %w", path, err)
	}
	return doc, nil
}

// ParseGenesis decodes a YAML genesis document. Public keys are hex,
// with or without a 0x prefix. A missing config section enables every
// domain with default parameters, and fields a config section omits
// keep their defaults.
func ParseGenesis(data []byte) (types.GenesisDoc, error) {
	defaults := types.DefaultChainConfig()
	file := genesisFile{Config: &defaults}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return types.GenesisDoc{}, fmt.Errorf("decode: %w", err)
	}
	if file.ChainID == "" {
		return types.GenesisDoc{}, errors.New("chain_id is required")
	}
	if file.GenesisTime.IsZero() {
		return types.GenesisDoc{}, errors.New("genesis_time is required")
	}

	doc := types.GenesisDoc{
		ChainID:     file.ChainID,
		GenesisTime: types.TimeToTimestamp(file.GenesisTime),
		Config:      types.DefaultChainConfig(),
	}
	if file.Config != nil {
		doc.Config = *file.Config
	}
	if err := doc.Config.Validate(); err != nil {
		return types.GenesisDoc{}, fmt.Errorf("config: %w", err)
	}
	seen := make(map[types.PublicKey]bool, len(file.Accounts))
	for i, acc := range file.Accounts {
		raw := common.FromHex(acc.PublicKey)
		var pk types.PublicKey
		if len(raw) != len(pk) {
			return types.GenesisDoc{}, fmt.Errorf("accounts[%d]: public key must be %d hex bytes", i, len(pk))
		}
		copy(pk[:], raw)
		if seen[pk] {
			return types.GenesisDoc{}, fmt.Errorf("accounts[%d]: duplicate public key %s", i, pk)
		}
		seen[pk] = true
		doc.Accounts = append(doc.Accounts, types.GenesisAccount{Public: pk, Chips: acc.Chips, VUSDT: acc.VUSDT})
	}
	if file.Pool != nil {
		doc.Pool = &types.GenesisPool{ReserveChips: file.Pool.ReserveChips, ReserveVUSDT: file.Pool.ReserveVUSDT}
	}
	return doc, nil
}

// MarshalGenesis renders doc in the layout ParseGenesis reads.
func MarshalGenesis(doc types.GenesisDoc) ([]byte, error) {
	file := genesisFile{
		ChainID:     doc.ChainID,
		GenesisTime: doc.GenesisTime.ToTime(),
		Config:      &doc.Config,
	}
	for _, acc := range doc.Accounts {
		file.Accounts = append(file.Accounts, genesisAccount{
			PublicKey: common.Bytes2Hex(acc.Public[:]),
			Chips:     acc.Chips,
			VUSDT:     acc.VUSDT,
		})
	}
	if doc.Pool != nil {
		file.Pool = &genesisPool{ReserveChips: doc.Pool.ReserveChips, ReserveVUSDT: doc.Pool.ReserveVUSDT}
	}
	return yaml.Marshal(file)
}
