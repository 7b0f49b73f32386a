package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/blockberries/nullspace/config"
	"github.com/blockberries/nullspace/types"
)

func newInitCommand() *cobra.Command {
	var (
		chainID  string
		accounts []string
		chips    uint64
		vusdt    uint64
		pool     uint64
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Writes a default config and genesis file to the home directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Default()
			if err := config.Write(configPath(), cfg); err != nil {
				return fmt.Errorf("write config: %w", err)
			}

			doc := types.GenesisDoc{
				ChainID:     chainID,
				GenesisTime: types.TimeToTimestamp(time.Now().UTC().Truncate(time.Second)),
				Config:      types.DefaultChainConfig(),
			}
			if pool > 0 {
				doc.Pool = &types.GenesisPool{ReserveChips: pool, ReserveVUSDT: pool}
			}
			for _, a := range accounts {
				raw := common.FromHex(a)
				var pk types.PublicKey
				if len(raw) != len(pk) {
					return fmt.Errorf("account %q: public key must be %d hex bytes", a, len(pk))
				}
				copy(pk[:], raw)
				doc.Accounts = append(doc.Accounts, types.GenesisAccount{Public: pk, Chips: chips, VUSDT: vusdt})
			}
			data, err := config.MarshalGenesis(doc)
			if err != nil {
				return err
			}
			// Validate what we wrote the same way the engine will read it.
			if _, err := config.ParseGenesis(data); err != nil {
				return err
			}
			genesisPath := resolveHome(cfg.GenesisFile)
			f, err := os.OpenFile(genesisPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
			if err != nil {
				return fmt.Errorf("write genesis: %w", err)
			}
			defer f.Close()
			if _, err := f.Write(data); err != nil {
				return fmt.Errorf("write genesis: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", home)
			return nil
		},
	}
	cmd.Flags().StringVar(&chainID, "chain-id", "nullspace-local", "chain identifier")
	cmd.Flags().StringArrayVar(&accounts, "account", nil, "hex public key funded at genesis (repeatable)")
	cmd.Flags().Uint64Var(&chips, "chips", 1000, "chips given to each genesis account")
	cmd.Flags().Uint64Var(&vusdt, "vusdt", 1000, "vUSDT given to each genesis account")
	cmd.Flags().Uint64Var(&pool, "pool", 1_000_000, "initial AMM reserve of each asset; 0 leaves the pool empty")
	return cmd
}
