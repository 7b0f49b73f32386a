package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newKeygenCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generates an ed25519 account key",
		Long: "Generates an ed25519 account key and prints its public key. " +
			"The hex seed is written to --out, or printed when --out is empty.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pub, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			seed := hex.EncodeToString(priv.Seed())
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "public_key: %s\n", hex.EncodeToString(pub))
			if out == "" {
				fmt.Fprintf(w, "seed: %s\n", seed)
				return nil
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o700); err != nil {
				return err
			}
			f, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
			if err != nil {
				return fmt.Errorf("write key: %w", err)
			}
			defer f.Close()
			if _, err := fmt.Fprintln(f, seed); err != nil {
				return fmt.Errorf("write key: %w", err)
			}
			fmt.Fprintf(w, "seed written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "file to write the hex seed to (never overwritten)")
	return cmd
}
