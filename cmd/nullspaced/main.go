package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var home string

var rootCmd = &cobra.Command{
	Use:          "nullspaced",
	Short:        "nullspace ledger node",
	SilenceUsage: true,
}

func init() {
	cobra.EnablePrefixMatching = true
	rootCmd.PersistentFlags().StringVar(&home, "home", defaultHome(), "node home directory")
	rootCmd.AddCommand(
		newStartCommand(),
		newInitCommand(),
		newKeygenCommand(),
		newVersionCommand(),
	)
}

func defaultHome() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(dir, ".nullspace")
	}
	return ".nullspace"
}

func configPath() string {
	return filepath.Join(home, "config.toml")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "nullspaced failed: %v\n", err)
		os.Exit(1)
	}
}
