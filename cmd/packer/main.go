// Command packer plans, exercises and serves integer packing for homomorphic
// encryption.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luxfi/packer/internal/config"
	"github.com/luxfi/packer/internal/logging"
)

var (
	configPath     string
	fieldsOverride []string
	schemeOverride string
	version        = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "packer",
	Short: "Pack bounded integers into homomorphic ciphertexts",
	Long: `packer concatenates bounded non-negative integer fields into as few
plaintext slots as an encryption scheme can hold, and merges the last slot of
several records into one ciphertext when the scheme supports it.

Configuration is read from --config (YAML) and PACKER_* environment variables.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringSliceVar(&fieldsOverride, "fields", nil, "field upper bounds, overriding the config (e.g. 1000,1000,255)")
	rootCmd.PersistentFlags().StringVar(&schemeOverride, "scheme", "", "scheme kind, overriding the config (paillier, affine, lattice)")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(roundtripCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
}

// loadConfig loads the config file and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if len(fieldsOverride) > 0 {
		cfg.Fields = fieldsOverride
	}
	if schemeOverride != "" {
		cfg.Scheme.Kind = schemeOverride
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, nil
}
