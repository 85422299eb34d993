package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"rpcbatch/internal/config"
	"rpcbatch/internal/logger"
)

// GlobalFlags are shared by every command
type GlobalFlags struct {
	ConfigPath string
	Endpoint   string
	Transport  string
	LogLevel   string
	Loopback   bool
}

var globalFlags GlobalFlags

var rootCmd = &cobra.Command{
	Use:           "rpcbatch",
	Short:         "Batching JSON-RPC 2.0 client",
	Long:          "rpcbatch coalesces the calls issued within one scheduling tick into a single JSON-RPC batch.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigPath, "config", "c", "", "path to config file (json or yaml)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.Endpoint, "endpoint", "", "endpoint URL, overrides config")
	rootCmd.PersistentFlags().StringVar(&globalFlags.Transport, "transport", "", "http or ws, overrides config")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogLevel, "log-level", "", "debug, info, warn or error, overrides config")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Loopback, "loopback", false, "serve calls from the built-in in-memory item service")

	rootCmd.AddCommand(callCmd)
}

// loadConfig loads the config file and applies flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(globalFlags.ConfigPath)
	if err != nil {
		return nil, err
	}
	if globalFlags.Endpoint != "" {
		cfg.Endpoint = globalFlags.Endpoint
	}
	if globalFlags.Transport != "" {
		cfg.Transport = globalFlags.Transport
	}
	if globalFlags.LogLevel != "" {
		cfg.LogLevel = globalFlags.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if !globalFlags.Loopback && cfg.Endpoint == "" {
		return nil, fmt.Errorf("an endpoint is required unless --loopback is set")
	}
	return cfg, nil
}

// setupLogger configures the zerolog logger from config
func setupLogger(cfg *config.Config) (zerolog.Logger, func(), error) {
	log, closer, err := logger.New(logger.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cfg.LogOutput,
	})
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	return log, func() { closer.Close() }, nil
}
