package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/tokenwatch/internal/config"
	"github.com/kailas-cloud/tokenwatch/internal/repository/snapshot"
	"github.com/kailas-cloud/tokenwatch/internal/version"
)

var (
	// Global flags
	cfgFile string
	envName string
)

var rootCmd = &cobra.Command{
	Use:   "tokenwatch",
	Short: "LLM token usage accounting and alerting",
	Long: `Tokenwatch keeps running token counters per conversation (group or private
chat), per user and globally, persists them across restarts and notifies
administrators when a conversation, a user or a single request crosses its
configured threshold.`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file path (.yaml or .toml); defaults to config/<env>.yaml")
	rootCmd.PersistentFlags().StringVar(&envName, "env", "", "environment name (default: $ENV or local)")
}

func currentEnv() string {
	if envName != "" {
		return envName
	}
	return config.GetEnv()
}

func loadConfig() (config.Config, error) {
	if cfgFile != "" {
		return config.LoadFile(cfgFile)
	}
	return config.Load(currentEnv())
}

func openBackend(ctx context.Context, cfg config.StorageConfig) (snapshot.Backend, error) {
	b, err := snapshot.Open(ctx, snapshot.Config{
		Driver:           cfg.Driver,
		Path:             cfg.Path,
		Addrs:            cfg.Addrs,
		Password:         cfg.Password,
		DB:               cfg.DB,
		Key:              cfg.Key,
		ReadinessTimeout: time.Duration(cfg.ReadinessTimeout) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Driver, err)
	}
	return b, nil
}
