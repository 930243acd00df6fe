package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/llmflow"
	"github.com/hupe1980/llmflow/config"
)

var rootCmd = &cobra.Command{
	Use:           "llmflow",
	Short:         "llmflow runs cached LLM generation tasks",
	Long:          `llmflow executes generation tasks against configured models and keeps every output as a versioned artifact, reusing it while its inputs are unchanged.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to the config file (default config.yml)")
	rootCmd.PersistentFlags().String("store-dir", "", "Use a file store rooted at this directory")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dir, _ := cmd.Flags().GetString("store-dir"); dir != "" {
		cfg.Store = config.StoreConfig{Type: config.StoreFile, Path: dir}
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	return cfg, nil
}

func newApp(cmd *cobra.Command) (*llmflow.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return llmflow.New(cfg)
}
