package main

import (
	"fmt"
	"os"

	"github.com/akolanti/ProposalAPI/internal/config"
	"github.com/akolanti/ProposalAPI/pkg/logger_i"
	"github.com/spf13/cobra"
)

var Version = "dev"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "pipelinectl",
		Short:         "Run and inspect proposal analysis stages",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("PIPELINE_CONFIG"), "path to a TOML config file")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(promptsCmd())
	rootCmd.AddCommand(mcpCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadSettings reads the config and points logging at stderr so stdout carries
// only command output.
func loadSettings() (config.Settings, error) {
	settings, err := config.Load(configPath)
	logger_i.Init(settings.Prod, os.Stderr)
	return settings, err
}
