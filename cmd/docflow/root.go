package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/gogotex/docflow/internal/client"
	"github.com/gogotex/docflow/internal/config"
	"github.com/gogotex/docflow/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	envFile string
	apiURL  string
	token   string
	cfg     *config.Config
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

var rootCmd = &cobra.Command{
	Use:     "docflow",
	Short:   "Document review and publishing workflow",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(envFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logger.Configure(cfg.Server.Environment)
		logger.Init(cfg.Server.LogLevel)
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "env file applied before reading DOCFLOW_* variables")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", envOr("DOCFLOW_API_URL", "http://localhost:5010"), "API base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("DOCFLOW_TOKEN"), "bearer token for API calls")
}

// apiClient returns a client for the --api server.
func apiClient() (*client.Client, error) {
	if token == "" {
		return nil, errors.New("no token: pass --token or set DOCFLOW_TOKEN")
	}
	return client.New(apiURL, token), nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
