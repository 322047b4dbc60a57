package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/smstask/internal/client"
	"github.com/nhle/smstask/internal/logging"
	"github.com/nhle/smstask/internal/model"
)

var rootCmd = &cobra.Command{
	Use:   "smstask",
	Short: "A ten-slot task list you drive by text message",
	Long: `smstask keeps a small task list that you manage by texting a mail account
from your phone. Inbound texts arrive through the carrier's email gateway,
are read over IMAP, and every command is answered by a text sent back
through the MMS gateway.

The same list is served over a local HTTP API, which the tasks and board
commands use.`,
	SilenceUsage: true,
}

var (
	version    = "dev"
	configPath string
	serverURL  string
)

// SetVersion sets the version reported by --version.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "smstask version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", model.DefaultConfigPath(), "path to the config file")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "task API base URL (defaults to the configured listen address)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newTasksCmd())
	rootCmd.AddCommand(newBoardCmd())
	rootCmd.AddCommand(newWipeCmd())
	rootCmd.AddCommand(newCredentialCmd())
}

func loadConfig() (*model.AppConfig, error) {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *model.AppConfig) *slog.Logger {
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	slog.SetDefault(logger)
	return logger
}

// apiClient returns a client for --server, or for the configured address.
func apiClient(cfg *model.AppConfig) *client.Client {
	url := serverURL
	if url == "" {
		url = cfg.BaseURL()
	}
	return client.New(url, nil)
}
