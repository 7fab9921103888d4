package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/comigor/medchat-go/internal/config"
	"github.com/comigor/medchat-go/internal/logger"
)

var (
	// Global flags
	configPath string
	logLevel   string

	// cfg is loaded before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "medchat",
	Short: "Terminal client for the medical assistant",
	Long: `medchat talks to the medical-assistant backend.

Run without arguments to start the interactive chat screen.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			if err := os.Setenv("CONFIG_PATH", configPath); err != nil {
				return err
			}
		}
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded

		level := cfg.Log.Level
		if logLevel != "" {
			level = logLevel
		}
		logger.SetLevel(level)
		return nil
	},
	RunE: runChat,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./config.yaml or ~/.config/medchat/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(chatCmd, sendCmd)
	rootCmd.AddCommand(sessionsCmd, historyCmd)
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd, profileCmd, settingsCmd)
	rootCmd.AddCommand(registerCmd, changePasswordCmd)
	rootCmd.AddCommand(reportsCmd, adminCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
