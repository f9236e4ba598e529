package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sfaptracker/config"
	"sfaptracker/crypto"
	"sfaptracker/i18n"
	"sfaptracker/logging"
)

var (
	configPath string
	logger     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sfaptracker",
	Short: "SFAP apprentice competency tracker",
	Long: `sfaptracker records apprentices' progress through the SFAP competency
catalog: self-assessment, mentor sign-off and admin reporting.

Run without a subcommand to start the HTTP server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadConfig(configPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		var err error
		logger, err = logging.New(config.AppConfig.LogLevel, config.AppConfig.LogFormat)
		if err != nil {
			return err
		}
		if err := i18n.LoadTranslations(); err != nil {
			return fmt.Errorf("load translations: %w", err)
		}
		if config.AppConfig.PasswordCost > 0 {
			crypto.PasswordCost = config.AppConfig.PasswordCost
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "JSON config file (TRACKER_* environment variables override it)")
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd, importCmd, createAdminCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
