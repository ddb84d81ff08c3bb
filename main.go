package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/navarrastar/gapscan/pkg/config"
	"github.com/navarrastar/gapscan/pkg/logging"
)

var (
	cfg    *config.Config
	logger *logging.Logger
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gapscan",
		Short:        "Gap Scan intake service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			envErr := godotenv.Load()

			var err error
			cfg, err = config.LoadConfig()
			if err != nil {
				return fmt.Errorf("error loading configuration: %w", err)
			}
			logger = logging.New(cfg.LogLevel)
			if envErr != nil {
				logger.Debug("no .env file loaded", "error", envErr)
			}
			return nil
		},
	}

	root.AddCommand(serveCmd(), resubmitCmd())
	return root
}
