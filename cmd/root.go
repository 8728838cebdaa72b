// Package cmd implements the curator command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FranksOps/curator/internal/config"
	"github.com/FranksOps/curator/pkg/logger"
)

var (
	configPath string
	logLevel   string

	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "curator",
	Short: "Find safe, embeddable YouTube videos for course modules",
	Long: `curator searches YouTube for a course or module title, drops videos whose
metadata makes them unsafe to embed, confirms the rest actually play in the
embedded player and returns the three most popular.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			c.Logging.Level = logLevel
		}
		l, err := logger.New(c.Logging.Level, c.Logging.File)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		cfg, log = c, l
		logger.Log = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to a config file (default: ./config.yaml or ./config/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info",
		"Set the logging verbosity level: debug, info, warn, error")
}
