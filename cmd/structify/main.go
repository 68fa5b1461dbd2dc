package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Flashl3opard/structify/internal/config"
	"github.com/Flashl3opard/structify/pkg/logging/logging"
)

var (
	// Global flags
	configPath string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "structify",
	Short: "Turn free-text prompts into JSON chart data",
	Long: `structify asks a Groq-hosted model for a JSON array and recovers the array
from whatever text comes back. Run "structify serve" for the HTTP API or
"structify convert" for a one-off conversion.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		logger, err = logging.NewLogger(logging.Options{
			Env:   cfg.Log.Env,
			Level: cfg.Log.Level,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	rootCmd.AddCommand(serveCmd, convertCmd, mindmapCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
