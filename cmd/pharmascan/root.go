package main

import (
	"fmt"
	"os"

	"github.com/adverant/nexus/pharmascan/internal/config"
	"github.com/adverant/nexus/pharmascan/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "pharmascan",
		Short: "Recognize drugs on medicine packaging photographs",
		Long: `PharmaScan runs an OCR ensemble over a photo of a medicine strip or box
and matches the recognized text against a controlled drug vocabulary.

Configuration comes from environment variables, optionally seeded from a
.env file, plus an optional YAML tuning file (TUNING_FILE).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading configuration")

	cmd.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newScanCmd(),
		newEnqueueCmd(),
	)

	return cmd
}

// loadConfig reads configuration and builds the service logger
func loadConfig() (*config.Config, *logging.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := logging.NewLoggerWithWriter("pharmascan", os.Stderr, logging.ParseLevel(cfg.LogLevel))
	return cfg, logger, nil
}
