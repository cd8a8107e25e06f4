package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"parkit-backend/config"
	"parkit-backend/internal/logger"
	"parkit-backend/internal/prediction"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "parkitd",
	Short:         "Parking lot pricing and availability service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (defaults to $CONFIG_PATH)")
}

// loadConfig reads the configuration and sets up the global logger.
func loadConfig() (*config.Config, error) {
	path := cfgPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.Setup(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}
	return cfg, nil
}

// forecastModel builds the prediction model from the prediction section.
func forecastModel(cfg config.PredictionConfig) (prediction.Model, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return prediction.Model{}, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	return prediction.Model{
		PeakWindows:    cfg.PeakWindows,
		PeakMultiplier: cfg.PeakMultiplier,
		Location:       loc,
	}, nil
}
