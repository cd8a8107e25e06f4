package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"parkit-backend/internal/db"
	"parkit-backend/internal/logger"
	"parkit-backend/internal/prediction"
	"parkit-backend/internal/pricing"
	"parkit-backend/internal/store"
)

var forecastMinutes int

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Print an availability forecast from the stored snapshots",
	RunE:  forecast,
}

func init() {
	forecastCmd.Flags().IntVarP(&forecastMinutes, "minutes", "m", 0, "forecast horizon in minutes (defaults to prediction.minutes_ahead)")
	rootCmd.AddCommand(forecastCmd)
}

func forecast(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if forecastMinutes < 0 {
		return fmt.Errorf("minutes must not be negative")
	}
	minutes := forecastMinutes
	if minutes == 0 {
		minutes = cfg.Prediction.MinutesAhead
	}

	gormDB, err := db.Init(&cfg.Database, logger.New("db"))
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		defer sqlDB.Close()
	}

	st := store.NewGormStore(gormDB)
	snaps, err := st.LoadSnapshots(cmd.Context())
	if err != nil {
		return fmt.Errorf("load snapshots: %w", err)
	}
	spots, err := st.LoadSpots(cmd.Context())
	if err != nil {
		return fmt.Errorf("load spots: %w", err)
	}
	var stats *prediction.Stats
	if rate, err := pricing.OccupancyRate(spots); err == nil {
		stats = &prediction.Stats{OccupancyRate: rate}
	}
	model, err := forecastModel(cfg.Prediction)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(model.Predict(snaps, minutes, stats, time.Now()))
}
