package features

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hyperforge-labs/forgelake/pkg/duck"
	"github.com/hyperforge-labs/forgelake/pkg/schema"
	"github.com/hyperforge-labs/forgelake/pkg/sim"
)

type StoreConfig struct {
	Logger *slog.Logger
	DB     duck.DB
}

func (cfg *StoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.DB == nil {
		return errors.New("db is required")
	}
	return nil
}

type Store struct {
	log *slog.Logger
	db  duck.DB
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{log: cfg.Logger, db: cfg.DB}, nil
}

// FactConfigHourlyHealth returns the table config for the hourly rollup.
func FactConfigHourlyHealth() duck.FactTableConfig {
	return duck.FactTableConfig{
		TableName:       "agg_asset_hourly_health",
		PartitionByTime: true,
		TimeColumn:      "hour_ts",
		Columns:         schema.Warehouse.MustTable("agg_asset_hourly_health").ColumnSpecs(),
	}
}

// FactConfigDailyFeatures returns the table config for the daily feature rows.
func FactConfigDailyFeatures() duck.FactTableConfig {
	return duck.FactTableConfig{
		TableName: "ml_feature_daily",
		Columns:   schema.Warehouse.MustTable("ml_feature_daily").ColumnSpecs(),
	}
}

// ReplaceHourlyHealth lands the rollup rows for the window, replacing
// whatever the window previously held.
func (s *Store) ReplaceHourlyHealth(ctx context.Context, rows []HourlyHealth, window sim.Window) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	return duck.ReplaceFactsViaCSV(
		ctx,
		s.log,
		conn,
		FactConfigHourlyHealth(),
		duck.ReplaceWindow{
			KeyColumn: "hour_ts",
			From:      window.Start.UTC(),
			To:        window.End.UTC(),
		},
		len(rows),
		func(w *csv.Writer, i int) error {
			r := rows[i]
			stddev := ""
			if r.StddevPressurePSI != nil {
				stddev = strconv.FormatFloat(*r.StddevPressurePSI, 'f', -1, 64)
			}
			return w.Write([]string{
				r.AssetID,
				r.HourTS.UTC().Format(time.DateTime),
				strconv.FormatFloat(r.AvgTemperatureC, 'f', -1, 64),
				strconv.FormatFloat(r.MaxVibrationMMS, 'f', -1, 64),
				stddev,
				strconv.FormatFloat(r.LatestHealthScore, 'f', -1, 64),
				strconv.FormatFloat(r.AvgFailureProbability, 'f', -1, 64),
				strconv.Itoa(r.MinRULDays),
			})
		},
	)
}

// ReplaceDailyFeatures lands the feature rows for the window's days,
// replacing whatever those days previously held.
func (s *Store) ReplaceDailyFeatures(ctx context.Context, rows []FeatureRow, window sim.Window) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	firstDay, lastDay := window.DayBounds()
	return duck.ReplaceFactsViaCSV(
		ctx,
		s.log,
		conn,
		FactConfigDailyFeatures(),
		duck.ReplaceWindow{
			KeyColumn: "feature_date",
			From:      sim.DateKey(firstDay),
			To:        sim.DateKey(lastDay),
		},
		len(rows),
		func(w *csv.Writer, i int) error {
			r := rows[i]
			trend := ""
			if r.PressureTrend7d != nil {
				trend = strconv.FormatFloat(*r.PressureTrend7d, 'f', -1, 64)
			}
			return w.Write([]string{
				r.AssetID,
				sim.DateKey(r.FeatureDate),
				strconv.FormatFloat(r.AvgTempLast24h, 'f', -1, 64),
				strconv.FormatFloat(r.VibrationStddev7d, 'f', -1, 64),
				trend,
				strconv.Itoa(r.CyclesSinceLastPM),
				strconv.Itoa(r.DaysSinceLastFailure),
				strconv.FormatFloat(r.OEMFailureRateEst, 'f', -1, 64),
				strconv.FormatFloat(r.DowntimeImpactRisk, 'f', -1, 64),
				strconv.FormatBool(r.FailedInNext7d),
			})
		},
	)
}
