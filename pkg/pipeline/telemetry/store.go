package telemetry

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

// FactConfigTelemetry returns the fact table config for hourly readings.
func FactConfigTelemetry() duck.FactTableConfig {
	return duck.FactTableConfig{
		TableName:       "fct_asset_telemetry",
		PartitionByTime: true,
		TimeColumn:      "recorded_at",
		Columns:         schema.Warehouse.MustTable("fct_asset_telemetry").ColumnSpecs(),
	}
}

// ReplaceReadings lands the readings for the window, deleting whatever the
// window previously held in the same transaction. Re-running a window is safe.
func (s *Store) ReplaceReadings(ctx context.Context, readings []Reading, window sim.Window) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	return duck.ReplaceFactsViaCSV(
		ctx,
		s.log,
		conn,
		FactConfigTelemetry(),
		duck.ReplaceWindow{
			KeyColumn: "recorded_at",
			From:      window.Start.UTC(),
			To:        window.End.UTC(),
		},
		len(readings),
		func(w *csv.Writer, i int) error {
			r := readings[i]
			pressure := ""
			if r.PressurePSI != nil {
				pressure = strconv.FormatFloat(*r.PressurePSI, 'f', -1, 64)
			}
			return w.Write([]string{
				r.AssetID,
				r.RecordedAt.UTC().Format(time.DateTime),
				strconv.FormatFloat(r.TemperatureC, 'f', -1, 64),
				strconv.FormatFloat(r.VibrationMMS, 'f', -1, 64),
				pressure,
				strconv.FormatFloat(r.HealthScore, 'f', -1, 64),
				strconv.FormatFloat(r.FailureProbability, 'f', -1, 64),
				strconv.Itoa(r.RULDays),
				strconv.FormatBool(r.IsAnomalous),
			})
		},
	)
}
