package catalog

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

// Store persists the catalog as SCD2 dimensions. Each ReplaceDimensions call
// is one full snapshot: rows that changed get a new version, rows that
// disappeared get a tombstone.
type Store struct {
	log *slog.Logger
	db  duck.DB
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		log: cfg.Logger,
		db:  cfg.DB,
	}, nil
}

func scdConfig(table, key string, snapshotTS time.Time, runID string) duck.SCDTableConfig {
	return duck.SCDTableConfig{
		TableName:       table,
		KeyColumn:       key,
		Columns:         schema.Warehouse.MustTable(table).ColumnSpecs(),
		SnapshotTS:      snapshotTS,
		RunID:           runID,
		TrackIngestRuns: true,
	}
}

// ReplaceDimensions snapshots all five dimensions from the catalog. Column
// order follows the warehouse schema declaration, so the CSV writers below
// must stay aligned with it.
func (s *Store) ReplaceDimensions(ctx context.Context, cat *Catalog, snapshotTS time.Time, runID string) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	steps := []struct {
		table string
		key   string
		count int
		write func(*csv.Writer, int) error
	}{
		{"dim_asset", "asset_id", len(cat.Assets), func(w *csv.Writer, i int) error {
			a := cat.Assets[i]
			return w.Write([]string{
				a.ID,
				a.Name,
				a.Model,
				a.OEMName,
				a.InstallationDate.Format("2006-01-02"),
				strconv.FormatFloat(a.DowntimeImpactPerHour, 'f', -1, 64),
				string(a.Class),
				a.ProcessName,
				a.LineName,
				a.PlantName,
			})
		}},
		{"dim_sensor", "sensor_id", len(cat.Sensors), func(w *csv.Writer, i int) error {
			sn := cat.Sensors[i]
			return w.Write([]string{sn.ID, sn.AssetID, string(sn.Type), sn.Units})
		}},
		{"dim_technician", "technician_id", len(cat.Technicians), func(w *csv.Writer, i int) error {
			t := cat.Technicians[i]
			return w.Write([]string{t.ID, t.Name, t.Shift})
		}},
		{"dim_work_order_type", "wo_type", len(cat.WorkOrderTypes), func(w *csv.Writer, i int) error {
			wo := cat.WorkOrderTypes[i]
			return w.Write([]string{wo.Type, wo.Description, strconv.FormatBool(wo.IsPlanned)})
		}},
		{"dim_failure_code", "failure_code", len(cat.FailureCodes), func(w *csv.Writer, i int) error {
			fc := cat.FailureCodes[i]
			return w.Write([]string{fc.Code, fc.Description, strconv.Itoa(fc.Severity)})
		}},
	}

	for _, step := range steps {
		cfg := scdConfig(step.table, step.key, snapshotTS, runID)
		if err := duck.SCDTableViaCSV(ctx, s.log, conn, cfg, step.count, step.write); err != nil {
			return fmt.Errorf("failed to snapshot %s: %w", step.table, err)
		}
	}
	return nil
}
