package production

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

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

// FactConfigProductionLog returns the fact table config for daily production.
func FactConfigProductionLog() duck.FactTableConfig {
	return duck.FactTableConfig{
		TableName: "fct_production_log",
		Columns:   schema.Warehouse.MustTable("fct_production_log").ColumnSpecs(),
	}
}

// ReplaceProduction lands the production log for the window's day range.
func (s *Store) ReplaceProduction(ctx context.Context, records []Record, window sim.Window) error {
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
		FactConfigProductionLog(),
		duck.ReplaceWindow{
			KeyColumn: "production_date",
			From:      sim.DateKey(firstDay),
			To:        sim.DateKey(lastDay),
		},
		len(records),
		func(w *csv.Writer, i int) error {
			r := records[i]
			return w.Write([]string{
				r.AssetID,
				sim.DateKey(r.ProductionDate),
				strconv.FormatFloat(r.PlannedRuntimeHours, 'f', -1, 64),
				strconv.FormatFloat(r.ActualRuntimeHours, 'f', -1, 64),
				strconv.Itoa(r.UnitsProduced),
				strconv.Itoa(r.UnitsScrapped),
			})
		},
	)
}
