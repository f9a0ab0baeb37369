package maintenance

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

// FactConfigMaintenanceLog returns the fact table config for the event log.
func FactConfigMaintenanceLog() duck.FactTableConfig {
	return duck.FactTableConfig{
		TableName: "fct_maintenance_log",
		Columns:   schema.Warehouse.MustTable("fct_maintenance_log").ColumnSpecs(),
	}
}

// FactConfigPartsUsage returns the fact table config for the parts ledger.
func FactConfigPartsUsage() duck.FactTableConfig {
	return duck.FactTableConfig{
		TableName: "fct_parts_usage",
		Columns:   schema.Warehouse.MustTable("fct_parts_usage").ColumnSpecs(),
	}
}

// ReplaceEvents lands the event log for the window's day range, replacing
// whatever those days previously held.
func (s *Store) ReplaceEvents(ctx context.Context, events []Event, window sim.Window) error {
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
		FactConfigMaintenanceLog(),
		duck.ReplaceWindow{
			KeyColumn: "event_date",
			From:      sim.DateKey(firstDay),
			To:        sim.DateKey(lastDay),
		},
		len(events),
		func(w *csv.Writer, i int) error {
			e := events[i]
			return w.Write([]string{
				e.AssetID,
				sim.DateKey(e.EventDate),
				e.WOType,
				strconv.FormatFloat(e.DowntimeHours, 'f', -1, 64),
				strconv.FormatFloat(e.PartsCostUSD, 'f', -1, 64),
				strconv.FormatFloat(e.LaborCostUSD, 'f', -1, 64),
				strconv.FormatBool(e.FailureFlag),
				e.FailureCode,
				e.TechnicianID,
				e.Notes,
			})
		},
	)
}

// ReplacePartsUsage lands the parts ledger for the window's day range.
func (s *Store) ReplacePartsUsage(ctx context.Context, parts []PartUsage, window sim.Window) error {
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
		FactConfigPartsUsage(),
		duck.ReplaceWindow{
			KeyColumn: "event_date",
			From:      sim.DateKey(firstDay),
			To:        sim.DateKey(lastDay),
		},
		len(parts),
		func(w *csv.Writer, i int) error {
			p := parts[i]
			return w.Write([]string{
				p.AssetID,
				sim.DateKey(p.EventDate),
				strconv.Itoa(p.LineNo),
				p.MaterialName,
				strconv.Itoa(p.Quantity),
				strconv.FormatFloat(p.UnitCostUSD, 'f', -1, 64),
				strconv.FormatFloat(p.TotalCostUSD, 'f', -1, 64),
			})
		},
	)
}
